package eventstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lectern/internal/session"
)

// ErrCorruptSessionLog indicates a malformed record before the end of the
// log. A torn final record is recovered silently; damage anywhere else means
// the file cannot be trusted.
var ErrCorruptSessionLog = errors.New("corrupt session log")

// Log is one session's append-only event file. Records are newline-delimited
// JSON; every append is flushed and fsynced before returning so that an
// acknowledged event survives a crash. Not safe for concurrent use: a session
// has exactly one driver, enforced by the session lock.
type Log struct {
	file    *os.File
	path    string
	nextSeq int64
}

// OpenLog opens (or creates) the event log at path for appending. Existing
// records are scanned to position the sequence counter; a torn trailing
// record left by a crash is truncated away before appending resumes.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	events, validBytes, err := readEvents(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	if err := file.Truncate(validBytes); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("truncate torn record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("seek log end: %w", err)
	}

	var nextSeq int64 = 1
	if n := len(events); n > 0 {
		nextSeq = events[n-1].Seq + 1
	}
	return &Log{file: file, path: path, nextSeq: nextSeq}, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// NextSeq returns the sequence number the next appended event will receive.
func (l *Log) NextSeq() int64 {
	return l.nextSeq
}

// Append assigns the event its sequence number and timestamp, writes one JSON
// record, and fsyncs. On any write error the log must be considered
// unusable for further appends.
func (l *Log) Append(event session.Event) (session.Event, error) {
	event.Seq = l.nextSeq
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return session.Event{}, fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return session.Event{}, fmt.Errorf("append event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return session.Event{}, fmt.Errorf("sync session log: %w", err)
	}

	l.nextSeq++
	return event, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// LoadEvents reads every durable event from the log at path. A torn final
// record (no trailing newline, or unparseable JSON on the last line) is
// discarded; returned discarded reports whether that happened. Malformed
// records anywhere earlier yield ErrCorruptSessionLog.
func LoadEvents(path string) (events []session.Event, discarded bool, err error) {
	events, validBytes, err := readEvents(path)
	if err != nil {
		return nil, false, err
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		return nil, false, statErr
	}
	return events, info.Size() > validBytes, nil
}

// readEvents parses the log and returns the events plus the byte offset up to
// which the file contains complete, valid records.
func readEvents(path string) ([]session.Event, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var (
		events     []session.Event
		validBytes int64
		lastSeq    int64
	)
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, 0, fmt.Errorf("read session log: %w", readErr)
		}
		complete := readErr == nil

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var event session.Event
			if unmarshalErr := json.Unmarshal(trimmed, &event); unmarshalErr != nil {
				if complete {
					return nil, 0, fmt.Errorf("%w: record %d at %s: %v",
						ErrCorruptSessionLog, len(events)+1, path, unmarshalErr)
				}
				// Torn tail from an interrupted append: stop here.
				return events, validBytes, nil
			}
			if !complete {
				// Parsed but missing its newline: the fsync never finished,
				// treat it as torn.
				return events, validBytes, nil
			}
			if event.Seq <= lastSeq {
				return nil, 0, fmt.Errorf("%w: sequence went backwards at record %d (%d after %d) in %s",
					ErrCorruptSessionLog, len(events)+1, event.Seq, lastSeq, path)
			}
			lastSeq = event.Seq
			events = append(events, event)
		}
		if complete {
			validBytes += int64(len(line))
			continue
		}
		return events, validBytes, nil
	}
}

// Replay loads the log at path and folds it into a projection.
func Replay(path string) (*session.Projection, bool, error) {
	events, discarded, err := LoadEvents(path)
	if err != nil {
		return nil, false, err
	}
	projection, err := session.Replay(events)
	if err != nil {
		return nil, false, fmt.Errorf("%w: replay %s: %v", ErrCorruptSessionLog, path, err)
	}
	return projection, discarded, nil
}
