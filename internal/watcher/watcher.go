// Package watcher monitors a directory for newly dropped video files and
// hands each one to a handler, typically starting an extraction session.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"lectern/internal/logging"
)

// Handler processes one settled video file.
type Handler func(ctx context.Context, path string) error

// videoExtensions lists the container formats the watcher picks up.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
	".flv":  true,
}

// Watcher wraps an fsnotify watcher over a single directory. Files are
// handled sequentially: sessions are serialized by the per-session lock
// anyway, and one extraction saturates the machine.
type Watcher struct {
	dir     string
	handler Handler
	logger  *slog.Logger
	fs      *fsnotify.Watcher

	// settle is the polling interval used to wait for a file to stop
	// growing before it is handled.
	settle time.Duration
}

// New creates a watcher over dir. The directory must already exist.
func New(dir string, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "watcher"),
		fs:      fs,
		settle:  500 * time.Millisecond,
	}, nil
}

// WithSettleInterval overrides the file-settle polling interval (for testing).
func (w *Watcher) WithSettleInterval(d time.Duration) {
	w.settle = d
}

// Run blocks processing directory events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for video files", logging.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !IsVideoFile(event.Name) {
				w.logger.Debug("ignoring non-video file", logging.String("path", event.Name))
				continue
			}
			w.logger.Info("new video detected", logging.String("path", event.Name))
			if err := w.waitSettled(ctx, event.Name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn("file never settled", logging.String("path", event.Name), logging.Error(err))
				continue
			}
			if err := w.handler(ctx, event.Name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Error("failed to process video",
					logging.String("path", event.Name),
					logging.Error(err))
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// waitSettled polls the file size until it stops changing, so a video still
// being copied in is not handed to the pipeline half-written.
func (w *Watcher) waitSettled(ctx context.Context, path string) error {
	var lastSize int64 = -1
	ticker := time.NewTicker(w.settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			size := info.Size()
			if size == lastSize {
				return nil
			}
			lastSize = size
		}
	}
}

// IsVideoFile reports whether the path has a watched video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}
