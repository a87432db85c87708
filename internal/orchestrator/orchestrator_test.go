package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/config"
	"lectern/internal/eventstore"
	"lectern/internal/logging"
	"lectern/internal/media"
	"lectern/internal/ocr"
	"lectern/internal/orchestrator"
	"lectern/internal/services"
	"lectern/internal/session"
	"lectern/internal/testsupport"
	"lectern/internal/transcribe"
	"lectern/internal/verify"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// harness wires an orchestrator with fake collaborators that never shell out.
type harness struct {
	cfg    *config.Config
	store  *eventstore.Store
	orch   *orchestrator.Orchestrator
	sleeps []time.Duration

	ytdlpCalls  int
	ffmpegCalls int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	return newHarnessWith(t, cfg)
}

func newHarnessWith(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
	}
	h.orch = orchestrator.New(cfg, h.store, logging.NewNop())
	h.orch.WithSleep(func(d time.Duration) { h.sleeps = append(h.sleeps, d) })

	// Two unique patterns, each repeated once: 2 slides, 2 duplicates.
	h.useDownloader(t, nil)
	h.useSampler(t, []bool{true, false, true, false})
	h.useOCR(t, func(string) (string, int, error) { return "Raft Consensus", 91, nil })
	return h
}

// useDownloader installs a yt-dlp fake. probeErr, when non-nil, is returned
// for the first len(probeErr) probe calls.
func (h *harness) useDownloader(t *testing.T, probeErrs []error) {
	t.Helper()
	meta := media.Metadata{ID: "abc123xyz00", Title: "Consensus Lecture", Duration: 20}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}

	d := media.NewDownloader(h.cfg)
	d.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		h.ytdlpCalls++
		if hasArg(args, "--dump-json") {
			if n := h.ytdlpCalls; n <= len(probeErrs) && probeErrs[n-1] != nil {
				return nil, probeErrs[n-1]
			}
			return metaJSON, nil
		}
		dest := argAfter(args, "-o")
		if dest == "" {
			return nil, fmt.Errorf("no -o in args %v", args)
		}
		return nil, os.WriteFile(dest, []byte("video"), 0o644)
	})
	h.orch.WithDownloader(d)
}

// useSampler installs an ffmpeg/ffprobe fake that reports a 20s duration and
// writes one gradient JPEG per pattern when frames are sampled.
func (h *harness) useSampler(t *testing.T, patterns []bool) {
	t.Helper()
	s := media.NewSampler(h.cfg)
	s.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		h.ffmpegCalls++
		if name == "ffprobe" {
			return []byte("20.0\n"), nil
		}
		dest := args[len(args)-1]
		if strings.HasSuffix(dest, ".wav") {
			return nil, os.WriteFile(dest, []byte("RIFF"), 0o644)
		}
		dir := filepath.Dir(dest)
		for i, rising := range patterns {
			writeGradientJPEG(t, filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i+1)), rising)
		}
		return nil, nil
	})
	h.orch.WithSampler(s)
}

// useSamplerWithBadFrames is useSampler except the listed 1-based frame
// numbers are written as bytes no image decoder accepts.
func (h *harness) useSamplerWithBadFrames(t *testing.T, patterns []bool, bad map[int]bool) {
	t.Helper()
	s := media.NewSampler(h.cfg)
	s.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		h.ffmpegCalls++
		if name == "ffprobe" {
			return []byte("20.0\n"), nil
		}
		dest := args[len(args)-1]
		if strings.HasSuffix(dest, ".wav") {
			return nil, os.WriteFile(dest, []byte("RIFF"), 0o644)
		}
		dir := filepath.Dir(dest)
		for i, rising := range patterns {
			path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i+1))
			if bad[i+1] {
				if err := os.WriteFile(path, []byte("not a jpeg"), 0o644); err != nil {
					t.Fatalf("write bad frame: %v", err)
				}
				continue
			}
			writeGradientJPEG(t, path, rising)
		}
		return nil, nil
	})
	h.orch.WithSampler(s)
}

// useOCR installs a tesseract fake. The recognize function maps a slide image
// path to (text, confidence percent, error).
func (h *harness) useOCR(t *testing.T, recognize func(imagePath string) (string, int, error)) {
	t.Helper()
	e := ocr.NewEngine(h.cfg)
	e.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		text, conf, err := recognize(args[0])
		if err != nil {
			return err
		}
		return os.WriteFile(args[1]+".tsv", []byte(tsvFor(text, conf)), 0o644)
	})
	h.orch.WithOCR(e)
}

func (h *harness) useWhisper(t *testing.T, transcript *transcribe.Transcript, fail error) {
	t.Helper()
	svc := transcribe.NewService(h.cfg)
	svc.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		if fail != nil {
			return fail
		}
		outDir := argAfter(args, "--output_dir")
		data, err := json.Marshal(transcript)
		if err != nil {
			return err
		}
		base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		return os.WriteFile(filepath.Join(outDir, base+".json"), data, 0o644)
	})
	h.orch.WithTranscriber(svc)
}

func (h *harness) run(t *testing.T, source string) (*session.Session, *session.Projection) {
	t.Helper()
	ctx := context.Background()
	sess, err := h.orch.StartSession(ctx, source)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	proj, err := h.orch.Run(ctx, sess)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	return sess, proj
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// writeGradientJPEG writes a 90x80 horizontal gradient. Rising gradients
// fingerprint to all ones, falling to all zeros, so the two patterns are
// maximally dissimilar while identical patterns match exactly.
func writeGradientJPEG(t *testing.T, path string, rising bool) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 90, 80))
	for x := 0; x < 90; x++ {
		level := uint8(x * 255 / 89)
		if !rising {
			level = uint8((89 - x) * 255 / 89)
		}
		for y := 0; y < 80; y++ {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir frames dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func tsvFor(text string, conf int) string {
	var b strings.Builder
	b.WriteString("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n")
	for _, word := range strings.Fields(text) {
		fmt.Fprintf(&b, "5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t%d\t%s\n", conf, word)
	}
	return b.String()
}

func TestRunCompletesFromURL(t *testing.T) {
	h := newHarness(t)
	sess, proj := h.run(t, testURL)

	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if len(proj.Slides) != 2 {
		t.Fatalf("slides = %d, want 2", len(proj.Slides))
	}
	if proj.Duplicates != 2 {
		t.Errorf("duplicates = %d, want 2", proj.Duplicates)
	}
	if proj.Title != "Consensus Lecture" {
		t.Errorf("title = %q", proj.Title)
	}

	data, err := os.ReadFile(proj.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "Raft Consensus") {
		t.Error("report missing recognized text")
	}

	for i := 1; i <= 2; i++ {
		img := filepath.Join(h.cfg.Paths.OutputDir, sess.ID, "slides", fmt.Sprintf("slide_%03d.jpg", i))
		if _, err := os.Stat(img); err != nil {
			t.Errorf("slide image missing: %v", err)
		}
	}

	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WorkDir, sess.ID)); !errors.Is(err, os.ErrNotExist) {
		t.Error("work dir survived cleanup")
	}

	stored, err := h.store.GetByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Status != session.StatusCompleted || stored.SlideCount != 2 {
		t.Errorf("catalog = %s slides=%d", stored.Status, stored.SlideCount)
	}
	if stored.CompletedAt == nil {
		t.Error("catalog missing completion time")
	}

	replayed, _, err := eventstore.Replay(sess.LogPath)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.State.Status != session.StatusCompleted || len(replayed.Slides) != 2 {
		t.Errorf("replay = %s slides=%d", replayed.State.Status, len(replayed.Slides))
	}
}

func TestRunLocalFileBypassesDownload(t *testing.T) {
	h := newHarness(t)
	local := filepath.Join(t.TempDir(), "distributed-systems.mp4")
	testsupport.WriteVideoFile(t, local)

	_, proj := h.run(t, local)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if h.ytdlpCalls != 0 {
		t.Errorf("yt-dlp invoked %d times for a local file", h.ytdlpCalls)
	}
	if proj.Title != "Distributed Systems" {
		t.Errorf("title = %q", proj.Title)
	}
	if _, err := os.Stat(local); err != nil {
		t.Errorf("local source removed by cleanup: %v", err)
	}
}

func TestRunRetriesTransientDownloadFailures(t *testing.T) {
	h := newHarness(t)
	h.useDownloader(t, []error{
		errors.New("network unreachable"),
		errors.New("network unreachable"),
	})

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(h.sleeps) != len(want) {
		t.Fatalf("sleeps = %v", h.sleeps)
	}
	for i, d := range want {
		if h.sleeps[i] != d {
			t.Errorf("backoff %d = %s, want %s", i, h.sleeps[i], d)
		}
	}
}

func TestRunFailsSessionOnUnavailableVideo(t *testing.T) {
	h := newHarness(t)
	h.useDownloader(t, []error{
		errors.New("ERROR: Private video. Sign in if you've been granted access"),
	})

	sess, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusFailed {
		t.Fatalf("status = %s", proj.State.Status)
	}
	if !strings.Contains(proj.State.FailureReason, "private") {
		t.Errorf("reason = %q", proj.State.FailureReason)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("not-found error was retried: %v", h.sleeps)
	}

	stored, err := h.store.GetByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Status != session.StatusFailed || stored.FailureReason == "" {
		t.Errorf("catalog = %s reason=%q", stored.Status, stored.FailureReason)
	}

	if _, err := os.Stat(filepath.Join(h.cfg.Paths.WorkDir, sess.ID)); !errors.Is(err, os.ErrNotExist) {
		t.Error("work dir survived failure cleanup")
	}
}

func TestRunOnFailedSessionKeepsReason(t *testing.T) {
	h := newHarness(t)
	h.useDownloader(t, []error{errors.New("ERROR: Private video")})

	sess, proj := h.run(t, testURL)
	reason := proj.State.FailureReason
	calls := h.ytdlpCalls

	again, err := h.orch.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.State.Status != session.StatusFailed || again.State.FailureReason != reason {
		t.Errorf("rerun = %s reason=%q, want %q", again.State.Status, again.State.FailureReason, reason)
	}
	if h.ytdlpCalls != calls {
		t.Error("terminal session invoked collaborators again")
	}
}

func TestRunFailsWhenNoUniqueSlides(t *testing.T) {
	h := newHarness(t)
	sess := testsupport.NewSession(t, h.store, testURL)

	log, err := eventstore.OpenLog(sess.LogPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for _, event := range []session.Event{
		{Kind: session.KindDownloadStarted},
		{Kind: session.KindVideoDownloaded, VideoPath: "/tmp/none.mp4", Title: "Empty", DurationSec: 20},
		{Kind: session.KindTranscriptionSkipped, Reason: "transcription disabled"},
		{Kind: session.KindFramesExtracted, FrameCount: 0, FailedCount: 0},
	} {
		if _, err := log.Append(event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	proj, err := h.orch.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if proj.State.Status != session.StatusFailed {
		t.Fatalf("status = %s", proj.State.Status)
	}
	if !strings.Contains(proj.State.FailureReason, "no unique slides found") {
		t.Errorf("reason = %q", proj.State.FailureReason)
	}
}

func TestRunResumesFromEventLog(t *testing.T) {
	h := newHarness(t)
	sess := testsupport.NewSession(t, h.store, testURL)

	// Fabricate a run that crashed right after the extract boundary: frames
	// exist on disk and in the log, nothing downstream does.
	framesDir := filepath.Join(h.cfg.Paths.WorkDir, sess.ID, "frames")
	patterns := []bool{true, false, true}
	events := []session.Event{
		{Kind: session.KindDownloadStarted},
		{Kind: session.KindVideoDownloaded, VideoPath: "/tmp/gone.mp4", Title: "Resumed Lecture", DurationSec: 20},
		{Kind: session.KindTranscriptionSkipped, Reason: "transcription disabled"},
	}
	for i, rising := range patterns {
		path := filepath.Join(framesDir, fmt.Sprintf("frame_%06d.jpg", i+1))
		writeGradientJPEG(t, path, rising)
		fp, err := media.FingerprintFile(path)
		if err != nil {
			t.Fatalf("fingerprint: %v", err)
		}
		events = append(events, session.Event{
			Kind:        session.KindFrameExtracted,
			FrameSeq:    i + 1,
			Timestamp:   float64(i) * 5,
			Fingerprint: fp.String(),
			ImagePath:   path,
		})
	}
	events = append(events, session.Event{Kind: session.KindFramesExtracted, FrameCount: 3})

	log, err := eventstore.OpenLog(sess.LogPath)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for _, event := range events {
		if _, err := log.Append(event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	// Any collaborator call before processing means resume did not skip.
	h.useDownloader(t, []error{errors.New("must not be called"), errors.New("must not be called")})
	before := h.ffmpegCalls

	proj, err := h.orch.Run(context.Background(), sess)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if h.ytdlpCalls != 0 || h.ffmpegCalls != before {
		t.Errorf("resume re-ran earlier stages: ytdlp=%d ffmpeg=%d", h.ytdlpCalls, h.ffmpegCalls-before)
	}
	if len(proj.Slides) != 2 || proj.Duplicates != 1 {
		t.Errorf("slides=%d duplicates=%d", len(proj.Slides), proj.Duplicates)
	}
	if proj.Title != "Resumed Lecture" {
		t.Errorf("title = %q", proj.Title)
	}
}

func TestRunSkipsFailedTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription(true))
	cfg.Retry.MaxAttempts = 1
	h := newHarnessWith(t, cfg)
	h.useWhisper(t, nil, errors.New("model download failed"))

	sess, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if proj.TranscriptPath != "" {
		t.Errorf("transcript path = %q after skip", proj.TranscriptPath)
	}

	events, _, err := eventstore.LoadEvents(sess.LogPath)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	found := false
	for _, event := range events {
		if event.Kind == session.KindTranscriptionSkipped {
			found = true
			if !strings.Contains(event.Reason, "whisper failed") {
				t.Errorf("skip reason = %q", event.Reason)
			}
		}
	}
	if !found {
		t.Error("no transcription_skipped event recorded")
	}
}

func TestRunAttachesTranscriptExcerpts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTranscription(true))
	h := newHarnessWith(t, cfg)
	h.useWhisper(t, &transcribe.Transcript{
		Text:     "Today we cover consensus.",
		Segments: []transcribe.Segment{{Start: 0, End: 4, Text: "Today we cover consensus."}},
		Language: "en",
	}, nil)

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if proj.SegmentCount != 1 {
		t.Errorf("segment count = %d", proj.SegmentCount)
	}

	data, err := os.ReadFile(proj.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "> Today we cover consensus.") {
		t.Error("report missing spoken context")
	}
}

func TestRunToleratesFrameFailuresWithinCap(t *testing.T) {
	h := newHarness(t)
	patterns := make([]bool, 40)
	for i := range patterns {
		patterns[i] = i < 20
	}
	// Cap is int(0.10 * 40) = 4, so three undecodable frames stay under it.
	h.useSamplerWithBadFrames(t, patterns, map[int]bool{5: true, 6: true, 7: true})

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if len(proj.Frames) != 37 {
		t.Errorf("frames = %d, want 37", len(proj.Frames))
	}
	if proj.FailedCount != 3 {
		t.Errorf("failed frames = %d, want 3", proj.FailedCount)
	}
	if proj.Warnings() != 3 {
		t.Errorf("warnings = %d, want 3", proj.Warnings())
	}
	if len(proj.Slides) != 2 {
		t.Errorf("slides = %d, want 2", len(proj.Slides))
	}
}

func TestRunFailsWhenFrameFailuresExceedCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	cfg.Retry.MaxAttempts = 1
	h := newHarnessWith(t, cfg)
	// Cap is int(0.10 * 10) = 1, so the second bad frame fails the stage.
	h.useSamplerWithBadFrames(t, make([]bool, 10), map[int]bool{2: true, 4: true})

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusFailed {
		t.Fatalf("status = %s", proj.State.Status)
	}
	if !strings.Contains(proj.State.FailureReason, "frames failed") {
		t.Errorf("reason = %q", proj.State.FailureReason)
	}
}

func TestRunToleratesOCRFailuresWithinCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	cfg.Retry.MaxAttempts = 1
	cfg.OCR.MaxFailurePct = 0.5
	h := newHarnessWith(t, cfg)
	h.useOCR(t, func(imagePath string) (string, int, error) {
		if strings.Contains(imagePath, "slide_001") {
			return "", 0, errors.New("tesseract crashed")
		}
		return "Raft Consensus", 91, nil
	})

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if proj.OCRFailed != 1 {
		t.Errorf("ocr failures = %d", proj.OCRFailed)
	}
	if proj.Warnings() != 1 {
		t.Errorf("warnings = %d", proj.Warnings())
	}

	data, err := os.ReadFile(proj.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "*Text extraction failed for this slide.*") {
		t.Error("report missing OCR failure placeholder")
	}
}

func TestRunFailsWhenOCRFailuresExceedCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	cfg.Retry.MaxAttempts = 1
	h := newHarnessWith(t, cfg)
	h.useOCR(t, func(string) (string, int, error) {
		return "", 0, errors.New("tesseract crashed")
	})

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusFailed {
		t.Fatalf("status = %s", proj.State.Status)
	}
	if !strings.Contains(proj.State.FailureReason, "ocr") {
		t.Errorf("reason = %q", proj.State.FailureReason)
	}
}

func TestRunFlagsLowConfidenceText(t *testing.T) {
	h := newHarness(t)
	h.useOCR(t, func(string) (string, int, error) { return "blurry words", 40, nil })

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	for _, slide := range proj.Slides {
		if !slide.RequiresReview {
			t.Errorf("slide %d not flagged", slide.Index)
			continue
		}
		if !strings.Contains(slide.ReviewReason, "confidence") {
			t.Errorf("slide %d reason = %q", slide.Index, slide.ReviewReason)
		}
		if slide.Text != "blurry words" {
			t.Errorf("slide %d lost its text: %q", slide.Index, slide.Text)
		}
	}

	data, err := os.ReadFile(proj.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "- **Needs review:**") {
		t.Error("report missing review flag")
	}
}

func TestRunVerificationFlagsRejectedSlides(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	cfg.Verification.Enabled = true
	cfg.Verification.APIKey = "test-key"
	h := newHarnessWith(t, cfg)

	v := verify.NewVerifier(cfg)
	v.WithGenerateFunc(func(_ context.Context, _ string, _ []byte) (string, error) {
		return `{"approved": false, "reason": "speaker close-up"}`, nil
	})
	h.orch.WithVerifier(v)

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	for _, slide := range proj.Slides {
		if !slide.RequiresReview || slide.ReviewReason != "speaker close-up" {
			t.Errorf("slide %d review=%v reason=%q", slide.Index, slide.RequiresReview, slide.ReviewReason)
		}
	}
}

func TestRunVerifierFailureIsTolerated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.Enabled = false
	cfg.Verification.Enabled = true
	cfg.Verification.APIKey = "test-key"
	h := newHarnessWith(t, cfg)

	v := verify.NewVerifier(cfg)
	v.WithGenerateFunc(func(_ context.Context, _ string, _ []byte) (string, error) {
		return "", errors.New("quota exceeded")
	})
	h.orch.WithVerifier(v)

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	for _, slide := range proj.Slides {
		if slide.RequiresReview {
			t.Errorf("slide %d flagged by a failing verifier", slide.Index)
		}
	}
}

func TestRunRejectsConcurrentDriver(t *testing.T) {
	h := newHarness(t)
	sess := testsupport.NewSession(t, h.store, testURL)

	lock, err := h.store.Lock(sess.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer func() { _ = lock.Release() }()

	if _, err := h.orch.Run(context.Background(), sess); !errors.Is(err, eventstore.ErrSessionLocked) {
		t.Fatalf("err = %v, want ErrSessionLocked", err)
	}
}

func TestStartSessionRejectsBadSource(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.StartSession(context.Background(), "https://example.com/watch?v=nope")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}

	sessions, err := h.store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("catalog has %d sessions after rejected start", len(sessions))
	}
}

type fakeNotifier struct {
	completedTitles []string
	completedSlides []int
	failedReasons   []string
}

func (f *fakeNotifier) SessionCompleted(_ context.Context, title string, slideCount int, _ string) error {
	f.completedTitles = append(f.completedTitles, title)
	f.completedSlides = append(f.completedSlides, slideCount)
	return nil
}

func (f *fakeNotifier) SessionFailed(_ context.Context, _ string, reason string) error {
	f.failedReasons = append(f.failedReasons, reason)
	return nil
}

func (f *fakeNotifier) Test(context.Context) error { return nil }

func TestRunNotifiesOnCompletion(t *testing.T) {
	h := newHarness(t)
	notifier := &fakeNotifier{}
	h.orch.WithNotifier(notifier)

	sess, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusCompleted {
		t.Fatalf("status = %s, reason = %q", proj.State.Status, proj.State.FailureReason)
	}
	if len(notifier.completedTitles) != 1 || notifier.completedTitles[0] != "Consensus Lecture" {
		t.Fatalf("completed notifications = %v", notifier.completedTitles)
	}
	if notifier.completedSlides[0] != len(proj.Slides) {
		t.Errorf("notified slide count = %d, want %d", notifier.completedSlides[0], len(proj.Slides))
	}

	// Driving an already-terminal session must not notify again.
	if _, err := h.orch.Run(context.Background(), sess); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(notifier.completedTitles) != 1 {
		t.Errorf("terminal rerun re-notified: %v", notifier.completedTitles)
	}
}

func TestRunNotifiesOnFailure(t *testing.T) {
	h := newHarness(t)
	h.useDownloader(t, []error{errors.New("ERROR: Private video")})
	notifier := &fakeNotifier{}
	h.orch.WithNotifier(notifier)

	_, proj := h.run(t, testURL)
	if proj.State.Status != session.StatusFailed {
		t.Fatalf("status = %s", proj.State.Status)
	}
	if len(notifier.failedReasons) != 1 || !strings.Contains(notifier.failedReasons[0], "private") {
		t.Fatalf("failure notifications = %v", notifier.failedReasons)
	}
	if len(notifier.completedTitles) != 0 {
		t.Errorf("failed session sent completion notification")
	}
}
