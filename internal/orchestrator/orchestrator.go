// Package orchestrator drives a session through the extraction pipeline. It
// is the only writer of a session's event log: each stage issues collaborator
// commands, translates their results into events, appends them, and lets the
// state machine decide what runs next. Resume is the same loop started from a
// replayed projection; stages that already recorded their boundary event are
// skipped.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lectern/internal/config"
	"lectern/internal/eventstore"
	"lectern/internal/logging"
	"lectern/internal/media"
	"lectern/internal/notifications"
	"lectern/internal/ocr"
	"lectern/internal/report"
	"lectern/internal/services"
	"lectern/internal/session"
	"lectern/internal/transcribe"
	"lectern/internal/verify"
)

// Orchestrator owns the collaborators and the retry policy for one process.
// It is safe to drive multiple sessions sequentially; concurrent drivers of
// the same session are excluded by the session lock.
type Orchestrator struct {
	cfg   *config.Config
	store *eventstore.Store

	downloader  *media.Downloader
	sampler     *media.Sampler
	transcriber *transcribe.Service
	ocr         *ocr.Engine
	verifier    *verify.Verifier
	renderer    *report.Renderer
	notifier    notifications.Service

	logger     *slog.Logger
	sleep      func(time.Duration)
	onProgress func(*session.Projection)
}

// New builds an orchestrator with collaborators constructed from cfg.
func New(cfg *config.Config, store *eventstore.Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		downloader:  media.NewDownloader(cfg),
		sampler:     media.NewSampler(cfg),
		transcriber: transcribe.NewService(cfg),
		ocr:         ocr.NewEngine(cfg),
		verifier:    verify.NewVerifier(cfg),
		renderer:    report.NewRenderer(cfg),
		notifier:    notifications.NewService(cfg),
		logger:      logging.NewComponentLogger(logger, "orchestrator"),
		sleep:       time.Sleep,
	}
}

// WithDownloader replaces the video downloader (for testing).
func (o *Orchestrator) WithDownloader(d *media.Downloader) { o.downloader = d }

// WithSampler replaces the frame and audio sampler (for testing).
func (o *Orchestrator) WithSampler(s *media.Sampler) { o.sampler = s }

// WithTranscriber replaces the transcription service (for testing).
func (o *Orchestrator) WithTranscriber(t *transcribe.Service) { o.transcriber = t }

// WithOCR replaces the text recognition engine (for testing).
func (o *Orchestrator) WithOCR(e *ocr.Engine) { o.ocr = e }

// WithVerifier replaces the slide verifier (for testing).
func (o *Orchestrator) WithVerifier(v *verify.Verifier) { o.verifier = v }

// WithNotifier replaces the push notification service (for testing).
func (o *Orchestrator) WithNotifier(n notifications.Service) { o.notifier = n }

// WithSleep replaces the backoff sleep function (for testing).
func (o *Orchestrator) WithSleep(fn func(time.Duration)) { o.sleep = fn }

// WithProgressFunc registers a callback invoked after every stage boundary.
func (o *Orchestrator) WithProgressFunc(fn func(*session.Projection)) { o.onProgress = fn }

// StartSession validates the source and creates a catalog record for it. The
// source is either a watchable URL or a readable local video file.
func (o *Orchestrator) StartSession(ctx context.Context, source string) (*session.Session, error) {
	if _, ok := media.ResolveLocal(source); !ok {
		if _, err := media.ValidateURL(source); err != nil {
			return nil, err
		}
	}
	configJSON, err := json.Marshal(o.cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	sess, err := o.store.NewSession(ctx, source, string(configJSON))
	if err != nil {
		return nil, err
	}
	o.logger.Info("session created",
		logging.String("session_id", sess.ID),
		logging.String("source", source))
	return sess, nil
}

// run bundles the per-session driving state handed to stage functions.
type run struct {
	sess *session.Session
	log  *eventstore.Log
	proj *session.Projection
}

// Run drives the session until it reaches a terminal state or the context is
// cancelled. A failed session is a normal outcome: the projection carries the
// reason and the returned error is nil. Errors are reserved for driver-level
// problems (lock contention, log corruption, cancelled context) after which
// the session can be resumed.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session) (*session.Projection, error) {
	lock, err := o.store.Lock(sess.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	ctx = services.WithSessionID(ctx, sess.ID)
	logger := o.logger.With(logging.String("session_id", sess.ID))

	proj := session.NewProjection()
	events, discarded, err := eventstore.LoadEvents(sess.LogPath)
	switch {
	case err == nil:
		if discarded {
			logger.Warn("discarded torn trailing record from session log",
				logging.String("log_path", sess.LogPath))
		}
		if proj, err = session.Replay(events); err != nil {
			return nil, fmt.Errorf("%w: replay %s: %v", eventstore.ErrCorruptSessionLog, sess.LogPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Fresh session, no log yet.
	default:
		return nil, err
	}

	log, err := eventstore.OpenLog(sess.LogPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = log.Close() }()

	r := &run{sess: sess, log: log, proj: proj}
	alreadyTerminal := proj.State.Status.IsTerminal()
	for !proj.State.Status.IsTerminal() {
		status := proj.State.Status
		logger.Info("running stage", logging.String("stage", string(status)))

		if stageErr := o.runStage(ctx, r, status); stageErr != nil {
			if ctx.Err() != nil {
				// Interrupted, not failed: leave the log as is so a later
				// resume can continue from here.
				return proj, ctx.Err()
			}
			logger.Error("stage failed",
				logging.String("stage", string(status)),
				logging.Error(stageErr))
			if appendErr := o.append(ctx, r, session.Event{
				Kind:   session.KindStageFailed,
				Stage:  string(status),
				Reason: stageErr.Error(),
			}); appendErr != nil {
				return proj, appendErr
			}
			break
		}
	}

	o.cleanup(sess, logger)
	if err := o.store.Snapshot(ctx, sess, proj); err != nil {
		logger.Warn("catalog snapshot failed", logging.Error(err))
	}
	if !alreadyTerminal {
		o.notify(ctx, proj, logger)
	}
	logger.Info("session finished",
		logging.String("status", string(proj.State.Status)),
		logging.Int("slides", len(proj.Slides)),
		logging.Int("warnings", proj.Warnings()))
	return proj, nil
}

// notify pushes the outcome of a freshly finished session. Delivery problems
// are logged, never surfaced: the session result does not depend on ntfy.
func (o *Orchestrator) notify(ctx context.Context, proj *session.Projection, logger *slog.Logger) {
	var err error
	switch proj.State.Status {
	case session.StatusCompleted:
		err = o.notifier.SessionCompleted(ctx, proj.Title, len(proj.Slides), proj.ReportPath)
	case session.StatusFailed:
		err = o.notifier.SessionFailed(ctx, proj.Title, proj.State.FailureReason)
	default:
		return
	}
	if err != nil {
		logger.Warn("notification delivery failed", logging.Error(err))
	}
}

func (o *Orchestrator) runStage(ctx context.Context, r *run, status session.Status) error {
	switch status {
	case session.StatusCreated:
		return o.append(ctx, r, session.Event{Kind: session.KindDownloadStarted})
	case session.StatusDownloading:
		return o.stageDownload(ctx, r)
	case session.StatusTranscribing:
		return o.stageTranscribe(ctx, r)
	case session.StatusExtracting:
		return o.stageExtract(ctx, r)
	case session.StatusProcessing:
		return o.stageProcess(ctx, r)
	case session.StatusGenerating:
		return o.stageGenerate(ctx, r)
	default:
		return fmt.Errorf("no stage handler for status %q", status)
	}
}

// append writes one event to the log, folds it into the projection, and for
// boundary events snapshots the catalog. The log write is the commit point;
// a snapshot failure is logged and repaired by the next replay.
func (o *Orchestrator) append(ctx context.Context, r *run, event session.Event) error {
	appended, err := r.log.Append(event)
	if err != nil {
		return err
	}
	if err := r.proj.Apply(appended); err != nil {
		return fmt.Errorf("apply %s: %w", appended.Kind, err)
	}
	if appended.Kind.IsBoundary() {
		if err := o.store.Snapshot(ctx, r.sess, r.proj); err != nil {
			o.logger.Warn("catalog snapshot failed",
				logging.String("session_id", r.sess.ID),
				logging.Error(err))
		}
		if o.onProgress != nil {
			o.onProgress(r.proj)
		}
	}
	return nil
}

// runWithRetry applies the configured retry policy to one collaborator
// operation. Only errors the taxonomy marks retryable get another attempt.
func (o *Orchestrator) runWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := o.cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(o.cfg.Retry.BackoffBase) * time.Second
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	ceiling := time.Duration(o.cfg.Retry.BackoffCeiling) * time.Second
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !services.Retryable(err) || attempt == attempts {
			return err
		}
		o.logger.Warn("attempt failed, backing off",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", backoff),
			logging.Error(err))
		o.sleep(backoff)
		if next := backoff * 2; next <= ceiling {
			backoff = next
		} else {
			backoff = ceiling
		}
	}
	return err
}

// workDir is the session's scratch directory, removed on every exit path.
func (o *Orchestrator) workDir(sess *session.Session) string {
	return filepath.Join(o.cfg.Paths.WorkDir, sess.ID)
}

// outputDir holds the session's durable artifacts: slide images and report.
func (o *Orchestrator) outputDir(sess *session.Session) string {
	return filepath.Join(o.cfg.Paths.OutputDir, sess.ID)
}

// cleanup removes the scratch directory. Slide images and the report live
// under the output directory and survive; a local source video sits outside
// the work dir and is never touched.
func (o *Orchestrator) cleanup(sess *session.Session, logger *slog.Logger) {
	dir := o.workDir(sess)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("cleanup failed",
			logging.String("work_dir", dir),
			logging.Error(err))
	}
}
