package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"lectern/internal/dedup"
	"lectern/internal/fileutil"
	"lectern/internal/hash"
	"lectern/internal/logging"
	"lectern/internal/media"
	"lectern/internal/ocr"
	"lectern/internal/report"
	"lectern/internal/services"
	"lectern/internal/session"
	"lectern/internal/transcribe"
)

// stageDownload acquires the source video. Local files bypass yt-dlp and are
// probed for duration only; URLs are probed and fetched under the retry
// policy.
func (o *Orchestrator) stageDownload(ctx context.Context, r *run) error {
	source := r.sess.SourceURL

	if local, ok := media.ResolveLocal(source); ok {
		duration, err := o.sampler.Duration(ctx, local)
		if err != nil {
			return err
		}
		return o.append(ctx, r, session.Event{
			Kind:        session.KindVideoDownloaded,
			VideoPath:   local,
			Title:       media.DeriveTitle(local),
			DurationSec: duration,
		})
	}

	if _, err := media.ValidateURL(source); err != nil {
		return err
	}

	var (
		meta      *media.Metadata
		videoPath string
	)
	err := o.runWithRetry(ctx, "download", func(ctx context.Context) error {
		m, err := o.downloader.Probe(ctx, source)
		if err != nil {
			return err
		}
		p, err := o.downloader.Download(ctx, source, o.workDir(r.sess), m)
		if err != nil {
			return err
		}
		meta, videoPath = m, p
		return nil
	})
	if err != nil {
		return err
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = media.DeriveTitle(videoPath)
	}
	duration := meta.Duration
	if duration <= 0 {
		if duration, err = o.sampler.Duration(ctx, videoPath); err != nil {
			return err
		}
	}
	return o.append(ctx, r, session.Event{
		Kind:        session.KindVideoDownloaded,
		VideoPath:   videoPath,
		Title:       title,
		DurationSec: duration,
	})
}

// stageTranscribe runs optional speech-to-text. Any failure here is recorded
// as a skip reason and the pipeline moves on.
func (o *Orchestrator) stageTranscribe(ctx context.Context, r *run) error {
	if !o.transcriber.Enabled() {
		return o.append(ctx, r, session.Event{
			Kind:   session.KindTranscriptionSkipped,
			Reason: "transcription disabled",
		})
	}

	workDir := o.workDir(r.sess)
	audioPath := filepath.Join(workDir, "audio.wav")
	lang := ""
	if langs := o.cfg.OCR.Languages; len(langs) > 0 {
		lang = langs[0]
	}

	var (
		transcript *transcribe.Transcript
		jsonPath   string
	)
	err := o.runWithRetry(ctx, "transcribe", func(ctx context.Context) error {
		if err := o.sampler.ExtractAudio(ctx, r.proj.VideoPath, audioPath); err != nil {
			return err
		}
		t, p, err := o.transcriber.Transcribe(ctx, audioPath, workDir, lang, r.proj.DurationSec)
		if err != nil {
			return err
		}
		transcript, jsonPath = t, p
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.logger.Warn("transcription skipped",
			logging.String("session_id", r.sess.ID),
			logging.Error(err))
		return o.append(ctx, r, session.Event{
			Kind:   session.KindTranscriptionSkipped,
			Reason: err.Error(),
		})
	}

	return o.append(ctx, r, session.Event{
		Kind:           session.KindTranscriptionCompleted,
		TranscriptPath: jsonPath,
		SegmentCount:   len(transcript.Segments),
	})
}

// stageExtract samples frames and fingerprints each one. Individual decode
// failures are tolerated up to the configured share of the total expected;
// beyond that the stage fails.
func (o *Orchestrator) stageExtract(ctx context.Context, r *run) error {
	framesDir := filepath.Join(o.workDir(r.sess), "frames")

	var frames []media.SampledFrame
	err := o.runWithRetry(ctx, "sample frames", func(ctx context.Context) error {
		f, err := o.sampler.SampleFrames(ctx, r.proj.VideoPath, framesDir)
		frames = f
		return err
	})
	if err != nil {
		return err
	}

	total := len(frames)
	maxFailures := int(o.cfg.Extraction.MaxFrameFailurePct * float64(total))

	recorded := make(map[int]bool, len(r.proj.Frames))
	for _, frame := range r.proj.Frames {
		recorded[frame.Seq] = true
	}

	failed := 0
	for _, frame := range frames {
		if recorded[frame.Seq] {
			continue
		}
		fp, err := media.FingerprintFile(frame.Path)
		if err != nil {
			failed++
			o.logger.Warn("frame fingerprint failed",
				logging.String("session_id", r.sess.ID),
				logging.Int("frame_seq", frame.Seq),
				logging.Error(err))
			if failed > maxFailures {
				return services.Wrap(services.ErrValidation, "extract", "fingerprint",
					fmt.Sprintf("%d of %d frames failed, cap is %d", failed, total, maxFailures), err)
			}
			continue
		}
		if err := o.append(ctx, r, session.Event{
			Kind:        session.KindFrameExtracted,
			FrameSeq:    frame.Seq,
			Timestamp:   frame.Timestamp,
			Fingerprint: fp.String(),
			ImagePath:   frame.Path,
		}); err != nil {
			return err
		}
	}

	return o.append(ctx, r, session.Event{
		Kind:        session.KindFramesExtracted,
		FrameCount:  total,
		FailedCount: failed,
	})
}

// stageProcess deduplicates the fingerprinted frames, copies each unique
// slide into the output directory, recognizes its text, and optionally asks
// the verifier to review it. OCR failures are tolerated per slide up to the
// configured share of all slides.
func (o *Orchestrator) stageProcess(ctx context.Context, r *run) error {
	engine, err := o.restoreEngine(r.proj)
	if err != nil {
		return err
	}
	slidesDir := filepath.Join(o.outputDir(r.sess), "slides")

	for _, frame := range r.proj.Frames {
		if frame.Seq <= r.proj.LastEvaluatedSeq {
			continue
		}
		fp, err := hash.Parse(frame.Fingerprint)
		if err != nil {
			return services.Wrap(services.ErrValidation, "process", "dedup",
				fmt.Sprintf("bad fingerprint for frame %d", frame.Seq), err)
		}
		verdict := engine.Evaluate(frame.Seq, fp)
		if !verdict.Unique {
			if err := o.append(ctx, r, session.Event{
				Kind:       session.KindDuplicateDetected,
				FrameSeq:   frame.Seq,
				SlideIndex: verdict.SlideIndex,
				Similarity: verdict.Similarity,
			}); err != nil {
				return err
			}
			continue
		}

		dest := filepath.Join(slidesDir, fmt.Sprintf("slide_%03d.jpg", verdict.SlideIndex+1))
		if err := fileutil.CopyFile(frame.ImagePath, dest); err != nil {
			return services.Wrap(services.ErrConfiguration, "process", "dedup", "copy slide image", err)
		}
		if err := o.append(ctx, r, session.Event{
			Kind:       session.KindSlideIdentified,
			SlideIndex: verdict.SlideIndex,
			FrameSeq:   frame.Seq,
			Timestamp:  frame.Timestamp,
			ImagePath:  dest,
		}); err != nil {
			return err
		}
	}

	if engine.Count() == 0 {
		return services.Wrap(services.ErrValidation, "process", "dedup", "no unique slides found", nil)
	}

	if err := o.recognizeSlides(ctx, r); err != nil {
		return err
	}
	if err := o.reviewSlides(ctx, r); err != nil {
		return err
	}

	return o.append(ctx, r, session.Event{
		Kind:       session.KindProcessingCompleted,
		SlideCount: engine.Count(),
	})
}

func (o *Orchestrator) recognizeSlides(ctx context.Context, r *run) error {
	totalSlides := len(r.proj.Slides)
	maxFailures := int(o.cfg.OCR.MaxFailurePct * float64(totalSlides))
	failures := r.proj.OCRFailed

	for i := range r.proj.Slides {
		slide := r.proj.Slides[i]
		if slide.TextDone {
			continue
		}

		var result ocr.Result
		err := o.runWithRetry(ctx, "ocr", func(ctx context.Context) error {
			res, err := o.ocr.ExtractText(ctx, slide.ImagePath)
			result = res
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			failures++
			o.logger.Warn("slide text extraction failed",
				logging.String("session_id", r.sess.ID),
				logging.Int("slide_index", slide.Index),
				logging.Error(err))
			if failures > maxFailures {
				return services.Wrap(services.ErrExternalTool, "process", "ocr",
					fmt.Sprintf("%d of %d slides failed, cap is %d", failures, totalSlides, maxFailures), err)
			}
			if err := o.append(ctx, r, session.Event{
				Kind:       session.KindTextExtracted,
				SlideIndex: slide.Index,
				OCRFailed:  true,
			}); err != nil {
				return err
			}
			continue
		}

		if err := o.append(ctx, r, session.Event{
			Kind:       session.KindTextExtracted,
			SlideIndex: slide.Index,
			Text:       result.Text,
			Confidence: result.Confidence,
			Language:   result.Language,
		}); err != nil {
			return err
		}
		// Low-confidence text is kept but flagged for a human look.
		if result.Text != "" && !o.ocr.Reliable(result) {
			if err := o.append(ctx, r, session.Event{
				Kind:       session.KindSlideVerified,
				SlideIndex: slide.Index,
				Approved:   false,
				Reason:     fmt.Sprintf("ocr confidence %.0f%% below threshold", result.Confidence*100),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// reviewSlides asks the verifier about each slide not yet reviewed. A
// rejected slide is flagged, never dropped; verifier failures are tolerated.
func (o *Orchestrator) reviewSlides(ctx context.Context, r *run) error {
	if !o.verifier.Enabled() {
		return nil
	}
	for i := range r.proj.Slides {
		slide := r.proj.Slides[i]
		if slide.Reviewed {
			continue
		}
		judgement, err := o.verifier.ReviewSlide(ctx, slide.ImagePath, slide.Text)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			o.logger.Warn("slide verification failed",
				logging.String("session_id", r.sess.ID),
				logging.Int("slide_index", slide.Index),
				logging.Error(err))
			continue
		}
		if err := o.append(ctx, r, session.Event{
			Kind:       session.KindSlideVerified,
			SlideIndex: slide.Index,
			Approved:   judgement.Approved,
			Reason:     judgement.Reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

// stageGenerate renders the report into the output directory. A render
// failure fails the session.
func (o *Orchestrator) stageGenerate(ctx context.Context, r *run) error {
	doc := o.buildDocument(r.sess, r.proj)
	path, err := o.renderer.Render(doc, o.outputDir(r.sess))
	if err != nil {
		return err
	}
	return o.append(ctx, r, session.Event{
		Kind:       session.KindDocumentRendered,
		ReportPath: path,
		Format:     o.renderer.Format(),
	})
}

func (o *Orchestrator) buildDocument(sess *session.Session, proj *session.Projection) *report.Document {
	title := strings.TrimSpace(proj.Title)
	if title == "" {
		title = "Untitled Lecture"
	}
	doc := &report.Document{
		Title:       title,
		SourceURL:   sess.SourceURL,
		DurationSec: proj.DurationSec,
		Warnings:    proj.Warnings(),
	}
	for _, slide := range proj.Slides {
		doc.Slides = append(doc.Slides, report.Slide{
			Number:         slide.Index + 1,
			Timestamp:      slide.Timestamp,
			ImagePath:      slide.ImagePath,
			Text:           slide.Text,
			Confidence:     slide.Confidence,
			Language:       slide.Language,
			OCRFailed:      slide.OCRFailed,
			RequiresReview: slide.RequiresReview,
			ReviewReason:   slide.ReviewReason,
		})
	}

	if proj.TranscriptPath != "" {
		transcript, err := transcribe.LoadTranscript(proj.TranscriptPath)
		if err != nil {
			o.logger.Warn("transcript unavailable for report",
				logging.String("session_id", sess.ID),
				logging.Error(err))
			return doc
		}
		for i, slide := range proj.Slides {
			end := proj.DurationSec
			if i+1 < len(proj.Slides) {
				end = proj.Slides[i+1].Timestamp
			}
			var parts []string
			for _, seg := range transcript.SegmentsAround(slide.Timestamp, end) {
				if text := strings.TrimSpace(seg.Text); text != "" {
					parts = append(parts, text)
				}
			}
			if len(parts) > 0 {
				doc.Excerpts = append(doc.Excerpts, report.TranscriptExcerpt{
					SlideNumber: slide.Index + 1,
					Text:        strings.Join(parts, " "),
				})
			}
		}
	}
	return doc
}

// restoreEngine reseeds the dedup working set from the slides already
// accepted in the log, preserving acceptance order.
func (o *Orchestrator) restoreEngine(proj *session.Projection) (*dedup.Engine, error) {
	engine := dedup.NewEngine(o.cfg.Extraction.SimilarityThreshold)
	if len(proj.Slides) == 0 {
		return engine, nil
	}

	fpBySeq := make(map[int]hash.Fingerprint, len(proj.Frames))
	for _, frame := range proj.Frames {
		fp, err := hash.Parse(frame.Fingerprint)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "process", "restore",
				fmt.Sprintf("bad fingerprint for frame %d", frame.Seq), err)
		}
		fpBySeq[frame.Seq] = fp
	}

	reps := make([]dedup.Representative, len(proj.Slides))
	for _, slide := range proj.Slides {
		fp, ok := fpBySeq[slide.FrameSeq]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "process", "restore",
				fmt.Sprintf("slide %d references unknown frame %d", slide.Index, slide.FrameSeq), nil)
		}
		reps[slide.Index] = dedup.Representative{FrameSeq: slide.FrameSeq, Fingerprint: fp}
	}
	engine.Restore(reps)
	return engine, nil
}
