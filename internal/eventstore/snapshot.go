package eventstore

import (
	"context"
	"time"

	"lectern/internal/session"
)

// Snapshot copies replay-derived fields onto the catalog record and persists
// it. The catalog never holds anything the log cannot reproduce, so a stale
// or lost snapshot is repaired by the next replay.
func (s *Store) Snapshot(ctx context.Context, sess *session.Session, p *session.Projection) error {
	sess.Status = p.State.Status
	sess.FailureReason = p.State.FailureReason
	if p.Title != "" {
		sess.Title = p.Title
	}
	sess.ReportPath = p.ReportPath
	sess.SlideCount = len(p.Slides)
	sess.WarningCount = p.Warnings()
	sess.ProgressStage = string(p.State.Status)
	sess.ProgressPct = p.State.Status.Progress()
	if p.State.Status.IsTerminal() && sess.CompletedAt == nil {
		at := p.LastAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		sess.CompletedAt = &at
	}
	return s.Update(ctx, sess)
}
