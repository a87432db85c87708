// Package dedup decides, for each fingerprinted frame in arrival order,
// whether it represents a new unique slide or duplicates one already seen.
package dedup

import (
	"lectern/internal/hash"
)

// Verdict classifies one evaluated fingerprint.
type Verdict struct {
	// Unique is true when the fingerprint was accepted as a new representative.
	Unique bool
	// SlideIndex is the acceptance-order index (0-based) of the representative
	// this frame belongs to: its own index when Unique, the matched slide's
	// index otherwise.
	SlideIndex int
	// Similarity is the score against the matched representative (1.0 for a
	// newly accepted representative).
	Similarity float64
}

// Representative records one accepted fingerprint and the frame it came from.
type Representative struct {
	FrameSeq    int
	Fingerprint hash.Fingerprint
}

// Engine holds the working set of accepted fingerprints for one session.
// It performs no I/O and is not safe for concurrent use; a session's frames
// are evaluated by a single driver in frame order.
type Engine struct {
	threshold float64
	accepted  []Representative
}

// NewEngine creates an engine with the given similarity threshold. A frame
// whose similarity to an accepted representative is >= threshold is a
// duplicate of that representative.
func NewEngine(threshold float64) *Engine {
	return &Engine{threshold: threshold}
}

// Evaluate classifies a fingerprint against all previously accepted
// representatives. When several match, the earliest accepted one (lowest
// frame sequence) wins, which keeps results deterministic for a fixed
// insertion order.
func (e *Engine) Evaluate(frameSeq int, fp hash.Fingerprint) Verdict {
	for idx, rep := range e.accepted {
		score := hash.Similarity(rep.Fingerprint, fp)
		if score >= e.threshold {
			return Verdict{Unique: false, SlideIndex: idx, Similarity: score}
		}
	}
	e.accepted = append(e.accepted, Representative{FrameSeq: frameSeq, Fingerprint: fp})
	return Verdict{Unique: true, SlideIndex: len(e.accepted) - 1, Similarity: 1.0}
}

// Count returns the number of accepted representatives so far.
func (e *Engine) Count() int {
	return len(e.accepted)
}

// Representatives returns the accepted set in acceptance order.
func (e *Engine) Representatives() []Representative {
	cp := make([]Representative, len(e.accepted))
	copy(cp, e.accepted)
	return cp
}

// Restore reseeds the working set from previously accepted representatives,
// used when resuming a session from its event log.
func (e *Engine) Restore(reps []Representative) {
	e.accepted = make([]Representative, len(reps))
	copy(e.accepted, reps)
}
