package session

import (
	"time"
)

// Frame is one sampled video frame as recorded in the event log.
type Frame struct {
	Seq         int
	Timestamp   float64
	Fingerprint string
	ImagePath   string
}

// Slide is one accepted unique slide, enriched as later stages run. TextDone
// and Reviewed mark which enrichment events have been recorded, so a resumed
// run knows where within the processing stage it stopped.
type Slide struct {
	Index          int
	FrameSeq       int
	Timestamp      float64
	ImagePath      string
	Text           string
	Confidence     float64
	Language       string
	OCRFailed      bool
	TextDone       bool
	RequiresReview bool
	ReviewReason   string
	Reviewed       bool
}

// Projection folds a session's event sequence into the aggregate view the
// orchestrator resumes from and the renderer reads. It applies the same pure
// transition function as live processing, so replaying a log yields exactly
// the state the original run reached.
type Projection struct {
	State State

	Title          string
	VideoPath      string
	DurationSec    float64
	TranscriptPath string
	SegmentCount   int

	Frames      []Frame
	FrameCount  int
	FailedCount int

	Slides []Slide
	// LastEvaluatedSeq is the highest frame sequence the dedup pass has
	// classified; resume continues with the frame after it.
	LastEvaluatedSeq int
	Duplicates       int
	OCRFailed        int

	ReportPath string
	Format     string

	LastSeq int64
	LastAt  time.Time
}

// NewProjection returns an empty projection positioned at Created.
func NewProjection() *Projection {
	return &Projection{State: NewState()}
}

// Apply folds one event. Stale-event errors from the state machine are
// returned unwrapped so callers can decide whether the duplicate is benign.
func (p *Projection) Apply(event Event) error {
	next, err := Apply(p.State, event)
	if err != nil {
		return err
	}
	p.State = next
	p.LastSeq = event.Seq
	p.LastAt = event.At

	switch event.Kind {
	case KindVideoDownloaded:
		p.VideoPath = event.VideoPath
		p.Title = event.Title
		p.DurationSec = event.DurationSec
	case KindTranscriptionCompleted:
		p.TranscriptPath = event.TranscriptPath
		p.SegmentCount = event.SegmentCount
	case KindFrameExtracted:
		p.Frames = append(p.Frames, Frame{
			Seq:         event.FrameSeq,
			Timestamp:   event.Timestamp,
			Fingerprint: event.Fingerprint,
			ImagePath:   event.ImagePath,
		})
	case KindFramesExtracted:
		p.FrameCount = event.FrameCount
		p.FailedCount = event.FailedCount
	case KindSlideIdentified:
		p.Slides = append(p.Slides, Slide{
			Index:     event.SlideIndex,
			FrameSeq:  event.FrameSeq,
			Timestamp: event.Timestamp,
			ImagePath: event.ImagePath,
		})
		p.LastEvaluatedSeq = event.FrameSeq
	case KindDuplicateDetected:
		p.Duplicates++
		p.LastEvaluatedSeq = event.FrameSeq
	case KindTextExtracted:
		if slide := p.slideAt(event.SlideIndex); slide != nil {
			slide.Text = event.Text
			slide.Confidence = event.Confidence
			slide.Language = event.Language
			slide.OCRFailed = event.OCRFailed
			slide.TextDone = true
			if event.OCRFailed {
				p.OCRFailed++
			}
		}
	case KindSlideVerified:
		if slide := p.slideAt(event.SlideIndex); slide != nil {
			slide.Reviewed = true
			if !event.Approved {
				slide.RequiresReview = true
				slide.ReviewReason = event.Reason
			}
		}
	case KindDocumentRendered:
		p.ReportPath = event.ReportPath
		p.Format = event.Format
	}
	return nil
}

func (p *Projection) slideAt(index int) *Slide {
	for i := range p.Slides {
		if p.Slides[i].Index == index {
			return &p.Slides[i]
		}
	}
	return nil
}

// Replay folds a full event sequence from Created.
func Replay(events []Event) (*Projection, error) {
	p := NewProjection()
	for _, event := range events {
		if err := p.Apply(event); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// HasBoundary reports whether the projection already contains a successful
// boundary event departing the given status, used by resume to skip stages.
func (p *Projection) HasBoundary(status Status) bool {
	return stageRank[p.State.Status] > stageRank[status]
}

// Warnings counts tolerated partial-item failures across stages.
func (p *Projection) Warnings() int {
	return p.FailedCount + p.OCRFailed
}
