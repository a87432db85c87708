package session

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags what happened. Boundary kinds advance the session one stage;
// data kinds record per-item facts inside a stage and never transition.
type Kind string

const (
	// Boundary events, one per stage edge.
	KindDownloadStarted        Kind = "download_started"
	KindVideoDownloaded        Kind = "video_downloaded"
	KindTranscriptionCompleted Kind = "transcription_completed"
	KindTranscriptionSkipped   Kind = "transcription_skipped"
	KindFramesExtracted        Kind = "frames_extracted"
	KindProcessingCompleted    Kind = "processing_completed"
	KindDocumentRendered       Kind = "document_rendered"
	KindStageFailed            Kind = "stage_failed"

	// Data events recorded within a stage.
	KindFrameExtracted    Kind = "frame_extracted"
	KindSlideIdentified   Kind = "slide_identified"
	KindDuplicateDetected Kind = "duplicate_detected"
	KindTextExtracted     Kind = "text_extracted"
	KindSlideVerified     Kind = "slide_verified"
)

// Event is an immutable record of something that already happened. Large
// artifacts (video bytes, images) are referenced by path, never embedded.
type Event struct {
	Seq  int64     `json:"seq"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	// Video metadata (video_downloaded).
	VideoPath   string  `json:"video_path,omitempty"`
	Title       string  `json:"title,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`

	// Transcription (transcription_completed / transcription_skipped).
	TranscriptPath string `json:"transcript_path,omitempty"`
	SegmentCount   int    `json:"segment_count,omitempty"`
	Reason         string `json:"reason,omitempty"`

	// Frame extraction (frame_extracted / frames_extracted).
	FrameSeq    int     `json:"frame_seq,omitempty"`
	Timestamp   float64 `json:"timestamp,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	ImagePath   string  `json:"image_path,omitempty"`
	FrameCount  int     `json:"frame_count,omitempty"`
	FailedCount int     `json:"failed_count,omitempty"`

	// Processing (slide_identified / duplicate_detected / text_extracted / slide_verified).
	SlideIndex int     `json:"slide_index,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
	OCRFailed  bool    `json:"ocr_failed,omitempty"`
	Approved   bool    `json:"approved,omitempty"`
	SlideCount int     `json:"slide_count,omitempty"`

	// Rendering (document_rendered).
	ReportPath string `json:"report_path,omitempty"`
	Format     string `json:"format,omitempty"`

	// Failure (stage_failed).
	Stage string `json:"stage,omitempty"`
}

// boundary maps each stage-advancing kind to the status it departs from and
// the status it produces.
var boundary = map[Kind]struct {
	from Status
	to   Status
}{
	KindDownloadStarted:        {StatusCreated, StatusDownloading},
	KindVideoDownloaded:        {StatusDownloading, StatusTranscribing},
	KindTranscriptionCompleted: {StatusTranscribing, StatusExtracting},
	KindTranscriptionSkipped:   {StatusTranscribing, StatusExtracting},
	KindFramesExtracted:        {StatusExtracting, StatusProcessing},
	KindProcessingCompleted:    {StatusProcessing, StatusGenerating},
	KindDocumentRendered:       {StatusGenerating, StatusCompleted},
}

// dataStage maps each data kind to the stage it is valid in.
var dataStage = map[Kind]Status{
	KindFrameExtracted:    StatusExtracting,
	KindSlideIdentified:   StatusProcessing,
	KindDuplicateDetected: StatusProcessing,
	KindTextExtracted:     StatusProcessing,
	KindSlideVerified:     StatusProcessing,
}

// IsBoundary reports whether the kind advances the session one stage.
func (k Kind) IsBoundary() bool {
	_, ok := boundary[k]
	return ok || k == KindStageFailed
}

// ErrStaleEvent reports a boundary event that does not belong to the
// session's current stage, most often a replay duplicate for a stage
// already passed.
type ErrStaleEvent struct {
	Kind   Kind
	Status Status
}

func (e *ErrStaleEvent) Error() string {
	return fmt.Sprintf("stale event %s: session is in status %s", e.Kind, e.Status)
}

// ErrUnknownEvent reports an event kind the state machine does not recognize.
type ErrUnknownEvent struct {
	Kind Kind
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event kind %q", e.Kind)
}

// Apply is the pure transition function: it folds one event into the state
// and returns the result. It performs no I/O and reads no clock.
//
// Policy (tested): events applied to a terminal state return the state
// unchanged; boundary events for a stage the session already passed return
// ErrStaleEvent so the caller can distinguish benign replay duplicates from
// genuine corruption; data events outside their stage are ignored.
func Apply(state State, event Event) (State, error) {
	if state.Status.IsTerminal() {
		return state, nil
	}

	if event.Kind == KindStageFailed {
		reason := strings.TrimSpace(event.Reason)
		if reason == "" {
			reason = "stage failed"
		}
		return State{Status: StatusFailed, FailureReason: reason}, nil
	}

	if edge, ok := boundary[event.Kind]; ok {
		if state.Status == edge.from {
			return State{Status: edge.to}, nil
		}
		if stageRank[state.Status] > stageRank[edge.from] {
			return state, &ErrStaleEvent{Kind: event.Kind, Status: state.Status}
		}
		// Event for a stage the session has not reached: genuine ordering
		// violation, surfaced as stale so the driver decides.
		return state, &ErrStaleEvent{Kind: event.Kind, Status: state.Status}
	}

	if want, ok := dataStage[event.Kind]; ok {
		if state.Status == want {
			return state, nil
		}
		if stageRank[state.Status] > stageRank[want] {
			return state, &ErrStaleEvent{Kind: event.Kind, Status: state.Status}
		}
		return state, nil
	}

	return state, &ErrUnknownEvent{Kind: event.Kind}
}
