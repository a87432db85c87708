package session

import (
	"strings"
	"time"
)

// Status identifies the pipeline stage a session is in.
type Status string

const (
	StatusCreated      Status = "created"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusExtracting   Status = "extracting"
	StatusProcessing   Status = "processing"
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusCreated,
	StatusDownloading,
	StatusTranscribing,
	StatusExtracting,
	StatusProcessing,
	StatusGenerating,
	StatusCompleted,
	StatusFailed,
}

// stageRank orders the forward pipeline. Terminal statuses sit outside the
// ordering and are guarded separately.
var stageRank = map[Status]int{
	StatusCreated:      0,
	StatusDownloading:  1,
	StatusTranscribing: 2,
	StatusExtracting:   3,
	StatusProcessing:   4,
	StatusGenerating:   5,
	StatusCompleted:    6,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress maps the status onto a coarse completion percentage for display.
func (s Status) Progress() float64 {
	if s == StatusFailed {
		return 0
	}
	rank, ok := stageRank[s]
	if !ok {
		return 0
	}
	return float64(rank) / float64(stageRank[StatusCompleted]) * 100
}

// State is the replayable session state: the current stage plus, for failed
// sessions, the human-readable reason recorded at the point of failure.
type State struct {
	Status        Status
	FailureReason string
}

// NewState returns the initial state every replay starts from.
func NewState() State {
	return State{Status: StatusCreated}
}

// Session is the catalog record for one extraction run. It is mutated only
// by event application and catalog snapshots, never directly by stages.
type Session struct {
	ID            string
	SourceURL     string
	Title         string
	Status        Status
	FailureReason string
	ConfigJSON    string
	LogPath       string
	ReportPath    string
	SlideCount    int
	WarningCount  int
	ProgressStage string
	ProgressPct   float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// IsActive reports whether the session may still be driven forward.
func (s *Session) IsActive() bool {
	return !s.Status.IsTerminal()
}
