package models

import (
	"fmt"
	"time"
)

// ReportKind describes one report screen: which endpoint it calls and
// which form fields it needs.
type ReportKind struct {
	Name              string
	Endpoint          string
	RequiresDateRange bool
	// ResetRangeToToday seeds the date range with today..today whenever the
	// form is reset after a successful download.
	ResetRangeToToday bool
}

var (
	ReportKindMember      = ReportKind{Name: "Member", Endpoint: "member", RequiresDateRange: true}
	ReportKindEnrollment  = ReportKind{Name: "Enrollment", Endpoint: "enrollment", RequiresDateRange: true}
	ReportKindTermination = ReportKind{Name: "Termination", Endpoint: "termination", RequiresDateRange: true, ResetRangeToToday: true}
)

// ReportKindByEndpoint resolves one of the built-in kinds.
func ReportKindByEndpoint(endpoint string) (ReportKind, error) {
	for _, kind := range []ReportKind{ReportKindMember, ReportKindEnrollment, ReportKindTermination} {
		if kind.Endpoint == endpoint {
			return kind, nil
		}
	}
	return ReportKind{}, fmt.Errorf("unknown report kind %q", endpoint)
}

// ReportCriteria is the validated request sent to the report endpoint.
// StartDate and EndDate are UTC midnights, nil when the kind has no range.
type ReportCriteria struct {
	Kind          ReportKind
	AccountNumber string
	StartDate     *time.Time
	EndDate       *time.Time
}

// DownloadArtifact is a fetched report waiting to be saved.
type DownloadArtifact struct {
	Data              []byte
	SuggestedFileName string
}

// TransportEventKind tags a TransportEvent.
type TransportEventKind string

const (
	TransportProgress TransportEventKind = "progress"
	TransportComplete TransportEventKind = "complete"
	TransportFailed   TransportEventKind = "failed"
)

// TransportEvent is one step of a streamed report download.
type TransportEvent struct {
	Kind     TransportEventKind
	Percent  int
	Artifact *DownloadArtifact
	Err      error
}

// ProgressEvent builds a progress event.
func ProgressEvent(percent int) TransportEvent {
	return TransportEvent{Kind: TransportProgress, Percent: percent}
}

// CompleteEvent builds the terminal success event.
func CompleteEvent(artifact *DownloadArtifact) TransportEvent {
	return TransportEvent{Kind: TransportComplete, Artifact: artifact, Percent: 100}
}

// FailedEvent builds the terminal failure event.
func FailedEvent(err error) TransportEvent {
	return TransportEvent{Kind: TransportFailed, Err: err}
}
