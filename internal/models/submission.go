package models

// Phase is the lifecycle position of a submission controller.
type Phase string

const (
	PhaseIdle                 Phase = "IDLE"
	PhaseLoadingReferenceData Phase = "LOADING_REFERENCE_DATA"
	PhaseReady                Phase = "READY"
	PhaseSubmitting           Phase = "SUBMITTING"
	PhaseSucceeded            Phase = "SUCCEEDED"
	PhaseFailed               Phase = "FAILED"
)

// SubmissionStatus tags a SubmissionState.
type SubmissionStatus string

const (
	SubmissionIdle       SubmissionStatus = "idle"
	SubmissionSubmitting SubmissionStatus = "submitting"
	SubmissionSucceeded  SubmissionStatus = "succeeded"
	SubmissionFailed     SubmissionStatus = "failed"
)

// SubmissionState describes the most recent submission.
type SubmissionState struct {
	Status   SubmissionStatus
	Percent  int
	Artifact *DownloadArtifact
	Err      error
}

// FormValues is the raw content of the report form.
type FormValues struct {
	AccountNumber string
	DateRange     *DayRange
}

// FormSnapshot is the form plus the flags a UI binds to.
type FormSnapshot struct {
	Values    FormValues
	Disabled  bool
	Submitted bool
	Dirty     bool
	Touched   bool
	Errors    map[string]string
}

// ControllerSnapshot is a read-only copy of a controller's observable state.
type ControllerSnapshot struct {
	Phase      Phase
	Percent    int
	Submission SubmissionState
	Form       FormSnapshot
	Accounts   []Account
	// ReferenceData is the tag of the most recent account list load.
	ReferenceData LoadStateKind
	ReferenceErr  error
}
