package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
	"github.com/noah-isme/corp-reports/pkg/middleware/requestid"
)

type accountLoader interface {
	Load(ctx context.Context) <-chan models.LoadState[[]models.Account]
}

type reportSubmitter interface {
	Submit(ctx context.Context, criteria models.ReportCriteria) <-chan models.TransportEvent
}

type artifactSaver interface {
	Save(ctx context.Context, artifact *models.DownloadArtifact) (string, error)
}

// ControllerHooks observe controller side effects. Hooks run after the
// controller has released its lock, in the order the effects happened.
type ControllerHooks struct {
	OnPhase         func(from, to models.Phase)
	OnProgress      func(percent int)
	OnInputsEnabled func(enabled bool)
}

// ControllerDeps wires the collaborators of a SubmissionController.
type ControllerDeps struct {
	Loader    accountLoader
	Builder   *RequestBuilder
	Transport reportSubmitter
	Saver     artifactSaver
	Notifier  Notifier
	Metrics   *MetricsService
	Logger    *zap.Logger
	// Clock is the request-time clock used for file names and for
	// re-seeding the date range; defaults to time.Now.
	Clock              func() time.Time
	FilenameDateFormat string
	Hooks              ControllerHooks
}

type formState struct {
	values    models.FormValues
	disabled  bool
	submitted bool
	dirty     bool
	touched   bool
	errors    map[string]string
}

// SubmissionController runs the report request lifecycle for one report
// screen: reference data loading, validation, a single in-flight submission
// with progress, and saving the result.
type SubmissionController struct {
	mu sync.Mutex

	kind      models.ReportKind
	loader    accountLoader
	builder   *RequestBuilder
	transport reportSubmitter
	saver     artifactSaver
	notifier  Notifier
	metrics   *MetricsService
	logger    *zap.Logger
	clock     func() time.Time
	namer     FileNamer
	hooks     ControllerHooks

	phase      models.Phase
	percent    int
	submission models.SubmissionState
	form       formState
	accounts   []models.Account
	refKind    models.LoadStateKind
	refErr     error

	generation uint64
	cancelLoad context.CancelFunc
	cancelSub  context.CancelFunc
	disposed   bool

	effects []func()
}

// NewSubmissionController constructs a controller in the Idle phase.
func NewSubmissionController(kind models.ReportKind, deps ControllerDeps) *SubmissionController {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	builder := deps.Builder
	if builder == nil {
		builder = NewRequestBuilder(kind, nil)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SubmissionController{
		kind:       kind,
		loader:     deps.Loader,
		builder:    builder,
		transport:  deps.Transport,
		saver:      deps.Saver,
		notifier:   notifier,
		metrics:    deps.Metrics,
		logger:     logger.With(zap.String("report", kind.Endpoint)),
		clock:      clock,
		namer:      NewFileNamer(clock, deps.FilenameDateFormat),
		hooks:      deps.Hooks,
		phase:      models.PhaseIdle,
		submission: models.SubmissionState{Status: models.SubmissionIdle},
	}
}

// LoadReferenceData fetches the account list. Inputs are disabled for the
// duration of the load and re-enabled afterwards whatever the outcome; a
// failed load raises an error notification and keeps the previous list.
// Allowed from Idle and Ready.
func (c *SubmissionController) LoadReferenceData(ctx context.Context) error {
	c.lock()
	if c.disposed {
		c.unlock()
		return appErrors.ErrDisposed
	}
	if c.phase != models.PhaseIdle && c.phase != models.PhaseReady {
		c.unlock()
		return appErrors.Clone(appErrors.ErrNotReady, fmt.Sprintf("cannot load reference data while %s", c.phase))
	}
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	prevKind, prevErr := c.refKind, c.refErr
	c.setPhase(models.PhaseLoadingReferenceData)
	c.setInputsEnabled(false)
	c.unlock()
	defer cancel()

	finished := false
	for state := range c.loader.Load(loadCtx) {
		c.lock()
		if c.disposed {
			c.unlock()
			continue
		}
		finished = finished || state.Terminal()
		c.refKind = state.Kind
		switch state.Kind {
		case models.LoadStateLoading:
			c.refErr = nil
		case models.LoadStateLoaded:
			c.accounts = append([]models.Account(nil), state.Data...)
		case models.LoadStateErrored:
			c.refErr = state.Err
			c.logger.Sugar().Warnw("reference data load failed", "error", state.Err)
			c.effect(func() {
				c.notifier.Error("Error fetching companies", "Had a problem fetching corporate accounts.")
			})
		}
		c.unlock()
	}

	c.lock()
	defer c.unlock()
	c.cancelLoad = nil
	if c.disposed {
		return nil
	}
	if !finished {
		// Abandoned mid-flight: the previous outcome still stands.
		c.refKind, c.refErr = prevKind, prevErr
		c.logger.Sugar().Infow("reference data load abandoned", "error", loadCtx.Err())
	}
	c.setInputsEnabled(true)
	c.setPhase(models.PhaseReady)
	return nil
}

// SetAccount selects the corporate account by number.
func (c *SubmissionController) SetAccount(accountNumber string) error {
	c.lock()
	defer c.unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.form.values.AccountNumber = accountNumber
	c.form.dirty = true
	c.form.touched = true
	return nil
}

// SetDateRange sets or clears the date range.
func (c *SubmissionController) SetDateRange(rng *models.DayRange) error {
	c.lock()
	defer c.unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	if rng != nil {
		copied := *rng
		rng = &copied
	}
	c.form.values.DateRange = rng
	c.form.dirty = true
	c.form.touched = true
	return nil
}

// Submit validates the form and, when valid, downloads and saves the report.
// It blocks until the submission reaches a terminal state. Calls made while
// a submission is in flight are ignored and return ErrInFlight without
// touching the transport. Validation failures return VALIDATION_ERROR and
// leave the controller Ready with the form marked submitted.
func (c *SubmissionController) Submit(ctx context.Context) error {
	c.lock()
	if c.disposed {
		c.unlock()
		return appErrors.ErrDisposed
	}
	switch c.phase {
	case models.PhaseReady:
	case models.PhaseSubmitting, models.PhaseSucceeded, models.PhaseFailed:
		c.unlock()
		return appErrors.ErrInFlight
	default:
		c.unlock()
		return appErrors.Clone(appErrors.ErrNotReady, fmt.Sprintf("cannot submit while %s", c.phase))
	}

	c.form.submitted = true
	criteria, err := c.builder.Build(c.form.values, c.accounts)
	if err != nil {
		c.form.errors = appErrors.FromError(err).Fields
		c.unlock()
		return err
	}
	c.form.errors = nil

	submissionID := uuid.NewString()
	subCtx, cancel := context.WithCancel(requestid.WithContext(ctx, submissionID))
	c.generation++
	gen := c.generation
	c.cancelSub = cancel
	c.setPhase(models.PhaseSubmitting)
	c.percent = 0
	c.submission = models.SubmissionState{Status: models.SubmissionSubmitting}
	c.setInputsEnabled(false)
	requestedAt := c.clock()
	c.logger.Sugar().Infow("report submission started", "submission_id", submissionID, "account", criteria.AccountNumber)
	c.unlock()
	defer cancel()

	start := time.Now()
	var terminal *models.TransportEvent
	for ev := range c.transport.Submit(subCtx, criteria) {
		if terminal != nil {
			continue
		}
		switch ev.Kind {
		case models.TransportProgress:
			c.applyProgress(gen, ev.Percent)
		case models.TransportComplete, models.TransportFailed:
			event := ev
			terminal = &event
		}
	}

	if terminal == nil {
		c.lock()
		defer c.unlock()
		if !c.liveLocked(gen) {
			return nil
		}
		err := appErrors.Wrap(subCtx.Err(), appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "report request ended without a response")
		c.failLocked(err, "transport_error", start)
		return err
	}

	if terminal.Kind == models.TransportFailed || terminal.Artifact == nil {
		c.lock()
		defer c.unlock()
		if !c.liveLocked(gen) {
			return nil
		}
		err := terminal.Err
		if err == nil {
			err = appErrors.Clone(appErrors.ErrTransport, "report response was empty")
		}
		c.failLocked(err, "transport_error", start)
		return err
	}

	artifact := terminal.Artifact
	c.lock()
	if !c.liveLocked(gen) {
		c.unlock()
		artifact.Data = nil
		return nil
	}
	artifact.SuggestedFileName = c.namer.NameAt(requestedAt, criteria.AccountNumber)
	c.unlock()

	path, saveErr := c.saver.Save(subCtx, artifact)

	c.lock()
	defer c.unlock()
	if !c.liveLocked(gen) {
		return nil
	}
	if saveErr != nil {
		c.failLocked(saveErr, "save_error", start)
		return saveErr
	}

	c.setPhase(models.PhaseSucceeded)
	c.submission = models.SubmissionState{
		Status:   models.SubmissionSucceeded,
		Percent:  c.percent,
		Artifact: &models.DownloadArtifact{SuggestedFileName: artifact.SuggestedFileName},
	}
	c.metrics.ObserveSubmission(c.kind.Endpoint, "success", time.Since(start))
	c.logger.Sugar().Infow("report submission succeeded", "submission_id", submissionID, "path", path)
	name := c.kind.Name
	c.effect(func() {
		c.notifier.Success(
			fmt.Sprintf("Successful %s Report Generation", name),
			fmt.Sprintf("You have successfully generated a %s report. Please review it for accuracy and completeness.", strings.ToLower(name)),
		)
	})
	c.resetFormLocked()
	c.setInputsEnabled(true)
	c.setPhase(models.PhaseReady)
	c.setPercent(0)
	c.cancelSub = nil
	return nil
}

// Dispose tears the controller down. In-flight work is cancelled and any
// event arriving afterwards is dropped.
func (c *SubmissionController) Dispose() {
	c.lock()
	defer c.unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	if c.cancelSub != nil {
		c.cancelSub()
	}
}

// Snapshot returns a copy of the observable state.
func (c *SubmissionController) Snapshot() models.ControllerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := models.ControllerSnapshot{
		Phase:      c.phase,
		Percent:    c.percent,
		Submission: c.submission,
		Form: models.FormSnapshot{
			Values:    c.form.values,
			Disabled:  c.form.disabled,
			Submitted: c.form.submitted,
			Dirty:     c.form.dirty,
			Touched:   c.form.touched,
		},
		Accounts:      append([]models.Account(nil), c.accounts...),
		ReferenceData: c.refKind,
		ReferenceErr:  c.refErr,
	}
	if c.form.values.DateRange != nil {
		rng := *c.form.values.DateRange
		snap.Form.Values.DateRange = &rng
	}
	if len(c.form.errors) > 0 {
		snap.Form.Errors = make(map[string]string, len(c.form.errors))
		for k, v := range c.form.errors {
			snap.Form.Errors[k] = v
		}
	}
	return snap
}

func (c *SubmissionController) applyProgress(gen uint64, percent int) {
	c.lock()
	defer c.unlock()
	if !c.liveLocked(gen) || c.phase != models.PhaseSubmitting {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < c.percent {
		percent = c.percent
	}
	c.submission.Percent = percent
	c.setPercent(percent)
}

// failLocked records a terminal failure and returns to Ready with the form
// values preserved for a retry.
func (c *SubmissionController) failLocked(err error, outcome string, start time.Time) {
	c.setPhase(models.PhaseFailed)
	c.submission = models.SubmissionState{Status: models.SubmissionFailed, Percent: c.percent, Err: err}
	c.metrics.ObserveSubmission(c.kind.Endpoint, outcome, time.Since(start))
	c.logger.Sugar().Errorw("report submission failed", "outcome", outcome, "error", err)
	title := fmt.Sprintf("Failed %s Report Generation", c.kind.Name)
	message := appErrors.FromError(err).Message
	c.effect(func() { c.notifier.Error(title, message) })
	c.setInputsEnabled(true)
	c.setPhase(models.PhaseReady)
	c.cancelSub = nil
}

func (c *SubmissionController) resetFormLocked() {
	c.form.values = models.FormValues{}
	if c.kind.ResetRangeToToday {
		today := models.SingleDayRange(models.DayOf(c.clock()))
		c.form.values.DateRange = &today
	}
	c.form.submitted = false
	c.form.dirty = false
	c.form.touched = false
	c.form.errors = nil
}

func (c *SubmissionController) editableLocked() error {
	if c.disposed {
		return appErrors.ErrDisposed
	}
	if c.form.disabled {
		return appErrors.Clone(appErrors.ErrNotReady, "form inputs are disabled")
	}
	return nil
}

func (c *SubmissionController) liveLocked(gen uint64) bool {
	return !c.disposed && c.generation == gen
}

func (c *SubmissionController) setPhase(to models.Phase) {
	from := c.phase
	if from == to {
		return
	}
	c.phase = to
	if hook := c.hooks.OnPhase; hook != nil {
		c.effect(func() { hook(from, to) })
	}
}

func (c *SubmissionController) setInputsEnabled(enabled bool) {
	if c.form.disabled == !enabled {
		return
	}
	c.form.disabled = !enabled
	if hook := c.hooks.OnInputsEnabled; hook != nil {
		c.effect(func() { hook(enabled) })
	}
}

func (c *SubmissionController) setPercent(percent int) {
	c.percent = percent
	if hook := c.hooks.OnProgress; hook != nil {
		c.effect(func() { hook(percent) })
	}
}

func (c *SubmissionController) effect(fn func()) {
	c.effects = append(c.effects, fn)
}

func (c *SubmissionController) lock() {
	c.mu.Lock()
}

// unlock releases the lock and then runs the effects queued while it was held.
func (c *SubmissionController) unlock() {
	effects := c.effects
	c.effects = nil
	c.mu.Unlock()
	for _, fn := range effects {
		fn()
	}
}
