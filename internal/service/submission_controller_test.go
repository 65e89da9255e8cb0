package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/internal/models"
	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
)

var controllerNow = time.Date(2024, time.January, 31, 10, 30, 0, 0, time.UTC)

var testAccounts = []models.Account{
	{ID: "1", DisplayName: "Acme Corp", AccountNumber: "ACME-001"},
	{ID: "2", DisplayName: "Globex", AccountNumber: "GLBX-002"},
}

type loaderStub struct {
	states []models.LoadState[[]models.Account]
	during func()
}

func (l *loaderStub) Load(ctx context.Context) <-chan models.LoadState[[]models.Account] {
	if l.during != nil {
		l.during()
	}
	out := make(chan models.LoadState[[]models.Account], len(l.states))
	for _, st := range l.states {
		out <- st
	}
	close(out)
	return out
}

type transportStub struct {
	mu       sync.Mutex
	calls    int
	criteria []models.ReportCriteria
	events   []models.TransportEvent
	ch       chan models.TransportEvent
}

func (s *transportStub) Submit(ctx context.Context, criteria models.ReportCriteria) <-chan models.TransportEvent {
	s.mu.Lock()
	s.calls++
	s.criteria = append(s.criteria, criteria)
	s.mu.Unlock()
	if s.ch != nil {
		return s.ch
	}
	out := make(chan models.TransportEvent, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out
}

func (s *transportStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type saverStub struct {
	mu    sync.Mutex
	names []string
	sizes []int
	err   error
}

func (s *saverStub) Save(ctx context.Context, artifact *models.DownloadArtifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, artifact.SuggestedFileName)
	s.sizes = append(s.sizes, len(artifact.Data))
	artifact.Data = nil
	if s.err != nil {
		return "", s.err
	}
	return "/downloads/" + artifact.SuggestedFileName, nil
}

type notification struct {
	title   string
	message string
}

type notifierStub struct {
	mu        sync.Mutex
	successes []notification
	errors    []notification
}

func (n *notifierStub) Success(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, notification{title, message})
}

func (n *notifierStub) Error(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, notification{title, message})
}

type hookRecorder struct {
	mu       sync.Mutex
	phases   []models.Phase
	percents []int
	inputs   []bool
}

func (r *hookRecorder) hooks() ControllerHooks {
	return ControllerHooks{
		OnPhase: func(from, to models.Phase) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.phases = append(r.phases, to)
		},
		OnProgress: func(percent int) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.percents = append(r.percents, percent)
		},
		OnInputsEnabled: func(enabled bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.inputs = append(r.inputs, enabled)
		},
	}
}

type controllerFixture struct {
	ctrl      *SubmissionController
	transport *transportStub
	saver     *saverStub
	notifier  *notifierStub
	hooks     *hookRecorder
}

func newControllerForTest(t *testing.T, kind models.ReportKind, transport *transportStub, saver *saverStub) *controllerFixture {
	t.Helper()
	if saver == nil {
		saver = &saverStub{}
	}
	f := &controllerFixture{
		transport: transport,
		saver:     saver,
		notifier:  &notifierStub{},
		hooks:     &hookRecorder{},
	}
	f.ctrl = NewSubmissionController(kind, ControllerDeps{
		Loader: &loaderStub{states: []models.LoadState[[]models.Account]{
			models.Loading[[]models.Account](),
			models.Loaded(testAccounts),
		}},
		Transport: transport,
		Saver:     saver,
		Notifier:  f.notifier,
		Logger:    zap.NewNop(),
		Clock:     func() time.Time { return controllerNow },
		Hooks:     f.hooks.hooks(),
	})
	require.NoError(t, f.ctrl.LoadReferenceData(context.Background()))
	return f
}

func fillForm(t *testing.T, ctrl *SubmissionController, account string) {
	t.Helper()
	require.NoError(t, ctrl.SetAccount(account))
	rng := models.DayRange{
		From: models.Day{Year: 2024, Month: time.January, Day: 1},
		To:   models.Day{Year: 2024, Month: time.January, Day: 31},
	}
	require.NoError(t, ctrl.SetDateRange(&rng))
}

func TestSubmissionControllerSuccessfulDownload(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{
		models.ProgressEvent(0),
		models.ProgressEvent(50),
		models.ProgressEvent(100),
		models.CompleteEvent(&models.DownloadArtifact{Data: make([]byte, 12*1024)}),
	}}
	f := newControllerForTest(t, models.ReportKindMember, transport, nil)
	fillForm(t, f.ctrl, "ACME-001")

	require.NoError(t, f.ctrl.Submit(context.Background()))

	require.Equal(t, 1, transport.callCount())
	criteria := transport.criteria[0]
	assert.Equal(t, "ACME-001", criteria.AccountNumber)
	require.NotNil(t, criteria.StartDate)
	require.NotNil(t, criteria.EndDate)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), *criteria.StartDate)
	assert.Equal(t, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), *criteria.EndDate)

	assert.Equal(t, []string{"01/31/2024 - ACME-001.xlsx"}, f.saver.names)
	assert.Equal(t, []int{12 * 1024}, f.saver.sizes)
	assert.Equal(t, []int{0, 50, 100, 0}, f.hooks.percents)
	assert.Equal(t, []models.Phase{
		models.PhaseLoadingReferenceData,
		models.PhaseReady,
		models.PhaseSubmitting,
		models.PhaseSucceeded,
		models.PhaseReady,
	}, f.hooks.phases)

	require.Len(t, f.notifier.successes, 1)
	assert.Equal(t, "Successful Member Report Generation", f.notifier.successes[0].title)
	assert.Contains(t, f.notifier.successes[0].message, "member report")
	assert.Empty(t, f.notifier.errors)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.Equal(t, 0, snap.Percent)
	assert.Equal(t, models.SubmissionSucceeded, snap.Submission.Status)
	assert.False(t, snap.Form.Disabled)
	assert.False(t, snap.Form.Submitted)
	assert.False(t, snap.Form.Dirty)
	assert.Empty(t, snap.Form.Values.AccountNumber)
	assert.Nil(t, snap.Form.Values.DateRange)
}

func TestSubmissionControllerValidationBlocksTransport(t *testing.T) {
	transport := &transportStub{}
	f := newControllerForTest(t, models.ReportKindMember, transport, nil)
	rng := models.SingleDayRange(models.Day{Year: 2024, Month: time.January, Day: 2})
	require.NoError(t, f.ctrl.SetDateRange(&rng))

	err := f.ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, appErrors.FromError(err).Fields, FieldCorporateAccount)

	assert.Equal(t, 0, transport.callCount())
	snap := f.ctrl.Snapshot()
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.True(t, snap.Form.Submitted)
	assert.Contains(t, snap.Form.Errors, FieldCorporateAccount)
	assert.Empty(t, f.notifier.errors)
}

func TestSubmissionControllerTransportFailurePreservesForm(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{
		models.ProgressEvent(0),
		models.ProgressEvent(30),
		models.FailedEvent(appErrors.Clone(appErrors.ErrTransport, "report server returned 500")),
	}}
	f := newControllerForTest(t, models.ReportKindEnrollment, transport, nil)
	fillForm(t, f.ctrl, "ACME-001")

	err := f.ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransport))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.False(t, snap.Form.Disabled)
	assert.Equal(t, "ACME-001", snap.Form.Values.AccountNumber)
	require.NotNil(t, snap.Form.Values.DateRange)
	assert.Equal(t, 31, snap.Form.Values.DateRange.To.Day)
	assert.Equal(t, 30, snap.Percent)
	assert.Equal(t, models.SubmissionFailed, snap.Submission.Status)

	require.Len(t, f.notifier.errors, 1)
	assert.Equal(t, "Failed Enrollment Report Generation", f.notifier.errors[0].title)
	assert.Equal(t, "report server returned 500", f.notifier.errors[0].message)
	assert.Empty(t, f.saver.names)
	assert.Contains(t, f.hooks.phases, models.PhaseFailed)
}

func TestSubmissionControllerIgnoresReentrantSubmit(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{
		models.ProgressEvent(10),
		models.ProgressEvent(60),
		models.CompleteEvent(&models.DownloadArtifact{Data: []byte("xlsx")}),
	}}
	f := newControllerForTest(t, models.ReportKindMember, transport, nil)
	fillForm(t, f.ctrl, "GLBX-002")

	var reentrant []error
	hooks := f.hooks.hooks()
	f.ctrl.hooks.OnProgress = func(percent int) {
		hooks.OnProgress(percent)
		if percent > 0 && percent < 100 {
			reentrant = append(reentrant, f.ctrl.Submit(context.Background()))
		}
	}

	require.NoError(t, f.ctrl.Submit(context.Background()))
	require.Len(t, reentrant, 2)
	for _, err := range reentrant {
		assert.True(t, errors.Is(err, appErrors.ErrInFlight))
	}
	assert.Equal(t, 1, transport.callCount())
	assert.Len(t, f.saver.names, 1)
}

func TestSubmissionControllerDisablesInputsWhileLoading(t *testing.T) {
	cases := []struct {
		name   string
		states []models.LoadState[[]models.Account]
		notify int
	}{
		{
			name:   "loaded",
			states: []models.LoadState[[]models.Account]{models.Loading[[]models.Account](), models.Loaded(testAccounts)},
		},
		{
			name:   "errored",
			states: []models.LoadState[[]models.Account]{models.Loading[[]models.Account](), models.Errored[[]models.Account](appErrors.ErrReferenceData)},
			notify: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &hookRecorder{}
			notifier := &notifierStub{}
			loader := &loaderStub{states: tc.states}
			ctrl := NewSubmissionController(models.ReportKindMember, ControllerDeps{
				Loader:   loader,
				Notifier: notifier,
				Hooks:    rec.hooks(),
			})
			var disabledDuring bool
			loader.during = func() { disabledDuring = ctrl.Snapshot().Form.Disabled }

			require.NoError(t, ctrl.LoadReferenceData(context.Background()))

			assert.True(t, disabledDuring)
			assert.Equal(t, []bool{false, true}, rec.inputs)
			snap := ctrl.Snapshot()
			assert.Equal(t, models.PhaseReady, snap.Phase)
			assert.False(t, snap.Form.Disabled)
			require.Len(t, notifier.errors, tc.notify)
			if tc.notify > 0 {
				assert.Equal(t, "Error fetching companies", notifier.errors[0].title)
				assert.Equal(t, models.LoadStateErrored, snap.ReferenceData)
				assert.Empty(t, snap.Accounts)
			} else {
				assert.Equal(t, models.LoadStateLoaded, snap.ReferenceData)
				assert.Len(t, snap.Accounts, 2)
			}
		})
	}
}

func TestSubmissionControllerAbandonedLoadKeepsPreviousState(t *testing.T) {
	loader := &loaderStub{states: []models.LoadState[[]models.Account]{models.Loading[[]models.Account](), models.Loaded(testAccounts)}}
	ctrl := NewSubmissionController(models.ReportKindMember, ControllerDeps{Loader: loader, Notifier: &notifierStub{}})
	require.NoError(t, ctrl.LoadReferenceData(context.Background()))

	// The stream ends before any result arrives.
	loader.states = []models.LoadState[[]models.Account]{models.Loading[[]models.Account]()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ctrl.LoadReferenceData(ctx))

	snap := ctrl.Snapshot()
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.Equal(t, models.LoadStateLoaded, snap.ReferenceData)
	assert.NoError(t, snap.ReferenceErr)
	assert.Len(t, snap.Accounts, 2)
	assert.False(t, snap.Form.Disabled)
}

func TestSubmissionControllerReloadKeepsAccountsOnError(t *testing.T) {
	f := newControllerForTest(t, models.ReportKindMember, &transportStub{}, nil)
	f.ctrl.loader = &loaderStub{states: []models.LoadState[[]models.Account]{
		models.Loading[[]models.Account](),
		models.Errored[[]models.Account](errors.New("timeout")),
	}}

	require.NoError(t, f.ctrl.LoadReferenceData(context.Background()))
	snap := f.ctrl.Snapshot()
	assert.Len(t, snap.Accounts, 2)
	assert.EqualError(t, snap.ReferenceErr, "timeout")
	assert.Len(t, f.notifier.errors, 1)
}

func TestSubmissionControllerRejectsEditsWhileDisabled(t *testing.T) {
	ctrl := NewSubmissionController(models.ReportKindMember, ControllerDeps{Loader: &loaderStub{}})
	var editErr error
	ctrl.loader = &loaderStub{during: func() { editErr = ctrl.SetAccount("ACME-001") }}

	require.NoError(t, ctrl.LoadReferenceData(context.Background()))
	require.Error(t, editErr)
	assert.True(t, errors.Is(editErr, appErrors.ErrNotReady))
	assert.Empty(t, ctrl.Snapshot().Form.Values.AccountNumber)
}

func TestSubmissionControllerSubmitBeforeReady(t *testing.T) {
	transport := &transportStub{}
	ctrl := NewSubmissionController(models.ReportKindMember, ControllerDeps{Transport: transport})
	err := ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotReady))
	assert.Equal(t, 0, transport.callCount())
}

func TestSubmissionControllerDropsEventsAfterDispose(t *testing.T) {
	transport := &transportStub{ch: make(chan models.TransportEvent)}
	f := newControllerForTest(t, models.ReportKindMember, transport, nil)
	fillForm(t, f.ctrl, "ACME-001")

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Submit(context.Background()) }()

	transport.ch <- models.ProgressEvent(10)
	f.ctrl.Dispose()
	transport.ch <- models.ProgressEvent(60)
	transport.ch <- models.CompleteEvent(&models.DownloadArtifact{Data: []byte("late")})
	close(transport.ch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return after dispose")
	}

	f.hooks.mu.Lock()
	defer f.hooks.mu.Unlock()
	assert.NotContains(t, f.hooks.percents, 60)
	assert.NotContains(t, f.hooks.phases, models.PhaseSucceeded)
	assert.Empty(t, f.saver.names)
	assert.Empty(t, f.notifier.successes)

	err := f.ctrl.Submit(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrDisposed))
}

func TestSubmissionControllerTerminationResetsRangeToToday(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{
		models.ProgressEvent(100),
		models.CompleteEvent(&models.DownloadArtifact{Data: []byte("xlsx")}),
	}}
	f := newControllerForTest(t, models.ReportKindTermination, transport, nil)
	fillForm(t, f.ctrl, "ACME-001")

	require.NoError(t, f.ctrl.Submit(context.Background()))

	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.Form.Values.AccountNumber)
	require.NotNil(t, snap.Form.Values.DateRange)
	today := models.Day{Year: 2024, Month: time.January, Day: 31}
	assert.Equal(t, models.SingleDayRange(today), *snap.Form.Values.DateRange)
	assert.Equal(t, "Successful Termination Report Generation", f.notifier.successes[0].title)
}

func TestSubmissionControllerSaveFailure(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{
		models.ProgressEvent(100),
		models.CompleteEvent(&models.DownloadArtifact{Data: []byte("xlsx")}),
	}}
	saver := &saverStub{err: appErrors.Clone(appErrors.ErrSave, "disk full")}
	f := newControllerForTest(t, models.ReportKindMember, transport, saver)
	fillForm(t, f.ctrl, "ACME-001")

	err := f.ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSave))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, models.PhaseReady, snap.Phase)
	assert.Equal(t, models.SubmissionFailed, snap.Submission.Status)
	assert.Equal(t, "ACME-001", snap.Form.Values.AccountNumber)
	require.Len(t, f.notifier.errors, 1)
	assert.Equal(t, "disk full", f.notifier.errors[0].message)
	assert.Empty(t, f.notifier.successes)
}

func TestSubmissionControllerStreamEndsWithoutTerminalEvent(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{models.ProgressEvent(40)}}
	f := newControllerForTest(t, models.ReportKindMember, transport, nil)
	fillForm(t, f.ctrl, "ACME-001")

	err := f.ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrTransport))
	assert.Equal(t, models.PhaseReady, f.ctrl.Snapshot().Phase)
	assert.Len(t, f.notifier.errors, 1)
}

func TestSubmissionControllerProgressNeverDecreases(t *testing.T) {
	transport := &transportStub{events: []models.TransportEvent{
		models.ProgressEvent(40),
		models.ProgressEvent(20),
		models.ProgressEvent(150),
		models.CompleteEvent(&models.DownloadArtifact{Data: []byte("xlsx")}),
	}}
	f := newControllerForTest(t, models.ReportKindMember, transport, nil)
	fillForm(t, f.ctrl, "ACME-001")

	require.NoError(t, f.ctrl.Submit(context.Background()))
	assert.Equal(t, []int{40, 40, 100, 0}, f.hooks.percents)
}
