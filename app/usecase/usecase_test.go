package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"copywriter/internal/copywriting"
	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/store/filesystem"
	"copywriter/internal/infrastructure/store/memory"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func validRequest() entity.ProjectRequest {
	return entity.ProjectRequest{
		ContentIdea:    "Reusable coffee cups",
		TargetAudience: "Commuters",
		Age:            "25-34",
		Format:         "Social Media Post",
		Goal:           "Awareness",
	}
}

type fakeRunner struct {
	state *entity.WorkflowState
	err   error
}

func (f *fakeRunner) RunObserved(_ context.Context, _ entity.ProjectRequest, obs copywriting.Observer) (*entity.WorkflowState, error) {
	obs.OnEvent(entity.Event{Type: entity.EventRunStarted})
	if f.err != nil {
		obs.OnEvent(entity.Event{Type: entity.EventRunFailed, Error: f.err.Error()})
		return nil, f.err
	}
	obs.OnEvent(entity.Event{Type: entity.EventRunCompleted})
	return f.state, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.Event
}

func (p *recordingPublisher) Publish(e entity.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify() { c.n++ }

func finalState() *entity.WorkflowState {
	st := entity.NewWorkflowState(validRequest())
	st.SelectedFormulas = []string{"AIDA"}
	st.Drafts = map[string]string{"AIDA": "**Sip** sustainably."}
	st.Scores = map[string]entity.Score{"AIDA": {Average: 8.2, Criteria: map[string]float64{"clarity": 8.2}}}
	st.Feedback = map[string]string{"AIDA": "nice"}
	st.RevisionCount = 1
	sum := copywriting.BuildSummary(st, entity.CriterionIDs)
	st.FinalSummary = &sum
	return &st
}

type fixture struct {
	runs      *memory.RunRepo
	reports   *filesystem.ReportRepository
	publisher *recordingPublisher
	notifier  *countingNotifier
	service   *RunService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reports, err := filesystem.NewReportRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewReportRepository: %v", err)
	}
	f := &fixture{
		runs:      memory.NewRunRepo(),
		reports:   reports,
		publisher: &recordingPublisher{},
		notifier:  &countingNotifier{},
	}
	f.service = NewRunService(f.runs, f.reports, f.notifier, testLogger())
	return f
}

func (f *fixture) worker(runner CopywritingRunner) *RunWorker {
	return NewRunWorker(f.runs, f.reports, runner, f.publisher, time.Hour, time.Minute, testLogger())
}

func TestRunService_CreateRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.CreateRun(ctx, entity.ProjectRequest{ContentIdea: "x"}); !errors.Is(err, entity.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if f.notifier.n != 0 {
		t.Error("invalid request must not wake the worker")
	}

	run, err := f.service.CreateRun(ctx, validRequest())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != entity.RunStatusPending || run.ID == "" {
		t.Errorf("run = %+v", run)
	}
	if f.notifier.n != 1 {
		t.Errorf("notifications = %d, want 1", f.notifier.n)
	}

	pending, err := f.service.ListRuns(ctx, entity.RunStatusPending)
	if err != nil || len(pending) != 1 {
		t.Errorf("pending = %v, %v", pending, err)
	}
	all, err := f.service.ListRuns(ctx, "")
	if err != nil || len(all) != 1 {
		t.Errorf("all = %v, %v", all, err)
	}
	if _, err := f.service.GetRun(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetRun err = %v, want ErrNotFound", err)
	}
}

func TestRunWorker_ProcessesPendingRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, err := f.service.CreateRun(ctx, validRequest())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	w := f.worker(&fakeRunner{state: finalState()})
	if err := w.runOnce(ctx); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got, err := f.service.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != entity.RunStatusCompleted || got.State == nil || got.State.FinalSummary == nil {
		t.Fatalf("run = %+v", got)
	}

	reports := NewReportService(f.reports)
	sum, err := reports.GetReport(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if sum.BestPerforming != "AIDA" {
		t.Errorf("best = %q", sum.BestPerforming)
	}
	html, err := reports.GetDraftHTML(ctx, run.ID, "AIDA")
	if err != nil {
		t.Fatalf("GetDraftHTML: %v", err)
	}
	if !strings.Contains(html, "<strong>Sip</strong>") {
		t.Errorf("html = %s", html)
	}

	if len(f.publisher.events) != 2 {
		t.Fatalf("events = %+v", f.publisher.events)
	}
	for _, e := range f.publisher.events {
		if e.RunID != run.ID {
			t.Errorf("event %s has run id %q", e.Type, e.RunID)
		}
	}
}

func TestRunWorker_FailedRunKeepsLastState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, err := f.service.CreateRun(ctx, validRequest())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	last := entity.NewWorkflowState(validRequest())
	last.SelectedFormulas = []string{"PAS"}
	stepErr := &copywriting.StepError{Node: copywriting.NodeDraft, Step: 2, Err: context.DeadlineExceeded, State: &last}

	w := f.worker(&fakeRunner{err: stepErr})
	if err := w.runOnce(ctx); err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got, _ := f.service.GetRun(ctx, run.ID)
	if got.Status != entity.RunStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if !strings.Contains(got.Error, "generate_drafts") {
		t.Errorf("error = %q", got.Error)
	}
	if got.State == nil || got.State.SelectedFormulas[0] != "PAS" {
		t.Errorf("state = %+v", got.State)
	}
	if _, err := NewReportService(f.reports).GetReport(ctx, run.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("failed run should have no report, err = %v", err)
	}
}

func TestRunWorker_RecoverInterrupted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, _ := f.service.CreateRun(ctx, validRequest())
	if err := f.runs.UpdateStatus(ctx, run.ID, entity.RunStatusRunning); err != nil {
		t.Fatal(err)
	}

	if err := f.worker(&fakeRunner{}).recoverInterrupted(ctx); err != nil {
		t.Fatalf("recoverInterrupted: %v", err)
	}
	got, _ := f.service.GetRun(ctx, run.ID)
	if got.Status != entity.RunStatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}

	w := f.worker(&fakeRunner{state: finalState()})
	if err := w.runOnce(ctx); err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	got, _ = f.service.GetRun(ctx, run.ID)
	if got.Status != entity.RunStatusCompleted {
		t.Errorf("requeued run status = %s", got.Status)
	}
}

// statusAtTerminal records the stored status of a run at the moment its
// terminal event is published.
type statusAtTerminal struct {
	runs   repository.RunRepository
	mu     sync.Mutex
	status map[entity.EventType]entity.RunStatus
}

func (p *statusAtTerminal) Publish(e entity.Event) {
	if e.Type != entity.EventRunCompleted && e.Type != entity.EventRunFailed {
		return
	}
	run, err := p.runs.GetByID(context.Background(), e.RunID)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[e.Type] = run.Status
}

type failingResultRepo struct {
	*memory.RunRepo
}

func (failingResultRepo) SaveResult(context.Context, string, *entity.WorkflowState) error {
	return errors.New("disk full")
}

func TestRunWorker_TerminalEventAfterPersistence(t *testing.T) {
	tests := []struct {
		name       string
		runner     *fakeRunner
		failSave   bool
		wantEvent  entity.EventType
		wantStatus entity.RunStatus
	}{
		{"completed", &fakeRunner{state: finalState()}, false, entity.EventRunCompleted, entity.RunStatusCompleted},
		{"failed", &fakeRunner{err: errors.New("model down")}, false, entity.EventRunFailed, entity.RunStatusFailed},
		{"result not stored", &fakeRunner{state: finalState()}, true, entity.EventRunFailed, entity.RunStatusFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			run, err := f.service.CreateRun(ctx, validRequest())
			if err != nil {
				t.Fatalf("CreateRun: %v", err)
			}

			var runs repository.RunRepository = f.runs
			if tc.failSave {
				runs = failingResultRepo{f.runs}
			}
			pub := &statusAtTerminal{runs: f.runs, status: map[entity.EventType]entity.RunStatus{}}
			w := NewRunWorker(runs, f.reports, tc.runner, pub, time.Hour, time.Minute, testLogger())
			_ = w.runOnce(ctx)

			if len(pub.status) != 1 {
				t.Fatalf("terminal events = %v, want exactly one", pub.status)
			}
			got, ok := pub.status[tc.wantEvent]
			if !ok {
				t.Fatalf("terminal events = %v, want %s", pub.status, tc.wantEvent)
			}
			if got != tc.wantStatus {
				t.Errorf("stored status at %s = %s, want %s", tc.wantEvent, got, tc.wantStatus)
			}
			stored, _ := f.service.GetRun(ctx, run.ID)
			if stored.Status != tc.wantStatus {
				t.Errorf("final status = %s", stored.Status)
			}
		})
	}
}

func TestRunWorker_StartNotifyStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := f.worker(&fakeRunner{state: finalState()})
	f.service.notifier = w
	w.Start(ctx)
	defer w.Stop()

	run, err := f.service.CreateRun(ctx, validRequest())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := f.service.GetRun(ctx, run.ID)
		if got.IsFinished() {
			if got.Status != entity.RunStatusCompleted {
				t.Fatalf("status = %s", got.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run was not processed after Notify")
}

func TestRunService_DeleteRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, _ := f.service.CreateRun(ctx, validRequest())

	if err := f.runs.UpdateStatus(ctx, run.ID, entity.RunStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := f.service.DeleteRun(ctx, run.ID); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}

	if err := f.runs.SaveResult(ctx, run.ID, finalState()); err != nil {
		t.Fatal(err)
	}
	if err := f.reports.SaveReport(ctx, run.ID, finalState().FinalSummary); err != nil {
		t.Fatal(err)
	}
	if err := f.service.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := f.service.GetRun(ctx, run.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if ids, _ := f.reports.ListReports(ctx); len(ids) != 0 {
		t.Errorf("reports left: %v", ids)
	}
}
