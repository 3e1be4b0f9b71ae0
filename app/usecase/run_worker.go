package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"copywriter/internal/copywriting"
	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

// CopywritingRunner executes one brief end to end.
type CopywritingRunner interface {
	RunObserved(ctx context.Context, req entity.ProjectRequest, obs copywriting.Observer) (*entity.WorkflowState, error)
}

// EventPublisher fans run events out to whoever is listening.
type EventPublisher interface {
	Publish(e entity.Event)
}

const persistTimeout = 10 * time.Second

// RunWorker polls for pending runs and executes them one at a time.
type RunWorker struct {
	runsRepo    repository.RunRepository
	reportsRepo repository.ReportRepository
	runner      CopywritingRunner
	events      EventPublisher

	logger *slog.Logger

	pollInterval time.Duration
	runTimeout   time.Duration

	// control
	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

func NewRunWorker(
	rr repository.RunRepository,
	rep repository.ReportRepository,
	runner CopywritingRunner,
	events EventPublisher,
	pollInterval, runTimeout time.Duration,
	logger *slog.Logger,
) *RunWorker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if runTimeout <= 0 {
		runTimeout = 15 * time.Minute
	}
	return &RunWorker{
		runsRepo:     rr,
		reportsRepo:  rep,
		runner:       runner,
		events:       events,
		logger:       logger,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Notify wakes the worker before the next tick. It never blocks.
func (w *RunWorker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *RunWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		w.logger.Info("RunWorker started", "interval", w.pollInterval, "run_timeout", w.runTimeout)

		if err := w.recoverInterrupted(ctx); err != nil {
			w.logger.Warn("recover interrupted runs failed", "err", err)
		}
		if err := w.runOnce(ctx); err != nil {
			w.logger.Warn("initial runOnce failed", "err", err)
		}

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("RunWorker context canceled")
				return
			case <-w.stop:
				w.logger.Info("RunWorker stopped by Stop()")
				return
			case <-ticker.C:
			case <-w.wake:
			}
			if err := w.runOnce(ctx); err != nil {
				w.logger.Warn("runOnce failed", "err", err)
			}
		}
	}()
}

func (w *RunWorker) Stop() {
	close(w.stop)
	<-w.stopped
	w.logger.Info("RunWorker fully stopped")
}

// recoverInterrupted puts runs left in running state by a previous process back
// in the queue.
func (w *RunWorker) recoverInterrupted(ctx context.Context) error {
	runs, err := w.runsRepo.ListByStatus(ctx, entity.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("list running runs: %w", err)
	}
	for _, run := range runs {
		if err := w.runsRepo.UpdateStatus(ctx, run.ID, entity.RunStatusPending); err != nil {
			w.logger.Warn("failed to requeue interrupted run", "run_id", run.ID, "err", err)
			continue
		}
		metrics.IncRunStatusChange(string(entity.RunStatusPending))
		w.logger.Warn("requeued interrupted run", "run_id", run.ID)
	}
	return nil
}

func (w *RunWorker) runOnce(ctx context.Context) error {
	runs, err := w.runsRepo.ListByStatus(ctx, entity.RunStatusPending)
	if err != nil {
		return fmt.Errorf("list pending runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	w.logger.Debug("found pending runs", "count", len(runs))

	for _, run := range runs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.runsRepo.UpdateStatus(ctx, run.ID, entity.RunStatusRunning); err != nil {
			w.logger.Warn("failed to set run running; skip", "run_id", run.ID, "err", err)
			continue
		}
		metrics.IncRunStatusChange(string(entity.RunStatusRunning))

		procCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
		func() {
			defer cancel()
			if err := w.processRun(procCtx, run); err != nil {
				w.logger.Error("processRun failed", "run_id", run.ID, "err", err)
			}
		}()
	}
	return nil
}

// processRun executes the workflow for one run and stores the outcome. The
// terminal event is published only after the outcome is persisted, so a client
// that sees the run still running is guaranteed to receive it.
func (w *RunWorker) processRun(ctx context.Context, run *entity.Run) error {
	start := time.Now()
	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	w.logger.Info("start processing run", "run_id", run.ID)

	var terminal *entity.Event
	obs := copywriting.ObserverFunc(func(e entity.Event) {
		if e.Type == entity.EventRunCompleted || e.Type == entity.EventRunFailed {
			held := e
			terminal = &held
			return
		}
		w.publish(run.ID, e)
	})
	state, runErr := w.runner.RunObserved(ctx, run.Request, obs)
	metrics.ObserveRunDuration(time.Since(start))

	// The run context may be expired by now; persistence gets its own deadline.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if runErr != nil {
		var last *entity.WorkflowState
		var stepErr *copywriting.StepError
		if errors.As(runErr, &stepErr) {
			last = stepErr.State
		}
		w.fail(pctx, run.ID, runErr, last, terminal)
		metrics.IncError("worker", "run_failed")
		return fmt.Errorf("copywriting run: %w", runErr)
	}

	if err := w.reportsRepo.SaveReport(pctx, run.ID, state.FinalSummary); err != nil {
		w.logger.Error("save report failed", "run_id", run.ID, "err", err)
		metrics.IncError("worker", "save_report")
	}
	if err := w.runsRepo.SaveResult(pctx, run.ID, state); err != nil {
		metrics.IncError("worker", "save_result")
		err = fmt.Errorf("save result: %w", err)
		w.fail(pctx, run.ID, err, state, nil)
		return err
	}
	metrics.IncRunStatusChange(string(entity.RunStatusCompleted))

	done := entity.Event{Type: entity.EventRunCompleted, Pass: state.RevisionCount}
	if terminal != nil && terminal.Type == entity.EventRunCompleted {
		done = *terminal
	}
	w.publish(run.ID, done)

	w.logger.Info("run processed",
		"run_id", run.ID,
		"best", state.FinalSummary.BestPerforming,
		"passes", state.RevisionCount,
		"degraded", state.Degraded(),
		"duration", time.Since(start))
	return nil
}

// fail stores the failure and then publishes the terminal event. held is the
// workflow's own run_failed event when it produced one.
func (w *RunWorker) fail(ctx context.Context, id string, cause error, last *entity.WorkflowState, held *entity.Event) {
	if err := w.runsRepo.MarkFailed(ctx, id, cause.Error(), last); err != nil {
		w.logger.Error("failed to mark run failed", "run_id", id, "err", err)
	}
	metrics.IncRunStatusChange(string(entity.RunStatusFailed))

	e := entity.Event{Type: entity.EventRunFailed, Error: cause.Error()}
	if held != nil && held.Type == entity.EventRunFailed {
		e = *held
	}
	w.publish(id, e)
}

func (w *RunWorker) publish(id string, e entity.Event) {
	if w.events == nil {
		return
	}
	e.RunID = id
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	w.events.Publish(e)
}
