package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

var ErrRunInProgress = errors.New("run is in progress")

type RunUsecase interface {
	CreateRun(ctx context.Context, req entity.ProjectRequest) (*entity.Run, error)
	GetRun(ctx context.Context, id string) (*entity.Run, error)
	// ListRuns returns every run when status is empty.
	ListRuns(ctx context.Context, status entity.RunStatus) ([]*entity.Run, error)
	DeleteRun(ctx context.Context, id string) error
}

// Notifier is told when new work was queued.
type Notifier interface {
	Notify()
}

var _ RunUsecase = (*RunService)(nil)

type RunService struct {
	runsRepo    repository.RunRepository
	reportsRepo repository.ReportRepository
	notifier    Notifier
	logger      *slog.Logger
}

func NewRunService(
	rr repository.RunRepository,
	rep repository.ReportRepository,
	n Notifier,
	logger *slog.Logger,
) *RunService {
	return &RunService{
		runsRepo:    rr,
		reportsRepo: rep,
		notifier:    n,
		logger:      logger,
	}
}

func (u *RunService) CreateRun(ctx context.Context, req entity.ProjectRequest) (*entity.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	run := entity.NewRun(req)
	if err := u.runsRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	metrics.IncRunsCreated()
	u.logger.Info("run queued", "run_id", run.ID, "format", req.Format, "goal", req.Goal)

	if u.notifier != nil {
		u.notifier.Notify()
	}
	return run, nil
}

func (u *RunService) GetRun(ctx context.Context, id string) (*entity.Run, error) {
	run, err := u.runsRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (u *RunService) ListRuns(ctx context.Context, status entity.RunStatus) ([]*entity.Run, error) {
	var (
		runs []*entity.Run
		err  error
	)
	if status == "" {
		runs, err = u.runsRepo.List(ctx)
	} else {
		runs, err = u.runsRepo.ListByStatus(ctx, status)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its report. Runs still being processed are refused.
func (u *RunService) DeleteRun(ctx context.Context, id string) error {
	run, err := u.runsRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status == entity.RunStatusRunning {
		return fmt.Errorf("delete run %s: %w", id, ErrRunInProgress)
	}

	if err := u.reportsRepo.DeleteReport(ctx, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if err := u.runsRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	u.logger.Info("run deleted", "run_id", id)
	return nil
}
