package repository

import (
	"context"
	"errors"

	"copywriter/internal/domain/entity"
)

var ErrNotFound = errors.New("not found")

// RunRepository defines access to the store of copywriting runs.
type RunRepository interface {
	Create(ctx context.Context, run *entity.Run) error
	GetByID(ctx context.Context, id string) (*entity.Run, error)
	List(ctx context.Context) ([]*entity.Run, error)
	ListByStatus(ctx context.Context, status entity.RunStatus) ([]*entity.Run, error)
	UpdateStatus(ctx context.Context, id string, status entity.RunStatus) error
	// SaveResult stores the terminal state and marks the run completed.
	SaveResult(ctx context.Context, id string, state *entity.WorkflowState) error
	// MarkFailed stores the failure message and, when present, the last state reached.
	MarkFailed(ctx context.Context, id string, reason string, state *entity.WorkflowState) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status entity.RunStatus) (int, error)
}
