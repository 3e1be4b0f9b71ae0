package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

// RunRepo keeps runs in process memory. It is used when no MongoDB URI is
// configured; everything is lost on restart.
type RunRepo struct {
	mu   sync.RWMutex
	runs map[string]*entity.Run
}

func NewRunRepo() *RunRepo {
	return &RunRepo{runs: map[string]*entity.Run{}}
}

func (r *RunRepo) Create(_ context.Context, run *entity.Run) error {
	metrics.IncStoreOp("memory", "create")
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.runs[run.ID]; dup {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	r.runs[run.ID] = copyRun(run)
	return nil
}

func (r *RunRepo) GetByID(_ context.Context, id string) (*entity.Run, error) {
	metrics.IncStoreOp("memory", "get")
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	return copyRun(run), nil
}

func (r *RunRepo) List(_ context.Context) ([]*entity.Run, error) {
	metrics.IncStoreOp("memory", "list")
	return r.filter(func(*entity.Run) bool { return true }), nil
}

func (r *RunRepo) ListByStatus(_ context.Context, status entity.RunStatus) ([]*entity.Run, error) {
	metrics.IncStoreOp("memory", "list")
	return r.filter(func(run *entity.Run) bool { return run.Status == status }), nil
}

func (r *RunRepo) filter(keep func(*entity.Run) bool) []*entity.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Run
	for _, run := range r.runs {
		if keep(run) {
			out = append(out, copyRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *RunRepo) UpdateStatus(_ context.Context, id string, status entity.RunStatus) error {
	metrics.IncStoreOp("memory", "put")
	return r.update(id, func(run *entity.Run) { run.UpdateStatus(status) })
}

func (r *RunRepo) SaveResult(_ context.Context, id string, state *entity.WorkflowState) error {
	metrics.IncStoreOp("memory", "put")
	return r.update(id, func(run *entity.Run) {
		run.UpdateStatus(entity.RunStatusCompleted)
		run.State = copyState(state)
		run.Error = ""
		now := run.UpdatedAt
		run.CompletedAt = &now
	})
}

func (r *RunRepo) MarkFailed(_ context.Context, id, reason string, state *entity.WorkflowState) error {
	metrics.IncStoreOp("memory", "put")
	return r.update(id, func(run *entity.Run) {
		run.UpdateStatus(entity.RunStatusFailed)
		run.Error = reason
		if state != nil {
			run.State = copyState(state)
		}
		now := run.UpdatedAt
		run.CompletedAt = &now
	})
}

func (r *RunRepo) update(id string, fn func(*entity.Run)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	fn(run)
	return nil
}

func (r *RunRepo) Delete(_ context.Context, id string) error {
	metrics.IncStoreOp("memory", "delete")
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	delete(r.runs, id)
	return nil
}

func (r *RunRepo) CountByStatus(_ context.Context, status entity.RunStatus) (int, error) {
	metrics.IncStoreOp("memory", "count")
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, run := range r.runs {
		if run.Status == status {
			n++
		}
	}
	return n, nil
}

func copyRun(run *entity.Run) *entity.Run {
	c := *run
	c.State = copyState(run.State)
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyState(st *entity.WorkflowState) *entity.WorkflowState {
	if st == nil {
		return nil
	}
	c := st.Clone()
	return &c
}
