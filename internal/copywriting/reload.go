package copywriting

import (
	"context"
	"sync/atomic"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
)

// Reloadable serves runs from the most recently built Workflow. Swapping the
// catalog affects runs started afterwards; runs in flight finish on the old one.
type Reloadable struct {
	llm     repository.LLMClient
	opts    []Option
	current atomic.Pointer[Workflow]
}

func NewReloadable(llm repository.LLMClient, catalog *entity.Catalog, opts ...Option) (*Reloadable, error) {
	w, err := New(llm, catalog, opts...)
	if err != nil {
		return nil, err
	}
	r := &Reloadable{llm: llm, opts: opts}
	r.current.Store(w)
	return r, nil
}

// Reload rebuilds the workflow around catalog. On error the current one is kept.
func (r *Reloadable) Reload(catalog *entity.Catalog) error {
	w, err := New(r.llm, catalog, r.opts...)
	if err != nil {
		return err
	}
	r.current.Store(w)
	return nil
}

func (r *Reloadable) Workflow() *Workflow { return r.current.Load() }

func (r *Reloadable) Catalog() *entity.Catalog { return r.current.Load().Catalog() }

func (r *Reloadable) Run(ctx context.Context, req entity.ProjectRequest) (*entity.WorkflowState, error) {
	return r.current.Load().Run(ctx, req)
}

func (r *Reloadable) RunObserved(ctx context.Context, req entity.ProjectRequest, obs Observer) (*entity.WorkflowState, error) {
	return r.current.Load().RunObserved(ctx, req, obs)
}
