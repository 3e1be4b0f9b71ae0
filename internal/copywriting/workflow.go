package copywriting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
)

// Node names of the copywriting graph.
const (
	NodeSelect  = "select_formulas"
	NodeDraft   = "generate_drafts"
	NodeScore   = "score_drafts"
	NodeSummary = "create_summary"
)

// DefaultInvokeTimeout bounds a single model call when no option overrides it.
const DefaultInvokeTimeout = 60 * time.Second

// maxSteps is one selection, MaxRevisions draft/score pairs and the summary.
const maxSteps = 2 + 2*MaxRevisions

type Option func(*Workflow)

// WithObserver sets the observer used by Run.
func WithObserver(obs Observer) Option {
	return func(w *Workflow) { w.observer = obs }
}

// WithInvokeTimeout sets the per-call deadline; zero disables it.
func WithInvokeTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

// WithRevisionFeedback controls whether redrafts see the previous scores and feedback.
func WithRevisionFeedback(enabled bool) Option {
	return func(w *Workflow) { w.revisionFeedback = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Workflow runs the select, draft, score, revise and summarize loop for one brief
// at a time. A Workflow holds no per-run state and may be shared.
type Workflow struct {
	catalog          *entity.Catalog
	llm              repository.LLMClient
	observer         Observer
	timeout          time.Duration
	revisionFeedback bool
	logger           *slog.Logger
	graph            *CompiledGraph
}

func New(llm repository.LLMClient, catalog *entity.Catalog, opts ...Option) (*Workflow, error) {
	if llm == nil {
		return nil, errors.New("copywriting workflow: nil llm client")
	}
	if catalog == nil {
		return nil, errors.New("copywriting workflow: nil catalog")
	}
	for _, id := range DefaultFormulas {
		if _, ok := catalog.Formula(id); !ok {
			return nil, fmt.Errorf("copywriting workflow: fallback formula %s not in catalog", id)
		}
	}

	w := &Workflow{
		catalog:          catalog,
		llm:              llm,
		timeout:          DefaultInvokeTimeout,
		revisionFeedback: true,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	iv := &invoker{llm: llm, timeout: w.timeout, logger: w.logger}
	selector := &Selector{catalog: catalog, invoker: iv, logger: w.logger}
	drafter := &Drafter{catalog: catalog, invoker: iv, logger: w.logger, revisionFeedback: w.revisionFeedback}
	scorer := &Scorer{catalog: catalog, invoker: iv, logger: w.logger}
	summary := NewSummaryBuilder(catalog)

	g := NewGraph()
	g.AddNode(NodeSelect, selector.Select)
	g.AddNode(NodeDraft, drafter.Draft)
	g.AddNode(NodeScore, scorer.Score)
	g.AddNode(NodeSummary, summary.Summarize)
	g.SetEntry(NodeSelect)
	g.AddEdge(NodeSelect, NodeDraft)
	g.AddEdge(NodeDraft, NodeScore)
	g.AddConditionalEdge(NodeScore, nextAfterScoring, NodeDraft, NodeSummary)
	g.AddEdge(NodeSummary, End)

	compiled, err := g.Compile(maxSteps, w.logger)
	if err != nil {
		return nil, err
	}
	w.graph = compiled
	return w, nil
}

func nextAfterScoring(st entity.WorkflowState) string {
	if ShouldRevise(st.RevisionCount, st.Scores) {
		return NodeDraft
	}
	return NodeSummary
}

func (w *Workflow) Catalog() *entity.Catalog { return w.catalog }

// Run executes the workflow with the observer configured at construction.
func (w *Workflow) Run(ctx context.Context, req entity.ProjectRequest) (*entity.WorkflowState, error) {
	return w.RunObserved(ctx, req, w.observer)
}

// RunObserved executes the workflow and reports progress to obs. It returns either
// a terminal state with FinalSummary set or an error, never both.
func (w *Workflow) RunObserved(ctx context.Context, req entity.ProjectRequest, obs Observer) (*entity.WorkflowState, error) {
	ctx = withObserver(ctx, obs)
	emit(ctx, entity.Event{Type: entity.EventRunStarted})
	if err := req.Validate(); err != nil {
		emit(ctx, entity.Event{Type: entity.EventRunFailed, Error: err.Error()})
		return nil, err
	}
	start := time.Now()

	final, err := w.graph.Run(ctx, entity.NewWorkflowState(req))
	if err == nil && final.FinalSummary == nil {
		err = errors.New("workflow ended without a summary")
	}
	if err != nil {
		emit(ctx, entity.Event{Type: entity.EventRunFailed, Error: err.Error()})
		w.logger.Error("copywriting run failed", "duration", time.Since(start), "err", err)
		return nil, fmt.Errorf("copywriting workflow: %w", err)
	}

	metrics.ObserveDraftingPasses(final.RevisionCount)
	emit(ctx, entity.Event{Type: entity.EventRunCompleted, Pass: final.RevisionCount})
	w.logger.Info("copywriting run completed",
		"formulas", final.SelectedFormulas,
		"passes", final.RevisionCount,
		"best", final.FinalSummary.BestPerforming,
		"degraded", final.Degraded(),
		"duration", time.Since(start))
	return &final, nil
}
