package copywriting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

// End is the pseudo node that terminates a graph.
const End = "__end__"

// NodeFunc is one step of a graph. It gets a private copy of the state and
// returns the changes to merge.
type NodeFunc func(ctx context.Context, st entity.WorkflowState) (entity.Patch, error)

// RouteFunc picks the next node after a conditional edge.
type RouteFunc func(st entity.WorkflowState) string

type route struct {
	fn      RouteFunc
	targets map[string]bool
}

// Graph is a builder for a directed state graph. Errors made while building are
// collected and reported by Compile.
type Graph struct {
	nodes  map[string]NodeFunc
	order  []string
	edges  map[string]string
	routes map[string]route
	entry  string
	errs   []error
}

func NewGraph() *Graph {
	return &Graph{
		nodes:  map[string]NodeFunc{},
		edges:  map[string]string{},
		routes: map[string]route{},
	}
}

func (g *Graph) AddNode(name string, fn NodeFunc) {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %s has no function", name))
	case g.nodes[name] != nil:
		g.errs = append(g.errs, fmt.Errorf("node %s added twice", name))
	default:
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
}

func (g *Graph) AddEdge(from, to string) {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing edge", from))
		return
	}
	g.edges[from] = to
}

// AddConditionalEdge routes from a node to whichever of targets fn returns.
func (g *Graph) AddConditionalEdge(from string, fn RouteFunc, targets ...string) {
	if g.hasOutgoing(from) {
		g.errs = append(g.errs, fmt.Errorf("node %s already has an outgoing edge", from))
		return
	}
	if fn == nil || len(targets) == 0 {
		g.errs = append(g.errs, fmt.Errorf("conditional edge from %s needs a router and targets", from))
		return
	}
	set := make(map[string]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	g.routes[from] = route{fn: fn, targets: set}
}

func (g *Graph) SetEntry(name string) { g.entry = name }

func (g *Graph) hasOutgoing(name string) bool {
	_, edge := g.edges[name]
	_, cond := g.routes[name]
	return edge || cond
}

func (g *Graph) known(name string) bool {
	return name == End || g.nodes[name] != nil
}

// Compile checks the graph and freezes it. maxSteps bounds the number of node
// executions per run.
func (g *Graph) Compile(maxSteps int, logger *slog.Logger) (*CompiledGraph, error) {
	errs := append([]error(nil), g.errs...)
	if !g.known(g.entry) || g.entry == End {
		errs = append(errs, fmt.Errorf("entry node %q is not defined", g.entry))
	}
	for _, name := range g.order {
		if !g.hasOutgoing(name) {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", name))
		}
	}
	for from, to := range g.edges {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("edge from unknown node %s", from))
		}
		if !g.known(to) {
			errs = append(errs, fmt.Errorf("edge %s -> %s targets unknown node", from, to))
		}
	}
	for from, r := range g.routes {
		if g.nodes[from] == nil {
			errs = append(errs, fmt.Errorf("conditional edge from unknown node %s", from))
		}
		for to := range r.targets {
			if !g.known(to) {
				errs = append(errs, fmt.Errorf("conditional edge %s -> %s targets unknown node", from, to))
			}
		}
	}
	if maxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max steps must be positive, got %d", maxSteps))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile graph: %w", errors.Join(errs...))
	}
	if logger == nil {
		logger = slog.Default()
	}

	cg := &CompiledGraph{
		nodes:    make(map[string]NodeFunc, len(g.nodes)),
		edges:    make(map[string]string, len(g.edges)),
		routes:   make(map[string]route, len(g.routes)),
		entry:    g.entry,
		maxSteps: maxSteps,
		logger:   logger,
	}
	for k, v := range g.nodes {
		cg.nodes[k] = v
	}
	for k, v := range g.edges {
		cg.edges[k] = v
	}
	for k, v := range g.routes {
		cg.routes[k] = v
	}
	return cg, nil
}

// CompiledGraph executes nodes one at a time, merging each patch before the next
// node starts.
type CompiledGraph struct {
	nodes    map[string]NodeFunc
	edges    map[string]string
	routes   map[string]route
	entry    string
	maxSteps int
	logger   *slog.Logger
}

// Run drives st from the entry node to End. On failure it returns the last state
// reached together with a *StepError.
func (g *CompiledGraph) Run(ctx context.Context, st entity.WorkflowState) (entity.WorkflowState, error) {
	node := g.entry
	for step := 1; node != End; step++ {
		fail := func(err error) (entity.WorkflowState, error) {
			last := st.Clone()
			return st, &StepError{Node: node, Step: step, Err: err, State: &last}
		}
		if step > g.maxSteps {
			return fail(ErrStepLimit)
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		emit(ctx, entity.Event{Type: entity.EventNodeStarted, Node: node, Pass: st.RevisionCount})
		start := time.Now()
		patch, err := g.nodes[node](ctx, st.Clone())
		if err != nil {
			metrics.IncNodeRun(node, "error")
			g.logger.Error("workflow node failed", "node", node, "step", step, "duration", time.Since(start), "err", err)
			return fail(err)
		}
		st.Apply(patch)
		metrics.IncNodeRun(node, "ok")
		emit(ctx, entity.Event{Type: entity.EventNodeCompleted, Node: node, Pass: st.RevisionCount})
		g.logger.Debug("workflow node done", "node", node, "step", step, "duration", time.Since(start))

		next, err := g.next(node, st)
		if err != nil {
			return fail(err)
		}
		node = next
	}
	return st, nil
}

func (g *CompiledGraph) next(node string, st entity.WorkflowState) (string, error) {
	if to, ok := g.edges[node]; ok {
		return to, nil
	}
	r := g.routes[node]
	to := r.fn(st.Clone())
	if !r.targets[to] {
		return "", fmt.Errorf("router of %s returned undeclared target %q", node, to)
	}
	return to, nil
}
