package copywriting

import (
	"context"
	"log/slog"

	"copywriter/internal/domain/entity"
)

// Selector asks the model which formulas fit the brief.
type Selector struct {
	catalog *entity.Catalog
	invoker *invoker
	logger  *slog.Logger
}

// Select is the first node of every run; it also resets the revision counter.
// Only a failed model call is returned as an error; unusable answers fall back to
// DefaultFormulas.
func (s *Selector) Select(ctx context.Context, st entity.WorkflowState) (entity.Patch, error) {
	raw, err := s.invoker.call(ctx, callSite{Node: NodeSelect}, selectionPrompt(st.Request, s.catalog))
	if err != nil {
		return entity.Patch{}, err
	}

	parser := NewParser(s.catalog, s.invoker.requery(NodeSelect, ""), s.logger)
	res := parser.ParseSelection(ctx, raw)

	patch := entity.Patch{
		SelectedFormulas: res.Formulas,
		FormulaReasoning: res.Reasoning,
		RevisionCount:    entity.IntPtr(0),
	}
	if res.Degraded() {
		patch.Degradations = []entity.Degradation{{
			Stage:   NodeSelect,
			Outcome: string(res.Outcome),
			Fields:  []string{"selected_formulas", "formula_reasoning"},
		}}
	}
	s.logger.Info("formulas selected", "formulas", res.Formulas, "outcome", res.Outcome)
	return patch, nil
}
