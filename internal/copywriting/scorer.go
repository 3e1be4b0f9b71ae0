package copywriting

import (
	"context"
	"log/slog"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

// Scorer evaluates every current draft against the five criteria.
type Scorer struct {
	catalog *entity.Catalog
	invoker *invoker
	logger  *slog.Logger
}

func (s *Scorer) Score(ctx context.Context, st entity.WorkflowState) (entity.Patch, error) {
	scores := make(map[string]entity.Score, len(st.Drafts))
	feedback := make(map[string]string, len(st.Drafts))
	var degradations []entity.Degradation

	for _, id := range orderedKeys(st.Drafts, st.SelectedFormulas) {
		raw, err := s.invoker.call(ctx, callSite{Node: NodeScore, Formula: id, Pass: st.RevisionCount},
			scoringPrompt(st.Request, st.Drafts[id], s.catalog.Criteria))
		if err != nil {
			return entity.Patch{}, err
		}

		parser := NewParser(s.catalog, s.invoker.requery(NodeScore, id), s.logger)
		res := parser.ParseScores(ctx, raw)
		scores[id] = res.Score()
		feedback[id] = res.Feedback
		metrics.ObserveDraftScore(id, res.Average)

		if res.Degraded() {
			degradations = append(degradations, entity.Degradation{
				Stage:   NodeScore,
				Formula: id,
				Outcome: string(res.Outcome),
				Fields:  res.DefaultsUsed,
			})
		}
		s.logger.Info("draft scored", "formula", id, "pass", st.RevisionCount, "average", res.Average, "outcome", res.Outcome)
	}

	degradations = append(degradations, reconcile(st.Drafts, scores, feedback)...)

	return entity.Patch{
		Scores:       scores,
		Feedback:     feedback,
		Degradations: degradations,
	}, nil
}

// reconcile gives every drafted formula a score and feedback entry, filling gaps
// with the parser defaults. It mutates scores and feedback in place.
func reconcile(drafts map[string]string, scores map[string]entity.Score, feedback map[string]string) []entity.Degradation {
	var out []entity.Degradation
	for _, id := range orderedKeys(drafts, nil) {
		var fields []string
		if _, ok := scores[id]; !ok {
			scores[id] = defaultScores().Score()
			fields = append(fields, "criteria", "average")
		}
		if _, ok := feedback[id]; !ok {
			feedback[id] = DefaultFeedback
			fields = append(fields, "feedback")
		}
		if len(fields) > 0 {
			out = append(out, entity.Degradation{
				Stage:   "consistency",
				Formula: id,
				Outcome: string(OutcomeDefaulted),
				Fields:  fields,
			})
		}
	}
	return out
}
