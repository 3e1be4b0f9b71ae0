package copywriting

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"copywriter/internal/domain/entity"
)

// SummaryBuilder produces the terminal report of a run.
type SummaryBuilder struct {
	criteriaOrder []string
}

func NewSummaryBuilder(cat *entity.Catalog) *SummaryBuilder {
	order := make([]string, 0, len(cat.Criteria))
	for _, c := range cat.Criteria {
		order = append(order, c.ID)
	}
	return &SummaryBuilder{criteriaOrder: order}
}

func (b *SummaryBuilder) Summarize(_ context.Context, st entity.WorkflowState) (entity.Patch, error) {
	sum := b.Build(st)
	return entity.Patch{FinalSummary: &sum}, nil
}

func (b *SummaryBuilder) Build(st entity.WorkflowState) entity.Summary {
	return BuildSummary(st, b.criteriaOrder)
}

// BuildSummary assembles the summary from a copy of st; it does no I/O.
// criteriaOrder fixes the order of improvement suggestions.
func BuildSummary(st entity.WorkflowState, criteriaOrder []string) entity.Summary {
	st = st.Clone()
	return entity.Summary{
		SelectedFormulas:       st.SelectedFormulas,
		FormulaReasoning:       st.FormulaReasoning,
		Drafts:                 st.Drafts,
		Scores:                 st.Scores,
		Feedback:               st.Feedback,
		BestPerforming:         BestPerforming(st.Scores, st.SelectedFormulas),
		ImprovementSuggestions: ImprovementSuggestions(st.Scores, criteriaOrder),
		RevisionCount:          st.RevisionCount,
		Degraded:               st.Degraded(),
		Fallbacks:              st.Degradations,
	}
}

// BestPerforming returns the formula with the highest average. Ties go to the
// formula met first, walking order and then any remaining keys sorted.
func BestPerforming(scores map[string]entity.Score, order []string) string {
	best, bestAvg := "", 0.0
	for _, id := range orderedKeys(scores, order) {
		avg := scores[id].Average
		if best == "" || avg > bestAvg {
			best, bestAvg = id, avg
		}
	}
	return best
}

// ImprovementSuggestions lists, per formula, every criterion below ScoreThreshold.
func ImprovementSuggestions(scores map[string]entity.Score, criteriaOrder []string) map[string][]string {
	out := make(map[string][]string, len(scores))
	for formula, s := range scores {
		suggestions := []string{}
		for _, criterion := range orderedKeys(s.Criteria, criteriaOrder) {
			if v := s.Criteria[criterion]; v < ScoreThreshold {
				suggestions = append(suggestions, fmt.Sprintf("Improve %s: Current score %s", criterion, formatScore(v)))
			}
		}
		out[formula] = suggestions
	}
	return out
}

// orderedKeys returns the keys of m that appear in order first, then the rest sorted.
func orderedKeys[V any](m map[string]V, order []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func formatScore(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
