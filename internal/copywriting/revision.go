package copywriting

import "copywriter/internal/domain/entity"

const (
	// MaxRevisions is the hard ceiling on drafting passes per run.
	MaxRevisions = 3
	// ScoreThreshold is the average every formula must reach to stop revising.
	ScoreThreshold = 8.0
)

// ShouldRevise decides whether another drafting pass is needed. The ceiling wins
// over the scores; otherwise one formula below threshold forces a full pass.
func ShouldRevise(revisionCount int, scores map[string]entity.Score) bool {
	if revisionCount >= MaxRevisions {
		return false
	}
	for _, s := range scores {
		if s.Average < ScoreThreshold {
			return true
		}
	}
	return false
}
