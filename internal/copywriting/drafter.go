package copywriting

import (
	"context"
	"log/slog"

	"copywriter/internal/domain/entity"
)

// Drafter writes one draft per selected formula. Every pass regenerates all of
// them, including formulas that already scored well.
type Drafter struct {
	catalog          *entity.Catalog
	invoker          *invoker
	logger           *slog.Logger
	revisionFeedback bool
}

func (d *Drafter) Draft(ctx context.Context, st entity.WorkflowState) (entity.Patch, error) {
	pass := st.RevisionCount + 1
	drafts := make(map[string]string, len(st.SelectedFormulas))

	for _, id := range st.SelectedFormulas {
		f, ok := d.catalog.Formula(id)
		if !ok {
			f = entity.Formula{ID: id, Name: id}
		}

		var prev *revisionNote
		if d.revisionFeedback && st.RevisionCount > 0 {
			if score, scored := st.Scores[id]; scored {
				prev = &revisionNote{Pass: st.RevisionCount, Score: score, Feedback: st.Feedback[id]}
			}
		}

		text, err := d.invoker.call(ctx, callSite{Node: NodeDraft, Formula: id, Pass: pass},
			draftPrompt(st.Request, f, d.catalog.Criteria, prev))
		if err != nil {
			return entity.Patch{}, err
		}
		drafts[id] = text
	}

	d.logger.Info("drafting pass done", "pass", pass, "drafts", len(drafts))
	return entity.Patch{
		Drafts:        drafts,
		RevisionCount: entity.IntPtr(pass),
	}, nil
}
