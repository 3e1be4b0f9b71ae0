package copywriting

import (
	"context"
	"testing"

	"copywriter/internal/domain/entity"
)

func TestReloadable(t *testing.T) {
	cat := testCatalog(t)
	llm := scripted(selectAIDAPAS, func(int) float64 { return 9 })

	r, err := NewReloadable(llm, cat, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewReloadable: %v", err)
	}
	first := r.Workflow()

	withoutAIDA := &entity.Catalog{Criteria: cat.Criteria}
	for _, f := range cat.Formulas {
		if f.ID != "AIDA" {
			withoutAIDA.Formulas = append(withoutAIDA.Formulas, f)
		}
	}
	if err := r.Reload(withoutAIDA); err == nil {
		t.Fatal("reload without a fallback formula should fail")
	}
	if r.Workflow() != first {
		t.Error("failed reload replaced the workflow")
	}

	extended := &entity.Catalog{Criteria: cat.Criteria}
	extended.Formulas = append(append(extended.Formulas, cat.Formulas...), entity.Formula{ID: "HERO", Name: "Hero", Guidance: "Journey."})
	if err := r.Reload(extended); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if r.Workflow() == first {
		t.Error("workflow was not swapped")
	}
	if _, ok := r.Catalog().Formula("HERO"); !ok {
		t.Error("catalog does not reflect the reload")
	}

	final, err := r.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.FinalSummary == nil || final.FinalSummary.BestPerforming == "" {
		t.Errorf("summary = %+v", final.FinalSummary)
	}
}
