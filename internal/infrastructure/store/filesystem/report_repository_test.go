package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
)

func sampleSummary() *entity.Summary {
	return &entity.Summary{
		SelectedFormulas: []string{"AIDA", "4Ps"},
		Drafts:           map[string]string{"AIDA": "## Hook\n\n**Buy now**", "4Ps": "plain"},
		Scores: map[string]entity.Score{
			"AIDA": {Average: 8.4, Criteria: map[string]float64{"clarity": 9}},
			"4Ps":  {Average: 7.2, Criteria: map[string]float64{"clarity": 7}},
		},
		Feedback:               map[string]string{"AIDA": "good", "4Ps": "ok"},
		BestPerforming:         "AIDA",
		ImprovementSuggestions: map[string][]string{"AIDA": {}, "4Ps": {"Improve clarity: Current score 7.0"}},
		RevisionCount:          2,
	}
}

func TestReportRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo, err := NewReportRepository(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("NewReportRepository: %v", err)
	}

	want := sampleSummary()
	if err := repo.SaveReport(ctx, "run-1", want); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := repo.GetReport(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetReport = %+v, want %+v", got, want)
	}

	draft, err := repo.GetDraft(ctx, "run-1", "AIDA")
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if draft != want.Drafts["AIDA"] {
		t.Errorf("draft = %q", draft)
	}

	html, err := os.ReadFile(filepath.Join(repo.BasePath(), "run-1", "drafts", "AIDA.html"))
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(html), "<strong>Buy now</strong>") {
		t.Errorf("html = %s", html)
	}

	ids, err := repo.ListReports(ctx)
	if err != nil || !reflect.DeepEqual(ids, []string{"run-1"}) {
		t.Errorf("ListReports = %v, %v", ids, err)
	}

	if err := repo.DeleteReport(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if _, err := repo.GetReport(ctx, "run-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestReportRepository_NotFoundAndInvalidNames(t *testing.T) {
	ctx := context.Background()
	repo, err := NewReportRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewReportRepository: %v", err)
	}

	if _, err := repo.GetDraft(ctx, "missing", "AIDA"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetDraft err = %v, want ErrNotFound", err)
	}
	for _, bad := range []string{"", "..", "../etc", `a\b`} {
		if _, err := repo.GetReport(ctx, bad); err == nil || errors.Is(err, repository.ErrNotFound) {
			t.Errorf("GetReport(%q) err = %v, want invalid name", bad, err)
		}
	}
	if err := repo.SaveReport(ctx, "run-2", nil); err == nil {
		t.Error("expected error for nil summary")
	}
}

func TestNewReportRepository_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReportRepository(path); err == nil {
		t.Error("expected error for a file path")
	}
}
