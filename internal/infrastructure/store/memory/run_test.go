package memory

import (
	"context"
	"errors"
	"testing"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
)

func TestRunRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo()

	run := entity.NewRun(entity.ProjectRequest{ContentIdea: "idea"})
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, run); err == nil {
		t.Error("duplicate create should fail")
	}

	pending, _ := repo.ListByStatus(ctx, entity.RunStatusPending)
	if len(pending) != 1 || pending[0].ID != run.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if err := repo.UpdateStatus(ctx, run.ID, entity.RunStatusRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	state := entity.NewWorkflowState(run.Request)
	state.Drafts["AIDA"] = "draft"
	if err := repo.SaveResult(ctx, run.ID, &state); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	state.Drafts["AIDA"] = "mutated after save"

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != entity.RunStatusCompleted || got.CompletedAt == nil || !got.IsFinished() {
		t.Errorf("run = %+v", got)
	}
	if got.State.Drafts["AIDA"] != "draft" {
		t.Error("stored state aliases the caller's state")
	}

	if n, _ := repo.CountByStatus(ctx, entity.RunStatusCompleted); n != 1 {
		t.Errorf("completed count = %d", n)
	}

	if err := repo.Delete(ctx, run.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, run.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunRepo_MarkFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo()
	run := entity.NewRun(entity.ProjectRequest{})
	if err := repo.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.MarkFailed(ctx, run.ID, "timeout", nil); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ := repo.GetByID(ctx, run.ID)
	if got.Status != entity.RunStatusFailed || got.Error != "timeout" || got.State != nil {
		t.Errorf("run = %+v", got)
	}
	if err := repo.MarkFailed(ctx, "missing", "x", nil); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
