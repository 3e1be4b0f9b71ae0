package usecase

import (
	"context"
	"fmt"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/render"
)

type ReportUsecase interface {
	GetReport(ctx context.Context, runID string) (*entity.Summary, error)
	GetDraftMarkdown(ctx context.Context, runID, formula string) (string, error)
	GetDraftHTML(ctx context.Context, runID, formula string) (string, error)
	ListReports(ctx context.Context) ([]string, error)
}

var _ ReportUsecase = (*ReportService)(nil)

type ReportService struct {
	repo repository.ReportRepository
}

func NewReportService(repo repository.ReportRepository) *ReportService {
	return &ReportService{repo: repo}
}

func (s *ReportService) GetReport(ctx context.Context, runID string) (*entity.Summary, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID is required")
	}
	sum, err := s.repo.GetReport(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get report for run %s: %w", runID, err)
	}
	return sum, nil
}

func (s *ReportService) GetDraftMarkdown(ctx context.Context, runID, formula string) (string, error) {
	if runID == "" || formula == "" {
		return "", fmt.Errorf("runID and formula are required")
	}
	draft, err := s.repo.GetDraft(ctx, runID, formula)
	if err != nil {
		return "", fmt.Errorf("get %s draft for run %s: %w", formula, runID, err)
	}
	return draft, nil
}

// GetDraftHTML renders the stored Markdown as a standalone HTML page.
func (s *ReportService) GetDraftHTML(ctx context.Context, runID, formula string) (string, error) {
	draft, err := s.GetDraftMarkdown(ctx, runID, formula)
	if err != nil {
		return "", err
	}
	fragment, err := render.HTML(draft)
	if err != nil {
		return "", err
	}
	return render.Page(fmt.Sprintf("%s draft", formula), fragment), nil
}

func (s *ReportService) ListReports(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return ids, nil
}
