package repository

import (
	"context"

	"copywriter/internal/domain/entity"
)

// ReportRepository keeps the human-readable artifacts of finished runs.
type ReportRepository interface {
	SaveReport(ctx context.Context, runID string, summary *entity.Summary) error
	GetReport(ctx context.Context, runID string) (*entity.Summary, error)
	GetDraft(ctx context.Context, runID, formula string) (string, error)
	ListReports(ctx context.Context) ([]string, error)
	DeleteReport(ctx context.Context, runID string) error
}
