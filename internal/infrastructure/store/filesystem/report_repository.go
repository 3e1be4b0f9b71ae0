package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
	"copywriter/internal/infrastructure/metrics"
	"copywriter/internal/infrastructure/render"
)

const (
	summaryFile = "summary.json"
	draftsDir   = "drafts"
)

// ReportRepository writes one directory per run:
//
//	<base>/<run_id>/summary.json
//	<base>/<run_id>/drafts/<formula>.md
//	<base>/<run_id>/drafts/<formula>.html
type ReportRepository struct {
	basePath string
}

func NewReportRepository(basePath string) (*ReportRepository, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check directory %s: %w", basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("path %s exists but is not a directory", basePath)
	}

	return &ReportRepository{basePath: basePath}, nil
}

func (r *ReportRepository) BasePath() string { return r.basePath }

type summaryDocument struct {
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Summary   *entity.Summary `json:"summary"`
}

func (r *ReportRepository) SaveReport(ctx context.Context, runID string, summary *entity.Summary) error {
	metrics.IncStoreOp("reports", "save")
	if summary == nil {
		return errors.New("nil summary")
	}
	runDir, err := r.runDir(runID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(runDir, draftsDir), 0o755); err != nil {
		metrics.IncError("report_repo", "mkdir")
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	for formula, draft := range summary.Drafts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.writeDraft(runDir, formula, draft); err != nil {
			metrics.IncError("report_repo", "write_draft")
			return err
		}
	}

	data, err := json.MarshalIndent(summaryDocument{RunID: runID, CreatedAt: time.Now().UTC(), Summary: summary}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, summaryFile), data, 0o644); err != nil {
		metrics.IncError("report_repo", "write_summary")
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func (r *ReportRepository) writeDraft(runDir, formula, draft string) error {
	name, err := cleanName(formula)
	if err != nil {
		return err
	}
	base := filepath.Join(runDir, draftsDir, name)
	if err := os.WriteFile(base+".md", []byte(draft), 0o644); err != nil {
		return fmt.Errorf("failed to write draft %s: %w", formula, err)
	}
	fragment, err := render.HTML(draft)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".html", []byte(render.Page(formula, fragment)), 0o644); err != nil {
		return fmt.Errorf("failed to write draft %s: %w", formula, err)
	}
	return nil
}

func (r *ReportRepository) GetReport(_ context.Context, runID string) (*entity.Summary, error) {
	metrics.IncStoreOp("reports", "get")
	runDir, err := r.runDir(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(runDir, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report %s: %w", runID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	var doc summaryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		metrics.IncError("report_repo", "decode_summary")
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return doc.Summary, nil
}

// GetDraft returns the Markdown source of one draft.
func (r *ReportRepository) GetDraft(_ context.Context, runID, formula string) (string, error) {
	metrics.IncStoreOp("reports", "get_draft")
	runDir, err := r.runDir(runID)
	if err != nil {
		return "", err
	}
	name, err := cleanName(formula)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(runDir, draftsDir, name+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("draft %s of %s: %w", formula, runID, repository.ErrNotFound)
		}
		return "", fmt.Errorf("failed to read draft: %w", err)
	}
	return string(data), nil
}

func (r *ReportRepository) ListReports(_ context.Context) ([]string, error) {
	metrics.IncStoreOp("reports", "list")
	var reports []string
	err := filepath.WalkDir(r.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == r.basePath {
			return nil
		}
		if _, err := os.Stat(filepath.Join(path, summaryFile)); err == nil {
			reports = append(reports, filepath.Base(path))
		}
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(reports)
	return reports, nil
}

func (r *ReportRepository) DeleteReport(_ context.Context, runID string) error {
	metrics.IncStoreOp("reports", "delete")
	runDir, err := r.runDir(runID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to delete report directory: %w", err)
	}
	return nil
}

func (r *ReportRepository) runDir(runID string) (string, error) {
	name, err := cleanName(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.basePath, name), nil
}

// cleanName rejects names that would escape their directory.
func cleanName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return name, nil
}
