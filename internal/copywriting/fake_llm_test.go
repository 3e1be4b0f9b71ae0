package copywriting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/catalog"
)

// fakeLLM answers prompts through respond and records every call.
type fakeLLM struct {
	mu      sync.Mutex
	calls   []entity.Prompt
	respond func(ctx context.Context, p entity.Prompt) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, p entity.Prompt) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.mu.Unlock()
	return f.respond(ctx, p)
}

func (f *fakeLLM) count(kind entity.PromptKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.calls {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeLLM) prompts(kind entity.PromptKind) []entity.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Prompt
	for _, p := range f.calls {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// streamingLLM splits every answer into words and pushes them one by one.
type streamingLLM struct {
	fakeLLM
}

func (s *streamingLLM) Stream(ctx context.Context, p entity.Prompt, onToken func(string)) (string, error) {
	text, err := s.Complete(ctx, p)
	if err != nil {
		return "", err
	}
	for _, w := range strings.SplitAfter(text, " ") {
		onToken(w)
	}
	return text, nil
}

func scoreJSON(v float64) string {
	return fmt.Sprintf(`{"criteria": {"clarity": %[1]v, "storytelling": %[1]v, "creativity": %[1]v, "authenticity": %[1]v, "impact": %[1]v}, "average": %[1]v, "feedback": "feedback %[1]v"}`, v)
}

const selectAIDAPAS = `{"selected_formulas": ["AIDA", "PAS"], "reasoning": {"AIDA": "classic funnel", "PAS": "pain driven"}}`

// scripted answers selection with sel, drafts with a fixed text per formula and
// scores with the value returned by score for the n-th scoring call.
func scripted(sel string, score func(n int) float64) *fakeLLM {
	var mu sync.Mutex
	scored := 0
	return &fakeLLM{respond: func(_ context.Context, p entity.Prompt) (string, error) {
		switch p.Kind {
		case entity.PromptKindSelect:
			return sel, nil
		case entity.PromptKindDraft:
			for _, id := range []string{"AIDA", "PAS", "BAB", "4Ps"} {
				if strings.Contains(p.User, "specializing in the "+id+" formula") {
					return "Draft for " + id, nil
				}
			}
			return "Draft", nil
		case entity.PromptKindScore:
			mu.Lock()
			scored++
			n := scored
			mu.Unlock()
			return scoreJSON(score(n)), nil
		default:
			return "", fmt.Errorf("unexpected prompt kind %q", p.Kind)
		}
	}}
}

func testCatalog(t *testing.T) *entity.Catalog {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() entity.ProjectRequest {
	return entity.ProjectRequest{
		ContentIdea:    "A budgeting app that rounds up purchases into savings",
		TargetAudience: "Young professionals",
		Age:            "25-34",
		Format:         "LinkedIn Post",
		Goal:           "Conversion",
	}
}
