package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"copywriter/internal/domain/entity"
)

// MockLLM answers every stage with canned but well-formed text. It never calls
// out and is meant for local runs and demos.
type MockLLM struct{}

func NewMockLLM() MockLLM { return MockLLM{} }

var specializingRe = regexp.MustCompile(`specializing in the (\S+) formula`)

func (m MockLLM) Complete(_ context.Context, prompt entity.Prompt) (string, error) {
	switch prompt.Kind {
	case entity.PromptKindSelect:
		return `{"selected_formulas": ["AIDA", "PAS"], "reasoning": {"AIDA": "Walks the reader from attention to a clear action.", "PAS": "Leads with the audience's pain before offering relief."}}`, nil
	case entity.PromptKindDraft:
		formula := "the formula"
		if match := specializingRe.FindStringSubmatch(prompt.User); match != nil {
			formula = match[1]
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("## %s draft\n\n", formula))
		sb.WriteString("**Stop scrolling.** Your idea deserves an audience that acts.\n\n")
		sb.WriteString("- Built for the people in your brief\n")
		sb.WriteString("- Written to the format you asked for\n\n")
		sb.WriteString("Ready to see it work? **Start today.**\n")
		return sb.String(), nil
	case entity.PromptKindReformat:
		if strings.Contains(prompt.User, "selected_formulas") {
			return `{"selected_formulas": ["AIDA", "PAS"], "reasoning": {}}`, nil
		}
		return mockScores, nil
	default:
		return mockScores, nil
	}
}

// Stream delivers the canned answer word by word.
func (m MockLLM) Stream(ctx context.Context, prompt entity.Prompt, onToken func(string)) (string, error) {
	text, err := m.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	for _, tok := range strings.SplitAfter(text, " ") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		onToken(tok)
	}
	return text, nil
}

const mockScores = `{"criteria": {"clarity": 8.5, "storytelling": 8, "creativity": 8, "authenticity": 8.5, "impact": 9}, "average": 8.4, "feedback": "Clear and punchy. The story could use one concrete customer detail."}`
