package copywriting

import (
	"fmt"
	"strings"

	"copywriter/internal/domain/entity"
)

const systemCopywriter = "You are a senior marketing copywriter and editor."

const scoreSchema = `{
  "criteria": {
    "clarity": 7,
    "storytelling": 7,
    "creativity": 7,
    "authenticity": 7,
    "impact": 7
  },
  "average": 7,
  "feedback": "feedback text"
}`

// revisionNote carries the previous pass's evaluation into a redraft.
type revisionNote struct {
	Pass     int
	Score    entity.Score
	Feedback string
}

func writeBrief(sb *strings.Builder, req entity.ProjectRequest) {
	sb.WriteString(fmt.Sprintf("- Content idea: %s\n", req.ContentIdea))
	sb.WriteString(fmt.Sprintf("- Target audience: %s\n", req.TargetAudience))
	sb.WriteString(fmt.Sprintf("- Age range: %s\n", req.Age))
	sb.WriteString(fmt.Sprintf("- Content format: %s\n", req.Format))
	sb.WriteString(fmt.Sprintf("- Marketing goal: %s\n", req.Goal))
}

func writeCriteria(sb *strings.Builder, criteria []entity.Criterion, withChecklist bool) {
	for i, c := range criteria {
		sb.WriteString(fmt.Sprintf("%d. %s (%s, 0-10): %s\n", i+1, c.Title, c.ID, c.Focus))
		if withChecklist {
			for _, line := range strings.Split(c.Checklist, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					sb.WriteString("   " + line + "\n")
				}
			}
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func selectionPrompt(req entity.ProjectRequest, cat *entity.Catalog) entity.Prompt {
	var sb strings.Builder
	sb.WriteString("As a copywriting expert, analyze the following project requirements:\n")
	writeBrief(&sb, req)
	sb.WriteString("\nAvailable formulas:\n")
	for _, f := range cat.Formulas {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", f.ID, f.Name, firstLine(f.Guidance)))
	}
	sb.WriteString("\nDrafts will later be scored on: ")
	ids := make([]string, 0, len(cat.Criteria))
	for _, c := range cat.Criteria {
		ids = append(ids, c.ID)
	}
	sb.WriteString(strings.Join(ids, ", "))
	sb.WriteString(".\n\n")
	sb.WriteString(fmt.Sprintf("Select the 1-%d most suitable formulas. For each one explain how it aligns with the audience (%s), age (%s), format (%s) and goal (%s).\n",
		MaxSelectedFormulas, req.TargetAudience, req.Age, req.Format, req.Goal))
	sb.WriteString("Return ONLY a JSON object, using the formula identifiers exactly as listed:\n")
	sb.WriteString(`{"selected_formulas": ["AIDA", "PAS"], "reasoning": {"AIDA": "why", "PAS": "why"}}`)

	return entity.Prompt{
		Kind:   entity.PromptKindSelect,
		System: systemCopywriter,
		User:   sb.String(),
	}
}

func draftPrompt(req entity.ProjectRequest, f entity.Formula, criteria []entity.Criterion, prev *revisionNote) entity.Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a professional copywriter specializing in the %s formula.\n\n", f.ID))
	sb.WriteString(fmt.Sprintf("Framework guidance for %s:\n%s\n\n", f.ID, f.Guidance))
	sb.WriteString("Create compelling copy for the following project:\n")
	writeBrief(&sb, req)
	sb.WriteString("\nRequirements:\n")
	sb.WriteString(fmt.Sprintf("1. Strictly follow the %s framework structure.\n", f.ID))
	sb.WriteString("2. Keep a consistent tone aligned with the target audience.\n")
	sb.WriteString("3. Make the length appropriate for the content format.\n")
	sb.WriteString("4. Include a clear call-to-action aligned with the marketing goal.\n")
	sb.WriteString("5. The copy will be scored on the criteria below; aim for the highest score on each:\n")
	writeCriteria(&sb, criteria, true)

	if prev != nil {
		sb.WriteString(fmt.Sprintf("\nThe draft from pass %d scored %.1f on average.\n", prev.Pass, prev.Score.Average))
		for _, c := range criteria {
			if v, ok := prev.Score.Criteria[c.ID]; ok {
				sb.WriteString(fmt.Sprintf("- %s: %.1f\n", c.ID, v))
			}
		}
		if prev.Feedback != "" {
			sb.WriteString(fmt.Sprintf("Reviewer feedback: %s\n", prev.Feedback))
		}
		sb.WriteString("Write a new version that fixes the weakest criteria.\n")
	}

	sb.WriteString(fmt.Sprintf("\nWrite the copy, then briefly explain how each part maps to the %s framework.", f.ID))

	return entity.Prompt{
		Kind:   entity.PromptKindDraft,
		System: systemCopywriter,
		User:   sb.String(),
	}
}

func scoringPrompt(req entity.ProjectRequest, draft string, criteria []entity.Criterion) entity.Prompt {
	var sb strings.Builder
	sb.WriteString("Evaluate this copy and return ONLY a JSON object with scores and feedback.\n")
	sb.WriteString("The format must be exactly as shown, including all commas and no extra text:\n")
	sb.WriteString(scoreSchema)
	sb.WriteString("\n\nCriteria:\n")
	writeCriteria(&sb, criteria, true)
	sb.WriteString("\nCopy to evaluate:\n")
	sb.WriteString(draft)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(fmt.Sprintf("- Target audience: %s\n", req.TargetAudience))
	sb.WriteString(fmt.Sprintf("- Age range: %s\n", req.Age))
	sb.WriteString(fmt.Sprintf("- Goal: %s\n", req.Goal))
	sb.WriteString(fmt.Sprintf("- Format: %s\n", req.Format))

	return entity.Prompt{
		Kind:   entity.PromptKindScore,
		System: "You are a strict marketing copy reviewer. Answer with JSON only.",
		User:   sb.String(),
	}
}

func reformatSelectionPrompt(raw string, cat *entity.Catalog) entity.Prompt {
	var sb strings.Builder
	sb.WriteString("Extract the selected formulas and the reasoning for each from the text below.\n")
	sb.WriteString("Valid formula identifiers: " + strings.Join(cat.FormulaIDs(), ", ") + ".\n")
	sb.WriteString("Return ONLY a JSON object, no markdown fences, exactly like:\n")
	sb.WriteString(`{"selected_formulas": ["formula1", "formula2"], "reasoning": {"formula1": "reason1", "formula2": "reason2"}}`)
	sb.WriteString("\n\nText:\n")
	sb.WriteString(raw)

	return entity.Prompt{
		Kind: entity.PromptKindReformat,
		User: sb.String(),
	}
}

func reformatScoresPrompt(raw string) entity.Prompt {
	var sb strings.Builder
	sb.WriteString("Parse the following text and return ONLY a valid JSON object with scores and feedback.\n")
	sb.WriteString("The format must be exactly:\n")
	sb.WriteString(scoreSchema)
	sb.WriteString("\n\nText to parse:\n")
	sb.WriteString(raw)

	return entity.Prompt{
		Kind: entity.PromptKindReformat,
		User: sb.String(),
	}
}
