package copywriting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

// Outcome tells how a parse result was obtained.
type Outcome string

const (
	OutcomeParsed    Outcome = "parsed"    // decoded as returned
	OutcomeRepaired  Outcome = "repaired"  // decoded after syntax repair
	OutcomeExtracted Outcome = "extracted" // values pulled out with patterns
	OutcomeRequeried Outcome = "requeried" // decoded from a second, stricter model answer
	OutcomeDefaulted Outcome = "defaulted" // nothing usable, hard-coded default
)

// Recovered reports a usable result that needed more than a plain decode.
func (o Outcome) Recovered() bool {
	return o == OutcomeRepaired || o == OutcomeExtracted || o == OutcomeRequeried
}

const (
	DefaultCriterionScore = 7.0
	DefaultFeedback       = "Error parsing feedback. Using default scores."
	MissingFeedback       = "No feedback available"

	// MaxSelectedFormulas caps how many formulas a run drafts.
	MaxSelectedFormulas = 3
)

// DefaultFormulas is used whenever formula selection cannot be parsed.
var DefaultFormulas = []string{"AIDA", "PAS"}

type SelectionResult struct {
	Formulas  []string
	Reasoning map[string]string
	Outcome   Outcome
	// Dropped lists names the model returned that were unknown, repeated or over the cap.
	Dropped []string
}

func (r SelectionResult) Degraded() bool {
	return r.Outcome == OutcomeDefaulted
}

type ScoreResult struct {
	Criteria     map[string]float64
	Average      float64
	Feedback     string
	Outcome      Outcome
	DefaultsUsed []string
}

func (r ScoreResult) Score() entity.Score {
	criteria := make(map[string]float64, len(r.Criteria))
	for k, v := range r.Criteria {
		criteria[k] = v
	}
	return entity.Score{Criteria: criteria, Average: r.Average}
}

func (r ScoreResult) Degraded() bool {
	return r.Outcome == OutcomeDefaulted || len(r.DefaultsUsed) > 0
}

func defaultSelection() SelectionResult {
	return SelectionResult{
		Formulas:  append([]string(nil), DefaultFormulas...),
		Reasoning: map[string]string{},
		Outcome:   OutcomeDefaulted,
	}
}

func defaultScores() ScoreResult {
	criteria := make(map[string]float64, len(entity.CriterionIDs))
	for _, id := range entity.CriterionIDs {
		criteria[id] = DefaultCriterionScore
	}
	return ScoreResult{
		Criteria:     criteria,
		Average:      DefaultCriterionScore,
		Feedback:     DefaultFeedback,
		Outcome:      OutcomeDefaulted,
		DefaultsUsed: []string{"criteria", "average", "feedback"},
	}
}

type invokeFunc func(ctx context.Context, prompt entity.Prompt) (string, error)

// Parser turns free-form model output into typed results. It never fails: the
// last resort is a fixed default flagged as OutcomeDefaulted.
type Parser struct {
	catalog *entity.Catalog
	requery invokeFunc
	logger  *slog.Logger
}

// NewParser builds a parser. requery may be nil, in which case the re-query
// step is skipped.
func NewParser(catalog *entity.Catalog, requery invokeFunc, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{catalog: catalog, requery: requery, logger: logger}
}

var (
	errNoObject     = errors.New("no JSON object in response")
	errNoFormulas   = errors.New("no known formulas in response")
	errNoCriteria   = errors.New("no criterion scores in response")
	errPartialMatch = errors.New("not every criterion could be extracted")
)

// ParseSelection parses the formula selector's answer.
func (p *Parser) ParseSelection(ctx context.Context, raw string) SelectionResult {
	res, outcome, err := decodeChain(raw, p.decodeSelection)
	if err == nil {
		res.Outcome = outcome
		p.record("selection", res.Outcome, res.Dropped)
		return res
	}
	p.logger.Warn("formula selection not parseable, re-querying", "err", err, "response", truncate(raw, 200))

	if p.requery != nil {
		answer, qerr := p.requery(ctx, reformatSelectionPrompt(raw, p.catalog))
		if qerr != nil {
			p.logger.Error("formula selection re-query failed", "err", qerr)
		} else if res, _, err := decodeChain(answer, p.decodeSelection); err == nil {
			res.Outcome = OutcomeRequeried
			p.record("selection", res.Outcome, res.Dropped)
			return res
		} else {
			p.logger.Warn("formula selection re-query not parseable", "err", err, "response", truncate(answer, 200))
		}
	}

	res = defaultSelection()
	p.record("selection", res.Outcome, nil)
	return res
}

// ParseScores parses the scoring engine's answer.
func (p *Parser) ParseScores(ctx context.Context, raw string) ScoreResult {
	res, outcome, err := decodeChain(raw, p.decodeScores)
	if err == nil {
		res.Outcome = outcome
		p.record("scores", res.Outcome, nil)
		return res
	}

	if res, xerr := p.extractScores(stripFences(raw)); xerr == nil {
		res.Outcome = OutcomeExtracted
		p.record("scores", res.Outcome, nil)
		return res
	}
	p.logger.Warn("scores not parseable, re-querying", "err", err, "response", truncate(raw, 200))

	if p.requery != nil {
		answer, qerr := p.requery(ctx, reformatScoresPrompt(raw))
		if qerr != nil {
			p.logger.Error("scores re-query failed", "err", qerr)
		} else if res, _, err := decodeChain(answer, p.decodeScores); err == nil {
			res.Outcome = OutcomeRequeried
			p.record("scores", res.Outcome, nil)
			return res
		} else {
			p.logger.Warn("scores re-query not parseable", "err", err, "response", truncate(answer, 200))
		}
	}

	res = defaultScores()
	p.record("scores", res.Outcome, nil)
	return res
}

func (p *Parser) record(shape string, outcome Outcome, dropped []string) {
	metrics.IncParseOutcome(shape, string(outcome))
	if outcome.Recovered() {
		p.logger.Debug("parse recovered", "shape", shape, "outcome", outcome)
	}
	if len(dropped) > 0 {
		p.logger.Info("ignored formulas from selection", "dropped", dropped)
	}
}

// decodeChain runs fence stripping, object extraction, a direct decode and a
// decode after syntax repair. It reports which of the two decodes succeeded.
func decodeChain[T any](raw string, decode func(string) (T, error)) (T, Outcome, error) {
	var zero T
	obj, ok := extractObject(stripFences(raw))
	if !ok {
		return zero, "", errNoObject
	}
	res, err := decode(obj)
	if err == nil {
		return res, OutcomeParsed, nil
	}
	res, rerr := decode(repairJSON(obj))
	if rerr == nil {
		return res, OutcomeRepaired, nil
	}
	return zero, "", fmt.Errorf("decode: %w; after repair: %v", err, rerr)
}

func (p *Parser) decodeSelection(obj string) (SelectionResult, error) {
	var doc struct {
		SelectedFormulas []string       `json:"selected_formulas"`
		Formulas         []string       `json:"formulas"`
		Reasoning        map[string]any `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return SelectionResult{}, err
	}
	names := doc.SelectedFormulas
	if len(names) == 0 {
		names = doc.Formulas
	}
	return p.normalizeSelection(names, doc.Reasoning)
}

func (p *Parser) normalizeSelection(names []string, reasoning map[string]any) (SelectionResult, error) {
	res := SelectionResult{Reasoning: map[string]string{}}
	seen := map[string]bool{}
	for _, name := range names {
		f, ok := p.catalog.Formula(name)
		if !ok || seen[f.ID] || len(res.Formulas) == MaxSelectedFormulas {
			res.Dropped = append(res.Dropped, name)
			continue
		}
		seen[f.ID] = true
		res.Formulas = append(res.Formulas, f.ID)
	}
	if len(res.Formulas) == 0 {
		return SelectionResult{}, errNoFormulas
	}
	for name, why := range reasoning {
		f, ok := p.catalog.Formula(name)
		if !ok || !seen[f.ID] {
			continue
		}
		res.Reasoning[f.ID] = stringify(why)
	}
	return res, nil
}

func (p *Parser) decodeScores(obj string) (ScoreResult, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return ScoreResult{}, err
	}

	criteria := map[string]float64{}
	if nested, ok := doc["criteria"].(map[string]any); ok {
		for name, v := range nested {
			if f, ok := toFloat(v); ok {
				criteria[name] = clampScore(f)
			}
		}
	}
	if len(criteria) == 0 {
		// Some answers put the criteria at the top level.
		for name, v := range doc {
			if !isCriterion(name) {
				continue
			}
			if f, ok := toFloat(v); ok {
				criteria[strings.ToLower(name)] = clampScore(f)
			}
		}
	}
	if len(criteria) == 0 {
		return ScoreResult{}, errNoCriteria
	}

	res := ScoreResult{Criteria: criteria}
	if avg, ok := toFloat(doc["average"]); ok {
		res.Average = clampScore(avg)
	} else {
		res.Average = mean(criteria)
	}
	if fb, ok := doc["feedback"].(string); ok && strings.TrimSpace(fb) != "" {
		res.Feedback = fb
	} else {
		res.Feedback = MissingFeedback
		res.DefaultsUsed = append(res.DefaultsUsed, "feedback")
	}
	return res, nil
}

var (
	criterionValueRe = regexp.MustCompile(`(?i)"(\w+)"\s*:\s*(-?\d+(?:\.\d+)?)`)
	averageRe        = regexp.MustCompile(`(?i)"average"\s*:\s*(-?\d+(?:\.\d+)?)`)
	feedbackRe       = regexp.MustCompile(`(?i)"feedback"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// extractScores pulls "criterion": number pairs out of text that is not valid JSON.
// Every one of the five criteria must be present.
func (p *Parser) extractScores(text string) (ScoreResult, error) {
	criteria := map[string]float64{}
	for _, m := range criterionValueRe.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[1])
		if !isCriterion(name) {
			continue
		}
		if _, dup := criteria[name]; dup {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		criteria[name] = clampScore(v)
	}
	if len(criteria) == 0 {
		return ScoreResult{}, errNoCriteria
	}
	if len(criteria) != len(entity.CriterionIDs) {
		return ScoreResult{}, errPartialMatch
	}

	res := ScoreResult{Criteria: criteria, Average: mean(criteria)}
	if m := averageRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			res.Average = clampScore(v)
		}
	}
	if m := feedbackRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		res.Feedback = unescape(m[1])
	} else {
		res.Feedback = MissingFeedback
		res.DefaultsUsed = append(res.DefaultsUsed, "feedback")
	}
	return res, nil
}

var fenceRe = regexp.MustCompile("```[A-Za-z0-9_-]*")

func stripFences(text string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
}

// extractObject returns the first complete {...} span, honouring nesting and
// string literals. An object that never closes falls back to the span between
// the first '{' and the last '}'.
func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	if end := strings.LastIndexByte(text, '}'); end > start {
		return text[start : end+1], true
	}
	return text[start:], true
}

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	missingCommaRe  = regexp.MustCompile(`(["\d\]}])\s*("[^"]*"\s*:)`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// repairJSON applies the syntax fixes models most often need: newlines inside
// the object, missing commas between members and trailing commas.
func repairJSON(s string) string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	s = missingCommaRe.ReplaceAllString(s, "$1,$2")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

func isCriterion(name string) bool {
	name = strings.ToLower(name)
	for _, id := range entity.CriterionIDs {
		if id == name {
			return true
		}
	}
	return false
}

// toFloat accepts finite numbers and numeric strings. "NaN" and "Inf" parse as
// floats but cannot be clamped or encoded, so they count as missing.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	default:
		return v
	}
}

func mean(values map[string]float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func unescape(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
