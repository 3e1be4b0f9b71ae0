package entity

// Score is the evaluation of one draft: per-criterion values on a 0-10 scale and
// their average.
type Score struct {
	Criteria map[string]float64 `json:"criteria" bson:"criteria"`
	Average  float64            `json:"average" bson:"average"`
}

// Degradation records a place where the pipeline kept going on fallback values
// instead of what the model actually returned.
type Degradation struct {
	Stage   string   `json:"stage" bson:"stage"`
	Formula string   `json:"formula,omitempty" bson:"formula,omitempty"`
	Outcome string   `json:"outcome" bson:"outcome"`
	Fields  []string `json:"fields,omitempty" bson:"fields,omitempty"`
}

// Summary is the terminal report of a run.
type Summary struct {
	SelectedFormulas       []string            `json:"selected_formulas" bson:"selected_formulas"`
	FormulaReasoning       map[string]string   `json:"formula_reasoning" bson:"formula_reasoning"`
	Drafts                 map[string]string   `json:"drafts" bson:"drafts"`
	Scores                 map[string]Score    `json:"scores" bson:"scores"`
	Feedback               map[string]string   `json:"feedback" bson:"feedback"`
	BestPerforming         string              `json:"best_performing" bson:"best_performing"`
	ImprovementSuggestions map[string][]string `json:"improvement_suggestions" bson:"improvement_suggestions"`
	RevisionCount          int                 `json:"revision_count" bson:"revision_count"`
	Degraded               bool                `json:"degraded" bson:"degraded"`
	Fallbacks              []Degradation       `json:"fallbacks,omitempty" bson:"fallbacks,omitempty"`
}

// WorkflowState is threaded through every node of the copywriting graph. Nodes never
// mutate it directly: they read a Clone and return a Patch.
type WorkflowState struct {
	Request          ProjectRequest    `json:"request" bson:"request"`
	SelectedFormulas []string          `json:"selected_formulas" bson:"selected_formulas"`
	FormulaReasoning map[string]string `json:"formula_reasoning" bson:"formula_reasoning"`
	Drafts           map[string]string `json:"drafts" bson:"drafts"`
	Scores           map[string]Score  `json:"scores" bson:"scores"`
	Feedback         map[string]string `json:"feedback" bson:"feedback"`
	RevisionCount    int               `json:"revision_count" bson:"revision_count"`
	FinalSummary     *Summary          `json:"final_summary,omitempty" bson:"final_summary,omitempty"`
	Degradations     []Degradation     `json:"degradations,omitempty" bson:"degradations,omitempty"`
}

func NewWorkflowState(req ProjectRequest) WorkflowState {
	return WorkflowState{
		Request:          req,
		FormulaReasoning: map[string]string{},
		Drafts:           map[string]string{},
		Scores:           map[string]Score{},
		Feedback:         map[string]string{},
	}
}

// Degraded reports whether any stage fell back to default values.
func (s *WorkflowState) Degraded() bool {
	return len(s.Degradations) > 0
}

// Patch is a partial update produced by one node. Nil fields are left untouched;
// non-nil maps replace the corresponding state map wholesale.
type Patch struct {
	SelectedFormulas []string
	FormulaReasoning map[string]string
	Drafts           map[string]string
	Scores           map[string]Score
	Feedback         map[string]string
	RevisionCount    *int
	FinalSummary     *Summary
	Degradations     []Degradation
}

// Apply merges p into s. Degradations accumulate across the run.
func (s *WorkflowState) Apply(p Patch) {
	if p.SelectedFormulas != nil {
		s.SelectedFormulas = append([]string(nil), p.SelectedFormulas...)
	}
	if p.FormulaReasoning != nil {
		s.FormulaReasoning = copyStrings(p.FormulaReasoning)
	}
	if p.Drafts != nil {
		s.Drafts = copyStrings(p.Drafts)
	}
	if p.Scores != nil {
		s.Scores = copyScores(p.Scores)
	}
	if p.Feedback != nil {
		s.Feedback = copyStrings(p.Feedback)
	}
	if p.RevisionCount != nil {
		s.RevisionCount = *p.RevisionCount
	}
	if p.FinalSummary != nil {
		sum := *p.FinalSummary
		s.FinalSummary = &sum
	}
	s.Degradations = append(s.Degradations, p.Degradations...)
}

// Clone returns a deep copy safe to hand to a node.
func (s WorkflowState) Clone() WorkflowState {
	c := s
	c.SelectedFormulas = append([]string(nil), s.SelectedFormulas...)
	c.FormulaReasoning = copyStrings(s.FormulaReasoning)
	c.Drafts = copyStrings(s.Drafts)
	c.Scores = copyScores(s.Scores)
	c.Feedback = copyStrings(s.Feedback)
	c.Degradations = append([]Degradation(nil), s.Degradations...)
	if s.FinalSummary != nil {
		sum := *s.FinalSummary
		c.FinalSummary = &sum
	}
	return c
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyScores(m map[string]Score) map[string]Score {
	out := make(map[string]Score, len(m))
	for k, v := range m {
		criteria := make(map[string]float64, len(v.Criteria))
		for c, val := range v.Criteria {
			criteria[c] = val
		}
		out[k] = Score{Criteria: criteria, Average: v.Average}
	}
	return out
}

func IntPtr(v int) *int { return &v }
