package entity

import "strings"

// Scoring criteria. The set is fixed; catalogs must define exactly these five.
const (
	CriterionClarity      = "clarity"
	CriterionStorytelling = "storytelling"
	CriterionCreativity   = "creativity"
	CriterionAuthenticity = "authenticity"
	CriterionImpact       = "impact"
)

var CriterionIDs = []string{
	CriterionClarity,
	CriterionStorytelling,
	CriterionCreativity,
	CriterionAuthenticity,
	CriterionImpact,
}

// Formula is a named copywriting structure with its guidance text.
type Formula struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Guidance string   `json:"guidance"`
}

// Criterion is one evaluation dimension with the checklist used by the scorer.
type Criterion struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Focus     string `json:"focus"`
	Checklist string `json:"checklist"`
}

// Catalog is read-only reference data shared by every run.
type Catalog struct {
	Formulas []Formula   `json:"formulas"`
	Criteria []Criterion `json:"criteria"`
}

func (c *Catalog) FormulaIDs() []string {
	ids := make([]string, 0, len(c.Formulas))
	for _, f := range c.Formulas {
		ids = append(ids, f.ID)
	}
	return ids
}

// Formula resolves an identifier or alias, ignoring case and surrounding space.
func (c *Catalog) Formula(name string) (Formula, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Formula{}, false
	}
	for _, f := range c.Formulas {
		if strings.ToLower(f.ID) == key {
			return f, true
		}
		for _, a := range f.Aliases {
			if strings.ToLower(a) == key {
				return f, true
			}
		}
	}
	return Formula{}, false
}

func (c *Catalog) Criterion(id string) (Criterion, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	for _, cr := range c.Criteria {
		if cr.ID == key {
			return cr, true
		}
	}
	return Criterion{}, false
}
