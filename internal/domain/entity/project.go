package entity

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid project request")

// ProjectRequest is the caller's brief. It is set once when a run starts and is
// never modified afterwards.
type ProjectRequest struct {
	ContentIdea    string `json:"content_idea" bson:"content_idea"`
	TargetAudience string `json:"target_audience" bson:"target_audience"`
	Age            string `json:"age" bson:"age"`
	Format         string `json:"format" bson:"format"`
	Goal           string `json:"goal" bson:"goal"`
}

// Suggested values offered by the web form. Free text is accepted as well.
var (
	AgeBrackets    = []string{"18-24", "25-34", "35-44", "45-54", "55+"}
	ContentFormats = []string{"Short video script", "Social Media Post", "LinkedIn Post", "Case studies", "Marketing Email"}
	ContentGoals   = []string{"Awareness", "Engagement", "Education", "Conversion"}
)

func (r ProjectRequest) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"content_idea", r.ContentIdea},
		{"target_audience", r.TargetAudience},
		{"age", r.Age},
		{"format", r.Format},
		{"goal", r.Goal},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}
