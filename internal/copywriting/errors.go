package copywriting

import (
	"errors"
	"fmt"

	"copywriter/internal/domain/entity"
)

var ErrStepLimit = errors.New("workflow step limit exceeded")

// InvocationError is a failed or timed out model call. It is fatal for the run.
type InvocationError struct {
	Node    string
	Formula string
	Kind    entity.PromptKind
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Formula != "" {
		return fmt.Sprintf("invoke model (node=%s formula=%s kind=%s): %v", e.Node, e.Formula, e.Kind, e.Err)
	}
	return fmt.Sprintf("invoke model (node=%s kind=%s): %v", e.Node, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// StepError identifies the graph node that aborted the run. State is the last
// state reached before the failing node, for diagnostics only.
type StepError struct {
	Node  string
	Step  int
	Err   error
	State *entity.WorkflowState
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow step %d (%s): %v", e.Step, e.Node, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
