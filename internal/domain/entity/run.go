package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one queued or finished copywriting workflow.
type Run struct {
	ID          string         `json:"id" bson:"id"`
	Request     ProjectRequest `json:"request" bson:"request"`
	Status      RunStatus      `json:"status" bson:"status"`
	State       *WorkflowState `json:"state,omitempty" bson:"state,omitempty"`
	Error       string         `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

func NewRun(req ProjectRequest) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Run) UpdateStatus(status RunStatus) {
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
}

func (r *Run) IsFinished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
