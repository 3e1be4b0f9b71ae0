package entity

import "time"

type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventNodeStarted   EventType = "node_started"
	EventNodeCompleted EventType = "node_completed"
	EventLLMStarted    EventType = "llm_started"
	EventLLMToken      EventType = "llm_token"
	EventLLMCompleted  EventType = "llm_completed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// Event is pushed to observers while a run progresses.
type Event struct {
	RunID   string    `json:"run_id,omitempty"`
	Type    EventType `json:"type"`
	Node    string    `json:"node,omitempty"`
	Formula string    `json:"formula,omitempty"`
	Pass    int       `json:"pass,omitempty"`
	Text    string    `json:"text,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}
