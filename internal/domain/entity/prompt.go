package entity

// PromptKind tags a prompt with the workflow stage that produced it.
type PromptKind string

const (
	PromptKindSelect   PromptKind = "select"
	PromptKindDraft    PromptKind = "draft"
	PromptKindScore    PromptKind = "score"
	PromptKindReformat PromptKind = "reformat"
)

// Prompt is one request to the model: an optional system message plus the user
// message. History carries earlier turns when a stage needs them.
type Prompt struct {
	Kind    PromptKind
	System  string
	User    string
	History []Message
}

type Message struct {
	Role    string
	Content string
}
