package repository

import (
	"context"

	"copywriter/internal/domain/entity"
)

// LLMClient is the text-completion capability the workflow depends on.
// Implementations may fail on transport or rate limits; they are not expected to retry.
type LLMClient interface {
	Complete(ctx context.Context, prompt entity.Prompt) (string, error)
}

// StreamingLLMClient is implemented by clients that can push partial output.
// onToken receives each fragment in order; the full text is returned at the end.
type StreamingLLMClient interface {
	LLMClient
	Stream(ctx context.Context, prompt entity.Prompt, onToken func(string)) (string, error)
}
