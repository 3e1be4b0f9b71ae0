package copywriting

import (
	"context"
	"log/slog"
	"time"

	"copywriter/internal/domain/entity"
	"copywriter/internal/domain/repository"
)

type callSite struct {
	Node    string
	Formula string
	Pass    int
}

// invoker performs single model calls with a per-call deadline. It never retries.
type invoker struct {
	llm     repository.LLMClient
	timeout time.Duration
	logger  *slog.Logger
}

func (iv *invoker) call(ctx context.Context, site callSite, prompt entity.Prompt) (string, error) {
	if iv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, iv.timeout)
		defer cancel()
	}

	emit(ctx, entity.Event{Type: entity.EventLLMStarted, Node: site.Node, Formula: site.Formula, Pass: site.Pass})
	start := time.Now()

	var (
		text string
		err  error
	)
	if streamer, ok := iv.llm.(repository.StreamingLLMClient); ok && observing(ctx) {
		text, err = streamer.Stream(ctx, prompt, func(token string) {
			emit(ctx, entity.Event{Type: entity.EventLLMToken, Node: site.Node, Formula: site.Formula, Pass: site.Pass, Text: token})
		})
	} else {
		text, err = iv.llm.Complete(ctx, prompt)
	}
	if err != nil {
		iv.logger.Error("model invocation failed",
			"node", site.Node, "formula", site.Formula, "kind", prompt.Kind, "duration", time.Since(start), "err", err)
		return "", &InvocationError{Node: site.Node, Formula: site.Formula, Kind: prompt.Kind, Err: err}
	}

	emit(ctx, entity.Event{Type: entity.EventLLMCompleted, Node: site.Node, Formula: site.Formula, Pass: site.Pass})
	iv.logger.Debug("model invocation done",
		"node", site.Node, "formula", site.Formula, "kind", prompt.Kind, "duration", time.Since(start), "chars", len(text))
	return text, nil
}

// requery adapts the invoker for the parser's stricter second attempt.
func (iv *invoker) requery(node, formula string) invokeFunc {
	return func(ctx context.Context, prompt entity.Prompt) (string, error) {
		return iv.call(ctx, callSite{Node: node, Formula: formula}, prompt)
	}
}
