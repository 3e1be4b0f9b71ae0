package copywriting

import (
	"context"
	"time"

	"copywriter/internal/domain/entity"
)

// Observer receives progress events. Implementations must not block for long:
// events are delivered synchronously from the run.
type Observer interface {
	OnEvent(entity.Event)
}

type ObserverFunc func(entity.Event)

func (f ObserverFunc) OnEvent(e entity.Event) { f(e) }

type observerKey struct{}

func withObserver(ctx context.Context, obs Observer) context.Context {
	if obs == nil {
		return ctx
	}
	return context.WithValue(ctx, observerKey{}, obs)
}

func emit(ctx context.Context, e entity.Event) {
	obs, ok := ctx.Value(observerKey{}).(Observer)
	if !ok {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	obs.OnEvent(e)
}

func observing(ctx context.Context) bool {
	_, ok := ctx.Value(observerKey{}).(Observer)
	return ok
}
