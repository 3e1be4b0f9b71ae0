package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of a model call. The OpenAI SDK providers only use
// MaxAttempts; the SDK picks its own delays and honours Retry-After.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) retries() int {
	if p.MaxAttempts < 1 {
		return 0
	}
	return p.MaxAttempts - 1
}

// backOff doubles from BaseDelay up to MaxDelay and stops after MaxAttempts
// attempts or when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		exp.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay >= exp.InitialInterval {
		exp.MaxInterval = p.MaxDelay
	} else {
		exp.MaxInterval = exp.InitialInterval
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.retries())), ctx)
}

// withRetry runs op under p. Errors that another attempt cannot fix end the
// loop at once.
func withRetry(ctx context.Context, p RetryPolicy, logger *slog.Logger, kind string, op func() (string, error)) (string, error) {
	attempt := func() (string, error) {
		text, err := op()
		if err != nil && (ctx.Err() != nil || !retryable(err)) {
			return "", backoff.Permanent(err)
		}
		return text, err
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("llm call failed, retrying", "kind", kind, "delay", delay, "err", err)
	}
	return backoff.RetryNotifyWithData(attempt, p.backOff(ctx), notify)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyResponse) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus(se.StatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
