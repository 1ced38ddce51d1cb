package completion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/awaybot/awaybot/internal/memory"
)

// Retrying retries a client with exponential backoff.
type Retrying struct {
	inner    Client
	attempts int
	initial  time.Duration
	ceiling  time.Duration
}

// NewRetrying wraps inner so that each Complete makes up to attempts calls.
func NewRetrying(inner Client, attempts int, initial, ceiling time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{inner: inner, attempts: attempts, initial: initial, ceiling: ceiling}
}

func (r *Retrying) Complete(ctx context.Context, blocks []memory.Block, maxTokens int) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.ceiling
	b.MaxElapsedTime = 0

	var (
		reply   string
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		reply, err = r.inner.Complete(ctx, blocks, maxTokens)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		slog.Warn("completion attempt failed", "attempt", attempt, "error", err)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return reply, nil
}
