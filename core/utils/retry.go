package utils

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryForever calls fn until it returns a nil error or ctx is done,
// backing off between attempts. This is the transport-retry primitive the
// source adapters use for their HTTP calls.
func RetryForever(ctx context.Context, b *backoff.Backoff, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			b.Reset()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

// NewBackoff returns the standard backoff policy used across adapters: 100ms
// up to 30s, doubling.
func NewBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}
