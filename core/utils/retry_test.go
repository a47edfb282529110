package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryForever_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	b := &backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond}
	err := RetryForever(context.Background(), b, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryForever_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBackoff()
	err := RetryForever(ctx, b, func() error {
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBackoff_Defaults(t *testing.T) {
	b := NewBackoff()
	assert.Equal(t, 100*time.Millisecond, b.Min)
	assert.Equal(t, 30*time.Second, b.Max)
}
