package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStopOnce_StartTwiceFails(t *testing.T) {
	var s StartStopOnce
	require.NoError(t, s.StartOnce("svc", func() error { return nil }))
	assert.True(t, s.Started())

	err := s.StartOnce("svc", func() error { return nil })
	assert.Error(t, err)
}

func TestStartStopOnce_StopWithoutStartFails(t *testing.T) {
	var s StartStopOnce
	err := s.StopOnce("svc", func() error { return nil })
	assert.Error(t, err)
}

func TestStartStopOnce_StartThenStop(t *testing.T) {
	var s StartStopOnce
	require.NoError(t, s.StartOnce("svc", func() error { return nil }))
	require.NoError(t, s.StopOnce("svc", func() error { return nil }))
	assert.False(t, s.Started())

	err := s.StopOnce("svc", func() error { return nil })
	assert.Error(t, err)
}
