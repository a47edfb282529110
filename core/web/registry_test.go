package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionRegistry_RegisterUpdateUnregister(t *testing.T) {
	r := NewSubscriptionRegistry()

	update, unregister := r.Register("sub-1")
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "sub-1", snap[0].ID)
	assert.Equal(t, uint64(0), snap[0].CurrentBlock)

	update(42, "NEW")
	snap = r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint64(42), snap[0].CurrentBlock)
	assert.Equal(t, "NEW", snap[0].LastStep)

	unregister()
	assert.Empty(t, r.Snapshot())
}

func TestSubscriptionRegistry_MultipleIndependent(t *testing.T) {
	r := NewSubscriptionRegistry()
	u1, unreg1 := r.Register("a")
	u2, _ := r.Register("b")

	u1(1, "NEW")
	u2(2, "NEW")

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	unreg1()
	snap = r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].ID)
}
