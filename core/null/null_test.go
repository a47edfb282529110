package null

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64_PtrValidity(t *testing.T) {
	invalid := Int64{}
	assert.Nil(t, invalid.Ptr())

	valid := Int64From(42)
	require.NotNil(t, valid.Ptr())
	assert.Equal(t, int64(42), *valid.Ptr())
}

func TestInt64_SetValid(t *testing.T) {
	var n Int64
	n.SetValid(7)
	assert.True(t, n.Valid)
	assert.Equal(t, int64(7), n.Int64)
}

func TestInt64_JSONRoundTrip(t *testing.T) {
	n := Int64From(9)
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var got Int64
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, n, got)
}

func TestInt64_JSONRoundTrip_Invalid(t *testing.T) {
	n := Int64{}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var got Int64
	require.NoError(t, json.Unmarshal(data, &got))
	assert.False(t, got.Valid)
}
