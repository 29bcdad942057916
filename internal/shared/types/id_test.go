package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDParses(t *testing.T) {
	id := NewID()
	assert.False(t, id.IsZero())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIDNormalizes(t *testing.T) {
	id, err := ParseID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, ID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), id)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestScanRunID(t *testing.T) {
	var id ID
	require.NoError(t, id.Scan("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())

	assert.Error(t, id.Scan(42))
	assert.Error(t, id.Scan(nil))

	v, err := id.Value()
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", v)
}
