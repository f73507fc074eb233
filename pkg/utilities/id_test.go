package utilities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDs_Unique(t *testing.T) {
	g := NewRequestIDs(3)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := g.Next()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestRequestIDs_FallbackToKSUID(t *testing.T) {
	// snowflake nodes are limited to 10 bits
	g := NewRequestIDs(1 << 12)
	assert.Len(t, g.Next(), 27)

	var nilGen *RequestIDs
	assert.Len(t, nilGen.Next(), 27)
}

func TestNewUUID(t *testing.T) {
	_, err := uuid.Parse(NewUUID())
	assert.NoError(t, err)
	assert.NotEqual(t, NewUUID(), NewUUID())
}
