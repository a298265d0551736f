package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRespectsBurst(t *testing.T) {
	krl := New(1, 2)

	assert.True(t, krl.Allow("catalog"))
	assert.True(t, krl.Allow("catalog"))
	assert.False(t, krl.Allow("catalog"), "burst exhausted")
}

func TestKeysAreIndependent(t *testing.T) {
	krl := New(1, 1)

	assert.True(t, krl.Allow("catalog"))
	assert.False(t, krl.Allow("catalog"))
	assert.True(t, krl.Allow("progress"), "a drained key must not starve others")
}

func TestWaitBlocksUntilToken(t *testing.T) {
	krl := New(100, 1)

	require.True(t, krl.Allow("catalog"))

	start := time.Now()
	require.NoError(t, krl.Wait(t.Context(), "catalog"))
	assert.Greater(t, time.Since(start), time.Millisecond)
}
