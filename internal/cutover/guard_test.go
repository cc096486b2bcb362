package cutover

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "cutover.lock")

	first, err := AcquireGuard(path)
	require.NoError(t, err)

	_, err = AcquireGuard(path)
	assert.ErrorIs(t, err, ErrCutoverInProgress)

	require.NoError(t, first.Release())

	again, err := AcquireGuard(path)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestNilGuardRelease(t *testing.T) {
	var g *Guard
	assert.NoError(t, g.Release())
}
