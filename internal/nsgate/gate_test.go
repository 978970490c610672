package nsgate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNSHandle stands in for a namespace file handle; the unpinned
// check fires before any setns call touches it.
func fakeNSHandle(t *testing.T) (*os.File, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ns")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return nil, err
	}
	return os.Open(path)
}

func TestDisabledGateRunsInPlace(t *testing.T) {
	g := New("")
	defer g.Close()

	assert.False(t, g.Enabled())
	require.NoError(t, g.PinWorker())

	ran := false
	err := g.WithUserNamespace(func() error {
		ran = true
		// Never attached when the gate is disabled.
		assert.False(t, g.Attached())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, g.Attached())
}

func TestDisabledGatePropagatesError(t *testing.T) {
	g := New("")
	defer g.Close()

	sentinel := errors.New("scan failed")
	err := g.WithUserNamespace(func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestReentryRejected(t *testing.T) {
	g := New("")
	g.attached = true

	err := g.WithUserNamespace(func() error {
		t.Fatal("fn must not run on reentry")
		return nil
	})
	assert.ErrorIs(t, err, ErrReentered)
}

func TestUnpinnedEnabledGateRefuses(t *testing.T) {
	// Fake an armed gate without touching real namespaces.
	sys, err := fakeNSHandle(t)
	require.NoError(t, err)
	user, err := fakeNSHandle(t)
	require.NoError(t, err)

	g := &Gate{systemNS: sys, userNS: user}
	defer g.Close()
	require.True(t, g.Enabled())

	err = g.WithUserNamespace(func() error { return nil })
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrReentered)
}
