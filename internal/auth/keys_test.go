package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKeys(t *testing.T) {
	dir := t.TempDir()

	key, err := LoadOrCreateKeys(dir)
	require.NoError(t, err)
	require.NotNil(t, key)

	// Both halves are persisted.
	privInfo, err := os.Stat(filepath.Join(dir, "private.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), privInfo.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, "public.pem"))
	require.NoError(t, err)

	// A second start loads the same key instead of rotating it.
	again, err := LoadOrCreateKeys(dir)
	require.NoError(t, err)
	assert.True(t, key.Equal(again), "key rotated across restarts")
}

func TestLoadOrCreateKeys_CorruptKeyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "private.pem"), []byte("not a key"), 0o600))

	_, err := LoadOrCreateKeys(dir)
	assert.Error(t, err)
}
