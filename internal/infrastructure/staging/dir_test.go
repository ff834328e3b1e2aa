package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/mmrl-go/internal/pkg/logger"
)

func TestDir_CreateAndRemove(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "staging"), 4, time.Hour, logger.NewNop())

	path, w, err := d.Create("../../evil name.zip")
	require.NoError(t, err)
	_, err = w.Write([]byte("zip"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, d.Path(), filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "-evil_name.zip"), path)

	info, err := os.Stat(d.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	require.NoError(t, d.Remove(path))
	assert.NoFileExists(t, path)
	require.NoError(t, d.Remove(path), "removing twice is fine")
}

func TestDir_RemoveRefusesForeignPaths(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "staging"), 4, time.Hour, logger.NewNop())
	outside := filepath.Join(t.TempDir(), "keep.zip")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	assert.Error(t, d.Remove(outside))
	assert.FileExists(t, outside)
}

func TestDir_EvictionSkipsLockedEntries(t *testing.T) {
	d := New(filepath.Join(t.TempDir(), "staging"), 2, time.Hour, logger.NewNop())

	first, w, err := d.Create("a.zip")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	second, w, err := d.Create("b.zip")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	third, w, err := d.Create("c.zip")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// All three are live, so none may be evicted.
	for _, p := range []string{first, second, third} {
		assert.FileExists(t, p)
	}

	// Simulate a leftover from a crashed run.
	stale := filepath.Join(d.Path(), "stale-x.zip")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fourth, w, err := d.Create("d.zip")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fourth)

	entries, err := d.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	for _, p := range []string{first, second, third, fourth} {
		require.NoError(t, d.Remove(p))
	}
	n, err := d.Clear()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "archive.zip", sanitize(""))
	assert.Equal(t, "mod_a.zip", sanitize("/sdcard/Download/mod_a.zip"))
	assert.Equal(t, "my_mod__1_.zip", sanitize("my mod (1).zip"))
}
