package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedStore(t *testing.T, names ...string) *ArtifactStore {
	t.Helper()
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		// Spread modification times so ordering is deterministic.
		mod := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
	return NewArtifactStore(dir)
}

func TestListNewestFirst(t *testing.T) {
	store := populatedStore(t, "oldest.mp4", "middle.mp4", "newest.mp4")

	page, err := store.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Files, 3)
	assert.Equal(t, "newest.mp4", page.Files[0].Filename)
	assert.Equal(t, "oldest.mp4", page.Files[2].Filename)
}

func TestListPagination(t *testing.T) {
	store := populatedStore(t, "a.mp4", "b.mp4", "c.mp4", "d.mp4")

	page, err := store.List(2, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Files, 2)

	page, err = store.List(2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Files, 2)

	page, err = store.List(2, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Files)
	assert.Equal(t, 4, page.Total)
}

func TestListMissingDirectory(t *testing.T) {
	store := NewArtifactStore(filepath.Join(t.TempDir(), "nope"))

	page, err := store.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Files)
}

func TestInfoAndDelete(t *testing.T) {
	store := populatedStore(t, "camera0_snapshot_2026-08-25_10-00-00.jpg")

	info, err := store.Info("camera0_snapshot_2026-08-25_10-00-00.jpg")
	require.NoError(t, err)
	assert.Equal(t, "camera0", info.Device)
	assert.Greater(t, info.FileSize, int64(0))

	require.NoError(t, store.Delete("camera0_snapshot_2026-08-25_10-00-00.jpg"))
	_, err = store.Info("camera0_snapshot_2026-08-25_10-00-00.jpg")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.ErrorIs(t, store.Delete("camera0_snapshot_2026-08-25_10-00-00.jpg"), ErrArtifactNotFound)
}

func TestResolveRejectsTraversal(t *testing.T) {
	store := NewArtifactStore(t.TempDir())

	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.mp4", `a\b.mp4`} {
		_, err := store.Resolve(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}

	_, err := store.Resolve("plain.mp4")
	assert.NoError(t, err)
}
