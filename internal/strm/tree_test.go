package strm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	return NewTree(filepath.Join(t.TempDir(), "unorganized"), utils.NewDiscardLogger())
}

func TestWriteAndRead(t *testing.T) {
	tree := newTestTree(t)
	rel := RelPath("Show (2020)", "Show S01E01")
	url := "https://download.real-debrid.com/d/XYZ/file.mkv"

	written, err := tree.Write(rel, url)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := ReadPointer(tree.Abs(rel))
	require.NoError(t, err)
	assert.Equal(t, url, got)

	raw, err := os.ReadFile(tree.Abs(rel))
	require.NoError(t, err)
	assert.Equal(t, url, string(raw))

	written, err = tree.Write(rel, url)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = tree.Write(rel, url+"?v=2")
	require.NoError(t, err)
	assert.True(t, written)
}

func TestScan(t *testing.T) {
	tree := newTestTree(t)
	_, err := tree.Write(RelPath("B", "two"), "https://dl/2")
	require.NoError(t, err)
	_, err = tree.Write(RelPath("A", "one"), "https://dl/1")
	require.NoError(t, err)
	_, err = tree.Write("A/Nested/Deep/three.strm", "https://dl/3")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tree.Root(), "A", "notes.txt"), []byte("x"), 0644))

	entries, err := tree.Scan()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "A/Nested/Deep/three.strm", entries[0].RelPath)
	assert.Equal(t, "A/one.strm", entries[1].RelPath)
	assert.Equal(t, "https://dl/1", entries[1].URL)
	assert.Equal(t, "B/two.strm", entries[2].RelPath)
	assert.False(t, entries[2].CreatedAt.IsZero())
}

func TestScanMissingRoot(t *testing.T) {
	tree := newTestTree(t)
	entries, err := tree.Scan()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveOrphans(t *testing.T) {
	tree := newTestTree(t)
	keep := RelPath("Keep", "kept")
	_, err := tree.Write(keep, "https://dl/keep")
	require.NoError(t, err)
	_, err = tree.Write(RelPath("Gone", "orphan"), "https://dl/gone")
	require.NoError(t, err)
	_, err = tree.Write("Gone/Sub/orphan2.strm", "https://dl/gone2")
	require.NoError(t, err)

	removed, err := tree.RemoveOrphans(map[string]bool{keep: true})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.FileExists(t, tree.Abs(keep))
	assert.NoDirExists(t, filepath.Join(tree.Root(), "Gone"))
	assert.DirExists(t, tree.Root())
}
