package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIgnoreList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.txt")
	content := "# comment\nSample\n\n  CAM  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	list, err := LoadIgnoreList(path)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())

	matched, term := list.Match("Movie.2023.CAM.x264")
	assert.True(t, matched)
	assert.Equal(t, "cam", term)

	matched, _ = list.Match("Movie.2023.1080p")
	assert.False(t, matched)
}

func TestLoadIgnoreListMissingFile(t *testing.T) {
	list, err := LoadIgnoreList(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())

	var nilList *IgnoreList
	matched, _ := nilList.Match("anything")
	assert.False(t, matched)
}
