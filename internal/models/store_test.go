package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), utils.NewDiscardLogger())
	require.NoError(t, err)
	return store
}

func success(link, url, filename string) ResolvedLink {
	return ResolvedLink{
		Link:   link,
		Status: LinkStatusSuccess,
		Result: &UnrestrictedFile{Download: url, Filename: filename, Filesize: 1},
	}
}

func TestLoadEmptyDirectory(t *testing.T) {
	store := newTestStore(t)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.RetryQueue)
	assert.Empty(t, state.Tracking)
	assert.Empty(t, state.Records())
}

func TestSaveThenLoad(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	state := NewState()
	state.Record(success("https://real-debrid.com/d/A", "https://dl/a", "a.mkv"))
	state.Record(ResolvedLink{Link: "https://real-debrid.com/d/B", Status: LinkStatusFailed, Error: "boom", HTTPStatus: 500})
	state.RetryQueue = []RetryQueueItem{{
		Link:        "https://real-debrid.com/d/C",
		TorrentInfo: TorrentInfo{TorrentID: "T1", TorrentName: "Show"},
		AddedAt:     NewTimestamp(now),
		RetryCount:  1,
	}}
	state.Tracking["Show/a.strm"] = FileTrackingEntry{
		CreatedAt:   NewTimestamp(now),
		URL:         "https://dl/a",
		LastChecked: NewTimestamp(now),
	}
	require.NoError(t, store.Save(state))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.RetryQueue, 1)
	assert.Equal(t, "T1", loaded.RetryQueue[0].TorrentInfo.TorrentID)
	assert.True(t, loaded.RetryQueue[0].AddedAt.Equal(now))
	assert.True(t, loaded.Tracking["Show/a.strm"].CreatedAt.Equal(now))

	records := loaded.Records()
	require.Len(t, records, 2)
	assert.Equal(t, LinkStatusSuccess, records[0].Status)
	assert.Equal(t, LinkStatusFailed, records[1].Status)
	assert.Equal(t, 500, records[1].HTTPStatus)

	links, err := os.ReadFile(filepath.Join(store.Dir(), LinksFile))
	require.NoError(t, err)
	assert.Equal(t, "https://dl/a\n", string(links))
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), RetryQueueFile), []byte("{not json"), 0644))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.RetryQueue)
}

func TestLoadLegacyTimestamps(t *testing.T) {
	store := newTestStore(t)
	legacy := `{"Show/a.strm": {"created_at": "2024-03-01T10:20:30.123456", "url": "https://dl/a", "last_checked": "2024-03-02T08:00:00"}}`
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), FileTrackingFile), []byte(legacy), 0644))

	state, err := store.Load()
	require.NoError(t, err)
	entry := state.Tracking["Show/a.strm"]
	assert.True(t, time.Date(2024, 3, 1, 10, 20, 30, 123456000, time.Local).Equal(entry.CreatedAt.Time))
	assert.Equal(t, 2, entry.LastChecked.Day())
}

func TestSaveCatalog(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveCatalog(nil))

	data, err := os.ReadFile(filepath.Join(store.Dir(), TorrentsFile))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}
