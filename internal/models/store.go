package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/amaumene/debridstrm/internal/errors"
	"github.com/sirupsen/logrus"
)

// State file names inside the output directory
const (
	RetryQueueFile    = "retry_queue.json"
	FileTrackingFile  = "file_tracking.json"
	TorrentsFile      = "realdebrid_torrents.json"
	ResolvedLinksFile = "realdebrid_unrestricted.json"
	LinksFile         = "realdebrid_links.txt"
)

// Store reads and writes the flat JSON state files
type Store struct {
	dir    string
	logger *logrus.Logger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewFilesystemError(dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the output directory
func (s *Store) Dir() string {
	return s.dir
}

// Load reads all state files. Missing files yield empty state. A corrupt file is logged and
// treated as empty so one bad write cannot stop every later cycle.
func (s *Store) Load() (*State, error) {
	state := NewState()

	var queue []RetryQueueItem
	if err := s.readJSON(RetryQueueFile, &queue); err != nil {
		return nil, err
	}
	if queue != nil {
		state.RetryQueue = queue
	}

	var tracking map[string]FileTrackingEntry
	if err := s.readJSON(FileTrackingFile, &tracking); err != nil {
		return nil, err
	}
	if tracking != nil {
		state.Tracking = tracking
	}

	var records []ResolvedLink
	if err := s.readJSON(ResolvedLinksFile, &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Link == "" {
			continue
		}
		state.Record(r)
	}

	s.logger.WithFields(logrus.Fields{
		"retry_queue": len(state.RetryQueue),
		"tracked":     len(state.Tracking),
		"resolved":    len(state.order),
	}).Debug("State loaded")

	return state, nil
}

// Save writes the retry queue, file tracking, resolved links and the links export
func (s *Store) Save(state *State) error {
	if err := s.writeJSON(RetryQueueFile, state.RetryQueue); err != nil {
		return err
	}
	if err := s.writeJSON(FileTrackingFile, state.Tracking); err != nil {
		return err
	}
	if err := s.writeJSON(ResolvedLinksFile, state.Records()); err != nil {
		return err
	}

	links := strings.Join(state.DirectURLs(), "\n")
	if links != "" {
		links += "\n"
	}
	return s.writeFile(LinksFile, []byte(links))
}

// SaveCatalog writes the raw torrent catalog snapshot
func (s *Store) SaveCatalog(torrents []Torrent) error {
	if torrents == nil {
		torrents = []Torrent{}
	}
	return s.writeJSON(TorrentsFile, torrents)
}

func (s *Store) readJSON(name string, v interface{}) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperrors.NewFilesystemError(path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("Corrupt state file, starting empty")
		return nil
	}
	return nil
}

func (s *Store) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return s.writeFile(name, data)
}

// writeFile replaces the file atomically through a temp file in the same directory
func (s *Store) writeFile(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return apperrors.NewFilesystemError(path, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it over path
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
