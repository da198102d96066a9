package strm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/amaumene/debridstrm/internal/errors"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/sirupsen/logrus"
)

// Extension of pointer files
const Extension = ".strm"

// Entry is one pointer file found on disk
type Entry struct {
	RelPath   string
	URL       string
	CreatedAt time.Time
}

// Tree is the pointer file directory, one folder per torrent
type Tree struct {
	root   string
	logger *logrus.Logger
}

// NewTree creates a tree rooted at root
func NewTree(root string, logger *logrus.Logger) *Tree {
	return &Tree{root: root, logger: logger}
}

// Root returns the tree root
func (t *Tree) Root() string {
	return t.root
}

// RelPath returns the tracking key for a folder and file stem
func RelPath(folder, stem string) string {
	return filepath.ToSlash(filepath.Join(folder, stem+Extension))
}

// Abs returns the absolute path for a tracking key
func (t *Tree) Abs(rel string) string {
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// ReadPointer returns the URL stored in a pointer file
func ReadPointer(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Write stores url at rel unless the file already holds it. Returns whether a write happened.
func (t *Tree) Write(rel, url string) (bool, error) {
	path := t.Abs(rel)
	if current, err := ReadPointer(path); err == nil && current == url {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, apperrors.NewFilesystemError(filepath.Dir(path), err)
	}
	if err := models.WriteFileAtomic(path, []byte(url), 0644); err != nil {
		return false, apperrors.NewFilesystemError(path, err)
	}
	return true, nil
}

// Scan lists every pointer file under the root, sorted by path. Unreadable entries are skipped.
func (t *Tree) Scan() ([]Entry, error) {
	var entries []Entry
	err := t.walk(func(path string, info os.FileInfo) {
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return
		}
		url, err := ReadPointer(path)
		if err != nil {
			t.logger.WithError(err).WithField("path", path).Warn("Failed to read pointer file")
			return
		}
		entries = append(entries, Entry{
			RelPath:   filepath.ToSlash(rel),
			URL:       url,
			CreatedAt: changeTime(info),
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}

// RemoveOrphans deletes pointer files whose tracking key is not in keep, then prunes
// directories left empty. The root itself is never removed.
func (t *Tree) RemoveOrphans(keep map[string]bool) (int, error) {
	var orphans []string
	err := t.walk(func(path string, _ os.FileInfo) {
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return
		}
		if !keep[filepath.ToSlash(rel)] {
			orphans = append(orphans, path)
		}
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range orphans {
		if err := os.Remove(path); err != nil {
			t.logger.WithError(err).WithField("path", path).Warn("Failed to remove orphan pointer file")
			continue
		}
		removed++
		t.logger.WithField("path", path).Debug("Removed orphan pointer file")
	}

	if err := t.pruneEmptyDirs(); err != nil {
		return removed, err
	}
	return removed, nil
}

// walk visits every pointer file under the root
func (t *Tree) walk(visit func(path string, info os.FileInfo)) error {
	if _, err := os.Stat(t.root); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	stack := []string{t.root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			if dir == t.root {
				return apperrors.NewFilesystemError(dir, err)
			}
			t.logger.WithError(err).WithField("path", dir).Warn("Failed to read directory")
			continue
		}

		for _, de := range dirEntries {
			path := filepath.Join(dir, de.Name())
			if de.IsDir() {
				stack = append(stack, path)
				continue
			}
			if !de.Type().IsRegular() || !strings.EqualFold(filepath.Ext(de.Name()), Extension) {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			visit(path, info)
		}
	}
	return nil
}

// pruneEmptyDirs removes empty directories below the root, deepest first
func (t *Tree) pruneEmptyDirs() error {
	var dirs []string
	stack := []string{t.root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if dir != t.root {
			dirs = append(dirs, dir)
		}
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, de := range dirEntries {
			if de.IsDir() {
				stack = append(stack, filepath.Join(dir, de.Name()))
			}
		}
	}

	// Children always come after their parent in dirs, so walk backwards
	for i := len(dirs) - 1; i >= 0; i-- {
		dirEntries, err := os.ReadDir(dirs[i])
		if err != nil || len(dirEntries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err != nil {
			return fmt.Errorf("failed to remove empty directory %s: %w", dirs[i], err)
		}
	}
	return nil
}
