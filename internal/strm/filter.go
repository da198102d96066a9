package strm

import (
	"path/filepath"
	"strings"

	"github.com/amaumene/debridstrm/internal/models"
)

// Filter decides which remote files get a pointer file
type Filter struct {
	minVideoBytes int64
	video         map[string]bool
	subtitle      map[string]bool
	known         []string
}

// NewFilter builds a filter. Extensions are lowercase with a leading dot.
func NewFilter(minVideoBytes int64, videoExtensions, subtitleExtensions []string) *Filter {
	f := &Filter{
		minVideoBytes: minVideoBytes,
		video:         make(map[string]bool, len(videoExtensions)),
		subtitle:      make(map[string]bool, len(subtitleExtensions)),
	}
	for _, ext := range videoExtensions {
		f.video[ext] = true
		f.known = append(f.known, ext)
	}
	for _, ext := range subtitleExtensions {
		f.subtitle[ext] = true
		f.known = append(f.known, ext)
	}
	return f
}

// KnownExtensions returns every video and subtitle extension
func (f *Filter) KnownExtensions() []string {
	return f.known
}

// VideoExtensions returns the accepted video extensions
func (f *Filter) VideoExtensions() []string {
	out := make([]string, 0, len(f.video))
	for _, ext := range f.known {
		if f.video[ext] {
			out = append(out, ext)
		}
	}
	return out
}

// Classify returns the category of a remote file; Category.Accepted tells whether it gets a
// pointer file. Subtitles are accepted at any size. Videos are accepted from minVideoBytes inclusive.
func (f *Filter) Classify(filename, mimeType string, size int64) models.Category {
	if filename == "" {
		return models.CategoryUnknown
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if f.subtitle[ext] {
		return models.CategorySubtitle
	}

	mime := strings.ToLower(mimeType)
	if f.video[ext] || strings.Contains(mime, "video/") || strings.Contains(mime, "matroska") {
		if size >= f.minVideoBytes {
			return models.CategoryVideo
		}
		return models.CategoryVideoSmall
	}

	return models.CategoryOther
}
