package strm

import (
	"testing"

	"github.com/amaumene/debridstrm/internal/models"
	"github.com/stretchr/testify/assert"
)

const mib = 1024 * 1024

func newTestFilter() *Filter {
	return NewFilter(300*mib,
		[]string{".mkv", ".mp4", ".avi", ".mov", ".wmv", ".m4v", ".webm", ".flv"},
		[]string{".srt", ".ass", ".vtt", ".sub", ".idx", ".ssa", ".smi"},
	)
}

func TestFilterVideoSizeBoundary(t *testing.T) {
	f := newTestFilter()

	cat := f.Classify("movie.mkv", "video/x-matroska", 300*mib-1)
	assert.False(t, cat.Accepted())
	assert.Equal(t, models.CategoryVideoSmall, cat)

	cat = f.Classify("movie.mkv", "video/x-matroska", 300*mib)
	assert.True(t, cat.Accepted())
	assert.Equal(t, models.CategoryVideo, cat)

	cat = f.Classify("movie.mp4", "", 2*1024*mib)
	assert.True(t, cat.Accepted())
	assert.Equal(t, models.CategoryVideo, cat)
}

func TestFilterSubtitlesAnySize(t *testing.T) {
	f := newTestFilter()
	for _, ext := range []string{".srt", ".ass", ".vtt", ".sub", ".idx", ".ssa", ".smi"} {
		cat := f.Classify("movie"+ext, "application/octet-stream", 1)
		assert.True(t, cat.Accepted(), ext)
		assert.Equal(t, models.CategorySubtitle, cat, ext)
	}

	assert.Equal(t, models.CategorySubtitle, f.Classify("MOVIE.SRT", "", 0))
}

func TestFilterMimeDetection(t *testing.T) {
	f := newTestFilter()

	cat := f.Classify("stream.bin", "video/mp2t", 400*mib)
	assert.True(t, cat.Accepted())
	assert.Equal(t, models.CategoryVideo, cat)

	cat = f.Classify("stream", "application/x-matroska", 10*mib)
	assert.False(t, cat.Accepted())
	assert.Equal(t, models.CategoryVideoSmall, cat)
}

func TestFilterRejectsOthers(t *testing.T) {
	f := newTestFilter()

	cat := f.Classify("readme.nfo", "text/plain", 1000*mib)
	assert.False(t, cat.Accepted())
	assert.Equal(t, models.CategoryOther, cat)

	cat = f.Classify("", "video/mp4", 1000*mib)
	assert.False(t, cat.Accepted())
	assert.Equal(t, models.CategoryUnknown, cat)
}
