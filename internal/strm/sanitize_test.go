package strm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

var knownExtensions = []string{".mkv", ".mp4", ".avi", ".srt", ".ass"}

func TestSanitizeFolderName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single file torrent", "Show (2020) - S01E01 - Pilot (1080p).mkv", "Show (2020) - S01E01 - Pilot (1080p)"},
		{"extension is case insensitive", "Movie.2023.1080p.MKV", "Movie.2023.1080p"},
		{"illegal characters", `What? A: "Movie" <2023>|x*`, `What_ A_ _Movie_ _2023__x_`},
		{"slashes", "AC/DC Live\\Show", "AC_DC Live_Show"},
		{"control characters", "Name\x00With\x1fControl\u0085", "NameWithControl"},
		{"trailing dots", "Season Pack...", "Season Pack"},
		{"empty", "", FallbackFolderName},
		{"only dots", "...", FallbackFolderName},
		{"pack folder keeps name", "Show.S01.1080p.WEB-DL", "Show.S01.1080p.WEB-DL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFolderName(tt.in, knownExtensions))
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"debrid title", "Show (2020) - S01E01 - Pilot (1080p).mkv", "Show (2020) S01E01 Pilot (1080p)"},
		{"scene name", "The.Movie.2023.1080p.BluRay.x264-GROUP.mkv", "The Movie 2023 1080p BluRay x264 GROUP"},
		{"percent encoded", "My%20Movie%20%282023%29.mp4", "My Movie (2023)"},
		{"double encoded", "My%2520Movie.mkv", "My Movie"},
		{"upload prefix", "hhd800.com@ABC-123.mp4", "ABC 123"},
		{"other upload prefix", "HDD123.com@Some_Movie.avi", "Some Movie"},
		{"stray extension", "Movie.mkv.part", "Movie"},
		{"illegal characters", "Who: Are? You*.mkv", "Who Are You"},
		{"subtitle", "Movie.2023.en.srt", "Movie 2023 en"},
		{"too short", "a.mkv", FallbackFileName},
		{"empty", "", FallbackFileName},
		{"only separators", "._-._.mkv", FallbackFileName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}

func TestSanitizeFileNameTruncatesOnWords(t *testing.T) {
	long := strings.Repeat("word ", 30) + "end.mkv"
	got := SanitizeFileName(long)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), 95)
	assert.False(t, strings.HasSuffix(got, " "))
	for _, w := range strings.Fields(got) {
		assert.Equal(t, "word", w)
	}

	single := strings.Repeat("x", 150) + ".mkv"
	assert.Equal(t, strings.Repeat("x", 95), SanitizeFileName(single))

	exactly := strings.Repeat("y", 100) + ".mkv"
	assert.Equal(t, strings.Repeat("y", 100), SanitizeFileName(exactly))
}

func TestSanitizeFileNameIsIdempotent(t *testing.T) {
	inputs := []string{
		"Show (2020) - S01E01 - Pilot (1080p).mkv",
		"The.Movie.2023.1080p.BluRay.x264-GROUP.mkv",
		"My%2520Movie%2B%252.mkv",
		"%E2%82%AC%ZZ%4",
		"hhd800.com@hhd900.com@Name.mp4",
		"Café Noir.mkv",
		"bad%FFutf8.mkv",
		"%\x014Fhidden.mkv",
		strings.Repeat("longword ", 20),
		strings.Repeat("ü", 120),
		"a",
		"   ",
		"x.y.z",
		"Name...",
		"日本語のタイトル.mkv",
	}

	for _, in := range inputs {
		once := SanitizeFileName(in)
		assert.Equal(t, once, SanitizeFileName(once), "input %q", in)
	}
}

func TestSanitizeFileNameNormalizesUnicode(t *testing.T) {
	decomposed := "Cafe\u0301 Noir.mkv"
	composed := "Caf\u00e9 Noir.mkv"
	assert.Equal(t, SanitizeFileName(composed), SanitizeFileName(decomposed))
}
