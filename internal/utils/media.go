package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cehbz/torrentname"
)

// MediaKind is the coarse library category of a file
type MediaKind string

const (
	MediaKindMovie MediaKind = "movie"
	MediaKindTV    MediaKind = "tv"
	MediaKindOther MediaKind = "other"
)

var (
	yearRegex     = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	seasonEpRegex = regexp.MustCompile(`(?i)s(\d+)e(\d+)`)
	seasonRegex   = regexp.MustCompile(`(?i)season\s*\d+`)
	crossRegex    = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`)
	// "Show Name (Year) - S01E01 - Episode Title (Quality)"
	debridTitleRegex = regexp.MustCompile(`(?i)^(.+?)\s*(?:\(\d{4}\))?\s*-\s*S(\d+)E(\d+)\s*-\s*(.+?)\s*\(.*?\)$`)
	parenRegex       = regexp.MustCompile(`\s*\([^)]*\)\s*`)
	separatorRegex   = regexp.MustCompile(`[._-]`)
	yearParenRegex   = regexp.MustCompile(`\s*\(\d{4}\)\s*`)
)

// ExtractYear extracts a 4-digit year from a title
// Returns 0 if no year is found
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}

// ClassifyMedia decides whether a file name looks like an episode, a movie or neither.
// videoExtensions is the accepted video extension set, lowercase with leading dot.
func ClassifyMedia(filename string, videoExtensions []string) MediaKind {
	lower := strings.ToLower(filename)
	if seasonEpRegex.MatchString(lower) || seasonRegex.MatchString(lower) || crossRegex.MatchString(lower) {
		return MediaKindTV
	}

	ext := strings.ToLower(filepath.Ext(filename))
	for _, candidate := range videoExtensions {
		if ext == candidate {
			return MediaKindMovie
		}
	}
	return MediaKindOther
}

// SeriesInfo is what can be recovered from an episode file name
type SeriesInfo struct {
	ShowName     string
	Season       int
	Episode      int
	EpisodeTitle string
	Year         int
	Resolution   string
}

// Tag returns the SxxEyy form, or "" when no episode was found
func (s SeriesInfo) Tag() string {
	if s.Season == 0 && s.Episode == 0 {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d", s.Season, s.Episode)
}

// ParseSeriesInfo extracts show, season and episode from a file name.
func ParseSeriesInfo(filename string) SeriesInfo {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	info := SeriesInfo{Year: ExtractYear(stem)}

	if parsed := torrentname.Parse(filename); parsed != nil {
		if parsed.Resolution != "?" {
			info.Resolution = parsed.Resolution
		}
		info.Season = parsed.Season
		info.Episode = parsed.Episode
	}

	if m := debridTitleRegex.FindStringSubmatch(stem); m != nil {
		info.ShowName = strings.TrimSpace(m[1])
		info.Season, _ = strconv.Atoi(m[2])
		info.Episode, _ = strconv.Atoi(m[3])
		info.EpisodeTitle = strings.TrimSpace(m[4])
		return info
	}

	if loc := seasonEpRegex.FindStringSubmatchIndex(stem); loc != nil {
		info.Season, _ = strconv.Atoi(stem[loc[2]:loc[3]])
		info.Episode, _ = strconv.Atoi(stem[loc[4]:loc[5]])
		info.ShowName = cleanShowName(stem[:loc[0]])

		episodePart := strings.Trim(stem[loc[1]:], " .-_")
		if episodePart != "" {
			episodePart = parenRegex.ReplaceAllString(episodePart, " ")
			episodePart = strings.Trim(episodePart, " .-")
			info.EpisodeTitle = strings.TrimSpace(separatorRegex.ReplaceAllString(episodePart, " "))
		}
		return info
	}

	if loc := crossRegex.FindStringSubmatchIndex(stem); loc != nil {
		info.Season, _ = strconv.Atoi(stem[loc[2]:loc[3]])
		info.Episode, _ = strconv.Atoi(stem[loc[4]:loc[5]])
		info.ShowName = cleanShowName(stem[:loc[0]])
		return info
	}

	return info
}

func cleanShowName(part string) string {
	part = strings.Trim(part, " .-_")
	part = yearParenRegex.ReplaceAllString(part, " ")
	return strings.Join(strings.Fields(separatorRegex.ReplaceAllString(part, " ")), " ")
}
