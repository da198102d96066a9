package strm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// FallbackFolderName is used when a torrent name sanitizes to nothing
	FallbackFolderName = "Unknown"
	// FallbackFileName is used when a file stem is empty or shorter than minFileNameLength.
	// It is itself a valid stem, so sanitization stays idempotent.
	FallbackFileName = "Untitled"

	maxFileNameLength  = 100
	truncatedMaxLength = 95
	minFileNameLength  = 3
	decodePasses       = 3
)

var (
	illegalCharsRegex   = regexp.MustCompile(`[<>:"/\\|?*]`)
	extensionRegex      = regexp.MustCompile(`\.[A-Za-z0-9]{1,5}$`)
	uploadPrefixRegex   = regexp.MustCompile(`(?i)^(hhd\d+\.com@|hdd\d+\.com@)`)
	strayExtensionRegex = regexp.MustCompile(`(?i)(\.mp4|\.mkv|\.avi)$`)
	percentEscapeRegex  = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	separatorRunRegex   = regexp.MustCompile(`[._-]+`)
)

// SanitizeFolderName derives a directory name from a torrent name.
// knownExtensions are stripped when they end the name (single-file torrents).
func SanitizeFolderName(name string, knownExtensions []string) string {
	name = norm.NFC.String(name)

	lower := strings.ToLower(name)
	for _, ext := range knownExtensions {
		if ext != "" && strings.HasSuffix(lower, ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}

	name = illegalCharsRegex.ReplaceAllString(name, "_")
	name = removeControlChars(name)
	name = trimTrailingDots(name)
	if name == "" {
		return FallbackFolderName
	}
	return name
}

// SanitizeFileName derives a pointer file stem (without .strm) from a remote file name.
func SanitizeFileName(name string) string {
	name = decodePercent(name)
	name = norm.NFC.String(name)
	name = removeControlChars(name)

	name = extensionRegex.ReplaceAllString(name, "")
	name = uploadPrefixRegex.ReplaceAllString(name, "")
	name = strayExtensionRegex.ReplaceAllString(name, "")
	name = percentEscapeRegex.ReplaceAllString(name, " ")
	name = illegalCharsRegex.ReplaceAllString(name, "_")
	name = separatorRunRegex.ReplaceAllString(name, " ")
	name = strings.Join(strings.Fields(name), " ")
	name = trimTrailingDots(name)

	if utf8.RuneCountInString(name) > maxFileNameLength {
		name = truncateWords(name, truncatedMaxLength)
	}
	if utf8.RuneCountInString(name) < minFileNameLength {
		return FallbackFileName
	}
	return name
}

// decodePercent unescapes %XX sequences, up to decodePasses times or until stable.
// Invalid escapes are kept as-is and invalid UTF-8 becomes U+FFFD.
func decodePercent(s string) string {
	for i := 0; i < decodePasses; i++ {
		decoded := percentEscapeRegex.ReplaceAllStringFunc(s, func(esc string) string {
			return string([]byte{unhex(esc[1])<<4 | unhex(esc[2])})
		})
		decoded = strings.ToValidUTF8(decoded, "�")
		if decoded == s {
			break
		}
		s = decoded
	}
	return s
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// removeControlChars drops C0 controls, DEL and C1 controls
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x1f || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

func trimTrailingDots(s string) string {
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// truncateWords keeps whole words up to limit runes. A first word longer than limit is cut.
func truncateWords(s string, limit int) string {
	var b strings.Builder
	length := 0
	for _, word := range strings.Fields(s) {
		wordLen := utf8.RuneCountInString(word)
		extra := wordLen
		if length > 0 {
			extra++
		}
		if length+extra > limit {
			break
		}
		if length > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
		length += extra
	}
	if length == 0 {
		runes := []rune(s)
		return strings.TrimSpace(string(runes[:limit]))
	}
	return b.String()
}
