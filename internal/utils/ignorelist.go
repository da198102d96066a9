package utils

import (
	"bufio"
	"os"
	"strings"
)

// IgnoreList holds terms for torrents that must never be materialized
type IgnoreList struct {
	terms []string
}

// LoadIgnoreList loads ignore terms from a file, one per line. Lines starting with # are comments.
func LoadIgnoreList(path string) (*IgnoreList, error) {
	// If file doesn't exist, return empty list
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &IgnoreList{terms: []string{}}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, strings.ToLower(term))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &IgnoreList{terms: terms}, nil
}

// NewIgnoreList builds a list from in-memory terms
func NewIgnoreList(terms ...string) *IgnoreList {
	list := &IgnoreList{}
	for _, term := range terms {
		if term = strings.TrimSpace(term); term != "" {
			list.terms = append(list.terms, strings.ToLower(term))
		}
	}
	return list
}

// Len returns the number of terms
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.terms)
}

// Match checks if a torrent name contains any ignore term.
// Returns (matched, matchedTerm)
func (l *IgnoreList) Match(name string) (bool, string) {
	if l == nil {
		return false, ""
	}
	nameLower := strings.ToLower(name)
	for _, term := range l.terms {
		if strings.Contains(nameLower, term) {
			return true, term
		}
	}
	return false, ""
}
