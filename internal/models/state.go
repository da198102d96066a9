package models

// State is the persisted working set of one cycle. It is loaded once, mutated in memory
// and saved once, so the pointer tree and the state files have a single writer.
type State struct {
	RetryQueue []RetryQueueItem
	Tracking   map[string]FileTrackingEntry

	resolved map[string]*ResolvedLink
	order    []string
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		RetryQueue: []RetryQueueItem{},
		Tracking:   make(map[string]FileTrackingEntry),
		resolved:   make(map[string]*ResolvedLink),
	}
}

// Record merges a resolution record keyed by its link.
// A success is only ever replaced by another success. Returns false when the record was not applied.
func (s *State) Record(record ResolvedLink) bool {
	existing, ok := s.resolved[record.Link]
	if !ok {
		r := record
		s.resolved[record.Link] = &r
		s.order = append(s.order, record.Link)
		return true
	}
	if existing.Status == LinkStatusSuccess && record.Status != LinkStatusSuccess {
		return false
	}
	*existing = record
	return true
}

// Lookup returns the stored record for a link
func (s *State) Lookup(link string) (*ResolvedLink, bool) {
	r, ok := s.resolved[link]
	return r, ok
}

// Records returns every stored record in first-seen order
func (s *State) Records() []ResolvedLink {
	out := make([]ResolvedLink, 0, len(s.order))
	for _, link := range s.order {
		out = append(out, *s.resolved[link])
	}
	return out
}

// Successful returns the successful records that carry a direct URL, keyed by link
func (s *State) Successful() map[string]*ResolvedLink {
	out := make(map[string]*ResolvedLink)
	for link, r := range s.resolved {
		if r.DirectURL() != "" {
			out[link] = r
		}
	}
	return out
}

// DirectURLs returns the direct URL of every successful record in first-seen order
func (s *State) DirectURLs() []string {
	var urls []string
	for _, link := range s.order {
		if url := s.resolved[link].DirectURL(); url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// Queued reports whether a link is in the retry queue
func (s *State) Queued(link string) (RetryQueueItem, bool) {
	for _, item := range s.RetryQueue {
		if item.Link == link {
			return item, true
		}
	}
	return RetryQueueItem{}, false
}
