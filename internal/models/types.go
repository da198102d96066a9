package models

import "strings"

// TorrentStatusDownloaded is the only torrent status eligible for materialization
const TorrentStatusDownloaded = "downloaded"

// DirectLinkPrefix marks the hoster links that can be unrestricted
const DirectLinkPrefix = "https://real-debrid.com/d/"

// LinkStatus is the terminal state of one link resolution
type LinkStatus string

const (
	LinkStatusSuccess        LinkStatus = "success"
	LinkStatusRateLimited    LinkStatus = "failed_rate_limit"
	LinkStatusRetryNextCycle LinkStatus = "retry_next_cycle"
	LinkStatusFailed         LinkStatus = "failed_other"
)

// Blocking reports whether a stored record of this status stops the link from being resolved again
func (s LinkStatus) Blocking() bool {
	return s == LinkStatusSuccess || s == LinkStatusFailed
}

// Category is the filtering decision for one remote file
type Category string

const (
	CategoryVideo      Category = "video"
	CategorySubtitle   Category = "subtitle"
	CategoryVideoSmall Category = "video_small"
	CategoryOther      Category = "other"
	CategoryUnknown    Category = "unknown"
)

// Accepted reports whether files of this category get a pointer file
func (c Category) Accepted() bool {
	return c == CategoryVideo || c == CategorySubtitle
}

// Torrent is one entry of the remote catalog
type Torrent struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash,omitempty"`
	Bytes    int64    `json:"bytes"`
	Host     string   `json:"host,omitempty"`
	Split    int      `json:"split,omitempty"`
	Progress float64  `json:"progress"`
	Status   string   `json:"status"`
	Added    string   `json:"added,omitempty"`
	Ended    string   `json:"ended,omitempty"`
	Links    []string `json:"links"`
}

// Downloaded reports whether the torrent finished on the remote side
func (t *Torrent) Downloaded() bool {
	return t.Status == TorrentStatusDownloaded
}

// ResolvableLinks returns the links that point at the debrid hoster
func (t *Torrent) ResolvableLinks() []string {
	links := make([]string, 0, len(t.Links))
	for _, link := range t.Links {
		if strings.HasPrefix(link, DirectLinkPrefix) {
			links = append(links, link)
		}
	}
	return links
}

// UnrestrictedFile is the payload of a successful unrestrict call
type UnrestrictedFile struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	Filesize   int64  `json:"filesize"`
	Link       string `json:"link"`
	Host       string `json:"host"`
	Chunks     int    `json:"chunks,omitempty"`
	CRC        int    `json:"crc,omitempty"`
	Download   string `json:"download"`
	Streamable int    `json:"streamable"`
}

// Outcome is the result of resolving one link in the current cycle
type Outcome struct {
	Link       string
	Kind       LinkStatus
	File       *UnrestrictedFile
	Error      string
	HTTPStatus int
	Attempts   int
	// Canceled is set when shutdown interrupted the resolution. Such outcomes are never persisted.
	Canceled bool
}

// ResolvedLink is the persisted record for one source link
type ResolvedLink struct {
	Link        string            `json:"link"`
	Status      LinkStatus        `json:"status"`
	Result      *UnrestrictedFile `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	HTTPStatus  int               `json:"http_status,omitempty"`
	RetryCount  int               `json:"retry_count,omitempty"`
	TorrentID   string            `json:"torrent_id,omitempty"`
	TorrentName string            `json:"torrent_name,omitempty"`
	ResolvedAt  Timestamp         `json:"resolved_at"`
}

// DirectURL returns the unrestricted URL or "" when the record is not a usable success
func (r *ResolvedLink) DirectURL() string {
	if r.Status != LinkStatusSuccess || r.Result == nil {
		return ""
	}
	return r.Result.Download
}

// TorrentInfo is the torrent context kept with a queued link
type TorrentInfo struct {
	TorrentID   string `json:"torrent_id"`
	TorrentName string `json:"torrent_name"`
}

// RetryQueueItem is a link deferred to the next cycle
type RetryQueueItem struct {
	Link        string      `json:"link"`
	TorrentInfo TorrentInfo `json:"torrent_info"`
	AddedAt     Timestamp   `json:"added_at"`
	RetryCount  int         `json:"retry_count"`
}

// FileTrackingEntry records when a pointer file was materialized
type FileTrackingEntry struct {
	CreatedAt   Timestamp `json:"created_at"`
	URL         string    `json:"url"`
	LastChecked Timestamp `json:"last_checked"`
}

// FileCandidate is one remote file that passed resolution and is considered for a pointer file
type FileCandidate struct {
	TorrentID  string
	SourceLink string
	FolderName string
	FileName   string
	DirectURL  string
	Category   Category
	Filesize   int64
	MediaKind  string
}

// User is the account returned by GET /user
type User struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Points     int    `json:"points"`
	Locale     string `json:"locale,omitempty"`
	Type       string `json:"type"`
	Premium    int    `json:"premium"`
	Expiration string `json:"expiration"`
}
