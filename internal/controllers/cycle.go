package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/debridstrm/internal/config"
	apperrors "github.com/amaumene/debridstrm/internal/errors"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/amaumene/debridstrm/internal/services/realdebrid"
	"github.com/amaumene/debridstrm/internal/strm"
	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/sirupsen/logrus"
)

// Remote is the part of the Real-Debrid client a cycle needs
type Remote interface {
	FetchTorrents(ctx context.Context) realdebrid.Catalog
	UnrestrictAll(ctx context.Context, links []string) []models.Outcome
}

// CycleRecorder receives the summary of every finished cycle
type CycleRecorder interface {
	ObserveCycle(summary *CycleSummary, err error)
}

// CycleSummary describes one cycle for logs, the status endpoint and metrics
type CycleSummary struct {
	Cycle            int            `json:"cycle"`
	StartedAt        time.Time      `json:"started_at"`
	DurationSeconds  float64        `json:"duration_seconds"`
	Torrents         int            `json:"torrents"`
	Downloaded       int            `json:"downloaded"`
	Pages            int            `json:"pages"`
	CatalogComplete  bool           `json:"catalog_complete"`
	ExistingPointers int            `json:"existing_pointers"`
	ExpiredPointers  int            `json:"expired_pointers"`
	RetriesDrained   int            `json:"retries_drained"`
	LinksResolved    int            `json:"links_resolved"`
	Resolutions      map[string]int `json:"resolutions"`
	Reconcile        ReconcileStats `json:"reconcile"`
	OrphansRemoved   int            `json:"orphans_removed"`
	RetryQueue       int            `json:"retry_queue"`
	Error            string         `json:"error,omitempty"`
}

// CycleController runs one full poll: inventory, catalog, resolution, reconciliation, persistence
type CycleController struct {
	cfg        *config.Config
	remote     Remote
	store      *models.Store
	tree       *strm.Tree
	reconciler *Reconciler
	clock      utils.Clock
	recorder   CycleRecorder
	logger     *logrus.Logger

	mu     sync.RWMutex
	cycles int
	last   *CycleSummary
}

// NewCycleController creates a new cycle controller. recorder may be nil.
func NewCycleController(
	cfg *config.Config,
	remote Remote,
	store *models.Store,
	tree *strm.Tree,
	reconciler *Reconciler,
	clock utils.Clock,
	recorder CycleRecorder,
	logger *logrus.Logger,
) *CycleController {
	return &CycleController{
		cfg:        cfg,
		remote:     remote,
		store:      store,
		tree:       tree,
		reconciler: reconciler,
		clock:      clock,
		recorder:   recorder,
		logger:     logger,
	}
}

// LastSummary returns the summary of the most recent cycle, or nil before the first one
func (c *CycleController) LastSummary() *CycleSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	summary := *c.last
	return &summary
}

// RunCycle executes one cycle. When ctx is cancelled before the write phase, nothing is written.
func (c *CycleController) RunCycle(ctx context.Context) (*CycleSummary, error) {
	c.mu.Lock()
	c.cycles++
	number := c.cycles
	c.mu.Unlock()

	start := c.clock.Now()
	summary := &CycleSummary{
		Cycle:       number,
		StartedAt:   start,
		Resolutions: make(map[string]int),
	}
	log := c.logger.WithField("cycle", number)
	log.Info("Starting cycle")

	err := c.run(ctx, summary, log)

	summary.DurationSeconds = c.clock.Now().Sub(start).Seconds()
	if err != nil {
		summary.Error = err.Error()
	}

	c.mu.Lock()
	c.last = summary
	c.mu.Unlock()
	if c.recorder != nil {
		c.recorder.ObserveCycle(summary, err)
	}

	if err != nil {
		return summary, err
	}

	log.WithFields(logrus.Fields{
		"duration":         fmt.Sprintf("%.1fs", summary.DurationSeconds),
		"torrents":         summary.Torrents,
		"links_resolved":   summary.LinksResolved,
		"created":          summary.Reconcile.Created,
		"skipped_existing": summary.Reconcile.SkippedExisting,
		"expired":          summary.ExpiredPointers,
		"retry_queue":      summary.RetryQueue,
	}).Info("Cycle completed")
	return summary, nil
}

func (c *CycleController) run(ctx context.Context, summary *CycleSummary, log *logrus.Entry) error {
	now := c.clock.Now()

	state, err := c.store.Load()
	if err != nil {
		return apperrors.NewCycleError("failed to load state", err)
	}

	// Inventory of pointer files already on disk
	entries, err := c.tree.Scan()
	if err != nil {
		return apperrors.NewCycleError("failed to scan pointer files", err)
	}
	existing := c.syncTracking(state, entries, now)
	expired := c.expiredURLs(state, now)
	summary.ExistingPointers = len(entries)
	summary.ExpiredPointers = len(expired)
	summary.RetriesDrained = len(state.RetryQueue)
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("Pointer files expired, refreshing")
	}

	catalog := c.remote.FetchTorrents(ctx)
	if err := ctx.Err(); err != nil {
		return apperrors.NewCycleError("cycle interrupted", err)
	}
	summary.Torrents = len(catalog.Torrents)
	summary.Pages = catalog.Pages
	summary.CatalogComplete = catalog.Complete

	links, torrentInfo := c.linksToResolve(catalog, state, expired, summary)
	summary.LinksResolved = len(links)

	outcomes := c.remote.UnrestrictAll(ctx, links)
	if err := ctx.Err(); err != nil {
		return apperrors.NewCycleError("cycle interrupted", err)
	}

	// Merge outcomes; remember which links got a fresh URL
	refreshed := make(map[string]bool)
	for _, outcome := range outcomes {
		if outcome.Canceled {
			continue
		}
		summary.Resolutions[string(outcome.Kind)]++

		record := models.ResolvedLink{
			Link:        outcome.Link,
			Status:      outcome.Kind,
			Result:      outcome.File,
			Error:       outcome.Error,
			HTTPStatus:  outcome.HTTPStatus,
			TorrentID:   torrentInfo[outcome.Link].TorrentID,
			TorrentName: torrentInfo[outcome.Link].TorrentName,
			ResolvedAt:  models.NewTimestamp(c.clock.Now()),
		}
		if outcome.Kind == models.LinkStatusRetryNextCycle {
			if item, ok := state.Queued(outcome.Link); ok {
				record.RetryCount = item.RetryCount + 1
			}
		}
		if state.Record(record) && outcome.Kind == models.LinkStatusSuccess && outcome.File != nil {
			refreshed[outcome.File.Download] = true
		}
	}

	plan := c.reconciler.Plan(PlanInput{
		Torrents:     catalog.Torrents,
		Resolved:     state.Successful(),
		ExistingURLs: existing,
		ExpiredURLs:  expired,
	})

	// Write phase. Past this point the cycle runs to completion.
	written := c.reconciler.Apply(plan)
	changed := make(map[string]bool, len(written))
	for _, file := range written {
		changed[file.RelPath] = true
	}
	writeTime := models.NewTimestamp(c.clock.Now())
	for _, file := range plan.Writes {
		if changed[file.RelPath] || refreshed[file.DirectURL] {
			state.Tracking[file.RelPath] = models.FileTrackingEntry{
				CreatedAt:   writeTime,
				URL:         file.DirectURL,
				LastChecked: writeTime,
			}
		}
	}
	summary.Reconcile = plan.Stats

	if c.cfg.CleanupOrphans {
		if catalog.Complete {
			removed, err := c.tree.RemoveOrphans(plan.Expected)
			if err != nil {
				log.WithError(err).Warn("Orphan cleanup incomplete")
			}
			summary.OrphansRemoved = removed
			for rel := range state.Tracking {
				if !plan.Expected[rel] {
					delete(state.Tracking, rel)
				}
			}
		} else {
			log.Warn("Skipping orphan cleanup, torrent catalog is incomplete")
		}
	}

	state.RetryQueue = NextRetryQueue(outcomes, torrentInfo, state.RetryQueue, now)
	summary.RetryQueue = len(state.RetryQueue)

	if err := c.store.SaveCatalog(catalog.Torrents); err != nil {
		log.WithError(err).Error("Failed to save torrent catalog snapshot")
	}
	if err := c.store.Save(state); err != nil {
		return apperrors.NewCycleError("failed to save state", err)
	}
	return nil
}

// syncTracking records pointer files found on disk and forgets the ones that vanished.
// Returns the set of URLs present on disk.
func (c *CycleController) syncTracking(state *models.State, entries []strm.Entry, now time.Time) map[string]bool {
	urls := make(map[string]bool, len(entries))
	present := make(map[string]bool, len(entries))
	checked := models.NewTimestamp(now)

	for _, entry := range entries {
		urls[entry.URL] = true
		present[entry.RelPath] = true

		tracked, ok := state.Tracking[entry.RelPath]
		if !ok || tracked.URL != entry.URL {
			tracked = models.FileTrackingEntry{
				CreatedAt: models.NewTimestamp(entry.CreatedAt),
				URL:       entry.URL,
			}
		}
		tracked.LastChecked = checked
		state.Tracking[entry.RelPath] = tracked
	}

	for rel := range state.Tracking {
		if !present[rel] {
			delete(state.Tracking, rel)
		}
	}
	return urls
}

// expiredURLs returns the URLs of pointer files older than the expiry window
func (c *CycleController) expiredURLs(state *models.State, now time.Time) map[string]bool {
	expired := make(map[string]bool)
	window := c.cfg.ExpiryWindow()
	for _, entry := range state.Tracking {
		if now.Sub(entry.CreatedAt.Time) > window {
			expired[entry.URL] = true
		}
	}
	return expired
}

// linksToResolve collects links without a usable record, links whose pointer expired and
// every queued link. The returned map carries torrent context for each link.
func (c *CycleController) linksToResolve(catalog realdebrid.Catalog, state *models.State, expired map[string]bool, summary *CycleSummary) ([]string, map[string]models.TorrentInfo) {
	var links []string
	seen := make(map[string]bool)
	torrentInfo := make(map[string]models.TorrentInfo)

	add := func(link string) {
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}

	downloaded := catalog.Downloaded()
	summary.Downloaded = len(downloaded)
	for i := range downloaded {
		torrent := &downloaded[i]
		if ignored, _ := c.reconciler.Ignored(torrent); ignored {
			continue
		}

		for _, link := range torrent.ResolvableLinks() {
			torrentInfo[link] = models.TorrentInfo{TorrentID: torrent.ID, TorrentName: torrent.Filename}

			record, ok := state.Lookup(link)
			switch {
			case !ok:
				add(link)
			case record.Status == models.LinkStatusSuccess && expired[record.DirectURL()]:
				add(link)
			case !record.Status.Blocking():
				add(link)
			}
		}
	}

	// Drain the retry queue through the resolver
	for _, item := range state.RetryQueue {
		if _, ok := torrentInfo[item.Link]; !ok {
			torrentInfo[item.Link] = item.TorrentInfo
		}
		add(item.Link)
	}

	return links, torrentInfo
}
