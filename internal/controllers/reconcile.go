package controllers

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/amaumene/debridstrm/internal/models"
	"github.com/amaumene/debridstrm/internal/strm"
	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/sirupsen/logrus"
)

// ReconcileStats counts what happened to every candidate file of a cycle
type ReconcileStats struct {
	Torrents           int `json:"torrents"`
	IgnoredTorrents    int `json:"ignored_torrents"`
	TotalFiles         int `json:"total_files"`
	Processed          int `json:"processed"`
	SkippedExisting    int `json:"skipped_existing"`
	FilteredVideoSmall int `json:"filtered_video_small"`
	FilteredOther      int `json:"filtered_other"`
	FilteredNoFilename int `json:"filtered_no_filename"`
	Movies             int `json:"movies"`
	Episodes           int `json:"episodes"`
	Folders            int `json:"folders"`
	Created            int `json:"created"`
	Skipped            int `json:"skipped"`
	Failed             int `json:"failed"`
}

// PlannedFile is a candidate with its final location in the pointer tree
type PlannedFile struct {
	models.FileCandidate
	RelPath string
}

// Plan is the pure result of reconciliation before any filesystem access
type Plan struct {
	Writes []PlannedFile
	// Expected holds every path owned by an accepted file, including skipped ones
	Expected map[string]bool
	Stats    ReconcileStats
}

// PlanInput is everything reconciliation needs
type PlanInput struct {
	Torrents     []models.Torrent
	Resolved     map[string]*models.ResolvedLink
	ExistingURLs map[string]bool
	ExpiredURLs  map[string]bool
}

// Reconciler turns resolved links into pointer files
type Reconciler struct {
	tree   *strm.Tree
	filter *strm.Filter
	ignore *utils.IgnoreList
	logger *logrus.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(tree *strm.Tree, filter *strm.Filter, ignore *utils.IgnoreList, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		tree:   tree,
		filter: filter,
		ignore: ignore,
		logger: logger,
	}
}

// Ignored reports whether a torrent is excluded by the ignore list
func (r *Reconciler) Ignored(torrent *models.Torrent) (bool, string) {
	return r.ignore.Match(torrent.Filename)
}

// Plan decides which pointer files must be written. Paths are assigned over every accepted
// file in catalog order, so a file keeps its path from one cycle to the next.
func (r *Reconciler) Plan(in PlanInput) *Plan {
	plan := &Plan{Expected: make(map[string]bool)}
	folders := make(map[string]bool)

	for i := range in.Torrents {
		torrent := &in.Torrents[i]
		if !torrent.Downloaded() {
			continue
		}
		if ignored, term := r.Ignored(torrent); ignored {
			r.logger.WithFields(logrus.Fields{
				"torrent_id": torrent.ID,
				"term":       term,
			}).Debug("Torrent ignored")
			plan.Stats.IgnoredTorrents++
			continue
		}
		plan.Stats.Torrents++

		folder := strm.SanitizeFolderName(torrent.Filename, r.filter.KnownExtensions())
		for _, link := range torrent.ResolvableLinks() {
			record, ok := in.Resolved[link]
			if !ok || record.DirectURL() == "" {
				continue
			}
			file := record.Result
			plan.Stats.TotalFiles++

			existing := in.ExistingURLs[file.Download] && !in.ExpiredURLs[file.Download]
			category := r.filter.Classify(file.Filename, file.MimeType, file.Filesize)
			if existing {
				plan.Stats.SkippedExisting++
			} else if !category.Accepted() {
				switch category {
				case models.CategoryVideoSmall:
					plan.Stats.FilteredVideoSmall++
				case models.CategoryUnknown:
					plan.Stats.FilteredNoFilename++
				default:
					plan.Stats.FilteredOther++
				}
				continue
			}
			if !category.Accepted() {
				continue
			}

			rel := uniquePath(plan.Expected, folder, strm.SanitizeFileName(file.Filename))
			plan.Expected[rel] = true
			if existing {
				continue
			}

			kind := utils.ClassifyMedia(file.Filename, r.filter.VideoExtensions())
			switch kind {
			case utils.MediaKindTV:
				plan.Stats.Episodes++
			case utils.MediaKindMovie:
				plan.Stats.Movies++
			}

			plan.Stats.Processed++
			folders[folder] = true
			plan.Writes = append(plan.Writes, PlannedFile{
				FileCandidate: models.FileCandidate{
					TorrentID:  torrent.ID,
					SourceLink: link,
					FolderName: folder,
					FileName:   strings.TrimSuffix(path.Base(rel), strm.Extension),
					DirectURL:  file.Download,
					Category:   category,
					Filesize:   file.Filesize,
					MediaKind:  string(kind),
				},
				RelPath: rel,
			})
		}
	}

	plan.Stats.Folders = len(folders)
	return plan
}

// uniquePath returns folder/stem.strm, or folder/stem (n).strm when that path is taken
func uniquePath(taken map[string]bool, folder, stem string) string {
	rel := strm.RelPath(folder, stem)
	for n := 2; taken[rel]; n++ {
		rel = strm.RelPath(folder, fmt.Sprintf("%s (%d)", stem, n))
	}
	return rel
}

// Apply writes the planned pointer files. A failed write is logged and skipped.
// Returns the files whose content changed.
func (r *Reconciler) Apply(plan *Plan) []PlannedFile {
	var written []PlannedFile
	for _, file := range plan.Writes {
		log := r.logger.WithFields(logrus.Fields{
			"torrent_id": file.TorrentID,
			"link":       file.SourceLink,
			"path":       file.RelPath,
		})

		changed, err := r.tree.Write(file.RelPath, file.DirectURL)
		if err != nil {
			log.WithError(err).Error("Failed to write pointer file")
			plan.Stats.Failed++
			continue
		}
		if !changed {
			plan.Stats.Skipped++
			continue
		}

		plan.Stats.Created++
		written = append(written, file)
		if file.MediaKind == string(utils.MediaKindTV) {
			info := utils.ParseSeriesInfo(file.FileName)
			log = log.WithFields(logrus.Fields{
				"show":    info.ShowName,
				"episode": info.Tag(),
			})
		}
		log.WithField("category", file.Category).Debug("Pointer file written")
	}
	return written
}

// NextRetryQueue keeps exactly the links deferred this cycle. Links that were already queued
// carry their retry count forward.
func NextRetryQueue(outcomes []models.Outcome, torrents map[string]models.TorrentInfo, previous []models.RetryQueueItem, now time.Time) []models.RetryQueueItem {
	prior := make(map[string]models.RetryQueueItem, len(previous))
	for _, item := range previous {
		prior[item.Link] = item
	}

	queue := []models.RetryQueueItem{}
	seen := make(map[string]bool)
	for _, outcome := range outcomes {
		if outcome.Kind != models.LinkStatusRetryNextCycle || outcome.Canceled || seen[outcome.Link] {
			continue
		}
		seen[outcome.Link] = true

		item := models.RetryQueueItem{
			Link:        outcome.Link,
			TorrentInfo: torrents[outcome.Link],
			AddedAt:     models.NewTimestamp(now),
		}
		if old, ok := prior[outcome.Link]; ok {
			item.AddedAt = old.AddedAt
			item.RetryCount = old.RetryCount + 1
			if item.TorrentInfo.TorrentID == "" {
				item.TorrentInfo = old.TorrentInfo
			}
		}
		queue = append(queue, item)
	}
	return queue
}
