package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/amaumene/debridstrm/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	torrentsPageLimit = 100
	torrentsMaxPages  = 1000
)

// Catalog is the result of one full pagination
type Catalog struct {
	Torrents []models.Torrent
	Pages    int
	// Complete is false when pagination stopped on an error or the page cap
	Complete bool
}

// Downloaded returns the torrents ready for materialization
func (c Catalog) Downloaded() []models.Torrent {
	var out []models.Torrent
	for _, t := range c.Torrents {
		if t.Downloaded() {
			out = append(out, t)
		}
	}
	return out
}

// FetchTorrents pages through the account's torrents. Errors end pagination early
// and the pages fetched so far are returned.
func (c *Client) FetchTorrents(ctx context.Context) Catalog {
	catalog := Catalog{Torrents: []models.Torrent{}, Complete: true}

	for page := 1; ; page++ {
		if page > torrentsMaxPages {
			c.logger.WithField("pages", torrentsMaxPages).Warn("Reached torrent page cap, stopping pagination")
			catalog.Complete = false
			break
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			c.logger.WithError(err).Error("Torrent pagination interrupted")
			catalog.Complete = false
			break
		}

		path := fmt.Sprintf("/torrents?page=%d&limit=%d", page, torrentsPageLimit)
		status, body, err := c.doRequest(ctx, http.MethodGet, path, nil)
		catalog.Pages++
		log := c.logger.WithFields(logrus.Fields{
			"page":        page,
			"http_status": status,
		})
		if err != nil {
			log.WithError(err).Error("Failed to fetch torrents page")
			catalog.Complete = false
			break
		}

		if status == http.StatusNoContent || status == http.StatusNotFound {
			log.Debug("No more torrent pages")
			break
		}
		if status < 200 || status >= 300 {
			log.WithField("body", bodySnippet(body)).Error("Torrent listing failed")
			catalog.Complete = false
			break
		}

		var items []models.Torrent
		if err := json.Unmarshal(body, &items); err != nil {
			log.WithError(err).Error("Failed to decode torrents page")
			catalog.Complete = false
			break
		}

		catalog.Torrents = append(catalog.Torrents, items...)
		log.WithField("count", len(items)).Debug("Fetched torrents page")

		if len(items) < torrentsPageLimit {
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"torrents": len(catalog.Torrents),
		"pages":    catalog.Pages,
		"complete": catalog.Complete,
	}).Info("Torrent catalog fetched")

	return catalog
}
