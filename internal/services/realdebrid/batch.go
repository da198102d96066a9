package realdebrid

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/debridstrm/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// UnrestrictAll resolves links in groups of the configured concurrency.
// outcomes[i] always belongs to links[i]. Duplicate links are resolved once.
func (c *Client) UnrestrictAll(ctx context.Context, links []string) []models.Outcome {
	outcomes := make([]models.Outcome, len(links))
	if len(links) == 0 {
		return outcomes
	}

	// Resolve each distinct link once, then fan results back out
	var unique []string
	positions := make(map[string][]int, len(links))
	for i, link := range links {
		if _, seen := positions[link]; !seen {
			unique = append(unique, link)
		}
		positions[link] = append(positions[link], i)
	}

	groupSize := c.concurrency
	if groupSize <= 0 {
		groupSize = 1
	}
	groups := (len(unique) + groupSize - 1) / groupSize

	c.logger.WithFields(logrus.Fields{
		"links":       len(links),
		"unique":      len(unique),
		"concurrency": groupSize,
		"groups":      groups,
	}).Info("Unrestricting links")

	results := make([]models.Outcome, len(unique))
	for start := 0; start < len(unique); start += groupSize {
		end := start + groupSize
		if end > len(unique) {
			end = len(unique)
		}
		began := c.clock.Now()

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				results[i] = c.safeUnrestrict(ctx, unique[i])
				return nil
			})
		}
		_ = g.Wait()

		if end == len(unique) {
			break
		}

		pause := c.groupPause(end-start, c.clock.Now().Sub(began))
		if pause > 0 {
			c.logger.WithField("pause", pause).Debug("Pacing next group")
			if err := c.clock.Sleep(ctx, pause); err != nil {
				for i := end; i < len(unique); i++ {
					results[i] = canceled(models.Outcome{Link: unique[i]}, err)
				}
				break
			}
		}
	}

	for i, link := range unique {
		for _, pos := range positions[link] {
			outcomes[pos] = results[i]
		}
	}
	return outcomes
}

// groupPause returns how long to wait so a group of n requests lasted at least n request intervals
func (c *Client) groupPause(n int, elapsed time.Duration) time.Duration {
	minimum := time.Duration(n) * (time.Minute / time.Duration(c.perMinute))
	if elapsed >= minimum {
		return 0
	}
	return minimum - elapsed
}

// safeUnrestrict turns a panic inside one resolution into a failed outcome
func (c *Client) safeUnrestrict(ctx context.Context, link string) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"link":  link,
				"panic": r,
			}).Error("Link resolution panicked")
			outcome = models.Outcome{
				Link:  link,
				Kind:  models.LinkStatusFailed,
				Error: fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return c.Unrestrict(ctx, link)
}
