package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/amaumene/debridstrm/internal/errors"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const unrestrictPath = "/unrestrict/link"

// Backoff schedule for throttled and unavailable responses
const (
	rateLimitInitialDelay = 2 * time.Second
	unavailableDelay      = 10 * time.Second
)

// rateLimitBackOff doubles from 2s and stops after maxRetries retries
func (c *Client) rateLimitBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     rateLimitInitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Hour,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.retry429))
}

// unavailableBackOff waits a fixed 10s and stops after maxRetries retries
func (c *Client) unavailableBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(unavailableDelay), uint64(c.retry503))
}

// Unrestrict resolves one hoster link into a direct download URL. Concurrent calls for the
// same link share one resolution. It never returns an error: every failure is an Outcome.
func (c *Client) Unrestrict(ctx context.Context, link string) models.Outcome {
	v, _, _ := c.inflight.Do(link, func() (interface{}, error) {
		return c.unrestrict(ctx, link), nil
	})
	return v.(models.Outcome)
}

func (c *Client) unrestrict(ctx context.Context, link string) models.Outcome {
	outcome := models.Outcome{Link: link}
	throttled := c.rateLimitBackOff()
	unavailable := c.unavailableBackOff()
	log := c.logger.WithField("link", link)

	for {
		if err := c.limiter.Acquire(ctx); err != nil {
			return c.finish(canceled(outcome, err))
		}
		outcome.Attempts++

		// In-flight calls run to completion even when the cycle is stopped
		status, body, err := c.doRequest(context.WithoutCancel(ctx), http.MethodPost, unrestrictPath, url.Values{"link": {link}})
		outcome.HTTPStatus = status
		if err != nil {
			appErr := apperrors.NewPermanentRemoteError("unrestrict request failed", err)
			log.WithError(appErr).Error("Failed to unrestrict link")
			outcome.Kind = models.LinkStatusFailed
			outcome.Error = appErr.Error()
			return c.finish(outcome)
		}

		switch {
		case status >= 200 && status < 300:
			var file models.UnrestrictedFile
			if err := json.Unmarshal(body, &file); err != nil {
				appErr := apperrors.NewPermanentRemoteError("malformed unrestrict response", err)
				log.WithError(appErr).Error("Failed to decode unrestrict response")
				outcome.Kind = models.LinkStatusFailed
				outcome.Error = appErr.Error()
				return c.finish(outcome)
			}
			outcome.Kind = models.LinkStatusSuccess
			outcome.File = &file
			outcome.Error = ""
			log.WithFields(logrus.Fields{
				"filename": file.Filename,
				"attempts": outcome.Attempts,
			}).Debug("Link unrestricted")
			return c.finish(outcome)

		case status == http.StatusTooManyRequests:
			next := throttled.NextBackOff()
			if next == backoff.Stop {
				outcome.Kind = models.LinkStatusRateLimited
				outcome.Error = apperrors.NewTransientRemoteError(status, fmt.Errorf("rate limit exceeded after %d attempts", outcome.Attempts)).Error()
				log.WithFields(logrus.Fields{
					"http_status": status,
					"attempts":    outcome.Attempts,
				}).Error("Rate limit retries exhausted")
				return c.finish(outcome)
			}
			c.observer.ObserveRetry(unrestrictPath, status)
			log.WithFields(logrus.Fields{
				"http_status": status,
				"delay":       next,
				"attempt":     outcome.Attempts,
			}).Warn("Rate limited, backing off")
			if err := c.clock.Sleep(ctx, next); err != nil {
				return c.finish(canceled(outcome, err))
			}

		case status == http.StatusServiceUnavailable:
			next := unavailable.NextBackOff()
			if next == backoff.Stop {
				outcome.Kind = models.LinkStatusRetryNextCycle
				outcome.Error = apperrors.NewTransientRemoteError(status, fmt.Errorf("service unavailable after %d attempts", outcome.Attempts)).Error()
				log.WithFields(logrus.Fields{
					"http_status": status,
					"attempts":    outcome.Attempts,
				}).Warn("Service unavailable, deferring link to next cycle")
				return c.finish(outcome)
			}
			c.observer.ObserveRetry(unrestrictPath, status)
			log.WithFields(logrus.Fields{
				"http_status": status,
				"delay":       next,
				"attempt":     outcome.Attempts,
			}).Warn("Service unavailable, retrying")
			if err := c.clock.Sleep(ctx, next); err != nil {
				return c.finish(canceled(outcome, err))
			}

		default:
			appErr := apperrors.NewPermanentRemoteError(fmt.Sprintf("API request failed with status %d: %s", status, bodySnippet(body)), nil)
			log.WithFields(logrus.Fields{
				"http_status": status,
			}).WithError(appErr).Error("Failed to unrestrict link")
			outcome.Kind = models.LinkStatusFailed
			outcome.Error = appErr.Error()
			return c.finish(outcome)
		}
	}
}

func (c *Client) finish(outcome models.Outcome) models.Outcome {
	c.observer.ObserveOutcome(outcome.Kind, outcome.Attempts)
	return outcome
}

// canceled marks an outcome stopped by shutdown. It is not a permanent failure of the link.
func canceled(outcome models.Outcome, err error) models.Outcome {
	outcome.Kind = models.LinkStatusFailed
	outcome.Error = fmt.Sprintf("canceled: %v", err)
	outcome.Canceled = true
	return outcome
}
