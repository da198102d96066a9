package realdebrid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amaumene/debridstrm/internal/config"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Observer receives request and resolution events, typically for metrics
type Observer interface {
	ObserveRequest(endpoint string, status int, duration time.Duration)
	ObserveRetry(endpoint string, status int)
	ObserveOutcome(kind models.LinkStatus, attempts int)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, int, time.Duration) {}
func (noopObserver) ObserveRetry(string, int)                  {}
func (noopObserver) ObserveOutcome(models.LinkStatus, int)     {}

// Client handles communication with the Real-Debrid API
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	limiter     *RateLimiter
	clock       utils.Clock
	observer    Observer
	logger      *logrus.Logger
	retry429    int
	retry503    int
	concurrency int
	perMinute   int
	inflight    singleflight.Group
}

// Option customizes a Client
type Option func(*Client)

// WithClock replaces the wall clock, mostly for tests
func WithClock(clock utils.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithObserver registers an event observer
func WithObserver(observer Observer) Option {
	return func(c *Client) { c.observer = observer }
}

// NewClient creates a new Real-Debrid API client
func NewClient(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Real-Debrid API key is required")
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout()},
		clock:       utils.RealClock{},
		observer:    noopObserver{},
		logger:      logger,
		retry429:    cfg.Retry429Attempts,
		retry503:    cfg.Retry503Attempts,
		concurrency: cfg.ConcurrencyLimit,
		perMinute:   cfg.RateLimitPerMinute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = NewRateLimiter(cfg.RateLimitPerMinute, c.clock)

	return c, nil
}

// doRequest performs an authenticated request and returns the status code and body.
// Status interpretation is left to the caller.
func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) (int, []byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	fullURL := c.baseURL + path
	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    fullURL,
	}).Debug("Making Real-Debrid API request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	endpoint := path
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.ObserveRequest(endpoint, 0, time.Since(start))
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.observer.ObserveRequest(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// bodySnippet keeps error messages readable when the remote returns a large page
func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
