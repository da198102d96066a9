package realdebrid

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/debridstrm/internal/config"
	"github.com/amaumene/debridstrm/internal/models"
	"github.com/amaumene/debridstrm/internal/utils/utilstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLink = "https://real-debrid.com/d/ABCDEF"

// sequenceHandler answers each unrestrict call with the next status. 200 returns a file payload.
func sequenceHandler(t *testing.T, statuses []int, calls *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/unrestrict/link", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, testLink, r.PostForm.Get("link"))

		n := int(atomic.AddInt32(calls, 1)) - 1
		status := statuses[len(statuses)-1]
		if n < len(statuses) {
			status = statuses[n]
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"nope"}`))
			return
		}
		json.NewEncoder(w).Encode(models.UnrestrictedFile{
			ID:       "FILE1",
			Filename: "Show.S01E01.mkv",
			MimeType: "video/x-matroska",
			Filesize: 500 * 1024 * 1024,
			Link:     testLink,
			Host:     "real-debrid.com",
			Download: "https://download.real-debrid.com/d/XYZ/Show.S01E01.mkv",
		})
	})
}

func TestUnrestrictSuccess(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, sequenceHandler(t, []int{200}, &calls), nil)

	outcome := client.Unrestrict(context.Background(), testLink)

	assert.Equal(t, models.LinkStatusSuccess, outcome.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	require.NotNil(t, outcome.File)
	assert.Equal(t, "https://download.real-debrid.com/d/XYZ/Show.S01E01.mkv", outcome.File.Download)
	assert.Equal(t, int64(500*1024*1024), outcome.File.Filesize)
}

func TestUnrestrictUnavailableDefers(t *testing.T) {
	var calls int32
	client, clock := newTestClient(t, sequenceHandler(t, []int{503, 503, 503}, &calls), nil)

	outcome := client.Unrestrict(context.Background(), testLink)

	assert.Equal(t, models.LinkStatusRetryNextCycle, outcome.Kind)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusServiceUnavailable, outcome.HTTPStatus)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clock.Sleeps())
}

func TestUnrestrictRateLimitExhausted(t *testing.T) {
	var calls int32
	client, clock := newTestClient(t, sequenceHandler(t, []int{429, 429, 429, 429}, &calls), nil)

	outcome := client.Unrestrict(context.Background(), testLink)

	assert.Equal(t, models.LinkStatusRateLimited, outcome.Kind)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, clock.Sleeps())
}

func TestUnrestrictRecoversAfterRateLimit(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, sequenceHandler(t, []int{429, 503, 200}, &calls), nil)

	outcome := client.Unrestrict(context.Background(), testLink)

	assert.Equal(t, models.LinkStatusSuccess, outcome.Kind)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Empty(t, outcome.Error)
}

func TestUnrestrictNoRetriesConfigured(t *testing.T) {
	var calls int32
	client, clock := newTestClient(t, sequenceHandler(t, []int{503}, &calls), func(cfg *config.Config) {
		cfg.Retry503Attempts = 0
	})

	outcome := client.Unrestrict(context.Background(), testLink)

	assert.Equal(t, models.LinkStatusRetryNextCycle, outcome.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, clock.Sleeps())
}

func TestUnrestrictPermanentFailures(t *testing.T) {
	t.Run("other status", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, sequenceHandler(t, []int{403}, &calls), nil)

		outcome := client.Unrestrict(context.Background(), testLink)
		assert.Equal(t, models.LinkStatusFailed, outcome.Kind)
		assert.Equal(t, 403, outcome.HTTPStatus)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Contains(t, outcome.Error, "status 403")
	})

	t.Run("malformed payload", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}), nil)

		outcome := client.Unrestrict(context.Background(), testLink)
		assert.Equal(t, models.LinkStatusFailed, outcome.Kind)
		assert.Contains(t, outcome.Error, "malformed")
	})
}

func TestUnrestrictCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}), nil)

	outcome := client.Unrestrict(ctx, testLink)

	assert.True(t, outcome.Canceled)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUnrestrictRetriesWaitForRateLimiter(t *testing.T) {
	var calls int32
	var clockRef atomic.Pointer[utilstest.FakeClock]
	var mu sync.Mutex
	var sentAt []time.Time

	inner := sequenceHandler(t, []int{503, 503, 200}, &calls)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sentAt = append(sentAt, clockRef.Load().Now())
		mu.Unlock()
		inner.ServeHTTP(w, r)
	})

	// 2 requests per minute: 30s between requests, longer than the 10s unavailable backoff
	client, clock := newTestClient(t, handler, func(cfg *config.Config) {
		cfg.RateLimitPerMinute = 2
	})
	clockRef.Store(clock)

	outcome := client.Unrestrict(context.Background(), testLink)
	assert.Equal(t, models.LinkStatusSuccess, outcome.Kind)
	assert.Equal(t, 3, outcome.Attempts)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sentAt, 3)
	for i := 1; i < len(sentAt); i++ {
		assert.GreaterOrEqual(t, sentAt[i].Sub(sentAt[i-1]), 30*time.Second-time.Millisecond)
	}

	var backoff, limiter time.Duration
	for _, d := range clock.Sleeps() {
		if d == unavailableDelay {
			backoff += d
		} else {
			limiter += d
		}
	}
	assert.Equal(t, 2*unavailableDelay, backoff)
	assert.InDelta(t, float64(40*time.Second), float64(limiter), float64(time.Millisecond))
}
