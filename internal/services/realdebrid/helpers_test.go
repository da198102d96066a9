package realdebrid

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amaumene/debridstrm/internal/config"
	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/amaumene/debridstrm/internal/utils/utilstest"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		APIKey:             "test-key",
		APIBaseURL:         baseURL,
		HTTPTimeoutSeconds: 5,
		RateLimitPerMinute: 200,
		ConcurrencyLimit:   3,
		Retry503Attempts:   2,
		Retry429Attempts:   3,
	}
}

func newTestClient(t *testing.T, handler http.Handler, mutate func(*config.Config)) (*Client, *utilstest.FakeClock) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	if mutate != nil {
		mutate(cfg)
	}
	clock := utilstest.NewFakeClock(testStart)
	client, err := NewClient(cfg, utils.NewDiscardLogger(), WithClock(clock))
	require.NoError(t, err)
	return client, clock
}
