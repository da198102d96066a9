package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/amaumene/debridstrm/internal/controllers"
	"github.com/amaumene/debridstrm/internal/models"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	accountCacheKey = "account"
	accountCacheTTL = 10 * time.Minute
)

// SummaryProvider exposes the most recent cycle summary
type SummaryProvider interface {
	LastSummary() *controllers.CycleSummary
}

// AccountProvider fetches the Real-Debrid account
type AccountProvider interface {
	GetUser(ctx context.Context) (*models.User, error)
}

// StatusHandler handles status requests
type StatusHandler struct {
	summaries SummaryProvider
	account   AccountProvider
	cache     *gocache.Cache
	logger    *logrus.Logger
}

// NewStatusHandler creates a new status handler. account may be nil.
func NewStatusHandler(summaries SummaryProvider, account AccountProvider, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		summaries: summaries,
		account:   account,
		cache:     gocache.New(accountCacheTTL, 2*accountCacheTTL),
		logger:    logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	LastCycle    *controllers.CycleSummary `json:"last_cycle"`
	Account      *AccountStatus            `json:"account,omitempty"`
	AccountError string                    `json:"account_error,omitempty"`
}

// AccountStatus is the subset of the account shown on the status page
type AccountStatus struct {
	Username   string `json:"username"`
	Type       string `json:"type"`
	Points     int    `json:"points"`
	Expiration string `json:"expiration"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := StatusResponse{LastCycle: h.summaries.LastSummary()}

	if h.account != nil {
		account, err := h.lookupAccount(r.Context())
		if err != nil {
			h.logger.WithError(err).Warn("Failed to fetch account for status")
			response.AccountError = err.Error()
		} else {
			response.Account = account
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *StatusHandler) lookupAccount(ctx context.Context) (*AccountStatus, error) {
	if cached, ok := h.cache.Get(accountCacheKey); ok {
		return cached.(*AccountStatus), nil
	}

	user, err := h.account.GetUser(ctx)
	if err != nil {
		return nil, err
	}

	account := &AccountStatus{
		Username:   user.Username,
		Type:       user.Type,
		Points:     user.Points,
		Expiration: user.Expiration,
	}
	h.cache.Set(accountCacheKey, account, gocache.DefaultExpiration)
	return account, nil
}
