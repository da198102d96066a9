package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthHandler reports liveness and whether the last cycle succeeded
type HealthHandler struct {
	summaries SummaryProvider
	logger    *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(summaries SummaryProvider, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{summaries: summaries, logger: logger}
}

// HealthResponse represents the health response
type HealthResponse struct {
	Status    string     `json:"status"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ServeHTTP handles the health check endpoint. A failed last cycle reports "degraded" with 200.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "healthy"}
	if last := h.summaries.LastSummary(); last != nil {
		started := last.StartedAt
		response.LastCycle = &started
		if last.Error != "" {
			response.Status = "degraded"
			response.Error = last.Error
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
