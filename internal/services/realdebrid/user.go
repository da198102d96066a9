package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/amaumene/debridstrm/internal/errors"
	"github.com/amaumene/debridstrm/internal/models"
)

// GetUser returns the account the API key belongs to
func (c *Client) GetUser(ctx context.Context) (*models.User, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	status, body, err := c.doRequest(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return nil, apperrors.NewPermanentRemoteError("user request failed", err)
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return nil, apperrors.NewTransientRemoteError(status, nil)
	case status < 200 || status >= 300:
		return nil, apperrors.NewPermanentRemoteError(fmt.Sprintf("API request failed with status %d: %s", status, bodySnippet(body)), nil)
	}

	var user models.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, apperrors.NewPermanentRemoteError("malformed user response", err)
	}
	return &user, nil
}
