/**
 * @description
 * This package provides a read-only client for the account-service internal
 * lookup endpoint. The notification consumer uses it to resolve a recipient
 * email when the triggering event payload does not carry one.
 */
package accountclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the account service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new account service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Account is the lookup response shape.
type Account struct {
	OK      bool    `json:"ok"`
	UserID  string  `json:"user_id"`
	Email   string  `json:"email"`
	Balance float64 `json:"balance"`
}

// FindAccount fetches the account record for a user. correlationID, when set,
// is forwarded so the lookup shows up under the same saga trace.
func (c *Client) FindAccount(ctx context.Context, userID, correlationID string) (*Account, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("account service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/accounts/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to account service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("account service returned error status %d", resp.StatusCode)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &account, nil
}
