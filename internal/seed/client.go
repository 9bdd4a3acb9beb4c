// Package seed implements the one-shot catalog importer (C13): a small
// HTTP client fetches a card listing from an upstream catalog service and
// persists it via the same catalog store the API uses. Grounded on the
// teacher's pkg/bookowl/client.go external-API-client shape (one http.Client
// with a finite, caller-configurable timeout, no retries).
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// UpstreamCard is one entry in the upstream catalog listing response.
type UpstreamCard struct {
	Name        string `json:"name"`
	Type        string `json:"humanReadableCardType"`
	Description string `json:"description"`
	Race        string `json:"race"`
	Attribute   string `json:"attribute"`
	Archetype   string `json:"archetype"`
}

type upstreamListResponse struct {
	Data []UpstreamCard `json:"data"`
}

// Client fetches card listings from the upstream catalog service (§4.9.3,
// §C13). timeout bounds every request; there is no retry loop, matching
// the teacher's client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a Client bound to baseURL with the given timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// ListCards fetches one page of the upstream card catalog.
func (c *Client) ListCards(ctx context.Context, offset, limit int) ([]UpstreamCard, error) {
	url := fmt.Sprintf("%s/cards?offset=%d&limit=%d", c.baseURL, offset, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling upstream catalog: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream catalog returned HTTP %d", resp.StatusCode)
	}

	var result upstreamListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result.Data, nil
}
