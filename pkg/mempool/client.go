// Package mempool fetches recommended fee rates from a mempool.space
// compatible REST endpoint.
package mempool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultBaseURL is the public mempool.space API endpoint.
const DefaultBaseURL = "https://mempool.space/api"

// FeeRates carries the recommended fee tiers in sat/vB, as served by the
// /v1/fees/recommended endpoint.
type FeeRates struct {
	FastestFee  uint64 `json:"fastestFee"`
	HalfHourFee uint64 `json:"halfHourFee"`
	HourFee     uint64 `json:"hourFee"`
	EconomyFee  uint64 `json:"economyFee"`
	MinimumFee  uint64 `json:"minimumFee"`
}

// Client is a minimal read-only client for the fee estimation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client against the given base URL, falling back to
// the public endpoint when empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// RecommendedFees fetches the current recommended fee tiers.
func (c *Client) RecommendedFees(ctx context.Context) (*FeeRates, error) {
	url := c.baseURL + "/v1/fees/recommended"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fee rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fee rate request returned status %d", resp.StatusCode)
	}

	var rates FeeRates
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return nil, fmt.Errorf("malformed fee rate response: %w", err)
	}
	return &rates, nil
}
