package rng

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"

// RandomOrgClient fetches true random integers from RANDOM.ORG for seeding.
type RandomOrgClient struct {
	apiKey   string
	endpoint string
	logger   *slog.Logger
	client   *http.Client
}

// NewRandomOrgClient creates a new RANDOM.ORG client.
func NewRandomOrgClient(apiKey string, logger *slog.Logger) *RandomOrgClient {
	return &RandomOrgClient{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		logger:   logger,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithEndpoint points the client at another JSON-RPC URL.
func (c *RandomOrgClient) WithEndpoint(url string) *RandomOrgClient {
	c.endpoint = url
	return c
}

// Enabled reports whether an API key is configured.
func (c *RandomOrgClient) Enabled() bool { return c.apiKey != "" }

// Seed packs four 16-bit integers from RANDOM.ORG into a 64-bit seed.
func (c *RandomOrgClient) Seed(ctx context.Context) (uint64, error) {
	data, err := c.integers(ctx, 4, 0, 0xFFFF)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("random.org returned %d integers, want 4", len(data))
	}
	var seed uint64
	for _, v := range data {
		seed = seed<<16 | uint64(v&0xFFFF)
	}
	return seed, nil
}

func (c *RandomOrgClient) integers(ctx context.Context, n, min, max int) ([]int, error) {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey":      c.apiKey,
			"n":           n,
			"min":         min,
			"max":         max,
			"replacement": true,
		},
		"id": 1,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %d", resp.StatusCode)
	}

	var response struct {
		Result struct {
			Random struct {
				Data []int `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("api error: %s", response.Error.Message)
	}

	return response.Result.Random.Data, nil
}
