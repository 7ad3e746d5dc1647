package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Tendera platform.
type Config struct {
	APIURL  string // Base URL, e.g. "http://localhost:8080"
	ActorID string // Caller identity forwarded as X-Actor-ID
}

// TenderaClient is a pure HTTP client for the Tendera platform API.
type TenderaClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewTenderaClient creates a new client for the Tendera platform.
func NewTenderaClient(cfg Config) *TenderaClient {
	return &TenderaClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *TenderaClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.ActorID != "" {
		req.Header.Set("X-Actor-ID", c.cfg.ActorID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// BrowseRequests lists open buyer requests, optionally filtered by category.
func (c *TenderaClient) BrowseRequests(ctx context.Context, category string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/requests", q, nil)
}

// GetRequest returns a single request by ID.
func (c *TenderaClient) GetRequest(ctx context.Context, requestID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/requests/"+requestID, nil, nil)
}

// ListBids returns the bids on a request.
func (c *TenderaClient) ListBids(ctx context.Context, requestID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/requests/"+requestID+"/bids", nil, nil)
}

// GetEscrow returns the escrow transaction for a request. The caller must
// be the buyer or seller.
func (c *TenderaClient) GetEscrow(ctx context.Context, requestID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/requests/"+requestID+"/escrow", nil, nil)
}

// MyRequests lists the caller's own requests.
func (c *TenderaClient) MyRequests(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/my/requests", nil, nil)
}

// MyBids lists the caller's own bids.
func (c *TenderaClient) MyBids(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/my/bids", nil, nil)
}
