package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/ledgerlens/internal/analysis"
)

// Config holds the configuration for connecting to a ledgerlens API server.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration // per request; analyses can take minutes
}

// Client is a pure HTTP client for the ledgerlens API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// apiError represents an error response from the server.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request and decodes a 2xx JSON body into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Analyze runs a full network analysis around address.
func (c *Client) Analyze(ctx context.Context, address string, maxDepth, maxNodes int) (*analysis.Report, error) {
	body := map[string]any{"address": address}
	if maxDepth > 0 {
		body["maxDepth"] = maxDepth
	}
	if maxNodes > 0 {
		body["maxNodes"] = maxNodes
	}
	var rep analysis.Report
	if err := c.doRequest(ctx, http.MethodPost, "/v1/analyses", body, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ScoreAccount fetches the immediate risk of one account.
func (c *Client) ScoreAccount(ctx context.Context, address string) (*analysis.AccountAssessment, error) {
	var a analysis.AccountAssessment
	if err := c.doRequest(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(address)+"/risk", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Health returns the server's /health document. A degraded server
// answers 503, which surfaces as an error.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var h map[string]any
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return h, nil
}
