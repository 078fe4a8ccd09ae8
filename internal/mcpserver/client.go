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
)

// Config holds the configuration for connecting to the quotecore platform.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	OrgID  string // Tenant org id all requests are scoped to
}

// QuotecoreClient is a pure HTTP client for the quotecore platform API.
type QuotecoreClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewQuotecoreClient creates a new client for the quotecore platform.
func NewQuotecoreClient(cfg Config) *QuotecoreClient {
	return &QuotecoreClient{
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
func (c *QuotecoreClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
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

// CalculatePricing prices a quote line.
func (c *QuotecoreClient) CalculatePricing(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	req["orgId"] = c.cfg.OrgID
	return c.doRequest(ctx, http.MethodPost, "/v1/pricing/calculate", nil, req)
}

// GetPricingRecord fetches one persisted pricing calculation.
func (c *QuotecoreClient) GetPricingRecord(ctx context.Context, recordID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("org", c.cfg.OrgID)
	return c.doRequest(ctx, http.MethodGet, "/v1/pricing/records/"+recordID, q, nil)
}

// ListQuotePricing lists pricing records for a quote, newest first.
func (c *QuotecoreClient) ListQuotePricing(ctx context.Context, quoteID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("org", c.cfg.OrgID)
	return c.doRequest(ctx, http.MethodGet, "/v1/quotes/"+quoteID+"/pricing", q, nil)
}

// ParseTolerances previews tolerance normalization.
func (c *QuotecoreClient) ParseTolerances(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/tolerances/parse", nil, req)
}

// GetMaterial looks up a material by code.
func (c *QuotecoreClient) GetMaterial(ctx context.Context, code, region string) (json.RawMessage, error) {
	var q url.Values
	if region != "" {
		q = url.Values{}
		q.Set("region", region)
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/materials/"+code, q, nil)
}

// GetCatalogVersion returns the active cost-book version.
func (c *QuotecoreClient) GetCatalogVersion(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/catalog/version", nil, nil)
}
