package finishing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/quotecore/internal/circuitbreaker"
	"github.com/mbd888/quotecore/internal/retry"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20 // 1MB
)

// HTTPClient calls the finishing cost service over HTTP with retry and a
// circuit breaker.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the finishing service at baseURL.
// Pass timeout=0 to use the default.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("finishing", 5, 30*time.Second),
	}
}

// EstimateChain prices a finish chain.
// POST {base}/v1/finishing/estimate
func (c *HTTPClient) EstimateChain(ctx context.Context, in ChainInput) (*ChainResult, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("finishing: circuit open")
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("finishing: encode request: %w", err)
	}

	var res ChainResult
	err = retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/finishing/estimate", bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("finishing request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("read finishing response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("finishing service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("finishing service returned %d", resp.StatusCode))
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return retry.Permanent(fmt.Errorf("decode finishing response: %w", err))
		}
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	return &res, nil
}
