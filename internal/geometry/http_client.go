package geometry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mbd888/quotecore/internal/circuitbreaker"
	"github.com/mbd888/quotecore/internal/retry"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20 // 1MB
)

// HTTPAnalyzer calls the geometry service over HTTP. Transient failures are
// retried with backoff; repeated failures trip a circuit breaker so pricing
// degrades fast instead of queueing on a dead service.
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

var _ Analyzer = (*HTTPAnalyzer)(nil)

// NewHTTPAnalyzer creates a client for the geometry service at baseURL.
// Pass timeout=0 to use the default.
func NewHTTPAnalyzer(baseURL string, timeout time.Duration) *HTTPAnalyzer {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPAnalyzer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("geometry", 5, 30*time.Second),
	}
}

// Analyze fetches the snapshot for a part.
// GET {base}/v1/parts/{partID}/geometry?org={orgID}
func (a *HTTPAnalyzer) Analyze(ctx context.Context, orgID, partID string) (*Snapshot, error) {
	if !a.breaker.Allow() {
		return nil, fmt.Errorf("geometry: circuit open")
	}

	endpoint := fmt.Sprintf("%s/v1/parts/%s/geometry?org=%s",
		a.baseURL, url.PathEscape(partID), url.QueryEscape(orgID))

	var snap Snapshot
	err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return fmt.Errorf("geometry request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("read geometry response: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return retry.Permanent(fmt.Errorf("geometry: part %s not analyzed", partID))
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("geometry service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.Permanent(fmt.Errorf("geometry service returned %d", resp.StatusCode))
		}
		if err := json.Unmarshal(body, &snap); err != nil {
			return retry.Permanent(fmt.Errorf("decode geometry response: %w", err))
		}
		return nil
	})
	if err != nil {
		a.breaker.RecordFailure()
		return nil, err
	}

	a.breaker.RecordSuccess()
	return &snap, nil
}
