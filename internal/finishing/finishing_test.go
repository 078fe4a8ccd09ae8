package finishing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClient_ChainCost(t *testing.T) {
	c := &StaticClient{}

	res, err := c.EstimateChain(context.Background(), ChainInput{
		Finishes:       []string{"anodize_clear", "bead_blast"},
		SurfaceAreaCm2: 500,
		Quantity:       10,
	})
	require.NoError(t, err)

	// anodize: 0.012 * 500 * 10 = 60; bead blast: 0.008 * 500 * 10 = 40.
	require.Len(t, res.Steps, 2)
	assert.InDelta(t, 60.0, res.Steps[0].Cost, 1e-9)
	assert.InDelta(t, 40.0, res.Steps[1].Cost, 1e-9)
	assert.InDelta(t, 100.0, res.Cost, 1e-9)
	assert.Equal(t, 3, res.AddedLeadDays)
}

func TestStaticClient_LotMinimum(t *testing.T) {
	c := &StaticClient{}

	// Tiny part: 0.012 * 10 * 1 = 0.12, below the $25 lot minimum.
	res, err := c.EstimateChain(context.Background(), ChainInput{
		Finishes:       []string{"anodize_clear"},
		SurfaceAreaCm2: 10,
		Quantity:       1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, res.Cost, 1e-9)
}

func TestStaticClient_UnknownFinishEstimated(t *testing.T) {
	c := &StaticClient{}

	res, err := c.EstimateChain(context.Background(), ChainInput{
		Finishes:       []string{"cerakote"},
		SurfaceAreaCm2: 1000,
		Quantity:       1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 15.0, res.Cost, 1e-9) // 0.015 * 1000
}

func TestStaticClient_EmptyChain(t *testing.T) {
	c := &StaticClient{}
	res, err := c.EstimateChain(context.Background(), ChainInput{Quantity: 5})
	require.NoError(t, err)
	assert.Zero(t, res.Cost)
	assert.Zero(t, res.AddedLeadDays)
}

func TestHTTPClient_EstimateChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finishing/estimate", r.URL.Path)

		var in ChainInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"anodize_black"}, in.Finishes)

		json.NewEncoder(w).Encode(ChainResult{Cost: 88.5, AddedLeadDays: 2})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0)
	res, err := c.EstimateChain(context.Background(), ChainInput{
		Finishes: []string{"anodize_black"},
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 88.5, res.Cost)
	assert.Equal(t, 2, res.AddedLeadDays)
}

func TestHTTPClient_BadRequestNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0)
	_, err := c.EstimateChain(context.Background(), ChainInput{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
