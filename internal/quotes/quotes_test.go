package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/quotecore/internal/pricing"
)

func sampleResponse() *pricing.Response {
	return &pricing.Response{
		QuoteID:        "q1",
		LineID:         "l1",
		Process:        "cnc_milling",
		MaterialCode:   "AL_6061_T6",
		CatalogVersion: 3,
		Matrix: []pricing.MatrixEntry{
			{Quantity: 1, UnitPrice: 168.29, TotalPrice: 168.29, OrchestratorVersion: "2026.1"},
			{Quantity: 10, UnitPrice: 76.55, TotalPrice: 765.50, OrchestratorVersion: "2026.1"},
		},
		Currency: "usd",
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("qp_1", "org1", sampleResponse())

	assert.Equal(t, "qp_1", rec.ID)
	assert.Equal(t, "org1", rec.OrgID)
	assert.Equal(t, "q1", rec.QuoteID)
	assert.Equal(t, int64(3), rec.CatalogVersion)
	assert.Equal(t, "2026.1", rec.OrchestratorVersion)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestNewRecord_LegacyHasNoVersion(t *testing.T) {
	resp := sampleResponse()
	for i := range resp.Matrix {
		resp.Matrix[i].OrchestratorVersion = ""
		resp.Matrix[i].Legacy = true
	}
	rec := NewRecord("qp_2", "org1", resp)
	assert.Empty(t, rec.OrchestratorVersion)
}

func TestMemoryStore_InsertGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := NewRecord("qp_1", "org1", sampleResponse())
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.Get(ctx, "org1", "qp_1")
	require.NoError(t, err)
	assert.Equal(t, rec.QuoteID, got.QuoteID)
	require.Len(t, got.Response.Matrix, 2)
	assert.Equal(t, 76.55, got.Response.Matrix[1].UnitPrice)

	// Records are tenant-scoped.
	_, err = store.Get(ctx, "org2", "qp_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListByQuote(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := NewRecord("qp_1", "org1", sampleResponse())
	first.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, first))

	second := NewRecord("qp_2", "org1", sampleResponse())
	require.NoError(t, store.Insert(ctx, second))

	recs, err := store.ListByQuote(ctx, "org1", "q1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// Newest first.
	assert.Equal(t, "qp_2", recs[0].ID)
	assert.Equal(t, "qp_1", recs[1].ID)

	recs, err = store.ListByQuote(ctx, "org1", "other")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
