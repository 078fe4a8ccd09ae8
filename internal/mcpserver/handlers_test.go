package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL: ts.URL,
		OrgID:  "org-test",
	}
	client := NewQuotecoreClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_CalculatePricing_InjectsOrg(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewQuotecoreClient(Config{APIURL: ts.URL, OrgID: "org-42"})
	_, err := client.CalculatePricing(context.Background(), map[string]any{"quoteId": "q1"})
	require.NoError(t, err)

	assert.Equal(t, "org-42", gotBody["orgId"])
	assert.Equal(t, "q1", gotBody["quoteId"])
}

func TestClient_GetPricingRecord_OrgQueryParam(t *testing.T) {
	var gotURL string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewQuotecoreClient(Config{APIURL: ts.URL, OrgID: "org-42"})
	_, err := client.GetPricingRecord(context.Background(), "qp_abc")
	require.NoError(t, err)

	assert.Contains(t, gotURL, "/v1/pricing/records/qp_abc")
	assert.Contains(t, gotURL, "org=org-42")
}

func TestClient_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_request","message":"process is invalid"}`))
	}))
	defer ts.Close()

	client := NewQuotecoreClient(Config{APIURL: ts.URL, OrgID: "org-test"})
	_, err := client.GetCatalogVersion(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process is invalid")
	assert.Contains(t, err.Error(), "400")
}

// ============================================================
// calculate_pricing handler
// ============================================================

const pricingFixture = `{
	"recordId": "qp_0a1b2c",
	"pricing": {
		"quoteId": "q1",
		"lineId": "l1",
		"process": "cnc_milling",
		"materialCode": "AL_6061_T6",
		"materialName": "Aluminum 6061-T6",
		"catalogVersion": 3,
		"currency": "usd",
		"tolerances": {"band": "precision", "entryCount": 2, "reviewRequired": false},
		"matrix": [
			{"quantity": 1, "unitPrice": 168.29, "totalPrice": 168.29, "discount": 0, "leadDays": 5},
			{"quantity": 10, "unitPrice": 76.55, "totalPrice": 765.50, "discount": 0.05, "leadDays": 5}
		]
	}
}`

func TestHandleCalculatePricing(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pricing/calculate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(pricingFixture))
	}))
	defer cleanup()

	req := makeRequest(map[string]any{
		"quote_id":      "q1",
		"line_id":       "l1",
		"process":       "cnc_milling",
		"material_code": "AL_6061_T6",
		"quantities":    []any{float64(1), float64(10)},
	})

	result, err := h.HandleCalculatePricing(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Quote q1 line l1")
	assert.Contains(t, text, "$168.29/unit")
	assert.Contains(t, text, "$76.55/unit")
	assert.Contains(t, text, "5% discount")
	assert.Contains(t, text, "Record ID: qp_0a1b2c")
}

func TestHandleCalculatePricing_MissingArgs(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	}))
	defer cleanup()

	result, err := h.HandleCalculatePricing(context.Background(), makeRequest(map[string]any{
		"quote_id": "q1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCalculatePricing_BadQuantities(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	}))
	defer cleanup()

	result, err := h.HandleCalculatePricing(context.Background(), makeRequest(map[string]any{
		"quote_id":      "q1",
		"line_id":       "l1",
		"process":       "cnc_milling",
		"material_code": "AL_6061_T6",
		"quantities":    []any{"ten"},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCalculatePricing_BackendError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"pricing_failed","message":"Unable to price this quote line"}`))
	}))
	defer cleanup()

	result, err := h.HandleCalculatePricing(context.Background(), makeRequest(map[string]any{
		"quote_id":      "q1",
		"line_id":       "l1",
		"process":       "cnc_milling",
		"material_code": "AL_6061_T6",
		"quantities":    []any{float64(1)},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Unable to price")
}

func TestHandleCalculatePricing_LegacyFlagged(t *testing.T) {
	fixture := `{
		"pricing": {
			"quoteId": "q1", "lineId": "l1", "process": "turning", "materialCode": "SS304",
			"catalogVersion": 1, "currency": "usd",
			"tolerances": {"band": "standard", "entryCount": 0},
			"matrix": [
				{"quantity": 5, "unitPrice": 72.52, "totalPrice": 362.60, "leadDays": 7, "legacy": true}
			]
		}
	}`
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixture))
	}))
	defer cleanup()

	result, err := h.HandleCalculatePricing(context.Background(), makeRequest(map[string]any{
		"quote_id":      "q1",
		"line_id":       "l1",
		"process":       "turning",
		"material_code": "SS304",
		"quantities":    []any{float64(5)},
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "[legacy fallback]")
}

// ============================================================
// parse_tolerances handler
// ============================================================

func TestHandleParseTolerances(t *testing.T) {
	fixture := `{
		"band": "precision",
		"entryCount": 1,
		"tightestMm": 0.02,
		"reviewRequired": false,
		"multipliers": {"machine": 1.15, "setup": 1.1, "inspection": 1.25, "risk": 1.1},
		"entries": {
			"h1": {"featureType": "hole", "appliesTo": "diameter", "unit": "mm", "value": 0.02, "source": "structured"}
		}
	}`
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tolerances/parse", r.URL.Path)
		_, _ = w.Write([]byte(fixture))
	}))
	defer cleanup()

	result, err := h.HandleParseTolerances(context.Background(), makeRequest(map[string]any{
		"band": "precision",
		"entries": []any{
			map[string]any{"featureId": "h1", "featureType": "hole", "appliesTo": "diameter", "unit": "mm", "value": 0.02},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "precision")
	assert.Contains(t, text, "0.0200 mm")
	assert.Contains(t, text, "1.15x")
}

// ============================================================
// lookup_material handler
// ============================================================

func TestHandleLookupMaterial(t *testing.T) {
	fixture := `{
		"id": "al-6061-t6", "code": "AL_6061_T6", "name": "Aluminum 6061-T6",
		"category": "aluminum", "costPerKg": 5.4, "regionMultiplier": 1.2,
		"density": 2700, "leadTimeDays": 5, "processes": ["cnc_milling", "turning"]
	}`
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/materials/AL_6061_T6", r.URL.Path)
		assert.Equal(t, "eu", r.URL.Query().Get("region"))
		_, _ = w.Write([]byte(fixture))
	}))
	defer cleanup()

	result, err := h.HandleLookupMaterial(context.Background(), makeRequest(map[string]any{
		"code":   "AL_6061_T6",
		"region": "eu",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Aluminum 6061-T6")
	assert.Contains(t, text, "$5.40/kg")
	assert.Contains(t, text, "region multiplier 1.20x")
	assert.Contains(t, text, "cnc_milling, turning")
}

func TestHandleLookupMaterial_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"material_not_found","message":"material is not in the catalog"}`))
	}))
	defer cleanup()

	result, err := h.HandleLookupMaterial(context.Background(), makeRequest(map[string]any{
		"code": "UNOBTAINIUM",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not in the catalog")
}

// ============================================================
// record handlers
// ============================================================

func TestHandleListQuotePricing(t *testing.T) {
	fixture := `{
		"quoteId": "q1",
		"count": 2,
		"records": [
			{"id": "qp_b", "lineId": "l1", "process": "cnc_milling", "materialCode": "AL_6061_T6", "catalogVersion": 3, "createdAt": "2026-02-01T10:00:00Z"},
			{"id": "qp_a", "lineId": "l1", "process": "cnc_milling", "materialCode": "AL_6061_T6", "catalogVersion": 2, "createdAt": "2026-01-15T10:00:00Z"}
		]
	}`
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quotes/q1/pricing", r.URL.Path)
		_, _ = w.Write([]byte(fixture))
	}))
	defer cleanup()

	result, err := h.HandleListQuotePricing(context.Background(), makeRequest(map[string]any{
		"quote_id": "q1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 pricing record(s)")
	assert.Contains(t, text, "qp_b")
	assert.Contains(t, text, "catalog v3")
}

func TestHandleListQuotePricing_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteId": "q9", "count": 0, "records": []}`))
	}))
	defer cleanup()

	result, err := h.HandleListQuotePricing(context.Background(), makeRequest(map[string]any{
		"quote_id": "q9",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No pricing records")
}

func TestHandleGetPricingRecord_RequiresID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be called")
	}))
	defer cleanup()

	result, err := h.HandleGetPricingRecord(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ============================================================
// get_catalog_version handler
// ============================================================

func TestHandleGetCatalogVersion(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/catalog/version", r.URL.Path)
		_, _ = w.Write([]byte(`{"version": 7}`))
	}))
	defer cleanup()

	result, err := h.HandleGetCatalogVersion(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "version: 7")
}

// ============================================================
// argument coercion
// ============================================================

func TestIntSlice(t *testing.T) {
	got, err := intSlice([]any{float64(1), float64(10), float64(100)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 10, 100}, got)

	_, err = intSlice([]any{1.5})
	assert.Error(t, err)

	_, err = intSlice("not an array")
	assert.Error(t, err)
}

func TestStringSlice(t *testing.T) {
	got, err := stringSlice([]any{"bead_blast", "anodize_clear"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bead_blast", "anodize_clear"}, got)

	_, err = stringSlice([]any{42})
	assert.Error(t, err)
}
