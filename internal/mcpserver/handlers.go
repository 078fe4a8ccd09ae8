package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *QuotecoreClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *QuotecoreClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCalculatePricing prices a quote line and renders the price matrix.
func (h *Handlers) HandleCalculatePricing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	quoteID := req.GetString("quote_id", "")
	lineID := req.GetString("line_id", "")
	process := req.GetString("process", "")
	materialCode := req.GetString("material_code", "")
	if quoteID == "" || lineID == "" || process == "" || materialCode == "" {
		return mcp.NewToolResultError("quote_id, line_id, process, and material_code are required"), nil
	}

	quantities, err := intSlice(req.GetArguments()["quantities"])
	if err != nil || len(quantities) == 0 {
		return mcp.NewToolResultError("quantities must be a non-empty array of positive integers"), nil
	}

	body := map[string]any{
		"quoteId":      quoteID,
		"lineId":       lineID,
		"process":      process,
		"materialCode": materialCode,
		"quantities":   quantities,
	}
	if v := req.GetString("part_id", ""); v != "" {
		body["partId"] = v
	}
	if v := req.GetString("region", ""); v != "" {
		body["region"] = v
	}
	if v := req.GetString("tolerance_band", ""); v != "" {
		body["toleranceBand"] = v
	}
	if v := req.GetString("engineering_notes", ""); v != "" {
		body["engineeringNotes"] = v
	}
	if finishes, err := stringSlice(req.GetArguments()["finishes"]); err == nil && len(finishes) > 0 {
		body["finishes"] = finishes
	}

	raw, err := h.client.CalculatePricing(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Pricing failed: %v", err)), nil
	}

	text, err := formatPricing(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse pricing response: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetPricingRecord fetches a persisted pricing calculation.
func (h *Handlers) HandleGetPricingRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordID := req.GetString("record_id", "")
	if recordID == "" {
		return mcp.NewToolResultError("record_id is required"), nil
	}

	raw, err := h.client.GetPricingRecord(ctx, recordID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch record: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// HandleListQuotePricing lists pricing records for a quote.
func (h *Handlers) HandleListQuotePricing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	quoteID := req.GetString("quote_id", "")
	if quoteID == "" {
		return mcp.NewToolResultError("quote_id is required"), nil
	}

	raw, err := h.client.ListQuotePricing(ctx, quoteID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list records: %v", err)), nil
	}

	text, err := formatRecordList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse records: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleParseTolerances previews tolerance normalization.
func (h *Handlers) HandleParseTolerances(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]any{}
	if v := req.GetString("band", ""); v != "" {
		body["band"] = v
	}
	if v := req.GetString("notes", ""); v != "" {
		body["notes"] = v
	}
	if entries := req.GetArguments()["entries"]; entries != nil {
		body["entries"] = entries
	}

	raw, err := h.client.ParseTolerances(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Parse failed: %v", err)), nil
	}

	text, err := formatToleranceReport(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse report: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleLookupMaterial looks up a material in the catalog.
func (h *Handlers) HandleLookupMaterial(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := req.GetString("code", "")
	if code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}
	region := req.GetString("region", "")

	raw, err := h.client.GetMaterial(ctx, code, region)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Material lookup failed: %v", err)), nil
	}

	text, err := formatMaterial(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse material: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetCatalogVersion reports the active cost-book version.
func (h *Handlers) HandleGetCatalogVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetCatalogVersion(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch catalog version: %v", err)), nil
	}

	var resp struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse version: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Active tolerance cost-book version: %d", resp.Version)), nil
}

// -----------------------------------------------------------------------------
// Formatters
// -----------------------------------------------------------------------------

func formatPricing(raw json.RawMessage) (string, error) {
	var resp struct {
		RecordID string `json:"recordId"`
		Pricing  struct {
			QuoteID        string   `json:"quoteId"`
			LineID         string   `json:"lineId"`
			Process        string   `json:"process"`
			MaterialCode   string   `json:"materialCode"`
			MaterialName   string   `json:"materialName"`
			CatalogVersion int64    `json:"catalogVersion"`
			Currency       string   `json:"currency"`
			Flags          []string `json:"flags"`
			Tolerances     struct {
				Band           string `json:"band"`
				EntryCount     int    `json:"entryCount"`
				ReviewRequired bool   `json:"reviewRequired"`
			} `json:"tolerances"`
			Matrix []struct {
				Quantity   int      `json:"quantity"`
				UnitPrice  float64  `json:"unitPrice"`
				TotalPrice float64  `json:"totalPrice"`
				Discount   float64  `json:"discount"`
				LeadDays   int      `json:"leadDays"`
				Legacy     bool     `json:"legacy"`
				Flags      []string `json:"flags"`
			} `json:"matrix"`
			Tax *struct {
				TaxCents   int64 `json:"taxCents"`
				TotalCents int64 `json:"totalCents"`
			} `json:"tax"`
		} `json:"pricing"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	p := resp.Pricing
	var sb strings.Builder
	fmt.Fprintf(&sb, "Quote %s line %s — %s in %s", p.QuoteID, p.LineID, p.Process, p.MaterialCode)
	if p.MaterialName != "" {
		fmt.Fprintf(&sb, " (%s)", p.MaterialName)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Tolerance band: %s (%d entries)\n", p.Tolerances.Band, p.Tolerances.EntryCount)
	fmt.Fprintf(&sb, "Catalog version: %d\n\n", p.CatalogVersion)

	sb.WriteString("Price matrix:\n")
	for _, m := range p.Matrix {
		fmt.Fprintf(&sb, "  qty %4d: $%.2f/unit, $%.2f total", m.Quantity, m.UnitPrice, m.TotalPrice)
		if m.Discount > 0 {
			fmt.Fprintf(&sb, " (%.0f%% discount)", m.Discount*100)
		}
		fmt.Fprintf(&sb, ", lead %d days", m.LeadDays)
		if m.Legacy {
			sb.WriteString(" [legacy fallback]")
		}
		sb.WriteString("\n")
	}

	if p.Tax != nil {
		fmt.Fprintf(&sb, "\nTax: $%.2f (total with tax $%.2f)\n",
			float64(p.Tax.TaxCents)/100, float64(p.Tax.TotalCents)/100)
	}
	if p.Tolerances.ReviewRequired {
		sb.WriteString("\nNote: tolerance input needs human review before this price is quoted.\n")
	}
	if len(p.Flags) > 0 {
		fmt.Fprintf(&sb, "\nFlags: %s\n", strings.Join(p.Flags, ", "))
	}
	if resp.RecordID != "" {
		fmt.Fprintf(&sb, "\nRecord ID: %s\n", resp.RecordID)
	}

	return sb.String(), nil
}

func formatRecordList(raw json.RawMessage) (string, error) {
	var resp struct {
		QuoteID string `json:"quoteId"`
		Count   int    `json:"count"`
		Records []struct {
			ID             string `json:"id"`
			LineID         string `json:"lineId"`
			Process        string `json:"process"`
			MaterialCode   string `json:"materialCode"`
			CatalogVersion int64  `json:"catalogVersion"`
			CreatedAt      string `json:"createdAt"`
		} `json:"records"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if resp.Count == 0 {
		return fmt.Sprintf("No pricing records for quote %s.", resp.QuoteID), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d pricing record(s) for quote %s:\n\n", resp.Count, resp.QuoteID)
	for i, r := range resp.Records {
		fmt.Fprintf(&sb, "%d. %s — line %s, %s in %s (catalog v%d, %s)\n",
			i+1, r.ID, r.LineID, r.Process, r.MaterialCode, r.CatalogVersion, r.CreatedAt)
	}
	return sb.String(), nil
}

func formatToleranceReport(raw json.RawMessage) (string, error) {
	var resp struct {
		Band           string                    `json:"band"`
		EntryCount     int                       `json:"entryCount"`
		TightestMM     float64                   `json:"tightestMm"`
		ReviewRequired bool                      `json:"reviewRequired"`
		Multipliers    map[string]float64        `json:"multipliers"`
		Entries        map[string]map[string]any `json:"entries"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Tolerance band: %s\n", resp.Band)
	fmt.Fprintf(&sb, "Parsed entries: %d\n", resp.EntryCount)
	if resp.TightestMM > 0 {
		fmt.Fprintf(&sb, "Tightest linear tolerance: %.4f mm\n", resp.TightestMM)
	}
	if resp.ReviewRequired {
		sb.WriteString("Review required: yes (out-of-range or ambiguous input was clamped)\n")
	}

	if len(resp.Multipliers) > 0 {
		sb.WriteString("\nCost multipliers:\n")
		for _, k := range []string{"machine", "setup", "inspection", "risk"} {
			if v, ok := resp.Multipliers[k]; ok {
				fmt.Fprintf(&sb, "  %-10s %.2fx\n", k+":", v)
			}
		}
	}

	if len(resp.Entries) > 0 {
		sb.WriteString("\nNormalized tolerances:\n")
		for key, e := range resp.Entries {
			fmt.Fprintf(&sb, "  %s: %v %v on %v %v (source %v)\n",
				key, e["value"], e["unit"], e["featureType"], e["appliesTo"], e["source"])
		}
	}

	return sb.String(), nil
}

func formatMaterial(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", getString(m, "name"), getString(m, "code"))
	if v := getString(m, "category"); v != "" {
		fmt.Fprintf(&sb, "  Category: %s\n", v)
	}
	if v, ok := getFloat(m, "costPerKg"); ok {
		fmt.Fprintf(&sb, "  Cost: $%.2f/kg", v)
		if mult, ok := getFloat(m, "regionMultiplier"); ok && mult != 1 {
			fmt.Fprintf(&sb, " (region multiplier %.2fx)", mult)
		}
		sb.WriteString("\n")
	}
	if v, ok := getFloat(m, "density"); ok {
		fmt.Fprintf(&sb, "  Density: %.0f kg/m³\n", v)
	}
	if v, ok := getFloat(m, "leadTimeDays"); ok {
		fmt.Fprintf(&sb, "  Lead time: %.0f days\n", v)
	}
	if procs, ok := m["processes"].([]any); ok && len(procs) > 0 {
		strs := make([]string, 0, len(procs))
		for _, p := range procs {
			if s, ok := p.(string); ok {
				strs = append(strs, s)
			}
		}
		fmt.Fprintf(&sb, "  Processes: %s\n", strings.Join(strs, ", "))
	}

	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// intSlice coerces a JSON array argument into []int.
func intSlice(v any) ([]int, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	out := make([]int, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok || f != float64(int(f)) {
			return nil, fmt.Errorf("not an integer: %v", e)
		}
		out = append(out, int(f))
	}
	return out, nil
}

// stringSlice coerces a JSON array argument into []string.
func stringSlice(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("not a string: %v", e)
		}
		out = append(out, s)
	}
	return out, nil
}
