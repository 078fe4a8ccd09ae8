package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the quotecore MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCalculatePricing = mcp.NewTool("calculate_pricing",
	mcp.WithDescription(
		"Price a manufacturing quote line across quantity breaks. "+
			"Returns a price matrix with per-unit prices, quantity discounts, lead times, "+
			"and a full cost-factor breakdown (material, machine time, setup, finishing, inspection, overhead, risk). "+
			"Tolerances tighter than standard raise machine, setup, and inspection costs."),
	mcp.WithString("quote_id",
		mcp.Required(),
		mcp.Description("Quote identifier this line belongs to (e.g. 'q-1042')")),
	mcp.WithString("line_id",
		mcp.Required(),
		mcp.Description("Line identifier within the quote (e.g. 'l-1')")),
	mcp.WithString("process",
		mcp.Required(),
		mcp.Description("Manufacturing process"),
		mcp.Enum("cnc_milling", "turning", "sheet")),
	mcp.WithString("material_code",
		mcp.Required(),
		mcp.Description("Material code from the catalog (e.g. 'AL_6061_T6', 'SS304'). Unknown codes price against a fallback aluminum profile.")),
	mcp.WithArray("quantities",
		mcp.Required(),
		mcp.Description("Quantity breaks to price, e.g. [1, 10, 100]. Up to 10 per request.")),
	mcp.WithString("part_id",
		mcp.Description("Part identifier for geometry lookup. Without it, pricing uses an estimated geometry.")),
	mcp.WithString("region",
		mcp.Description("Sourcing region for material pricing (e.g. 'us-east', 'eu')")),
	mcp.WithString("tolerance_band",
		mcp.Description("Tolerance band for the whole part"),
		mcp.Enum("standard", "precision", "high_precision")),
	mcp.WithString("engineering_notes",
		mcp.Description("Free-text engineering notes; tolerance callouts like '±0.01 mm on bore diameter' are parsed out of them")),
	mcp.WithArray("finishes",
		mcp.Description("Finishing chain in application order, e.g. [\"bead_blast\", \"anodize_clear\"]")),
)

var ToolGetPricingRecord = mcp.NewTool("get_pricing_record",
	mcp.WithDescription(
		"Fetch a persisted pricing calculation by its record id. "+
			"Records keep the full price matrix and the catalog version it was priced under, "+
			"so old quotes can be audited after rate-card changes."),
	mcp.WithString("record_id",
		mcp.Required(),
		mcp.Description("Record id returned by calculate_pricing (e.g. 'qp_0a1b2c...')")),
)

var ToolListQuotePricing = mcp.NewTool("list_quote_pricing",
	mcp.WithDescription(
		"List all pricing calculations recorded for a quote, newest first. "+
			"Use this to see how a quote's pricing evolved across recalculations."),
	mcp.WithString("quote_id",
		mcp.Required(),
		mcp.Description("Quote identifier (e.g. 'q-1042')")),
)

var ToolParseTolerances = mcp.NewTool("parse_tolerances",
	mcp.WithDescription(
		"Preview how tolerance inputs will be interpreted, without pricing anything. "+
			"Normalizes structured entries and free-text callouts to millimetres or degrees, "+
			"flags out-of-range values for human review, and reports the cost multipliers the band implies."),
	mcp.WithString("band",
		mcp.Description("Tolerance band"),
		mcp.Enum("standard", "precision", "high_precision")),
	mcp.WithString("notes",
		mcp.Description("Free-text engineering notes to parse tolerance callouts from")),
	mcp.WithArray("entries",
		mcp.Description("Structured tolerance entries, each with featureType, appliesTo, unit, and value")),
)

var ToolLookupMaterial = mcp.NewTool("lookup_material",
	mcp.WithDescription(
		"Look up a material in the catalog by code. "+
			"Returns cost per kg (region-adjusted), density, lead time, and supported processes."),
	mcp.WithString("code",
		mcp.Required(),
		mcp.Description("Material code (e.g. 'AL_6061_T6')")),
	mcp.WithString("region",
		mcp.Description("Sourcing region; applies the region cost multiplier when set")),
)

var ToolGetCatalogVersion = mcp.NewTool("get_catalog_version",
	mcp.WithDescription(
		"Get the active tolerance cost-book version. " +
			"Pricing results record the version they were computed under."),
)
