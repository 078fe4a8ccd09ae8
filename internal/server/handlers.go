package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/quotecore/internal/idgen"
	"github.com/mbd888/quotecore/internal/logging"
	"github.com/mbd888/quotecore/internal/metrics"
	"github.com/mbd888/quotecore/internal/pricing"
	"github.com/mbd888/quotecore/internal/quotes"
	"github.com/mbd888/quotecore/internal/tolerance"
	"github.com/mbd888/quotecore/internal/validation"
)

// -----------------------------------------------------------------------------
// Pricing
// -----------------------------------------------------------------------------

// calculateHandler prices a quote line and persists the result.
func (s *Server) calculateHandler(c *gin.Context) {
	var req pricing.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	checks := []func() *validation.ValidationError{
		validation.ValidID("orgId", req.OrgID),
		validation.ValidID("quoteId", req.QuoteID),
		validation.ValidID("lineId", req.LineID),
		validation.ValidID("partId", req.PartID),
		validation.ValidMaterialCode("materialCode", req.MaterialCode),
		validation.MaxLength("engineeringNotes", req.EngineeringNotes, tolerance.MaxFreeTextLen),
	}
	for i, finding := range req.DFMFindings {
		checks = append(checks,
			validation.MaxLength(fmt.Sprintf("dfmFindings[%d]", i), finding, tolerance.MaxFreeTextLen))
	}
	if errs := validation.Validate(checks...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"details": errs,
		})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	resp, err := s.engine.Calculate(ctx, &req)
	if err != nil {
		logging.L(ctx).Error("pricing failed",
			"quote", req.QuoteID, "line", req.LineID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "pricing_failed",
			"message": "Unable to price this quote line",
		})
		return
	}

	s.recordPricingMetrics(resp)

	rec := quotes.NewRecord(idgen.WithPrefix("qp_"), req.OrgID, resp)
	if err := s.quotes.Insert(ctx, rec); err != nil {
		// The price was computed; persistence failure degrades to an
		// unrecorded response rather than a client error.
		logging.L(ctx).Error("failed to persist pricing record",
			"quote", req.QuoteID, "line", req.LineID, "error", err)
		c.JSON(http.StatusOK, gin.H{"pricing": resp})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recordId": rec.ID,
		"pricing":  resp,
	})
}

func (s *Server) recordPricingMetrics(resp *pricing.Response) {
	for _, entry := range resp.Matrix {
		if entry.Legacy {
			metrics.QuotesPricedTotal.WithLabelValues("legacy").Inc()
		} else {
			metrics.QuotesPricedTotal.WithLabelValues("pipeline").Inc()
		}
	}
	if resp.Tolerances.ReviewRequired {
		metrics.ReviewFlaggedTotal.Inc()
		metrics.PendingReviewQuotes.Inc()
	}
	for _, f := range resp.Flags {
		if f == "material_fallback" {
			metrics.MaterialFallbacksTotal.Inc()
		}
	}
}

// getPricingRecordHandler fetches one persisted pricing calculation.
func (s *Server) getPricingRecordHandler(c *gin.Context) {
	orgID := c.Query("org")
	id := c.Param("id")

	if errs := validation.Validate(
		validation.Required("org", orgID),
		validation.ValidID("org", orgID),
		validation.ValidID("id", id),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "details": errs})
		return
	}

	rec, err := s.quotes.Get(c.Request.Context(), orgID, id)
	if errors.Is(err, quotes.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("record lookup failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// listQuotePricingHandler lists pricing records for a quote, newest first.
func (s *Server) listQuotePricingHandler(c *gin.Context) {
	orgID := c.Query("org")
	quoteID := c.Param("quoteId")

	if errs := validation.Validate(
		validation.Required("org", orgID),
		validation.ValidID("org", orgID),
		validation.ValidID("quoteId", quoteID),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "details": errs})
		return
	}

	recs, err := s.quotes.ListByQuote(c.Request.Context(), orgID, quoteID)
	if err != nil {
		logging.L(c.Request.Context()).Error("record list failed", "quote", quoteID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quoteId": quoteID,
		"records": recs,
		"count":   len(recs),
	})
}

// -----------------------------------------------------------------------------
// Tolerance parsing
// -----------------------------------------------------------------------------

type parseTolerancesRequest struct {
	Band     string            `json:"band"`
	Entries  []tolerance.Entry `json:"entries"`
	Notes    string            `json:"notes"`
	UnitHint string            `json:"unitHint"`
}

// parseTolerancesHandler previews tolerance normalization without pricing.
func (s *Server) parseTolerancesHandler(c *gin.Context) {
	var req parseTolerancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if len(req.Notes) > tolerance.MaxFreeTextLen {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "notes exceed maximum length",
		})
		return
	}

	hint := tolerance.UnitMM
	if req.UnitHint == string(tolerance.UnitDeg) {
		hint = tolerance.UnitDeg
	}

	tolMap := tolerance.Parse(req.Entries, req.Notes, hint)
	profile := tolerance.ProfileFor(req.Band)

	review := false
	tightest := 0.0
	for _, n := range tolMap {
		if n.ReviewRequired {
			review = true
		}
		if n.Unit == tolerance.UnitMM && n.Value > 0 && (tightest == 0 || n.Value < tightest) {
			tightest = n.Value
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"band":           profile.Band,
		"entries":        tolMap,
		"entryCount":     len(tolMap),
		"tightestMm":     tightest,
		"reviewRequired": review,
		"multipliers": gin.H{
			"machine":    profile.MachineMultiplier,
			"setup":      profile.SetupMultiplier,
			"inspection": profile.InspectionMultiplier,
			"risk":       profile.RiskMultiplier,
		},
	})
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

// getMaterialHandler resolves a material code to its priced catalog profile.
// Unknown codes resolve to the fallback profile, which is a 404 here: the
// lookup endpoint reports catalog contents, not pricing behavior.
func (s *Server) getMaterialHandler(c *gin.Context) {
	code := c.Param("code")
	region := c.Query("region")

	item, err := s.materials.Resolve(c.Request.Context(), code, region)
	if err != nil {
		logging.L(c.Request.Context()).Error("material resolve failed", "code", code, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	if item.IsFallback {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "material_not_found",
			"message": "material is not in the catalog",
		})
		return
	}

	c.JSON(http.StatusOK, item)
}

// catalogVersionHandler reports the active cost-book version.
func (s *Server) catalogVersionHandler(c *gin.Context) {
	version, err := s.catalog.CatalogVersion(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("catalog version lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}
