package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/quotecore/internal/catalog"
	"github.com/mbd888/quotecore/internal/material"
	"github.com/mbd888/quotecore/internal/validation"
)

// Handler serves admin endpoints for cost-book and material catalog writes.
type Handler struct {
	rows      catalog.Store
	materials material.Store
}

// NewHandler creates a new admin handler.
func NewHandler(rows catalog.Store, materials material.Store) *Handler {
	return &Handler{rows: rows, materials: materials}
}

// RegisterRoutes sets up admin routes. Callers apply SecretMiddleware to the
// group before registering.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admin/catalog/rows", h.publishRow)
	r.POST("/admin/materials", h.upsertMaterial)
	r.POST("/admin/materials/:code/aliases", h.addAlias)
	r.PUT("/admin/materials/:code/regions/:region", h.setRegionMultiplier)
}

// publishRow inserts a new cost-book row. Pricing picks it up once the row's
// catalog version becomes the active maximum and caches expire.
func (h *Handler) publishRow(c *gin.Context) {
	var row catalog.Row
	if err := c.ShouldBindJSON(&row); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if !catalog.ValidProcess(row.Process) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "unknown process"})
		return
	}
	if row.TolTo <= row.TolFrom {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "tolTo must exceed tolFrom"})
		return
	}
	if row.Multiplier < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "multiplier must be at least 1"})
		return
	}
	if row.CatalogVersion < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "catalogVersion must be positive"})
		return
	}

	if err := h.rows.InsertRow(c.Request.Context(), &row); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "insert_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, row)
}

// upsertMaterial writes a material catalog entry.
func (h *Handler) upsertMaterial(c *gin.Context) {
	var item material.CatalogItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if errs := validation.Validate(
		validation.Required("id", item.ID),
		validation.Required("code", item.Code),
		validation.ValidMaterialCode("code", item.Code),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "details": errs})
		return
	}
	if item.BaseCostPerKg <= 0 || item.Density <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "cost and density must be positive"})
		return
	}

	if err := h.materials.Upsert(c.Request.Context(), &item); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

// addAlias registers an alternate identifier for a material.
func (h *Handler) addAlias(c *gin.Context) {
	code := c.Param("code")

	var req struct {
		Alias string `json:"alias" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	item, err := h.materials.Get(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "material_not_found"})
		return
	}

	if err := h.materials.AddAlias(c.Request.Context(), req.Alias, item.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alias_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alias": req.Alias, "materialId": item.ID})
}

// setRegionMultiplier writes a region cost multiplier for a material.
func (h *Handler) setRegionMultiplier(c *gin.Context) {
	code := c.Param("code")
	region := c.Param("region")

	var req struct {
		Multiplier float64 `json:"multiplier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.Multiplier <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "multiplier must be positive"})
		return
	}

	item, err := h.materials.Get(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "material_not_found"})
		return
	}

	if err := h.materials.SetRegionMultiplier(c.Request.Context(), item.ID, region, req.Multiplier); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "multiplier_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"materialId": item.ID, "region": region, "multiplier": req.Multiplier})
}
