package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvista/geocatalog/internal/application/ingest"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// IngestHandler serves the bulk ingest endpoints.
type IngestHandler struct {
	service *ingest.Service
}

// NewIngestHandler returns an IngestHandler.
func NewIngestHandler(service *ingest.Service) *IngestHandler {
	return &IngestHandler{service: service}
}

type upsertBody struct {
	Items []*catalog.Item `json:"items" binding:"required"`
	// Refresh makes the writes searchable before the response returns.
	Refresh bool `json:"refresh"`
}

type deleteBody struct {
	Items   []catalog.ItemRef `json:"items" binding:"required"`
	Refresh bool              `json:"refresh"`
}

// Upsert handles POST /ingest/items. A batch with per-item failures returns
// 207 with every outcome listed; the caller resubmits the failed subset.
func (h *IngestHandler) Upsert(c *gin.Context) {
	var body upsertBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not a valid bulk upsert"))
		return
	}

	result, err := h.service.BulkUpsert(c.Request.Context(), body.Items, body.Refresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(bulkStatus(result), result)
}

// Delete handles POST /ingest/items/delete.
func (h *IngestHandler) Delete(c *gin.Context) {
	var body deleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not a valid bulk delete"))
		return
	}

	result, err := h.service.BulkDelete(c.Request.Context(), body.Items, body.Refresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(bulkStatus(result), result)
}

func bulkStatus(result *catalog.BulkResult) int {
	if result.HasFailures() {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}
