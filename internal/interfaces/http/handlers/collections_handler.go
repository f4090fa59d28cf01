package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvista/geocatalog/internal/application/collections"
	"github.com/cloudvista/geocatalog/internal/application/search"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// CollectionsHandler serves collection metadata and per-collection item
// endpoints.
type CollectionsHandler struct {
	collections *collections.Service
	search      *search.Service
}

// NewCollectionsHandler returns a CollectionsHandler.
func NewCollectionsHandler(collSvc *collections.Service, searchSvc *search.Service) *CollectionsHandler {
	return &CollectionsHandler{collections: collSvc, search: searchSvc}
}

// Create handles POST /collections. Besides the STAC collection fields the
// body may carry a top-level "aggregations" capability list.
func (h *CollectionsHandler) Create(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not readable"))
		return
	}
	var coll catalog.Collection
	if err := json.Unmarshal(raw, &coll); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not a valid collection"))
		return
	}
	var caps struct {
		Aggregations []string `json:"aggregations"`
	}
	if err := json.Unmarshal(raw, &caps); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not a valid collection"))
		return
	}
	if err := h.collections.Create(c.Request.Context(), &coll, caps.Aggregations); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coll)
}

// List handles GET /collections.
func (h *CollectionsHandler) List(c *gin.Context) {
	colls, err := h.collections.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if colls == nil {
		colls = []*catalog.Collection{}
	}
	c.JSON(http.StatusOK, gin.H{"collections": colls})
}

// Get handles GET /collections/:collectionId.
func (h *CollectionsHandler) Get(c *gin.Context) {
	coll, err := h.collections.Get(c.Request.Context(), c.Param("collectionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coll)
}

// Delete handles DELETE /collections/:collectionId.
func (h *CollectionsHandler) Delete(c *gin.Context) {
	if err := h.collections.Delete(c.Request.Context(), c.Param("collectionId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Item handles GET /collections/:collectionId/items/:itemId.
func (h *CollectionsHandler) Item(c *gin.Context) {
	page, err := h.search.Search(c.Request.Context(), search.Params{
		Collections: []string{c.Param("collectionId")},
		IDs:         []string{c.Param("itemId")},
		Limit:       1,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if len(page.Items) == 0 {
		respondError(c, errors.New(errors.ErrCodeNotFound, "item not found").
			WithDetail(c.Param("itemId")))
		return
	}
	c.JSON(http.StatusOK, page.Items[0])
}
