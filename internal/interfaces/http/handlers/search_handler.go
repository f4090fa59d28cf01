package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudvista/geocatalog/internal/application/search"
	"github.com/cloudvista/geocatalog/internal/search/aggregation"
	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

// SearchHandler serves item search, aggregation, and queryables endpoints.
type SearchHandler struct {
	service *search.Service
}

// NewSearchHandler returns a SearchHandler over the search service.
func NewSearchHandler(service *search.Service) *SearchHandler {
	return &SearchHandler{service: service}
}

// searchBody is the POST /search request document.
type searchBody struct {
	Collections []string        `json:"collections"`
	IDs         []string        `json:"ids"`
	Bbox        []float64       `json:"bbox"`
	Intersects  json.RawMessage `json:"intersects"`
	Datetime    string          `json:"datetime"`
	Limit       int             `json:"limit"`
	Token       string          `json:"token"`
	SortBy      []sortSpec      `json:"sortby"`
	Filter      json.RawMessage `json:"filter"`
	FilterLang  string          `json:"filter-lang"`
	FreeText    string          `json:"q"`
}

type sortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// itemCollection is the search response: a GeoJSON FeatureCollection with
// pagination metadata.
type itemCollection struct {
	Type           string          `json:"type"`
	Features       []*catalog.Item `json:"features"`
	NumberMatched  int64           `json:"numberMatched"`
	NumberReturned int             `json:"numberReturned"`
	NextToken      string          `json:"nextToken,omitempty"`
}

// SearchGET handles GET /search.
func (h *SearchHandler) SearchGET(c *gin.Context) {
	params, err := h.paramsFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}
	h.runSearch(c, params)
}

// SearchPOST handles POST /search.
func (h *SearchHandler) SearchPOST(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not a valid search"))
		return
	}
	params, err := paramsFromBody(body)
	if err != nil {
		respondError(c, err)
		return
	}
	h.runSearch(c, params)
}

func (h *SearchHandler) runSearch(c *gin.Context, params search.Params) {
	page, err := h.service.Search(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemCollection{
		Type:           "FeatureCollection",
		Features:       page.Items,
		NumberMatched:  page.Matched,
		NumberReturned: len(page.Items),
		NextToken:      page.NextToken,
	})
}

// aggregateBody is the POST /aggregate request document.
type aggregateBody struct {
	searchBody
	Aggregations []aggregationSpec `json:"aggregations"`
}

// aggregationSpec's Precision is a pointer so an explicit zero, the valid
// minimum for geotile and geohex grids, stays distinct from "not given".
type aggregationSpec struct {
	Name      string `json:"name"`
	Precision *int   `json:"precision,omitempty"`
	Interval  string `json:"interval,omitempty"`
}

// AggregateGET handles GET /aggregate. Precision and interval apply to every
// named aggregation that accepts them; callers needing per-aggregation
// overrides use POST.
func (h *SearchHandler) AggregateGET(c *gin.Context) {
	params, err := h.paramsFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	precision, err := optionalIntParam(c, "precision")
	if err != nil {
		respondError(c, err)
		return
	}
	interval := c.Query("interval")

	names := csvParam(c, "aggregations")
	reqs := make([]aggregation.Request, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, aggregation.Request{Name: name, Precision: precision, Interval: interval})
	}

	h.runAggregate(c, search.AggParams{Params: params, Aggregations: reqs})
}

// AggregatePOST handles POST /aggregate.
func (h *SearchHandler) AggregatePOST(c *gin.Context) {
	var body aggregateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "request body is not a valid aggregation"))
		return
	}
	reqs := make([]aggregation.Request, 0, len(body.Aggregations))
	for _, a := range body.Aggregations {
		reqs = append(reqs, aggregation.Request{Name: a.Name, Precision: a.Precision, Interval: a.Interval})
	}
	params, err := paramsFromBody(body.searchBody)
	if err != nil {
		respondError(c, err)
		return
	}
	h.runAggregate(c, search.AggParams{Params: params, Aggregations: reqs})
}

func (h *SearchHandler) runAggregate(c *gin.Context, params search.AggParams) {
	results, err := h.service.Aggregate(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aggregations": results})
}

// Aggregations handles GET /aggregations: the names this service can compute.
func (h *SearchHandler) Aggregations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aggregations": h.service.AggregationNames()})
}

// Queryables handles GET /queryables.
func (h *SearchHandler) Queryables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"queryables": h.service.Queryables()})
}

func (h *SearchHandler) paramsFromQuery(c *gin.Context) (search.Params, error) {
	limit, err := intParam(c, "limit", 0)
	if err != nil {
		return search.Params{}, err
	}
	bbox, err := search.ParseBbox(c.Query("bbox"))
	if err != nil {
		return search.Params{}, err
	}

	params := search.Params{
		Collections: csvParam(c, "collections"),
		IDs:         csvParam(c, "ids"),
		Bbox:        bbox,
		Datetime:    c.Query("datetime"),
		Limit:       limit,
		Token:       c.Query("token"),
		SortBy:      search.ParseSortBy(c.Query("sortby")),
		FilterLang:  c.Query("filter-lang"),
		FreeText:    c.Query("q"),
	}
	if raw := c.Query("filter"); raw != "" {
		params.Filter = json.RawMessage(raw)
	}
	if raw := c.Query("intersects"); raw != "" {
		params.Intersects = json.RawMessage(raw)
	}
	if collection := c.Param("collectionId"); collection != "" {
		params.Collections = []string{collection}
	}
	return params, nil
}

func paramsFromBody(body searchBody) (search.Params, error) {
	sortBy := make([]catalog.SortField, 0, len(body.SortBy))
	for _, s := range body.SortBy {
		dir := catalog.SortDirection(s.Direction)
		switch dir {
		case "":
			dir = catalog.SortAsc
		case catalog.SortAsc, catalog.SortDesc:
		default:
			return search.Params{}, errors.New(errors.ErrCodeValidation,
				"sort direction must be asc or desc").WithDetail(s.Direction)
		}
		sortBy = append(sortBy, catalog.SortField{Field: s.Field, Direction: dir})
	}
	return search.Params{
		Collections: body.Collections,
		IDs:         body.IDs,
		Bbox:        body.Bbox,
		Intersects:  body.Intersects,
		Datetime:    body.Datetime,
		Limit:       body.Limit,
		Token:       body.Token,
		SortBy:      sortBy,
		Filter:      body.Filter,
		FilterLang:  body.FilterLang,
		FreeText:    body.FreeText,
	}, nil
}
