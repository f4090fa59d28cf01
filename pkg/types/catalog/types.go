// Package catalog defines the shared data types exchanged between the
// geocatalog layers: STAC entities (re-exported from planetlabs/go-stac so
// handlers, ingest, and search all speak the same types), bulk ingest
// results, sort keys, and index mapping carriers.
package catalog

import (
	gostac "github.com/planetlabs/go-stac"
)

// Core STAC entity types from planetlabs/go-stac.
type (
	Item       = gostac.Item
	Collection = gostac.Collection
	Asset      = gostac.Asset
	Link       = gostac.Link
	Extent     = gostac.Extent
)

// ItemRef identifies a single item within a collection, used for deletes.
type ItemRef struct {
	Collection string `json:"collection"`
	ItemID     string `json:"id"`
}

// BulkOutcome is the per-item result of a bulk write.
type BulkOutcome struct {
	ItemID     string `json:"id"`
	Collection string `json:"collection"`
	Success    bool   `json:"success"`
	// Reason is empty on success. For failures it carries the engine's
	// per-item error type and reason, e.g. "mapper_parsing_exception".
	Reason string `json:"reason,omitempty"`
}

// BulkResult reports the outcome of one bulk upsert or delete call.
// A batch with failures is not an error: callers inspect Outcomes and decide
// whether to resubmit the failed subset.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Outcomes  []BulkOutcome `json:"outcomes"`
}

// HasFailures reports whether any item in the batch failed.
func (r *BulkResult) HasFailures() bool {
	return r.Failed > 0
}

// SortDirection is the order applied to one sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortField is one (field, direction) pair of a search sort order.
// Field is the externally visible property name; resolution to the backing
// document path happens in the field resolver.
type SortField struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// IndexMapping carries engine index settings and field mappings. The maps are
// marshalled verbatim into index template and index creation bodies.
type IndexMapping struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
	Mappings map[string]interface{} `json:"mappings,omitempty"`
}

// ItemPage is one page of search results plus the continuation token.
// NextToken is empty when the page was short (no further results).
type ItemPage struct {
	Items     []*Item `json:"items"`
	Matched   int64   `json:"matched"`
	NextToken string  `json:"nextToken,omitempty"`
}
