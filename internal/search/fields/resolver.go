// Package fields maps externally visible property names to their backing
// document field paths and declared types. The resolver is the single
// authority for field typing: filter translation and aggregation building
// never infer a type from a literal value.
package fields

import (
	"sort"
	"strings"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

// FieldType is the declared type of a queryable field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeDatetime FieldType = "datetime"
	TypeBoolean  FieldType = "boolean"
	TypeGeometry FieldType = "geometry"
)

// propertiesPrefix is the nested-path convention for item properties: a bare
// property name like "eo:cloud_cover" is stored under
// "properties.eo:cloud_cover" in the indexed document.
const propertiesPrefix = "properties."

// FieldRef is a resolved field: the physical document path and declared type.
type FieldRef struct {
	Name string
	Path string
	Type FieldType
}

// Queryable describes one externally published queryable field.
type Queryable struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// topLevel lists item fields that live outside the properties bag.
var topLevel = map[string]FieldRef{
	"id":         {Name: "id", Path: "id", Type: TypeString},
	"collection": {Name: "collection", Path: "collection", Type: TypeString},
	"geometry":   {Name: "geometry", Path: "geometry", Type: TypeGeometry},
}

// DefaultProperties returns the declared property set of the standard item
// schema. Callers may extend or replace it with collection-declared fields.
func DefaultProperties() map[string]FieldType {
	return map[string]FieldType{
		"datetime":       TypeDatetime,
		"start_datetime": TypeDatetime,
		"end_datetime":   TypeDatetime,
		"created":        TypeDatetime,
		"updated":        TypeDatetime,
		"title":          TypeString,
		"description":    TypeString,
		"keywords":       TypeString,
		"platform":       TypeString,
		"instruments":    TypeString,
		"constellation":  TypeString,
		"mission":        TypeString,
		"grid:code":      TypeString,
		"gsd":            TypeNumber,
		"eo:cloud_cover": TypeNumber,
		"sat:absolute_orbit": TypeNumber,
		"sat:relative_orbit": TypeNumber,
		"view:sun_elevation": TypeNumber,
		"view:sun_azimuth":   TypeNumber,
		"view:off_nadir":     TypeNumber,
	}
}

// Resolver maps logical property names to physical field paths and declared
// types, honoring an exclusion list. It is read-only after construction and
// safe for concurrent use without synchronization.
type Resolver struct {
	properties map[string]FieldType
	excluded   []string
}

// NewResolver builds a Resolver over the declared property set. Each entry of
// excluded hides the named field and all of its nested descendants.
func NewResolver(properties map[string]FieldType, excluded []string) *Resolver {
	props := make(map[string]FieldType, len(properties))
	for name, t := range properties {
		props[name] = t
	}
	ex := make([]string, len(excluded))
	copy(ex, excluded)
	return &Resolver{properties: props, excluded: ex}
}

// isExcluded reports whether name (a logical property name) is hidden by the
// exclusion set, either exactly or as a nested descendant of an excluded
// prefix.
func (r *Resolver) isExcluded(name string) bool {
	for _, ex := range r.excluded {
		if name == ex || strings.HasPrefix(name, ex+".") {
			return true
		}
	}
	return false
}

// Resolve maps a logical field name to its FieldRef. Unknown and excluded
// names fail with a FieldNotQueryable error naming the field; the caller is
// expected to surface it as part of an InvalidFilter response.
func (r *Resolver) Resolve(name string) (FieldRef, error) {
	// Accept the physical form too, so filter grammars that already say
	// "properties.datetime" resolve to the same field as "datetime".
	logical := strings.TrimPrefix(name, propertiesPrefix)

	if r.isExcluded(logical) {
		return FieldRef{}, errors.New(errors.ErrCodeFieldNotQueryable, "field is not queryable").
			WithDetail(name)
	}

	if ref, ok := topLevel[logical]; ok && !strings.HasPrefix(name, propertiesPrefix) {
		return ref, nil
	}

	t, ok := r.properties[logical]
	if !ok {
		return FieldRef{}, errors.New(errors.ErrCodeFieldNotQueryable, "unknown field").
			WithDetail(name)
	}
	return FieldRef{Name: logical, Path: propertiesPrefix + logical, Type: t}, nil
}

// Queryables returns the externally published queryable fields, sorted by
// name, with excluded fields omitted.
func (r *Resolver) Queryables() []Queryable {
	out := make([]Queryable, 0, len(topLevel)+len(r.properties))
	for name, ref := range topLevel {
		if !r.isExcluded(name) {
			out = append(out, Queryable{Name: name, Type: ref.Type})
		}
	}
	for name, t := range r.properties {
		if !r.isExcluded(name) {
			out = append(out, Queryable{Name: name, Type: t})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
