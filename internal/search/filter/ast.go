// Package filter implements the vendor-neutral filter expression language:
// a closed expression tree parsed from CQL2-JSON and translated into the
// search engine's native boolean query representation.
//
// The node set is a sealed sum type: every dispatch over Expr switches on
// the concrete node types below, so adding a node kind surfaces every place
// that must handle it.
package filter

import "encoding/json"

// Expr is one node of a filter expression tree.
//
// The isExpr marker keeps the union closed: only types in this package can
// appear in a tree.
type Expr interface {
	isExpr()
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNeq CompareOp = "<>"
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// LogicOp is an n-ary boolean connective.
type LogicOp string

const (
	OpAnd LogicOp = "and"
	OpOr  LogicOp = "or"
)

// Comparison is field <op> literal. Literal values keep their decoded JSON
// representation (string, bool, or json.Number — numbers are never converted
// to float64 so that integer/float fidelity survives translation).
type Comparison struct {
	Field string
	Op    CompareOp
	Value interface{}
}

// Logical is AND/OR over two or more child expressions.
type Logical struct {
	Op       LogicOp
	Children []Expr
}

// Not negates a single child expression.
type Not struct {
	Child Expr
}

// Like is a pattern match where '%' matches any run of characters, '_'
// matches exactly one character, and '\' escapes either.
type Like struct {
	Field   string
	Pattern string
}

// In is set membership: field value equals one of Values.
type In struct {
	Field  string
	Values []interface{}
}

// Between is an inclusive range test: Low <= field <= High.
type Between struct {
	Field string
	Low   interface{}
	High  interface{}
}

// IsNull tests for field absence.
type IsNull struct {
	Field string
}

// SpatialIntersects tests geometric intersection between the named geometry
// field and a GeoJSON geometry, carried verbatim.
type SpatialIntersects struct {
	Field    string
	Geometry json.RawMessage
}

func (Comparison) isExpr()        {}
func (Logical) isExpr()           {}
func (Not) isExpr()               {}
func (Like) isExpr()              {}
func (In) isExpr()                {}
func (Between) isExpr()           {}
func (IsNull) isExpr()            {}
func (SpatialIntersects) isExpr() {}
