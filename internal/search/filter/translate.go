package filter

import (
	"encoding/json"
	"fmt"
	"time"

	geom "github.com/twpayne/go-geom"
	geojson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/cloudvista/geocatalog/internal/search/fields"
	"github.com/cloudvista/geocatalog/pkg/errors"
)

// Translator converts filter expression trees into the engine's native
// boolean query representation. Translation is purely structural: the same
// tree always yields the same query, and no clause is ever silently dropped.
type Translator struct {
	resolver *fields.Resolver
}

// NewTranslator returns a Translator bound to the given field resolver. The
// resolver's declared types govern literal validation; types are never
// inferred from literal shape.
func NewTranslator(resolver *fields.Resolver) *Translator {
	return &Translator{resolver: resolver}
}

// Translate converts expr into a native query clause. Any unresolvable field,
// operator unsupported for the field's declared type, or type-incompatible
// literal fails with a typed error naming the offending field and operator.
func (t *Translator) Translate(expr Expr) (map[string]interface{}, error) {
	switch node := expr.(type) {
	case Comparison:
		return t.translateComparison(node)
	case Logical:
		return t.translateLogical(node)
	case Not:
		child, err := t.Translate(node.Child)
		if err != nil {
			return nil, err
		}
		return boolClause("must_not", []interface{}{child}), nil
	case Like:
		return t.translateLike(node)
	case In:
		return t.translateIn(node)
	case Between:
		return t.translateBetween(node)
	case IsNull:
		ref, err := t.resolver.Resolve(node.Field)
		if err != nil {
			return nil, err
		}
		exists := map[string]interface{}{"exists": map[string]interface{}{"field": ref.Path}}
		return boolClause("must_not", []interface{}{exists}), nil
	case SpatialIntersects:
		return t.translateIntersects(node)
	case nil:
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "nil filter expression")
	default:
		return nil, errors.Newf(errors.ErrCodeMalformedFilterNode, "unknown filter node type %T", expr)
	}
}

func (t *Translator) translateComparison(node Comparison) (map[string]interface{}, error) {
	ref, err := t.resolver.Resolve(node.Field)
	if err != nil {
		return nil, err
	}
	value, err := typedValue(ref, node.Value, string(node.Op))
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case OpEq, OpNeq:
		term := map[string]interface{}{
			"term": map[string]interface{}{ref.Path: map[string]interface{}{"value": value}},
		}
		if node.Op == OpNeq {
			return boolClause("must_not", []interface{}{term}), nil
		}
		return term, nil
	case OpLt, OpLte, OpGt, OpGte:
		if ref.Type == fields.TypeBoolean || ref.Type == fields.TypeGeometry {
			return nil, operatorErr(node.Field, string(node.Op), ref.Type)
		}
		bound := map[CompareOp]string{OpLt: "lt", OpLte: "lte", OpGt: "gt", OpGte: "gte"}[node.Op]
		return map[string]interface{}{
			"range": map[string]interface{}{ref.Path: map[string]interface{}{bound: value}},
		}, nil
	default:
		return nil, errors.New(errors.ErrCodeOperatorUnsupported, "unknown comparison operator").
			WithDetail(string(node.Op))
	}
}

func (t *Translator) translateLogical(node Logical) (map[string]interface{}, error) {
	children := make([]interface{}, 0, len(node.Children))
	for _, child := range node.Children {
		clause, err := t.Translate(child)
		if err != nil {
			return nil, err
		}
		children = append(children, clause)
	}

	switch node.Op {
	case OpAnd:
		return boolClause("must", children), nil
	case OpOr:
		clause := boolClause("should", children)
		clause["bool"].(map[string]interface{})["minimum_should_match"] = 1
		return clause, nil
	default:
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "unknown logical operator").
			WithDetail(string(node.Op))
	}
}

func (t *Translator) translateLike(node Like) (map[string]interface{}, error) {
	ref, err := t.resolver.Resolve(node.Field)
	if err != nil {
		return nil, err
	}
	if ref.Type != fields.TypeString {
		return nil, operatorErr(node.Field, "like", ref.Type)
	}
	pattern, err := translateLikePattern(node.Pattern)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"wildcard": map[string]interface{}{ref.Path: map[string]interface{}{"value": pattern}},
	}, nil
}

func (t *Translator) translateIn(node In) (map[string]interface{}, error) {
	ref, err := t.resolver.Resolve(node.Field)
	if err != nil {
		return nil, err
	}
	if len(node.Values) == 0 {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "\"in\" requires a non-empty value list").
			WithDetail(node.Field)
	}
	values := make([]interface{}, 0, len(node.Values))
	for _, raw := range node.Values {
		v, err := typedValue(ref, raw, "in")
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return map[string]interface{}{
		"terms": map[string]interface{}{ref.Path: values},
	}, nil
}

func (t *Translator) translateBetween(node Between) (map[string]interface{}, error) {
	ref, err := t.resolver.Resolve(node.Field)
	if err != nil {
		return nil, err
	}
	if ref.Type != fields.TypeNumber && ref.Type != fields.TypeDatetime {
		return nil, operatorErr(node.Field, "between", ref.Type)
	}
	low, err := typedValue(ref, node.Low, "between")
	if err != nil {
		return nil, err
	}
	high, err := typedValue(ref, node.High, "between")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"range": map[string]interface{}{ref.Path: map[string]interface{}{"gte": low, "lte": high}},
	}, nil
}

func (t *Translator) translateIntersects(node SpatialIntersects) (map[string]interface{}, error) {
	ref, err := t.resolver.Resolve(node.Field)
	if err != nil {
		return nil, err
	}
	if ref.Type != fields.TypeGeometry {
		return nil, operatorErr(node.Field, "s_intersects", ref.Type)
	}

	var g geom.T
	if err := geojson.Unmarshal(node.Geometry, &g); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidFilter, "invalid GeoJSON geometry").
			WithDetail(node.Field)
	}

	var shape interface{}
	if err := json.Unmarshal(node.Geometry, &shape); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidFilter, "invalid geometry document")
	}
	return map[string]interface{}{
		"geo_shape": map[string]interface{}{
			ref.Path: map[string]interface{}{
				"shape":    shape,
				"relation": "intersects",
			},
		},
	}, nil
}

// typedValue validates a literal against the field's declared type and
// returns the value to embed in the native query. Numbers stay json.Number so
// integer/float distinction survives re-marshalling; datetimes are validated
// but carried in their original string form.
func typedValue(ref fields.FieldRef, v interface{}, op string) (interface{}, error) {
	switch ref.Type {
	case fields.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, literalErr(ref.Name, op, "string", v)
		}
		return s, nil
	case fields.TypeNumber:
		n, ok := v.(json.Number)
		if !ok {
			return nil, literalErr(ref.Name, op, "number", v)
		}
		return n, nil
	case fields.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, literalErr(ref.Name, op, "boolean", v)
		}
		return b, nil
	case fields.TypeDatetime:
		s, ok := v.(string)
		if !ok {
			return nil, literalErr(ref.Name, op, "datetime", v)
		}
		if _, err := ParseDatetime(s); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeLiteralTypeMismatch, "invalid datetime literal").
				WithDetail(fmt.Sprintf("field %q, value %q", ref.Name, s))
		}
		return s, nil
	case fields.TypeGeometry:
		return nil, operatorErr(ref.Name, op, ref.Type)
	default:
		return nil, errors.Newf(errors.ErrCodeInternal, "unhandled field type %q", ref.Type)
	}
}

// ParseDatetime accepts an RFC 3339 timestamp (with optional fractional
// seconds) or a plain calendar date.
func ParseDatetime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}

func boolClause(occurrence string, clauses []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"bool": map[string]interface{}{occurrence: clauses},
	}
}

func operatorErr(field, op string, t fields.FieldType) error {
	return errors.New(errors.ErrCodeOperatorUnsupported, "operator unsupported for field type").
		WithDetail(fmt.Sprintf("field %q (%s), operator %q", field, t, op))
}

func literalErr(field, op string, want string, got interface{}) error {
	return errors.New(errors.ErrCodeLiteralTypeMismatch, "filter literal incompatible with declared field type").
		WithDetail(fmt.Sprintf("field %q expects %s, operator %q got %T", field, want, op, got))
}
