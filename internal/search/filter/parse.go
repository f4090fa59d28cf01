package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

// LangCQL2JSON is the only filter grammar variant currently accepted.
const LangCQL2JSON = "cql2-json"

// Parse decodes a CQL2-JSON document into a filter expression tree. Numbers
// are decoded as json.Number so numeric literals reach the translator without
// float conversion.
func Parse(raw json.RawMessage) (Expr, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedFilterNode, "filter is not valid JSON")
	}
	return parseNode(doc)
}

// ParseWithLang validates the filter-lang selector before parsing.
func ParseWithLang(raw json.RawMessage, lang string) (Expr, error) {
	if lang != "" && lang != LangCQL2JSON {
		return nil, errors.New(errors.ErrCodeInvalidFilter, "unsupported filter language").
			WithDetail(lang)
	}
	return Parse(raw)
}

func parseNode(doc interface{}) (Expr, error) {
	node, ok := doc.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "filter node must be a JSON object")
	}

	op, ok := node["op"].(string)
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "filter node is missing string \"op\"")
	}

	args, ok := node["args"].([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "filter node is missing array \"args\"").
			WithDetail(op)
	}

	switch strings.ToLower(op) {
	case "=", "<>", "<", "<=", ">", ">=":
		return parseComparison(CompareOp(op), args)
	case "and", "or":
		return parseLogical(LogicOp(strings.ToLower(op)), args)
	case "not":
		return parseNot(args)
	case "like":
		return parseLike(args)
	case "in":
		return parseIn(args)
	case "between":
		return parseBetween(args)
	case "isnull":
		return parseIsNull(args)
	case "s_intersects":
		return parseIntersects(args)
	default:
		return nil, errors.New(errors.ErrCodeInvalidFilter, "unsupported filter operator").
			WithDetail(op)
	}
}

func parseComparison(op CompareOp, args []interface{}) (Expr, error) {
	if len(args) != 2 {
		return nil, argCountErr(string(op), 2, len(args))
	}
	field, err := propertyName(args[0])
	if err != nil {
		return nil, err
	}
	value, err := literal(args[1])
	if err != nil {
		return nil, err
	}
	return Comparison{Field: field, Op: op, Value: value}, nil
}

func parseLogical(op LogicOp, args []interface{}) (Expr, error) {
	if len(args) < 2 {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode,
			fmt.Sprintf("%q requires at least 2 arguments, got %d", op, len(args)))
	}
	children := make([]Expr, 0, len(args))
	for _, a := range args {
		child, err := parseNode(a)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return Logical{Op: op, Children: children}, nil
}

func parseNot(args []interface{}) (Expr, error) {
	if len(args) != 1 {
		return nil, argCountErr("not", 1, len(args))
	}
	child, err := parseNode(args[0])
	if err != nil {
		return nil, err
	}
	return Not{Child: child}, nil
}

func parseLike(args []interface{}) (Expr, error) {
	if len(args) != 2 {
		return nil, argCountErr("like", 2, len(args))
	}
	field, err := propertyName(args[0])
	if err != nil {
		return nil, err
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "\"like\" pattern must be a string").
			WithDetail(field)
	}
	return Like{Field: field, Pattern: pattern}, nil
}

func parseIn(args []interface{}) (Expr, error) {
	if len(args) != 2 {
		return nil, argCountErr("in", 2, len(args))
	}
	field, err := propertyName(args[0])
	if err != nil {
		return nil, err
	}
	list, ok := args[1].([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "\"in\" requires an array of values").
			WithDetail(field)
	}
	values := make([]interface{}, 0, len(list))
	for _, v := range list {
		lit, err := literal(v)
		if err != nil {
			return nil, err
		}
		values = append(values, lit)
	}
	return In{Field: field, Values: values}, nil
}

func parseBetween(args []interface{}) (Expr, error) {
	if len(args) != 3 {
		return nil, argCountErr("between", 3, len(args))
	}
	field, err := propertyName(args[0])
	if err != nil {
		return nil, err
	}
	low, err := literal(args[1])
	if err != nil {
		return nil, err
	}
	high, err := literal(args[2])
	if err != nil {
		return nil, err
	}
	return Between{Field: field, Low: low, High: high}, nil
}

func parseIsNull(args []interface{}) (Expr, error) {
	if len(args) != 1 {
		return nil, argCountErr("isNull", 1, len(args))
	}
	field, err := propertyName(args[0])
	if err != nil {
		return nil, err
	}
	return IsNull{Field: field}, nil
}

func parseIntersects(args []interface{}) (Expr, error) {
	if len(args) != 2 {
		return nil, argCountErr("s_intersects", 2, len(args))
	}
	field, err := propertyName(args[0])
	if err != nil {
		return nil, err
	}
	geom, err := json.Marshal(args[1])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedFilterNode, "\"s_intersects\" geometry is not valid JSON")
	}
	return SpatialIntersects{Field: field, Geometry: geom}, nil
}

// propertyName extracts the field name from a CQL2 property reference
// ({"property": "name"}).
func propertyName(arg interface{}) (string, error) {
	ref, ok := arg.(map[string]interface{})
	if !ok {
		return "", errors.New(errors.ErrCodeMalformedFilterNode, "expected a property reference object")
	}
	name, ok := ref["property"].(string)
	if !ok || name == "" {
		return "", errors.New(errors.ErrCodeMalformedFilterNode, "property reference is missing string \"property\"")
	}
	return name, nil
}

// literal unwraps a CQL2 literal. Temporal literals may arrive wrapped as
// {"timestamp": "..."} or {"date": "..."}; both unwrap to their string form.
// Nested expression objects are rejected where a literal is expected.
func literal(arg interface{}) (interface{}, error) {
	switch v := arg.(type) {
	case string, bool, json.Number, nil:
		return v, nil
	case map[string]interface{}:
		if ts, ok := v["timestamp"].(string); ok {
			return ts, nil
		}
		if d, ok := v["date"].(string); ok {
			return d, nil
		}
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "expected a literal value, got an object")
	default:
		return nil, errors.New(errors.ErrCodeMalformedFilterNode, "unsupported literal type")
	}
}

func argCountErr(op string, want, got int) error {
	return errors.New(errors.ErrCodeMalformedFilterNode,
		fmt.Sprintf("%q requires exactly %d arguments, got %d", op, want, got))
}
