package aggregation

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

// Bucket is one value→count pair of a frequency or geo-grid result.
type Bucket struct {
	Key       interface{} `json:"key"`
	Frequency int64       `json:"frequency"`
}

// Result is the uniform aggregation record returned to consumers, decoupling
// them from the native response shape of either backend.
type Result struct {
	Name     string      `json:"name"`
	DataType string      `json:"data_type"`
	Value    interface{} `json:"value,omitempty"`
	Buckets  []Bucket    `json:"buckets,omitempty"`
}

// ResponseAdapter normalizes one backend's native aggregation response shape
// into a Result. The rest of the system never branches on backend identity.
type ResponseAdapter interface {
	// Flavor names the backend this adapter understands.
	Flavor() string

	// Format reshapes the raw response body of one named aggregation.
	Format(entry Entry, raw json.RawMessage) (Result, error)
}

// NewAdapter selects the adapter for the configured backend flavor.
func NewAdapter(flavor string) (ResponseAdapter, error) {
	switch flavor {
	case "elasticsearch":
		return elasticsearchAdapter{}, nil
	case "opensearch", "":
		return opensearchAdapter{}, nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unknown backend flavor").WithDetail(flavor)
	}
}

// rawAggregation covers the superset of both backends' single-aggregation
// response shapes.
type rawAggregation struct {
	Value         interface{} `json:"value"`
	ValueAsString string      `json:"value_as_string"`
	Buckets       []rawBucket `json:"buckets"`
}

type rawBucket struct {
	Key         interface{} `json:"key"`
	KeyAsString string      `json:"key_as_string"`
	DocCount    int64       `json:"doc_count"`
}

func decodeRaw(name string, raw json.RawMessage) (rawAggregation, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var agg rawAggregation
	if err := dec.Decode(&agg); err != nil {
		return rawAggregation{}, errors.Wrap(err, errors.ErrCodeAggregationResponseMalformed,
			"failed to decode aggregation response").WithDetail(name)
	}
	return agg, nil
}

// elasticsearchAdapter normalizes Elasticsearch responses. Elasticsearch
// renders datetime metrics and bucket keys through "value_as_string" /
// "key_as_string" alongside the epoch-millis number; the adapter prefers the
// rendered form.
type elasticsearchAdapter struct{}

func (elasticsearchAdapter) Flavor() string { return "elasticsearch" }

func (elasticsearchAdapter) Format(entry Entry, raw json.RawMessage) (Result, error) {
	agg, err := decodeRaw(entry.Name, raw)
	if err != nil {
		return Result{}, err
	}
	result := Result{Name: entry.Name, DataType: entry.DataType}

	if entry.Kind == KindMetric {
		if entry.DataType == "datetime" && agg.ValueAsString != "" {
			result.Value = agg.ValueAsString
			return result, nil
		}
		result.Value, err = metricValue(entry, agg.Value)
		return result, err
	}

	result.Buckets = make([]Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		key := b.Key
		if b.KeyAsString != "" {
			key = b.KeyAsString
		}
		result.Buckets = append(result.Buckets, Bucket{Key: key, Frequency: b.DocCount})
	}
	return result, nil
}

// opensearchAdapter normalizes OpenSearch responses. OpenSearch omits the
// rendered string forms unless a format is set on the request, so the adapter
// converts epoch-millis numbers itself.
type opensearchAdapter struct{}

func (opensearchAdapter) Flavor() string { return "opensearch" }

func (opensearchAdapter) Format(entry Entry, raw json.RawMessage) (Result, error) {
	agg, err := decodeRaw(entry.Name, raw)
	if err != nil {
		return Result{}, err
	}
	result := Result{Name: entry.Name, DataType: entry.DataType}

	if entry.Kind == KindMetric {
		if entry.DataType == "datetime" {
			if agg.ValueAsString != "" {
				result.Value = agg.ValueAsString
				return result, nil
			}
			if n, ok := agg.Value.(json.Number); ok {
				result.Value, err = epochMillisToISO(entry.Name, n)
				return result, err
			}
			return Result{}, errors.New(errors.ErrCodeAggregationResponseMalformed,
				"datetime metric carries no value").WithDetail(entry.Name)
		}
		result.Value, err = metricValue(entry, agg.Value)
		return result, err
	}

	result.Buckets = make([]Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		key := b.Key
		if b.KeyAsString != "" {
			key = b.KeyAsString
		}
		result.Buckets = append(result.Buckets, Bucket{Key: key, Frequency: b.DocCount})
	}
	return result, nil
}

// metricValue converts a metric value into its published representation.
// Integer metrics are rendered as int64; anything else keeps its numeric
// form.
func metricValue(entry Entry, v interface{}) (interface{}, error) {
	n, ok := v.(json.Number)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, errors.New(errors.ErrCodeAggregationResponseMalformed,
			"metric value is not numeric").WithDetail(entry.Name)
	}
	if entry.DataType == "integer" {
		i, err := n.Int64()
		if err != nil {
			// value_count can legitimately come back as a float.
			f, ferr := n.Float64()
			if ferr != nil {
				return nil, errors.Wrap(err, errors.ErrCodeAggregationResponseMalformed,
					"integer metric value is not parseable").WithDetail(entry.Name)
			}
			return int64(f), nil
		}
		return i, nil
	}
	return n, nil
}

func epochMillisToISO(name string, n json.Number) (string, error) {
	millis, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return "", errors.Wrap(err, errors.ErrCodeAggregationResponseMalformed,
				"datetime metric value is not parseable").WithDetail(name)
		}
		millis = int64(f)
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339Nano), nil
}
