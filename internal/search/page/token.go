// Package page implements the opaque continuation token used for cursor
// pagination. A token is a pure function of the sort-key values of the last
// item on a page: it carries no server-side state and stays valid across
// service restarts.
package page

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

// Encode serializes the sort-key values of the last returned document into an
// opaque token. Values are carried in the exact representation the engine
// returned for the hit's sort tuple (datetimes as epoch-millis numbers,
// strings as strings), so comparison fidelity is preserved.
func Encode(sortValues []interface{}) (string, error) {
	if len(sortValues) == 0 {
		return "", errors.New(errors.ErrCodeInternal, "cannot encode an empty sort tuple")
	}
	data, err := json.Marshal(sortValues)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal sort values")
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode reproduces the sort-key tuple from a token. Numbers come back as
// json.Number so epoch-millis datetimes and large integers round-trip without
// float64 precision loss. A malformed or tampered token fails atomically with
// an InvalidPaginationToken error; decoding never partially succeeds.
func Decode(token string) ([]interface{}, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidPaginationToken, "token is not valid base64").
			WithDetail(truncate(token))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var values []interface{}
	if err := dec.Decode(&values); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidPaginationToken, "token payload is not a sort tuple").
			WithDetail(truncate(token))
	}
	if dec.More() {
		return nil, errors.New(errors.ErrCodeInvalidPaginationToken, "token carries trailing data").
			WithDetail(truncate(token))
	}
	if len(values) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidPaginationToken, "token carries an empty sort tuple")
	}
	return values, nil
}

// truncate keeps error details readable when a garbage token is very long.
func truncate(token string) string {
	const max = 32
	if len(token) > max {
		return token[:max] + "…"
	}
	return token
}
