package page

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvista/geocatalog/pkg/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	// Epoch-millis datetime plus string tie-breakers, as the engine returns
	// them in a hit's sort tuple.
	in := []interface{}{json.Number("1718380800000"), "S2A_MSIL2A_20240614", "sentinel-2-l2a"}

	token, err := Encode(in)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	out, err := Decode(token)
	require.NoError(t, err)
	require.Len(t, out, 3)

	n, ok := out[0].(json.Number)
	require.True(t, ok, "numeric sort value must decode as json.Number, got %T", out[0])
	assert.Equal(t, "1718380800000", n.String())
	assert.Equal(t, "S2A_MSIL2A_20240614", out[1])
	assert.Equal(t, "sentinel-2-l2a", out[2])
}

func TestTokenIsURLSafe(t *testing.T) {
	token, err := Encode([]interface{}{json.Number("1718380800000"), "id?with&chars"})
	require.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestEncodeEmptyTupleFails(t *testing.T) {
	_, err := Encode(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"not base64", "not+valid+base64!!"},
		{"base64 but not json", base64.RawURLEncoding.EncodeToString([]byte("hello"))},
		{"json but not array", base64.RawURLEncoding.EncodeToString([]byte(`{"a":1}`))},
		{"empty array", base64.RawURLEncoding.EncodeToString([]byte(`[]`))},
		{"trailing data", base64.RawURLEncoding.EncodeToString([]byte(`[1]["x"]`))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.token)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidPaginationToken), "got %v", err)
		})
	}
}

func TestDecodeTamperedTokenFailsAtomically(t *testing.T) {
	token, err := Encode([]interface{}{json.Number("42"), "item-1"})
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "!!"
	values, err := Decode(tampered)
	require.Error(t, err)
	assert.Nil(t, values)
}
