package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudvista/geocatalog/pkg/errors"
	"github.com/cloudvista/geocatalog/pkg/types/catalog"
)

func TestParamsFromBodySortDirections(t *testing.T) {
	params, err := paramsFromBody(searchBody{SortBy: []sortSpec{
		{Field: "datetime", Direction: "desc"},
		{Field: "id"},
	}})
	require.NoError(t, err)
	require.Len(t, params.SortBy, 2)
	assert.Equal(t, catalog.SortDesc, params.SortBy[0].Direction)
	// An omitted direction defaults to ascending.
	assert.Equal(t, catalog.SortAsc, params.SortBy[1].Direction)
}

func TestParamsFromBodyRejectsUnknownSortDirection(t *testing.T) {
	for _, dir := range []string{"sideways", "DESC", "descending"} {
		_, err := paramsFromBody(searchBody{SortBy: []sortSpec{{Field: "id", Direction: dir}}})
		require.Error(t, err, dir)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), dir)
	}
}
