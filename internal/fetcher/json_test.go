package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONArray_CensusRows(t *testing.T) {
	input := `[["NAME","B01003_001E","state","county","tract"],
["Census Tract 1; King County; Washington","4520","53","033","000100"]]`

	ch, errCh := DecodeJSONArray[[]string](context.Background(), strings.NewReader(input))

	var rows [][]string
	for row := range ch {
		rows = append(rows, row)
	}
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Len(t, rows, 2)
	assert.Equal(t, "B01003_001E", rows[0][1])
	assert.Equal(t, "000100", rows[1][4])
}

func TestDecodeJSONArray_Empty(t *testing.T) {
	ch, errCh := DecodeJSONArray[[]string](context.Background(), strings.NewReader(""))
	for range ch {
		t.Fatal("expected no rows")
	}
	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestDecodeJSONArray_NotArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[[]string](context.Background(), strings.NewReader(`{"error":"bad key"}`))
	for range ch {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestDecodeJSONObject(t *testing.T) {
	type view struct {
		Name       string `json:"name"`
		TotalCount int64  `json:"totalCount"`
	}

	v, err := DecodeJSONObject[view](strings.NewReader(`{"name":"SPD Crime Data","totalCount":1200000}`))
	require.NoError(t, err)
	assert.Equal(t, "SPD Crime Data", v.Name)
	assert.Equal(t, int64(1200000), v.TotalCount)

	_, err = DecodeJSONObject[view](strings.NewReader(`not json`))
	require.Error(t, err)
}
