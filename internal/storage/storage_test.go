package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLockMode(t *testing.T) {
	mode, err := ParseLockMode("NoWait")
	require.NoError(t, err)
	assert.Equal(t, LockNoWait, mode)

	mode, err = ParseLockMode("wait")
	require.NoError(t, err)
	assert.Equal(t, LockWait, mode)

	_, err = ParseLockMode("sometimes")
	assert.Error(t, err)
}

func TestSlicePagesThroughResults(t *testing.T) {
	all := make([]int, 15)
	for i := range all {
		all[i] = i
	}

	first := Slice(all, Pagination{})
	assert.Equal(t, 15, first.Total)
	assert.Len(t, first.Items, DefaultPageSize)
	assert.Equal(t, 1, first.Page)

	second := Slice(all, Pagination{Page: 2, PageSize: 10})
	assert.Equal(t, []int{10, 11, 12, 13, 14}, second.Items)

	beyond := Slice(all, Pagination{Page: 9, PageSize: 10})
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 15, beyond.Total)
}

func TestPaginationClampsPageSize(t *testing.T) {
	p := Pagination{Page: 0, PageSize: 1000}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)
}

func TestParseOrdering(t *testing.T) {
	o, err := ParseOrdering("-balance", "id", "id", "label", "balance")
	require.NoError(t, err)
	assert.Equal(t, Ordering{Field: "balance", Desc: true}, o)

	o, err = ParseOrdering("", "id", "id", "label")
	require.NoError(t, err)
	assert.Equal(t, Ordering{Field: "id"}, o)

	_, err = ParseOrdering("password", "id", "id", "label")
	assert.Error(t, err)
}
