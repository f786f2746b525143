package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexUncategorizedOnlyInAll(t *testing.T) {
	raws := []Raw{
		{ID: "1", Category: "TV"},
		{ID: "2"},
		{ID: "3", Category: "Phones"},
		{ID: "4", Category: "TV"},
	}
	idx := NewIndex(raws)

	assert.Equal(t, []string{All, "TV", "Phones"}, idx.Categories())
	assert.Equal(t, raws, idx.Products(All))
	assert.Equal(t, 4, idx.Len())

	for _, name := range idx.Categories()[1:] {
		for _, raw := range idx.Products(name) {
			assert.NotEqual(t, "2", raw.ID, "uncategorized product leaked into %s", name)
		}
	}
	assert.Equal(t, []Raw{raws[0], raws[3]}, idx.Products("TV"))
}

func TestIndexUnknownCategoryIsEmpty(t *testing.T) {
	idx := NewIndex([]Raw{{ID: "1", Category: "TV"}})

	got := idx.Products("Laptops")
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, NormalizeAll(got, Sets{}))
}

func TestIndexEmpty(t *testing.T) {
	idx := NewIndex(nil)
	assert.Equal(t, []string{All}, idx.Categories())
	assert.NotNil(t, idx.Products(All))
	assert.Empty(t, idx.Products(All))

	var zero Index
	assert.Equal(t, []string{All}, zero.Categories())
	assert.Empty(t, zero.Products(All))
}

func TestIndexIgnoresLiteralAllCategory(t *testing.T) {
	idx := NewIndex([]Raw{{ID: "1", Category: All}, {ID: "2", Category: "TV"}})

	assert.Equal(t, []string{All, "TV"}, idx.Categories())
	assert.Len(t, idx.Products(All), 2)
}

func TestIndexDoesNotAliasInput(t *testing.T) {
	raws := []Raw{{ID: "1", Category: "TV"}}
	idx := NewIndex(raws)
	raws[0].ID = "changed"

	assert.Equal(t, "1", idx.Products(All)[0].ID)
}
