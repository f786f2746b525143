package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/interactions"
	"finitefield.org/storefront/internal/product"
)

func TestBuildHomeData(t *testing.T) {
	snap := interactions.Snapshot{
		ActiveCategory: "tv",
		Categories:     []string{"all", "tv"},
		Products:       []product.Product{{ID: "1", Title: "TV"}},
		Counts:         interactions.Counts{Favorites: 2, Cart: 1},
	}
	page := catalog.Page{
		Banners: []catalog.Banner{{ID: "b1"}},
		Source:  catalog.SourceFallback,
	}

	vm := BuildHomeData(Layout{Lang: "az", Path: "/", TabID: "tab-1"}, page, snap)

	assert.Equal(t, 2, vm.Counts.Favorites)
	assert.NotEmpty(t, vm.Nav)
	assert.Len(t, vm.Banners, 1)
	assert.Equal(t, catalog.SourceFallback, vm.Source)

	require.Len(t, vm.Products.Categories, 2)
	assert.True(t, vm.Products.Categories[1].Active)
	require.Len(t, vm.Products.Cards, 1)
	assert.Equal(t, "az", vm.Products.Cards[0].Lang)
	assert.Equal(t, "tab-1", vm.Products.TabID)
	assert.False(t, vm.Products.Empty())
}

func TestProductsDataEmpty(t *testing.T) {
	loading := BuildProductsData("az", "t", interactions.Snapshot{Loading: true})
	assert.False(t, loading.Empty())

	empty := BuildProductsData("az", "t", interactions.Snapshot{ActiveCategory: "nope"})
	assert.True(t, empty.Empty())
	assert.NotNil(t, empty.Cards)
}
