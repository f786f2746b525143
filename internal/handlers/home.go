package handlers

import (
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/interactions"
	"finitefield.org/storefront/internal/nav"
	"finitefield.org/storefront/internal/product"
	"finitefield.org/storefront/internal/seo"
)

// Layout carries the fields shared by every full page render.
type Layout struct {
	Lang      string
	Path      string
	SEO       seo.Meta
	Nav       []nav.RenderedItem
	TabID     string
	CSRFToken string
	Counts    interactions.Counts
}

// HomeData is the view model for the home page.
type HomeData struct {
	Layout
	Banners  []catalog.Banner
	Features []catalog.Feature
	Products ProductsData
	Source   string
}

// ProductsData is the view model of the products section and its htmx fragment.
type ProductsData struct {
	Lang           string
	TabID          string
	Loading        bool
	ActiveCategory string
	Categories     []nav.CategoryButton
	Cards          []CardData
}

// Empty reports a loaded section without products to show.
func (d ProductsData) Empty() bool { return !d.Loading && len(d.Cards) == 0 }

// CardData is the view model of one product card.
type CardData struct {
	Lang    string
	Product product.Product
	// Animate names the control that was just toggled so the fragment can play
	// its press animation.
	Animate    string
	Transition interactions.Transition
}

// BuildProductsData maps a tab snapshot onto the products section.
func BuildProductsData(lang, tabID string, snap interactions.Snapshot) ProductsData {
	cards := make([]CardData, 0, len(snap.Products))
	for _, p := range snap.Products {
		cards = append(cards, CardData{Lang: lang, Product: p})
	}
	return ProductsData{
		Lang:           lang,
		TabID:          tabID,
		Loading:        snap.Loading,
		ActiveCategory: snap.ActiveCategory,
		Categories:     nav.Categories(snap.Categories, snap.ActiveCategory),
		Cards:          cards,
	}
}

// BuildHomeData constructs the landing page view model.
func BuildHomeData(layout Layout, page catalog.Page, snap interactions.Snapshot) HomeData {
	layout.Counts = snap.Counts
	if layout.Nav == nil {
		layout.Nav = nav.Build(layout.Path)
	}
	return HomeData{
		Layout:   layout,
		Banners:  page.Banners,
		Features: page.Features,
		Products: BuildProductsData(layout.Lang, layout.TabID, snap),
		Source:   page.Source,
	}
}
