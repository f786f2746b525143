package nav

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"finitefield.org/storefront/internal/product"
)

// Item represents a top-level navigation item.
type Item struct {
	Path     string // e.g. "/campaigns"
	LabelKey string // i18n key, e.g. "nav.campaigns"
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	LabelKey string
	Active   bool
}

// Main is the header category navigation.
var Main = []Item{
	{Path: "/campaigns", LabelKey: "nav.campaigns"},
	{Path: "/services", LabelKey: "nav.services"},
	{Path: "/stores", LabelKey: "nav.stores"},
	{Path: "/monthly", LabelKey: "nav.monthly"},
	{Path: "/other", LabelKey: "nav.other"},
}

// Build renders navigation items with active state given the current path.
// The first item is active on the home page.
func Build(currentPath string) []RenderedItem {
	if currentPath == "" {
		currentPath = "/"
	}
	items := make([]RenderedItem, 0, len(Main))
	for i, it := range Main {
		active := isActive(it.Path, currentPath) || (currentPath == "/" && i == 0)
		items = append(items, RenderedItem{
			Href:     it.Path,
			LabelKey: it.LabelKey,
			Active:   active,
		})
	}
	return items
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	// match exact or prefix boundary: "/stores" or "/stores/..."
	if currentPath == itemPath {
		return true
	}
	return strings.HasPrefix(currentPath, itemPath+"/")
}

// CategoryButton is one filter button above the product grid.
// LabelKey is set for the "all" pseudo-category, Label otherwise.
type CategoryButton struct {
	Name     string
	Label    string
	LabelKey string
	Active   bool
}

// Categories builds the filter buttons in the order given.
func Categories(categories []string, active string) []CategoryButton {
	out := make([]CategoryButton, 0, len(categories))
	for _, c := range categories {
		b := CategoryButton{Name: c, Active: c == active}
		if c == product.All {
			b.LabelKey = "products.all"
		} else {
			b.Label = CategoryLabel(c)
		}
		out = append(out, b)
	}
	return out
}

// CategoryLabel upper-cases the first rune of a category name.
func CategoryLabel(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
