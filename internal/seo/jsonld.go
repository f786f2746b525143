package seo

import (
	"encoding/json"
	"strings"

	"finitefield.org/storefront/internal/product"
)

// JSON marshals v to a compact JSON string. It returns an empty string on error.
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// WebSite returns a minimal WebSite schema with optional SearchAction.
func WebSite(name, url, searchActionURL string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     name,
	}
	if url != "" {
		m["url"] = url
	}
	if searchActionURL != "" {
		m["potentialAction"] = map[string]any{
			"@type":       "SearchAction",
			"target":      searchActionURL + "{search_term_string}",
			"query-input": "required name=search_term_string",
		}
	}
	return m
}

// Product returns a product schema payload with an AZN offer.
func Product(p product.Product, baseURL string) map[string]any {
	m := map[string]any{
		"@type": "Product",
		"name":  p.Title,
		"sku":   p.ID,
		"offers": map[string]any{
			"@type":         "Offer",
			"price":         product.FormatPrice(p.DiscountedPrice),
			"priceCurrency": "AZN",
		},
	}
	if img := absolute(p.ImageURL, baseURL); img != "" {
		m["image"] = img
	}
	return m
}

// ItemList wraps products into a schema.org ItemList.
func ItemList(products []product.Product, baseURL string) map[string]any {
	el := make([]map[string]any, 0, len(products))
	for i, p := range products {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"item":     Product(p, baseURL),
		})
	}
	return map[string]any{
		"@context":        "https://schema.org",
		"@type":           "ItemList",
		"itemListElement": el,
	}
}

func absolute(u, baseURL string) string {
	if u == "" || strings.HasPrefix(u, "http") {
		return u
	}
	if baseURL == "" {
		return ""
	}
	return strings.TrimSuffix(baseURL, "/") + u
}
