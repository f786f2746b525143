package catalog

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"finitefield.org/storefront/internal/product"
)

func parseBanners(list gjson.Result) []Banner {
	banners := []Banner{}
	if !list.IsArray() {
		return banners
	}
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		banners = append(banners, Banner{
			ID:          scalar(item.Get("id")),
			Image:       product.StringOf(item.Get("image")),
			Title:       product.StringOf(item.Get("title")),
			Description: product.StringOf(item.Get("description")),
			ButtonText:  product.StringOf(item.Get("buttonText")),
			URL:         product.StringOf(item.Get("url")),
		})
		return true
	})
	return banners
}

func (c *Client) parseFeatures(list gjson.Result) []Feature {
	features := []Feature{}
	if !list.IsArray() {
		return features
	}
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		features = append(features, Feature{
			ID:          scalar(item.Get("id")),
			Icon:        product.StringOf(item.Get("icon")),
			Title:       product.StringOf(item.Get("title")),
			Description: c.renderer.Render(product.StringOf(item.Get("description"))),
		})
		return true
	})
	return features
}

// flattenGroups turns [{title, products: [...]}] into raw products tagged with
// their group title. Groups without a title or product array are skipped.
func flattenGroups(groups gjson.Result, randomID func() string) []product.Raw {
	out := []product.Raw{}
	if !groups.IsArray() {
		return out
	}
	groups.ForEach(func(_, group gjson.Result) bool {
		title := product.StringOf(group.Get("title"))
		items := group.Get("products")
		if title == "" || !items.IsArray() {
			return true
		}
		items.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				return true
			}
			out = append(out, flattenProduct(item, title, randomID))
			return true
		})
		return true
	})
	return out
}

func flattenProduct(item gjson.Result, category string, randomID func() string) product.Raw {
	raw := product.FromJSON(item)
	if raw.ID == "" {
		raw.ID = "product-" + randomID()
	}
	if name := product.StringOf(item.Get("name")); name != "" {
		raw.Title = name
	}
	if raw.Title == "" {
		raw.Title = product.PlaceholderTitle
	}
	if !raw.Price.Valid {
		raw.Price = product.NumberOf(0)
	}
	if !raw.Discount.Valid {
		raw.Discount = product.NumberOf(0)
	}
	if !raw.DiscountedPrice.Truthy() {
		raw.DiscountedPrice = raw.Price
	}
	if !raw.Quantity.Valid {
		raw.Quantity = product.NumberOf(0)
	}
	raw.Category = category
	raw.ReviewCount = product.Number{}
	return raw
}

// scalar renders string or numeric ids.
func scalar(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return strconv.FormatFloat(r.Num, 'f', -1, 64)
	default:
		return ""
	}
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomProductID() string {
	var b strings.Builder
	b.Grow(9)
	for i := 0; i < 9; i++ {
		b.WriteByte(idAlphabet[rand.Intn(len(idAlphabet))])
	}
	return b.String()
}
