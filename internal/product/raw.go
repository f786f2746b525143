// Package product turns catalog entries into the shape the storefront renders.
package product

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Number is a catalog numeric field. Catalog feeds mix numbers and numeric
// strings, so Valid is false for anything that does not parse.
type Number struct {
	Value float64
	Valid bool
}

// NumberOf wraps a known value.
func NumberOf(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{Value: v, Valid: true}
}

// Float returns the value, or 0 when invalid.
func (n Number) Float() float64 {
	if !n.Valid {
		return 0
	}
	return n.Value
}

// Or returns the value when it is valid and non-zero, otherwise fallback.
func (n Number) Or(fallback float64) float64 {
	if !n.Valid || n.Value == 0 {
		return fallback
	}
	return n.Value
}

// Truthy reports a valid non-zero value.
func (n Number) Truthy() bool { return n.Valid && n.Value != 0 }

// String renders the value without trailing zeros, or "" when invalid.
func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// PerMonth is the raw installment offer.
type PerMonth struct {
	Price Number
	Month Number
}

// Raw is a catalog product before normalization. Every field is optional.
type Raw struct {
	ID              string
	Title           string
	Price           Number
	Discount        Number
	DiscountedPrice Number
	Image           string
	Category        string
	Slug            string
	Quantity        Number
	PerMonth        *PerMonth
	ReviewCount     Number
	// Source is the JSON the record was parsed from, kept for passthrough.
	Source json.RawMessage
}

// ParseRaw parses one catalog product object. Anything other than an object
// yields a zero Raw.
func ParseRaw(data []byte) Raw {
	if !gjson.ValidBytes(data) {
		return Raw{}
	}
	return FromJSON(gjson.ParseBytes(data))
}

// ParseRawList parses a JSON array of catalog products. Non-array input yields nil.
func ParseRawList(data []byte) []Raw {
	if !gjson.ValidBytes(data) {
		return nil
	}
	list := gjson.ParseBytes(data)
	if !list.IsArray() {
		return nil
	}
	var out []Raw
	list.ForEach(func(_, item gjson.Result) bool {
		out = append(out, FromJSON(item))
		return true
	})
	return out
}

// FromJSON maps a parsed catalog product. Title falls back to name.
func FromJSON(r gjson.Result) Raw {
	if !r.IsObject() {
		return Raw{}
	}
	raw := Raw{
		ID:              IDOf(r.Get("id")),
		Title:           StringOf(r.Get("title")),
		Price:           NumberFrom(r.Get("price")),
		Discount:        NumberFrom(r.Get("discount")),
		DiscountedPrice: NumberFrom(r.Get("discounted_price")),
		Image:           StringOf(r.Get("image")),
		Category:        StringOf(r.Get("category")),
		Slug:            StringOf(r.Get("slug")),
		Quantity:        NumberFrom(r.Get("quantity")),
		ReviewCount:     NumberFrom(r.Get("reviewCount")),
		Source:          json.RawMessage(r.Raw),
	}
	if raw.Title == "" {
		raw.Title = StringOf(r.Get("name"))
	}
	if pm := r.Get("perMonth"); pm.IsObject() {
		raw.PerMonth = &PerMonth{
			Price: NumberFrom(pm.Get("price")),
			Month: NumberFrom(pm.Get("month")),
		}
	}
	return raw
}

// NumberFrom coerces a JSON number or numeric string.
func NumberFrom(r gjson.Result) Number {
	switch r.Type {
	case gjson.Number:
		return NumberOf(r.Num)
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return Number{}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Number{}
		}
		return NumberOf(f)
	default:
		return Number{}
	}
}

// IDOf coerces an id to its string form. Zero, empty and non-scalar ids are absent.
func IDOf(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		if r.Num == 0 {
			return ""
		}
		return strconv.FormatFloat(r.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// StringOf returns string values and ignores every other JSON type.
func StringOf(r gjson.Result) string {
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}
