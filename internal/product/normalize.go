package product

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// PlaceholderTitle is shown for products without a title.
	PlaceholderTitle = "Məhsul adı"
	// PlaceholderImage is served for products without an image.
	PlaceholderImage = "/product-placeholder.svg"
	// MediaOrigin hosts root-relative catalog images.
	MediaOrigin = "https://api.b-e.az"
	// DefaultReviewCount is shown when the catalog omits a review count.
	DefaultReviewCount = 6
	// DefaultInstallmentMonths applies when an installment offer has no term.
	DefaultInstallmentMonths = 12
)

// Membership answers whether a product id belongs to a key set.
type Membership interface {
	Has(id string) bool
}

// Sets bundles the visitor's three key sets. Nil members hold nothing.
type Sets struct {
	Favorites   Membership
	Cart        Membership
	Comparisons Membership
}

// Installment is a monthly payment offer.
type Installment struct {
	Price float64 `json:"price"`
	Month float64 `json:"month"`
}

// Product is a normalized catalog entry ready for rendering.
type Product struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	DiscountedPrice float64      `json:"discountedPrice"`
	OriginalPrice   float64      `json:"originalPrice"`
	ImageURL        string       `json:"imageUrl"`
	HasDiscount     bool         `json:"hasDiscount"`
	Discount        Number       `json:"-"`
	Installment     *Installment `json:"installment"`
	ReviewCount     int          `json:"reviewCount"`
	IsFavorite      bool         `json:"isFavorite"`
	IsInCart        bool         `json:"isInCart"`
	IsInComparison  bool         `json:"isInComparison"`
	Raw             Raw          `json:"-"`
}

// MarshalJSON renders the product with discount omitted when the catalog had none.
func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	out := struct {
		alias
		Discount *float64       `json:"discount,omitempty"`
		RawData  json.RawMessage `json:"rawData,omitempty"`
	}{alias: alias(p)}
	if p.Discount.Valid {
		v := p.Discount.Value
		out.Discount = &v
	}
	if len(p.Raw.Source) > 0 {
		out.RawData = p.Raw.Source
	}
	return json.Marshal(out)
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	lowerCaser    = cases.Lower(language.Und)
	clock         = time.Now
)

// ProductID returns the raw id, or synthesizes one from the title. The same title
// always yields the same id; untitled products fall back to a timestamp.
func ProductID(raw Raw) string {
	if raw.ID != "" {
		return raw.ID
	}
	if raw.Title != "" {
		return "product-" + lowerCaser.String(whitespaceRun.ReplaceAllString(raw.Title, "-"))
	}
	return "product-" + strconv.FormatInt(clock().UnixMilli(), 10)
}

// Normalize maps raw into a Product annotated with key set membership. It never
// fails: every field has a fallback.
func Normalize(raw Raw, sets Sets) Product {
	id := ProductID(raw)
	title := raw.Title
	if title == "" {
		title = PlaceholderTitle
	}
	original := raw.Price.Or(0)
	p := Product{
		ID:              id,
		Title:           title,
		DiscountedPrice: raw.DiscountedPrice.Or(original),
		OriginalPrice:   original,
		ImageURL:        ImageURL(raw.Image),
		HasDiscount:     raw.Discount.Valid && raw.Discount.Value > 0,
		Discount:        raw.Discount,
		Installment:     InstallmentOf(raw.PerMonth),
		ReviewCount:     DefaultReviewCount,
		IsFavorite:      has(sets.Favorites, id),
		IsInCart:        has(sets.Cart, id),
		IsInComparison:  has(sets.Comparisons, id),
		Raw:             raw,
	}
	if raw.ReviewCount.Valid {
		p.ReviewCount = int(raw.ReviewCount.Value)
	}
	return p
}

// NormalizeAll normalizes raws preserving order. The result is never nil.
func NormalizeAll(raws []Raw, sets Sets) []Product {
	out := make([]Product, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw, sets))
	}
	return out
}

// InstallmentOf returns nil without an offer. Missing or zero fields fall back to
// a zero price and a twelve month term.
func InstallmentOf(pm *PerMonth) *Installment {
	if pm == nil {
		return nil
	}
	return &Installment{
		Price: pm.Price.Or(0),
		Month: pm.Month.Or(DefaultInstallmentMonths),
	}
}

// ImageURL resolves a catalog image reference.
func ImageURL(image string) string {
	switch {
	case image == "":
		return PlaceholderImage
	case strings.HasPrefix(image, "http"):
		return image
	case strings.HasPrefix(image, "/"):
		return MediaOrigin + image
	default:
		return "/" + image
	}
}

// FormatPrice renders a numeric price with exactly two decimals. Anything that is
// not a finite number renders as "0.00". Floats are rounded from their exact
// binary value, so 1.005 renders as "1.00".
func FormatPrice(v any) string {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return decimal.NewFromInt(int64(n)).StringFixed(2)
	case int32:
		return decimal.NewFromInt32(n).StringFixed(2)
	case int64:
		return decimal.NewFromInt(n).StringFixed(2)
	case uint:
		return decimal.NewFromUint64(uint64(n)).StringFixed(2)
	case uint64:
		return decimal.NewFromUint64(n).StringFixed(2)
	case decimal.Decimal:
		return n.StringFixed(2)
	case Number:
		if !n.Valid {
			return "0.00"
		}
		f = n.Value
	default:
		return "0.00"
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0.00"
	}
	return decimal.NewFromFloatWithExponent(f, -2).StringFixed(2)
}

func has(m Membership, id string) bool {
	if m == nil {
		return false
	}
	return m.Has(id)
}
