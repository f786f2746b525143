package format

import (
	"strings"

	"finitefield.org/storefront/internal/product"
)

// Currency is the manat sign shown after prices.
const Currency = "₼"

// Price formats v with two decimals followed by the currency sign.
// Example: Price(1299.5) => "1299.50 ₼"
func Price(v any) string {
	return product.FormatPrice(v) + " " + Currency
}

// Discount renders a discount badge such as "-15%". Absent or zero discounts
// render as an empty string.
func Discount(n product.Number) string {
	if !n.Truthy() {
		return ""
	}
	return "-" + strings.TrimSpace(n.String()) + "%"
}

// Months renders an installment period, e.g. "12 ay".
func Months(month float64, unit string) string {
	return product.NumberOf(month).String() + " " + unit
}
