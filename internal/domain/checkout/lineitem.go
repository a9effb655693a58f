package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// UnitAmount converts a price in major units to minor units, rounding half
// away from zero: 19.995 becomes 2000 and 19.994 becomes 1999.
func UnitAmount(price decimal.Decimal) int64 {
	return price.Mul(hundred).Round(0).IntPart()
}

// BuildLineItems maps every cart item to one line item, preserving order.
// Items with a non-positive count are passed through; the session endpoint
// is expected to reject them.
func BuildLineItems(items []cart.Item, currency string) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = LineItem{
			PriceData: PriceData{
				Currency:    currency,
				UnitAmount:  UnitAmount(item.Price),
				ProductData: ProductData{Name: item.Title},
			},
			Quantity: item.Count,
		}
	}
	return out
}
