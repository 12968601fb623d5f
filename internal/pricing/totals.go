// Package pricing computes cart totals. Calculate is pure: the cart store
// uses it after every mutation and again after reloading persisted items,
// so the two paths can never disagree.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/aquaflow/internal/domain"
)

var (
	FreeShippingThreshold = decimal.RequireFromString("50.00")
	FlatShippingRate      = decimal.RequireFromString("5.99")
	TaxRate               = decimal.RequireFromString("0.08")
)

// Calculate returns the totals for items. Currency fields are rounded to
// cents, half-up. An empty cart has nothing to ship and totals to zero,
// matching a cleared cart.
func Calculate(items []domain.CartItem) domain.Totals {
	if len(items) == 0 {
		return domain.Totals{
			Subtotal: decimal.Zero,
			Shipping: decimal.Zero,
			Tax:      decimal.Zero,
			Total:    decimal.Zero,
		}
	}

	var count int
	subtotal := decimal.Zero
	for _, item := range items {
		count += item.Quantity
		subtotal = subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = RoundCents(subtotal)

	shipping := FlatShippingRate
	if subtotal.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := RoundCents(subtotal.Mul(TaxRate))

	return domain.Totals{
		ItemCount: count,
		Subtotal:  subtotal,
		Shipping:  RoundCents(shipping),
		Tax:       tax,
		Total:     RoundCents(subtotal.Add(shipping).Add(tax)),
	}
}

// RoundCents rounds to two decimal places. Amounts here are never negative,
// where decimal's half-away-from-zero is half-up.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
