package domain

import "github.com/shopspring/decimal"

type SelectedOptions struct {
	Size                  string `json:"size,omitempty"`
	SubscriptionFrequency string `json:"subscriptionFrequency,omitempty"`
}

// CartItem is one line of the cart. Product is a snapshot taken when the
// line was created.
type CartItem struct {
	ID              string           `json:"id"`
	Product         Product          `json:"product"`
	Quantity        int              `json:"quantity"`
	SelectedOptions *SelectedOptions `json:"selectedOptions,omitempty"`
}

type Totals struct {
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

// Cart is a read-only view of a cart store.
type Cart struct {
	Items  []CartItem `json:"items"`
	IsOpen bool       `json:"isOpen"`
	Totals
}

// PersistedCart is the shape written to durable storage. Totals are never
// stored; they are recomputed from Items on load.
type PersistedCart struct {
	Items []CartItem `json:"items"`
}
