package domain

import "github.com/shopspring/decimal"

type Category string

const (
	CategoryWater        Category = "water"
	CategoryAccessories  Category = "accessories"
	CategorySubscription Category = "subscription"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryWater, CategoryAccessories, CategorySubscription:
		return true
	}
	return false
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Category    Category        `json:"category"`
	InStock     bool            `json:"inStock"`
	Volume      string          `json:"volume,omitempty"`
	Features    []string        `json:"features,omitempty"`
}
