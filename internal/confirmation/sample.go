package confirmation

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/aquaflow/internal/domain"
)

// Sample values shown when the confirmation step is reached without a placed
// order and without anything in the cart.
var (
	sampleItems = []domain.OrderItem{
		{
			ID:       "sample-bottles",
			Name:     "Premium Water Bottles 16oz",
			Quantity: 2,
			Price:    decimal.RequireFromString("12.99"),
			Image:    "/images/premium-water-bottles.jpg",
		},
		{
			ID:       "sample-jug",
			Name:     "5-Gallon Water Jug",
			Quantity: 1,
			Price:    decimal.RequireFromString("32.99"),
			Image:    "/images/5-gallon-jug.jpg",
		},
	}

	sampleSubtotal = decimal.RequireFromString("79.98")
	sampleShipping = decimal.RequireFromString("3.59")
	sampleTax      = decimal.RequireFromString("6.40")
	sampleTotal    = decimal.RequireFromString("89.97")

	sampleAddress = domain.ShippingAddress{
		FirstName: "John",
		LastName:  "Doe",
		Email:     "john.doe@example.com",
		Phone:     "5555550123",
		Address:   "123 Main Street",
		City:      "Springfield",
		State:     "IL",
		ZipCode:   "62701",
		Country:   "United States",
	}

	samplePayment = domain.PaymentMethod{
		Type:           domain.PaymentTypeCard,
		CardNumber:     "**** **** **** 4242",
		CardholderName: "John Doe",
	}
)

func cloneSampleItems() []domain.OrderItem {
	items := make([]domain.OrderItem, len(sampleItems))
	copy(items, sampleItems)
	return items
}
