package storefront

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/aquaflow/internal/confirmation"
)

type Metrics struct {
	cartMutations metric.Int64Counter
	ordersPlaced  metric.Int64Counter
	confirmations metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	cartMutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation"))
	if err != nil {
		return nil, err
	}

	ordersPlaced, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders placed through the payment step"))
	if err != nil {
		return nil, err
	}

	confirmations, err := meter.Int64Counter("storefront.confirmation.resolved",
		metric.WithDescription("Orders resolved for the confirmation step, by source"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cartMutations: cartMutations,
		ordersPlaced:  ordersPlaced,
		confirmations: confirmations,
	}, nil
}

func (m *Metrics) cartMutation(ctx context.Context, operation string) {
	m.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *Metrics) orderPlaced(ctx context.Context) {
	m.ordersPlaced.Add(ctx, 1)
}

func (m *Metrics) confirmationResolved(ctx context.Context, source confirmation.Source) {
	m.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}
