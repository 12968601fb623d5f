// Package confirmation resolves the order shown when a shopper reaches the
// confirmation step.
//
// The order placed by the payment step normally waits in the hand-off slot.
// When it is not there yet, the resolver waits a fixed delay for it and then
// synthesizes a fallback order from the cart, or from sample data when the
// cart is empty. The delay is a heuristic: an order placed after it elapses
// loses to the fallback.
package confirmation

import (
	"context"
	"log/slog"
	"time"

	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/handoff"
)

const (
	DefaultFallbackDelay = time.Second
	deliveryWindow       = 3 * 24 * time.Hour
)

type Source string

const (
	SourceHandoff Source = "handoff"
	SourceCart    Source = "cart"
	SourceSample  Source = "sample"
)

type Cart interface {
	Items() []domain.CartItem
	Totals() domain.Totals
	ClearCart(ctx context.Context)
}

type Checkout interface {
	State() domain.CheckoutState
	Reset()
}

type Resolver struct {
	slot   *handoff.Slot
	delay  time.Duration
	logger *slog.Logger

	now  func() time.Time
	code func(int) string
}

func NewResolver(slot *handoff.Slot, delay time.Duration, logger *slog.Logger) *Resolver {
	if delay <= 0 {
		delay = DefaultFallbackDelay
	}
	return &Resolver{
		slot:   slot,
		delay:  delay,
		logger: logger,
		now:    time.Now,
		code:   randomCode,
	}
}

// Resolve returns the order to display for session. It never clears the cart
// or the checkout; see Continue. The only error is ctx's, when it ends before
// an order is available, and the pending timer is stopped in that case.
func (r *Resolver) Resolve(ctx context.Context, session string, cart Cart, checkout Checkout) (domain.Order, Source, error) {
	// Subscribe before the first read so a put landing in between still
	// wakes us.
	notified, unsubscribe, err := r.slot.Subscribe(ctx, session)
	if err != nil {
		r.logger.Warn("hand-off notifications unavailable", "error", err, "session", session)
		notified, unsubscribe = nil, func() {}
	}
	defer unsubscribe()

	if order, ok := r.take(ctx, session); ok {
		return order, SourceHandoff, nil
	}

	timer := time.NewTimer(r.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return domain.Order{}, "", ctx.Err()
		case <-notified:
			if order, ok := r.take(ctx, session); ok {
				return order, SourceHandoff, nil
			}
		case <-timer.C:
			order, source := r.fallback(cart, checkout)
			r.logger.Info("synthesized fallback order", "session", session, "order_id", order.ID, "source", source)
			return order, source, nil
		}
	}
}

// Continue finishes a completed checkout. An order still waiting in the
// hand-off slot is discarded so it cannot surface on the next confirmation,
// then the cart is cleared and the checkout returns to its initial state.
func (r *Resolver) Continue(ctx context.Context, session string, cart Cart, checkout Checkout) {
	if order, ok := r.take(ctx, session); ok {
		r.logger.Info("discarded unclaimed hand-off order", "session", session, "order_id", order.ID)
	}
	cart.ClearCart(ctx)
	checkout.Reset()
}

func (r *Resolver) take(ctx context.Context, session string) (domain.Order, bool) {
	order, ok, err := r.slot.Take(ctx, session)
	if err != nil {
		r.logger.Warn("failed to read hand-off slot", "error", err, "session", session)
		return domain.Order{}, false
	}
	return order, ok
}

func (r *Resolver) fallback(cart Cart, checkout Checkout) (domain.Order, Source) {
	now := r.now()
	order := domain.Order{
		ID:                newOrderID(now, r.code),
		Date:              now,
		Status:            domain.OrderStatusConfirmed,
		EstimatedDelivery: now.Add(deliveryWindow),
		TrackingNumber:    newTrackingNumber(r.code),
		ShippingAddress:   sampleAddress,
		PaymentMethod:     samplePayment,
	}

	items := cart.Items()
	if len(items) == 0 {
		order.Items = cloneSampleItems()
		order.Subtotal = sampleSubtotal
		order.Shipping = sampleShipping
		order.Tax = sampleTax
		order.Total = sampleTotal
		return order, SourceSample
	}

	state := checkout.State()
	if state.ShippingAddress != nil {
		order.ShippingAddress = *state.ShippingAddress
	}
	if state.PaymentMethod != nil {
		order.PaymentMethod = state.PaymentMethod.Masked()
	}

	order.Items = OrderItems(items)
	totals := cart.Totals()
	order.Subtotal = totals.Subtotal
	order.Shipping = totals.Shipping
	order.Tax = totals.Tax
	order.Total = totals.Total
	return order, SourceCart
}

// OrderItems snapshots cart lines for an order.
func OrderItems(items []domain.CartItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		var options *domain.SelectedOptions
		if item.SelectedOptions != nil {
			o := *item.SelectedOptions
			options = &o
		}
		out = append(out, domain.OrderItem{
			ID:       item.ID,
			Name:     item.Product.Name,
			Quantity: item.Quantity,
			Price:    item.Product.Price,
			Image:    item.Product.Image,
			Options:  options,
		})
	}
	return out
}
