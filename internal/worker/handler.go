package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/email"
)

// OrderHandler records placed orders with the orders service and sends the
// confirmation email.
type OrderHandler struct {
	emailServiceURL  string
	ordersServiceURL string
	httpClient       *http.Client
	logger           *slog.Logger
}

func NewOrderHandler(emailServiceURL, ordersServiceURL string, client *http.Client, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		emailServiceURL:  emailServiceURL,
		ordersServiceURL: ordersServiceURL,
		httpClient:       client,
		logger:           logger,
	}
}

func (h *OrderHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order placed event: %w", err)
	}

	order := event.Order
	h.logger.Info("processing order placed event", "order_id", order.ID, "session_id", event.SessionID)

	created, err := h.recordOrder(ctx, event)
	if err != nil {
		h.logger.Error("failed to record order", "error", err, "order_id", order.ID)
		return fmt.Errorf("record order: %w", err)
	}

	// A redelivered event finds the order already recorded. The email is
	// sent again under the order id as idempotency key, so a send that
	// failed the first time is retried and one that succeeded is deduped.
	if !created {
		h.logger.Info("order already recorded", "order_id", order.ID)
	}

	if err := h.sendConfirmationEmail(ctx, order); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", order.ID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("order processing complete", "order_id", order.ID)
	return nil
}

func (h *OrderHandler) recordOrder(ctx context.Context, event domain.OrderPlacedEvent) (bool, error) {
	body := map[string]any{
		"sessionId": event.SessionID,
		"order":     event.Order,
	}

	resp, err := h.post(ctx, h.ordersServiceURL+"/orders", body, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated:
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}
}

func (h *OrderHandler) sendConfirmationEmail(ctx context.Context, order domain.Order) error {
	if order.ShippingAddress.Email == "" {
		h.logger.Warn("order has no email address", "order_id", order.ID)
		return nil
	}

	body := map[string]string{
		"to":      order.ShippingAddress.Email,
		"subject": "Your AquaFlow order " + order.ID,
		"body":    confirmationBody(order),
	}

	header := http.Header{}
	header.Set(email.IdempotencyKeyHeader, order.ID)

	resp, err := h.post(ctx, h.emailServiceURL+"/send", body, header)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}

func confirmationBody(order domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s, thanks for your order %s.\n\n", order.ShippingAddress.FirstName, order.ID)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "%d x %s @ %s\n", item.Quantity, item.Name, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nShipping: %s\nTax: %s\nTotal: %s\n",
		order.Subtotal.StringFixed(2), order.Shipping.StringFixed(2), order.Tax.StringFixed(2), order.Total.StringFixed(2))
	if order.TrackingNumber != "" {
		fmt.Fprintf(&b, "Tracking number: %s\n", order.TrackingNumber)
	}
	if !order.EstimatedDelivery.IsZero() {
		fmt.Fprintf(&b, "Estimated delivery: %s\n", order.EstimatedDelivery.Format("Monday, January 2"))
	}
	return b.String()
}

func (h *OrderHandler) post(ctx context.Context, url string, body any, header http.Header) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for name, values := range header {
		req.Header[name] = values
	}
	req.Header.Set("Content-Type", "application/json")

	return h.httpClient.Do(req)
}
