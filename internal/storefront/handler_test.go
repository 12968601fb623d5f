package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/aquaflow/internal/confirmation"
	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/handoff"
	"github.com/joao-fontenele/aquaflow/internal/storage"
)

type fakeProducts struct {
	products map[string]domain.Product
	err      error
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.OrderPlacedEvent
	keys   []string
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, key string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.events = append(f.events, event.(domain.OrderPlacedEvent))
	return nil
}

type testServer struct {
	mux       *http.ServeMux
	kv        *storage.MemoryStore
	slot      *handoff.Slot
	products  *fakeProducts
	publisher *fakePublisher
	sessions  *Sessions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := storage.NewMemoryStore()
	slot := handoff.NewSlot(kv, handoff.NewLocalNotifier(), time.Minute, logger)
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	products := &fakeProducts{products: map[string]domain.Product{
		"jug-5gal": {
			ID:       "jug-5gal",
			Name:     "5-Gallon Water Jug",
			Price:    decimal.RequireFromString("32.99"),
			Image:    "/images/5-gallon-jug.jpg",
			Category: domain.CategoryWater,
			InStock:  true,
		},
		"filter-pitcher": {
			ID:       "filter-pitcher",
			Name:     "Filter Pitcher",
			Price:    decimal.RequireFromString("24.99"),
			Category: domain.CategoryAccessories,
			InStock:  false,
		},
	}}
	publisher := &fakePublisher{}
	sessions := NewSessions(kv, logger)

	h := NewHandler(sessions, products, slot,
		confirmation.NewResolver(slot, 20*time.Millisecond, logger),
		publisher, metrics, logger)
	mux := http.NewServeMux()
	h.Register(mux)

	return &testServer{
		mux:       mux,
		kv:        kv,
		slot:      slot,
		products:  products,
		publisher: publisher,
		sessions:  sessions,
	}
}

func (s *testServer) do(t *testing.T, method, path, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

const (
	validAddress = `{"firstName":"Ana","lastName":"Silva","email":"ana@example.com","phone":"555-123-4567",` +
		`"address":"1 Spring St","city":"Austin","state":"TX","zipCode":"73301","country":"US"}`
	validCard = `{"type":"card","cardNumber":"4111 1111 1111 1111","expiryDate":"12/28","cvv":"123","cardholderName":"Ana Silva"}`
)

func TestHandler_MissingSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/cart", "", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if s.sessions.Len() != 0 {
		t.Errorf("expected no sessions, got %d", s.sessions.Len())
	}
}

func TestHandler_AddItem(t *testing.T) {
	t.Run("defaults quantity to one", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[addItemResponse](t, rec)
		if resp.Item.Quantity != 1 {
			t.Errorf("expected quantity 1, got %d", resp.Item.Quantity)
		}
		if resp.Cart.ItemCount != 1 {
			t.Errorf("expected item count 1, got %d", resp.Cart.ItemCount)
		}
		if !resp.Cart.Total.Equal(decimal.RequireFromString("41.62")) {
			t.Errorf("expected total 41.62, got %s", resp.Cart.Total)
		}
	})

	t.Run("merges repeated adds", func(t *testing.T) {
		s := newTestServer(t)

		s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal","quantity":1}`)
		rec := s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal","quantity":1}`)

		resp := decode[addItemResponse](t, rec)
		if len(resp.Cart.Items) != 1 {
			t.Fatalf("expected 1 line, got %d", len(resp.Cart.Items))
		}
		if resp.Cart.Items[0].Quantity != 2 {
			t.Errorf("expected quantity 2, got %d", resp.Cart.Items[0].Quantity)
		}
		if !resp.Cart.Shipping.IsZero() {
			t.Errorf("expected free shipping, got %s", resp.Cart.Shipping)
		}
		if !resp.Cart.Total.Equal(decimal.RequireFromString("71.26")) {
			t.Errorf("expected total 71.26, got %s", resp.Cart.Total)
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		s := newTestServer(t)

		tests := []struct {
			name   string
			body   string
			status int
		}{
			{"invalid json", `{`, http.StatusBadRequest},
			{"missing product", `{"quantity":1}`, http.StatusBadRequest},
			{"zero quantity", `{"productId":"jug-5gal","quantity":0}`, http.StatusBadRequest},
			{"quantity above max", `{"productId":"jug-5gal","quantity":1000}`, http.StatusBadRequest},
			{"huge quantity", `{"productId":"jug-5gal","quantity":9223372036854775807}`, http.StatusBadRequest},
			{"unknown product", `{"productId":"nope"}`, http.StatusNotFound},
			{"out of stock", `{"productId":"filter-pitcher"}`, http.StatusConflict},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := s.do(t, http.MethodPost, "/cart/items", "s1", tt.body)
				if rec.Code != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, rec.Code)
				}
			})
		}
	})

	t.Run("catalog failure", func(t *testing.T) {
		s := newTestServer(t)
		s.products.err = errors.New("connection refused")

		rec := s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
	})
}

func TestHandler_CartMutations(t *testing.T) {
	s := newTestServer(t)
	added := decode[addItemResponse](t, s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`))
	lineID := added.Item.ID

	rec := s.do(t, http.MethodPatch, "/cart/items/"+lineID, "s1", `{"quantity":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := decode[domain.Cart](t, rec); got.ItemCount != 3 {
		t.Errorf("expected item count 3, got %d", got.ItemCount)
	}

	rec = s.do(t, http.MethodGet, "/cart/products/jug-5gal", "s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := decode[domain.CartItem](t, rec); got.ID != lineID {
		t.Errorf("expected line %s, got %s", lineID, got.ID)
	}

	rec = s.do(t, http.MethodPatch, "/cart/items/"+lineID, "s1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without quantity, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPatch, "/cart/items/"+lineID, "s1", `{"quantity":1000}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 above max quantity, got %d", rec.Code)
	}
	if got := decode[domain.Cart](t, s.do(t, http.MethodGet, "/cart", "s1", "")); got.ItemCount != 3 {
		t.Errorf("expected rejected update to leave item count 3, got %d", got.ItemCount)
	}

	rec = s.do(t, http.MethodDelete, "/cart/items/"+lineID, "s1", "")
	if got := decode[domain.Cart](t, rec); len(got.Items) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(got.Items))
	}

	rec = s.do(t, http.MethodGet, "/cart/products/jug-5gal", "s1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandler_ClearCartPersists(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)

	rec := s.do(t, http.MethodDelete, "/cart", "s1", "")

	got := decode[domain.Cart](t, rec)
	if len(got.Items) != 0 || !got.Total.IsZero() {
		t.Errorf("expected empty cart with zero total, got %+v", got)
	}
	if _, err := s.kv.Get(context.Background(), "aquaflow-cart:s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected persisted cart to be deleted, got %v", err)
	}
}

func TestHandler_CartVisibility(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path string
		open bool
	}{
		{"/cart/open", true},
		{"/cart/open", true},
		{"/cart/toggle", false},
		{"/cart/toggle", true},
		{"/cart/close", false},
	}
	for _, tt := range tests {
		got := decode[domain.Cart](t, s.do(t, http.MethodPost, tt.path, "s1", ""))
		if got.IsOpen != tt.open {
			t.Errorf("%s: expected isOpen %v, got %v", tt.path, tt.open, got.IsOpen)
		}
	}
}

func TestHandler_SessionsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)

	got := decode[domain.Cart](t, s.do(t, http.MethodGet, "/cart", "s2", ""))

	if len(got.Items) != 0 {
		t.Errorf("expected s2 cart to be empty, got %d lines", len(got.Items))
	}
}

func TestHandler_CartSurvivesSessionDrop(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal","quantity":2}`)

	s.sessions.Drop("s1")
	got := decode[domain.Cart](t, s.do(t, http.MethodGet, "/cart", "s1", ""))

	if got.ItemCount != 2 {
		t.Errorf("expected restored item count 2, got %d", got.ItemCount)
	}
	if got.IsOpen {
		t.Error("expected restored cart to be closed")
	}
}

func TestHandler_Checkout(t *testing.T) {
	t.Run("shipping enables payment", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		got := decode[checkoutResponse](t, rec)
		if !got.CanProceedToPayment {
			t.Error("expected canProceedToPayment")
		}
		if got.CanProceedToConfirmation {
			t.Error("expected canProceedToConfirmation to be false without payment")
		}
	})

	t.Run("partial shipping is accepted", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPut, "/checkout/shipping", "s1", `{"firstName":"Ana"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if got := decode[checkoutResponse](t, rec); got.CanProceedToPayment {
			t.Error("expected canProceedToPayment to be false")
		}
	})

	t.Run("malformed shipping is rejected", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPut, "/checkout/shipping", "s1", `{"email":"not-an-email","phone":"12"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		body := decode[struct {
			Fields map[string]string `json:"fields"`
		}](t, rec)
		if _, ok := body.Fields["email"]; !ok {
			t.Error("expected email field error")
		}
		if _, ok := body.Fields["phone"]; !ok {
			t.Error("expected phone field error")
		}
	})

	t.Run("payment enables confirmation", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)

		rec := s.do(t, http.MethodPut, "/checkout/payment", "s1", validCard)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		got := decode[checkoutResponse](t, rec)
		if !got.CanProceedToConfirmation {
			t.Error("expected canProceedToConfirmation")
		}
		if got.PaymentMethod.CardNumber != "4111111111111111" {
			t.Errorf("expected normalized card number, got %s", got.PaymentMethod.CardNumber)
		}
	})

	t.Run("unknown payment type", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPut, "/checkout/payment", "s1", `{"type":"cash"}`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("step", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(t, http.MethodPut, "/checkout/step", "s1", `{"step":"payment"}`)
		if got := decode[checkoutResponse](t, rec); got.Step != domain.CheckoutStepPayment {
			t.Errorf("expected step payment, got %s", got.Step)
		}

		rec = s.do(t, http.MethodPut, "/checkout/step", "s1", `{"step":"review"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("reset", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)
		s.do(t, http.MethodPut, "/checkout/step", "s1", `{"step":"payment"}`)

		got := decode[checkoutResponse](t, s.do(t, http.MethodPost, "/checkout/reset", "s1", ""))

		if got.Step != domain.CheckoutStepCart || got.ShippingAddress != nil {
			t.Errorf("expected initial checkout state, got %+v", got.CheckoutState)
		}
	})
}

func TestHandler_PlaceOrder(t *testing.T) {
	t.Run("incomplete checkout", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)
		s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)

		rec := s.do(t, http.MethodPost, "/checkout/place-order", "s1", "")

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("empty cart", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)
		s.do(t, http.MethodPut, "/checkout/payment", "s1", validCard)

		rec := s.do(t, http.MethodPost, "/checkout/place-order", "s1", "")

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("hands the order to confirmation", func(t *testing.T) {
		s := newTestServer(t)
		s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)
		s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)
		s.do(t, http.MethodPut, "/checkout/payment", "s1", validCard)

		rec := s.do(t, http.MethodPost, "/checkout/place-order", "s1", "")

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		placed := decode[domain.Order](t, rec)
		if !strings.HasPrefix(placed.ID, "AQ") {
			t.Errorf("expected AQ order id, got %s", placed.ID)
		}
		if placed.PaymentMethod.CardNumber != "**** **** **** 1111" || placed.PaymentMethod.CVV != "" {
			t.Errorf("expected masked payment, got %+v", placed.PaymentMethod)
		}
		if !placed.Total.Equal(decimal.RequireFromString("41.62")) {
			t.Errorf("expected total 41.62, got %s", placed.Total)
		}

		if len(s.publisher.events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(s.publisher.events))
		}
		if s.publisher.keys[0] != placed.ID || s.publisher.events[0].SessionID != "s1" {
			t.Errorf("unexpected event key %s session %s", s.publisher.keys[0], s.publisher.events[0].SessionID)
		}

		state := decode[checkoutResponse](t, s.do(t, http.MethodGet, "/checkout", "s1", ""))
		if state.Step != domain.CheckoutStepConfirmation {
			t.Errorf("expected step confirmation, got %s", state.Step)
		}
		if state.IsProcessing {
			t.Error("expected processing to be cleared")
		}

		conf := decode[confirmationResponse](t, s.do(t, http.MethodGet, "/checkout/confirmation", "s1", ""))
		if conf.Source != confirmation.SourceHandoff {
			t.Errorf("expected source handoff, got %s", conf.Source)
		}
		if conf.Order.ID != placed.ID {
			t.Errorf("expected order %s, got %s", placed.ID, conf.Order.ID)
		}
	})

	t.Run("publish failure still places the order", func(t *testing.T) {
		s := newTestServer(t)
		s.publisher.err = errors.New("broker down")
		s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)
		s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)
		s.do(t, http.MethodPut, "/checkout/payment", "s1", `{"type":"paypal"}`)

		rec := s.do(t, http.MethodPost, "/checkout/place-order", "s1", "")

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
	})
}

func TestHandler_ConfirmationFallsBackToCart(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)

	rec := s.do(t, http.MethodGet, "/checkout/confirmation", "s1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	conf := decode[confirmationResponse](t, rec)
	if conf.Source != confirmation.SourceCart {
		t.Errorf("expected source cart, got %s", conf.Source)
	}
	if !conf.Order.Total.Equal(decimal.RequireFromString("41.62")) {
		t.Errorf("expected total 41.62, got %s", conf.Order.Total)
	}

	cartAfter := decode[domain.Cart](t, s.do(t, http.MethodGet, "/cart", "s1", ""))
	if len(cartAfter.Items) != 1 {
		t.Error("expected confirmation to leave the cart intact")
	}
}

func TestHandler_Continue(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", "s1", `{"productId":"jug-5gal"}`)
	s.do(t, http.MethodPut, "/checkout/shipping", "s1", validAddress)
	s.do(t, http.MethodPut, "/checkout/step", "s1", `{"step":"confirmation"}`)
	_ = s.slot.Put(context.Background(), "s1", domain.Order{ID: "AQ000001LTE", Status: domain.OrderStatusConfirmed})

	rec := s.do(t, http.MethodPost, "/checkout/continue", "s1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	got := decode[continueResponse](t, rec)
	if len(got.Cart.Items) != 0 {
		t.Errorf("expected empty cart, got %d lines", len(got.Cart.Items))
	}
	if got.Checkout.Step != domain.CheckoutStepCart || got.Checkout.ShippingAddress != nil {
		t.Errorf("expected reset checkout, got %+v", got.Checkout.CheckoutState)
	}
	if _, ok, _ := s.slot.Take(context.Background(), "s1"); ok {
		t.Error("expected continue to drain the hand-off slot")
	}
}
