package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/aquaflow/internal/cart"
	"github.com/joao-fontenele/aquaflow/internal/confirmation"
	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/handoff"
	"github.com/joao-fontenele/aquaflow/internal/telemetry"
)

const SessionHeader = telemetry.SessionHeader

const placeOrderFailed = "We could not complete your order. Please try again."

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	sessions  *Sessions
	products  ProductSource
	slot      *handoff.Slot
	resolver  *confirmation.Resolver
	publisher EventPublisher
	metrics   *Metrics
	logger    *slog.Logger

	now func() time.Time
}

// NewHandler wires the storefront endpoints. publisher may be nil, in which
// case placed orders only reach the confirmation step.
func NewHandler(
	sessions *Sessions,
	products ProductSource,
	slot *handoff.Slot,
	resolver *confirmation.Resolver,
	publisher EventPublisher,
	metrics *Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sessions:  sessions,
		products:  products,
		slot:      slot,
		resolver:  resolver,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(h.HandleGetCart))
	mux.HandleFunc("DELETE /cart", telemetry.WithHTTPRoute(h.HandleClearCart))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(h.HandleAddItem))
	mux.HandleFunc("PATCH /cart/items/{id}", telemetry.WithHTTPRoute(h.HandleUpdateQuantity))
	mux.HandleFunc("DELETE /cart/items/{id}", telemetry.WithHTTPRoute(h.HandleRemoveItem))
	mux.HandleFunc("GET /cart/products/{productId}", telemetry.WithHTTPRoute(h.HandleGetItem))
	mux.HandleFunc("POST /cart/open", telemetry.WithHTTPRoute(h.HandleOpenCart))
	mux.HandleFunc("POST /cart/close", telemetry.WithHTTPRoute(h.HandleCloseCart))
	mux.HandleFunc("POST /cart/toggle", telemetry.WithHTTPRoute(h.HandleToggleCart))

	mux.HandleFunc("GET /checkout", telemetry.WithHTTPRoute(h.HandleGetCheckout))
	mux.HandleFunc("PUT /checkout/step", telemetry.WithHTTPRoute(h.HandleSetStep))
	mux.HandleFunc("PUT /checkout/shipping", telemetry.WithHTTPRoute(h.HandleSetShipping))
	mux.HandleFunc("PUT /checkout/payment", telemetry.WithHTTPRoute(h.HandleSetPayment))
	mux.HandleFunc("POST /checkout/reset", telemetry.WithHTTPRoute(h.HandleResetCheckout))
	mux.HandleFunc("POST /checkout/place-order", telemetry.WithHTTPRoute(h.HandlePlaceOrder))
	mux.HandleFunc("GET /checkout/confirmation", telemetry.WithHTTPRoute(h.HandleConfirmation))
	mux.HandleFunc("POST /checkout/continue", telemetry.WithHTTPRoute(h.HandleContinue))
}

type addItemRequest struct {
	ProductID       string                  `json:"productId"`
	Quantity        *int                    `json:"quantity"`
	SelectedOptions *domain.SelectedOptions `json:"selectedOptions"`
}

type addItemResponse struct {
	Item domain.CartItem `json:"item"`
	Cart domain.Cart     `json:"cart"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type stepRequest struct {
	Step domain.CheckoutStep `json:"step"`
}

type checkoutResponse struct {
	domain.CheckoutState
	CanProceedToPayment      bool `json:"canProceedToPayment"`
	CanProceedToConfirmation bool `json:"canProceedToConfirmation"`
}

type confirmationResponse struct {
	Order  domain.Order        `json:"order"`
	Source confirmation.Source `json:"source"`
}

type continueResponse struct {
	Cart     domain.Cart      `json:"cart"`
	Checkout checkoutResponse `json:"checkout"`
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing productId")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity <= 0 || quantity > cart.MaxQuantity {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("quantity must be between 1 and %d", cart.MaxQuantity))
		return
	}

	product, err := h.products.GetProduct(r.Context(), req.ProductID)
	if errors.Is(err, ErrProductNotFound) {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get product", "product_id", req.ProductID, "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}
	if !product.InStock {
		h.writeError(w, http.StatusConflict, "product is out of stock")
		return
	}

	item := sess.Cart.AddItem(r.Context(), *product, quantity, req.SelectedOptions)
	h.metrics.cartMutation(r.Context(), "add")

	h.logger.Info("item added to cart",
		"session_id", sess.ID,
		"product_id", product.ID,
		"quantity", quantity,
		"line_id", item.ID,
	)
	h.writeJSON(w, http.StatusCreated, addItemResponse{Item: item, Cart: sess.Cart.Snapshot()})
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if *req.Quantity > cart.MaxQuantity {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("quantity must be at most %d", cart.MaxQuantity))
		return
	}

	sess.Cart.UpdateQuantity(r.Context(), r.PathValue("id"), *req.Quantity)
	h.metrics.cartMutation(r.Context(), "update_quantity")
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Cart.RemoveItem(r.Context(), r.PathValue("id"))
	h.metrics.cartMutation(r.Context(), "remove")
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Cart.ClearCart(r.Context())
	h.metrics.cartMutation(r.Context(), "clear")
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	item, found := sess.Cart.GetItem(r.PathValue("productId"))
	if !found {
		h.writeError(w, http.StatusNotFound, "product not in cart")
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) HandleOpenCart(w http.ResponseWriter, r *http.Request) {
	h.visibility(w, r, (*cart.Store).OpenCart)
}

func (h *Handler) HandleCloseCart(w http.ResponseWriter, r *http.Request) {
	h.visibility(w, r, (*cart.Store).CloseCart)
}

func (h *Handler) HandleToggleCart(w http.ResponseWriter, r *http.Request) {
	h.visibility(w, r, (*cart.Store).ToggleCart)
}

func (h *Handler) visibility(w http.ResponseWriter, r *http.Request, apply func(*cart.Store)) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	apply(sess.Cart)
	h.writeJSON(w, http.StatusOK, sess.Cart.Snapshot())
}

func (h *Handler) HandleGetCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, checkoutView(sess))
}

func (h *Handler) HandleSetStep(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Step.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid step")
		return
	}

	sess.Checkout.SetStep(req.Step)
	h.writeJSON(w, http.StatusOK, checkoutView(sess))
}

func (h *Handler) HandleSetShipping(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var addr domain.ShippingAddress
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := validateAddress(addr); len(errs) > 0 {
		h.writeValidationError(w, errs)
		return
	}

	sess.Checkout.SetShippingAddress(addr)
	h.writeJSON(w, http.StatusOK, checkoutView(sess))
}

func (h *Handler) HandleSetPayment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var pm domain.PaymentMethod
	if err := json.NewDecoder(r.Body).Decode(&pm); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if errs := validatePayment(pm); len(errs) > 0 {
		h.writeValidationError(w, errs)
		return
	}
	pm.CardNumber = stripSeparators(pm.CardNumber)

	sess.Checkout.SetPaymentMethod(pm)
	h.writeJSON(w, http.StatusOK, checkoutView(sess))
}

func (h *Handler) HandleResetCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Checkout.Reset()
	h.writeJSON(w, http.StatusOK, checkoutView(sess))
}

// HandlePlaceOrder turns the cart and checkout into an order, leaves it in
// the hand-off slot for the confirmation step and announces it.
func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	if !sess.Checkout.CanProceedToConfirmation() {
		h.writeError(w, http.StatusConflict, "shipping address and payment method are incomplete")
		return
	}
	items := sess.Cart.Items()
	if len(items) == 0 {
		h.writeError(w, http.StatusConflict, "cart is empty")
		return
	}

	state := sess.Checkout.State()
	if state.ShippingAddress == nil || state.PaymentMethod == nil {
		h.writeError(w, http.StatusConflict, "shipping address and payment method are incomplete")
		return
	}

	sess.Checkout.SetError("")
	sess.Checkout.SetProcessing(true)
	defer sess.Checkout.SetProcessing(false)

	totals := sess.Cart.Totals()
	now := h.now().UTC()

	order := domain.Order{
		ID:                confirmation.NewOrderID(now),
		Date:              now,
		Items:             confirmation.OrderItems(items),
		ShippingAddress:   *state.ShippingAddress,
		PaymentMethod:     state.PaymentMethod.Masked(),
		Subtotal:          totals.Subtotal,
		Shipping:          totals.Shipping,
		Tax:               totals.Tax,
		Total:             totals.Total,
		Status:            domain.OrderStatusConfirmed,
		EstimatedDelivery: now.Add(3 * 24 * time.Hour),
		TrackingNumber:    confirmation.NewTrackingNumber(),
	}

	if err := h.slot.Put(r.Context(), sess.ID, order); err != nil {
		h.logger.Error("failed to hand off order", "session_id", sess.ID, "order_id", order.ID, "error", err)
		sess.Checkout.SetError(placeOrderFailed)
		h.writeError(w, http.StatusInternalServerError, placeOrderFailed)
		return
	}

	if h.publisher != nil {
		event := domain.OrderPlacedEvent{
			Order:     order,
			SessionID: sess.ID,
			Timestamp: now,
		}
		if err := h.publisher.Publish(r.Context(), order.ID, event); err != nil {
			h.logger.Error("failed to publish order placed event", "order_id", order.ID, "error", err)
		}
	}

	sess.Checkout.SetStep(domain.CheckoutStepConfirmation)
	h.metrics.orderPlaced(r.Context())

	h.logger.Info("order placed",
		"session_id", sess.ID,
		"order_id", order.ID,
		"items", len(order.Items),
		"total", order.Total.StringFixed(2),
	)
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleConfirmation(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	order, source, err := h.resolver.Resolve(r.Context(), sess.ID, sess.Cart, sess.Checkout)
	if err != nil {
		h.logger.Warn("confirmation abandoned", "session_id", sess.ID, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "confirmation abandoned")
		return
	}

	h.metrics.confirmationResolved(r.Context(), source)
	h.logger.Info("confirmation resolved", "session_id", sess.ID, "order_id", order.ID, "source", source)
	h.writeJSON(w, http.StatusOK, confirmationResponse{Order: order, Source: source})
}

func (h *Handler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	h.resolver.Continue(r.Context(), sess.ID, sess.Cart, sess.Checkout)
	h.metrics.cartMutation(r.Context(), "clear")
	h.writeJSON(w, http.StatusOK, continueResponse{
		Cart:     sess.Cart.Snapshot(),
		Checkout: checkoutView(sess),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing "+SessionHeader+" header")
		return nil, false
	}
	return h.sessions.Get(r.Context(), id), true
}

func checkoutView(sess *Session) checkoutResponse {
	return checkoutResponse{
		CheckoutState:            sess.Checkout.State(),
		CanProceedToPayment:      sess.Checkout.CanProceedToPayment(),
		CanProceedToConfirmation: sess.Checkout.CanProceedToConfirmation(),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "message": message})
}

func (h *Handler) writeValidationError(w http.ResponseWriter, fields fieldErrors) {
	h.writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":   "validation failed",
		"message": "validation failed",
		"fields":  fields,
	})
}
