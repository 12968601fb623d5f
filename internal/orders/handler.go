package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/aquaflow/internal/domain"
	"github.com/joao-fontenele/aquaflow/internal/telemetry"
)

type orderStore interface {
	Create(ctx context.Context, sessionID string, order *domain.Order) (bool, error)
	GetForSession(ctx context.Context, id, sessionID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, id, sessionID string) (*domain.Order, error)
	List(ctx context.Context, sessionID string) ([]domain.Order, error)
	Stats(ctx context.Context, sessionID string) (*domain.OrderStats, error)
}

type Handler struct {
	repo   orderStore
	logger *slog.Logger
}

func NewHandler(repo orderStore, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type createOrderRequest struct {
	SessionID string       `json:"sessionId"`
	Order     domain.Order `json:"order"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order := req.Order
	if order.ID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	if len(order.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "order has no items")
		return
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if !order.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if order.Date.IsZero() {
		order.Date = time.Now().UTC()
	}

	created, err := h.repo.Create(r.Context(), req.SessionID, &order)
	if err != nil {
		h.logger.Error("failed to create order", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !created {
		h.logger.Info("order already recorded", "order_id", order.ID)
		h.writeError(w, http.StatusConflict, "order already exists")
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "session_id", req.SessionID)
	h.writeJSON(w, http.StatusCreated, order)
}

// session returns the shopper session the request acts for. Shopper-facing
// reads and cancels are scoped to it.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(telemetry.SessionHeader)
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing "+telemetry.SessionHeader+" header")
		return "", false
	}
	return id, true
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetForSession(r.Context(), id, sessionID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to update order status", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.Cancel(r.Context(), id, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotCancellable) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to cancel order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order cancelled", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	orders, err := h.repo.List(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("orders listed", "count", len(orders), "session_id", sessionID)
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	stats, err := h.repo.Stats(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to compute order stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError responds with {"error", "message"}; the storefront UI reads
// message, older clients read error.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "message": message})
}
