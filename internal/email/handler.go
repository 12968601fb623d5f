package email

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// IdempotencyKeyHeader names a send. Repeats of a key already sent within
// the dedupe window are acknowledged without sending again.
const IdempotencyKeyHeader = "Idempotency-Key"

const defaultDedupeWindow = 24 * time.Hour

// Handler accepts outgoing mail. Delivery is simulated with a short random
// delay.
type Handler struct {
	logger *slog.Logger
	delay  func() time.Duration

	mu     sync.Mutex
	sent   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		delay: func() time.Duration {
			return time.Duration(50+rand.IntN(151)) * time.Millisecond
		},
		sent:   make(map[string]time.Time),
		window: defaultDedupeWindow,
		now:    time.Now,
	}
}

// claim reserves key for one send. It reports false when the key was already
// claimed within the window.
func (h *Handler) claim(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for k, at := range h.sent {
		if now.Sub(at) > h.window {
			delete(h.sent, k)
		}
	}
	if _, ok := h.sent[key]; ok {
		return false
	}
	h.sent[key] = now
	return true
}

func (h *Handler) release(key string) {
	h.mu.Lock()
	delete(h.sent, key)
	h.mu.Unlock()
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !strings.Contains(req.To, "@") {
		h.writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}
	if req.Subject == "" {
		h.writeError(w, http.StatusBadRequest, "missing subject")
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" && !h.claim(key) {
		h.logger.Info("duplicate email suppressed", "to", req.To, "idempotency_key", key)
		h.writeJSON(w, http.StatusOK, sendResponse{Status: "duplicate"})
		return
	}

	select {
	case <-time.After(h.delay()):
	case <-r.Context().Done():
		if key != "" {
			h.release(key)
		}
		h.logger.Warn("email send aborted", "to", req.To, "error", r.Context().Err())
		return
	}

	h.logger.Info("email sent", "to", req.To, "subject", req.Subject, "idempotency_key", key)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
