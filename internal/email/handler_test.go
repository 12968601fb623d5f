package email

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestHandler() *Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.delay = func() time.Duration { return 0 }
	return h
}

func TestHandler_HandleSend(t *testing.T) {
	t.Run("sends", func(t *testing.T) {
		body := `{"to":"ada@example.com","subject":"Your AquaFlow order AQ1","body":"thanks"}`
		req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
		rec := httptest.NewRecorder()

		newTestHandler().HandleSend(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"sent"`) {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("rejects invalid recipient", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{"to":"nobody","subject":"s"}`))
		rec := httptest.NewRecorder()

		newTestHandler().HandleSend(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{`))
		rec := httptest.NewRecorder()

		newTestHandler().HandleSend(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandler_IdempotencyKey(t *testing.T) {
	body := `{"to":"ada@example.com","subject":"Your AquaFlow order AQ1","body":"thanks"}`
	send := func(h *Handler, key string) string {
		req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body))
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.HandleSend(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		return rec.Body.String()
	}

	t.Run("repeat key is not sent twice", func(t *testing.T) {
		h := newTestHandler()

		if got := send(h, "AQ1"); !strings.Contains(got, `"status":"sent"`) {
			t.Fatalf("expected first send, got %s", got)
		}
		if got := send(h, "AQ1"); !strings.Contains(got, `"status":"duplicate"`) {
			t.Errorf("expected duplicate, got %s", got)
		}
		if got := send(h, "AQ2"); !strings.Contains(got, `"status":"sent"`) {
			t.Errorf("expected a different key to send, got %s", got)
		}
	})

	t.Run("requests without a key always send", func(t *testing.T) {
		h := newTestHandler()

		send(h, "")
		if got := send(h, ""); !strings.Contains(got, `"status":"sent"`) {
			t.Errorf("expected send, got %s", got)
		}
	})

	t.Run("key expires after the window", func(t *testing.T) {
		h := newTestHandler()
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		h.now = func() time.Time { return now }

		send(h, "AQ1")
		now = now.Add(h.window + time.Second)

		if got := send(h, "AQ1"); !strings.Contains(got, `"status":"sent"`) {
			t.Errorf("expected send after the window, got %s", got)
		}
	})

	t.Run("aborted send releases the key", func(t *testing.T) {
		h := newTestHandler()
		h.delay = func() time.Duration { return time.Hour }

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body)).WithContext(ctx)
		req.Header.Set(IdempotencyKeyHeader, "AQ1")
		h.HandleSend(httptest.NewRecorder(), req)

		h.delay = func() time.Duration { return 0 }
		if got := send(h, "AQ1"); !strings.Contains(got, `"status":"sent"`) {
			t.Errorf("expected retry to send, got %s", got)
		}
	})
}
