package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier(t *testing.T) {
	t.Run("set replaces existing header", func(t *testing.T) {
		msg := kafka.Message{Headers: []kafka.Header{{Key: "traceparent", Value: []byte("old")}}}
		c := carrierFor(&msg)

		c.Set("traceparent", "new")
		c.Set("tracestate", "vendor=1")

		if len(msg.Headers) != 2 {
			t.Fatalf("expected 2 headers, got %d", len(msg.Headers))
		}
		if got := c.Get("traceparent"); got != "new" {
			t.Errorf("expected new, got %s", got)
		}
		if got := c.Get("missing"); got != "" {
			t.Errorf("expected empty value, got %s", got)
		}
	})

	t.Run("keys are unique", func(t *testing.T) {
		msg := kafka.Message{Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte("order.placed")},
			{Key: HeaderEventType, Value: []byte("duplicate")},
			{Key: HeaderContentType, Value: []byte("application/json")},
		}}

		keys := carrierFor(&msg).Keys()

		if len(keys) != 2 || keys[0] != HeaderEventType || keys[1] != HeaderContentType {
			t.Errorf("unexpected keys: %v", keys)
		}
		if got := Header(msg, HeaderEventType); got != "order.placed" {
			t.Errorf("expected first value order.placed, got %s", got)
		}
	})

	t.Run("round trips trace context", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		var msg kafka.Message
		prop := propagation.TraceContext{}
		prop.Inject(ctx, carrierFor(&msg))

		extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), carrierFor(&msg)))
		if extracted.TraceID() != traceID {
			t.Errorf("expected trace id %s, got %s", traceID, extracted.TraceID())
		}
	})
}

func TestEventType(t *testing.T) {
	if got := eventType(typedEvent{}); got != "test.typed" {
		t.Errorf("expected test.typed, got %s", got)
	}
	if got := eventType(map[string]string{}); got != "" {
		t.Errorf("expected empty event type, got %s", got)
	}
}

type typedEvent struct{}

func (typedEvent) EventType() string { return "test.typed" }
