package messaging

import "github.com/segmentio/kafka-go"

// Headers written on every published message next to the trace context.
const (
	HeaderContentType = "content-type"
	HeaderEventType   = "event-type"
)

// headerCarrier lets OpenTelemetry propagators read and write Kafka headers.
type headerCarrier struct {
	msg *kafka.Message
}

func carrierFor(msg *kafka.Message) headerCarrier {
	return headerCarrier{msg: msg}
}

func (c headerCarrier) Get(key string) string {
	return Header(*c.msg, key)
}

func (c headerCarrier) Set(key, value string) {
	setHeader(c.msg, key, value)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	seen := make(map[string]bool, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		if !seen[h.Key] {
			seen[h.Key] = true
			keys = append(keys, h.Key)
		}
	}
	return keys
}

// Header returns the first value of key on msg, or "".
func Header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func setHeader(msg *kafka.Message, key, value string) {
	for i, h := range msg.Headers {
		if h.Key == key {
			msg.Headers[i].Value = []byte(value)
			return
		}
	}
	msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}
