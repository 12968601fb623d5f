package domain

import "time"

type OrderPlacedEvent struct {
	Order     Order     `json:"order"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderPlacedEvent) EventType() string {
	return "order.placed"
}
