package model

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated  = "order_created"
	EventOrderVerified = "order_verified"
)

type OutboxEvent struct {
	ID        int64           `db:"id"`
	OrderID   string          `db:"order_id"`
	EventType string          `db:"event_type"`
	Status    string          `db:"status"` // "unsent", "processing" or "sent"
	EventBlob json.RawMessage `db:"event_blob"`
	CreatedAt time.Time       `db:"created_at"`
}
