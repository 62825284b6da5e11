package events

import (
	"time"

	"nftmarket/apps/market/internal/model"
)

// OrderEvent is the message published for every order state change
type OrderEvent struct {
	EventType       string    `json:"event_type"`
	OrderID         string    `json:"order_id"`
	IsSell          bool      `json:"is_sell"`
	Maker           string    `json:"maker"`
	ContractAddress string    `json:"contract_address"`
	TokenID         string    `json:"token_id"`
	Price           string    `json:"price"`
	ExpirationTime  int64     `json:"expiration_time"`
	Verified        bool      `json:"verified"`
	MatchedOrderID  *string   `json:"matched_order_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewOrderEvent snapshots order under eventType
func NewOrderEvent(eventType string, order model.Order, at time.Time) OrderEvent {
	return OrderEvent{
		EventType:       eventType,
		OrderID:         order.OrderID,
		IsSell:          order.IsSell,
		Maker:           order.Maker,
		ContractAddress: order.ContractAddress,
		TokenID:         order.TokenID,
		Price:           order.Price,
		ExpirationTime:  order.ExpirationTime,
		Verified:        order.Verified,
		MatchedOrderID:  order.MatchedOrderID,
		Timestamp:       at.UTC(),
	}
}

// PartitionKey groups every event of one asset on the same partition
func (e OrderEvent) PartitionKey() string {
	return e.ContractAddress + ":" + e.TokenID
}
