package model

import (
	"time"
)

type Order struct {
	OrderID         string     `db:"order_id"`
	Raw             string     `db:"raw"` // JSON encoded MaskedCall
	IsSell          bool       `db:"is_sell"`
	Maker           string     `db:"maker"`
	ContractAddress string     `db:"contract_address"`
	TokenID         string     `db:"token_id"` // 0x-prefixed 32-byte hex
	Price           string     `db:"price"`    // 0x-prefixed 32-byte hex
	ExpirationTime  int64      `db:"expiration_time"`
	Verified        bool       `db:"verified"`
	Signature       *string    `db:"signature"`        // nullable until verified
	MatchedOrderID  *string    `db:"matched_order_id"` // set on counter-orders
	CreatedAt       time.Time  `db:"created_at"`
	VerifiedAt      *time.Time `db:"verified_at"`
}

// Expired reports whether the order can no longer be filled at now
func (o *Order) Expired(now time.Time) bool {
	return o.ExpirationTime <= now.Unix()
}

// Side returns the sale side the order was created for
func (o *Order) Side() Side {
	if o.IsSell {
		return SideSell
	}
	return SideOffer
}
