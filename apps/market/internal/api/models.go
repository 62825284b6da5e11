package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"nftmarket/apps/market/internal/model"
)

// OrderResponse represents the API response for a stored order
type OrderResponse struct {
	OrderID         string          `json:"order_id"`
	IsSell          bool            `json:"is_sell"`
	Maker           string          `json:"maker"`
	ContractAddress string          `json:"contract_address"`
	TokenID         string          `json:"token_id"`
	TokenIDHex      string          `json:"token_id_hex"`
	Price           string          `json:"price"`
	PriceHex        string          `json:"price_hex"`
	PriceDecimal    string          `json:"price_decimal,omitempty"`
	PaymentSymbol   string          `json:"payment_symbol,omitempty"`
	ExpirationTime  int64           `json:"expiration_time"`
	Verified        bool            `json:"verified"`
	Signature       *string         `json:"signature,omitempty"`
	MatchedOrderID  *string         `json:"matched_order_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	Order           json.RawMessage `json:"order"`
}

// CreateOrderRequest represents the request body for creating a sell or offer order.
// Token id and price accept decimal or 0x-prefixed hex.
type CreateOrderRequest struct {
	Maker          string `json:"maker"`
	Contract       string `json:"contract"`
	TokenID        string `json:"token_id"`
	Price          string `json:"price"`
	ExpirationTime int64  `json:"expiration_time"`
}

// SignatureRequest carries the three signature components
type SignatureRequest struct {
	R string     `json:"r"`
	S string     `json:"s"`
	V flexString `json:"v"`
}

// BuyRequest represents the request body for deriving a buy order from a sell order
type BuyRequest struct {
	Buyer string `json:"buyer"`
}

// AcceptRequest represents the request body for deriving a sell order from an offer
type AcceptRequest struct {
	Seller string `json:"seller"`
}

// CounterOrderRequest registers a signed-to-be counter-order for a verified order
type CounterOrderRequest struct {
	Order model.MaskedCall `json:"order"`
}

// CheckSignatureRequest asks whether a signature is valid for an arbitrary order
type CheckSignatureRequest struct {
	Order model.MaskedCall `json:"order"`
	SignatureRequest
}

// CheckSignatureResponse reports the result of a signature simulation
type CheckSignatureResponse struct {
	Valid bool `json:"valid"`
}

// PayloadResponse is an unsigned counter-order for the counterparty to sign
type PayloadResponse struct {
	Side  string           `json:"side"`
	Order model.MaskedCall `json:"order"`
}

// OrdersResponse wraps a list of orders
type OrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
}

// ProxyResponse represents the API response for a proxy lookup
type ProxyResponse struct {
	Address      string `json:"address"`
	ProxyAddress string `json:"proxy_address"`
	Registered   bool   `json:"registered"`
}

// AccountResponse represents the offer readiness of a wallet
type AccountResponse struct {
	Address      string       `json:"address"`
	ProxyAddress string       `json:"proxy_address"`
	PaymentToken TokenBalance `json:"payment_token"`
}

// TokenBalance represents balance information for a specific token
type TokenBalance struct {
	Symbol           string `json:"symbol"`
	Address          string `json:"address"`
	Decimals         int    `json:"decimals"`
	Balance          string `json:"balance"`
	BalanceDecimal   string `json:"balance_decimal"`
	Allowance        string `json:"allowance"`
	AllowanceDecimal string `json:"allowance_decimal"`
}

// InfoResponse represents the API response for market configuration
type InfoResponse struct {
	Exchange              string      `json:"exchange"`
	ProxyRegistry         string      `json:"proxy_registry"`
	PaymentTokens         []AssetInfo `json:"payment_tokens"`
	EnforceAllowanceCheck bool        `json:"enforce_allowance_check"`
}

// AssetInfo describes a payment asset
type AssetInfo struct {
	Side     string `json:"side"`
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// flexString accepts a JSON string or number. Wallets send v either way.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
