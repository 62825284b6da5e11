package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"nftmarket/apps/market/internal/codec"
)

// Side is the saleSide value of a masked call
type Side uint8

const (
	SideOffer Side = 0
	SideSell  Side = 1
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "offer"
}

// Opposite returns the side a matching counter-order takes
func (s Side) Opposite() Side {
	if s == SideSell {
		return SideOffer
	}
	return SideSell
}

// SaleKindFixedPrice is the only sale kind this service builds or completes
const SaleKindFixedPrice uint8 = 0

// MaskedCall is the order struct that is signed by the maker and submitted to
// the exchange. Calldata is a safeTransferFrom call where every byte with a
// set bit in ReplacementPattern may be overwritten by the counterparty.
type MaskedCall struct {
	Exchange           common.Address `json:"exchange"`
	Maker              common.Address `json:"maker"`
	Taker              common.Address `json:"taker"`
	SaleSide           Side           `json:"saleSide"`
	SaleKind           uint8          `json:"saleKind"`
	Target             common.Address `json:"target"`
	PaymentToken       common.Address `json:"paymentToken"`
	Calldata           hexutil.Bytes  `json:"calldata_"`
	ReplacementPattern hexutil.Bytes  `json:"replacementPattern"`
	StaticTarget       common.Address `json:"staticTarget"`
	StaticExtra        hexutil.Bytes  `json:"staticExtra"`
	BasePrice          codec.Word     `json:"basePrice"`
	EndPrice           codec.Word     `json:"endPrice"`
	ListingTime        uint64         `json:"listingTime"`
	ExpirationTime     uint64         `json:"expirationTime"`
	Salt               codec.Word     `json:"salt"`
}

// Clone returns a deep copy so callers cannot alias the byte slices
func (c MaskedCall) Clone() MaskedCall {
	out := c
	out.Calldata = append(hexutil.Bytes{}, c.Calldata...)
	out.ReplacementPattern = append(hexutil.Bytes{}, c.ReplacementPattern...)
	out.StaticExtra = append(hexutil.Bytes{}, c.StaticExtra...)
	return out
}
