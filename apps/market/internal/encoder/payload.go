package encoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/model"
)

// Calldata layout of safeTransferFrom(address from, address to, uint256 tokenId)
const (
	selectorLength = 4
	fromOffset     = selectorLength
	toOffset       = fromOffset + codec.WordLength
	tokenIDOffset  = toOffset + codec.WordLength
	calldataLength = tokenIDOffset + codec.WordLength
)

// TransferSelector is the 4-byte selector of safeTransferFrom(address,address,uint256)
var TransferSelector = crypto.Keccak256([]byte("safeTransferFrom(address,address,uint256)"))[:selectorLength]

// Payload is a masked call built for one sale side. The only implementations
// are SellPayload and OfferPayload, and values are only obtained from an
// Encoder or from Decode/FromCall, which check the layout.
type Payload interface {
	Side() model.Side
	// Call returns a copy of the underlying order struct
	Call() model.MaskedCall
	TokenID() codec.Word
	payload()
}

// SellPayload transfers from the maker to a still unknown buyer
type SellPayload struct {
	call model.MaskedCall
}

func (p SellPayload) Side() model.Side       { return model.SideSell }
func (p SellPayload) Call() model.MaskedCall { return p.call.Clone() }
func (p SellPayload) TokenID() codec.Word    { return tokenIDOf(p.call) }
func (SellPayload) payload()                 {}

// Seller is the maker committed to in the from slot
func (p SellPayload) Seller() common.Address { return p.call.Maker }

// OfferPayload transfers from a still unknown seller to the maker
type OfferPayload struct {
	call model.MaskedCall
}

func (p OfferPayload) Side() model.Side       { return model.SideOffer }
func (p OfferPayload) Call() model.MaskedCall { return p.call.Clone() }
func (p OfferPayload) TokenID() codec.Word    { return tokenIDOf(p.call) }
func (OfferPayload) payload()                 {}

// Buyer is the maker committed to in the to slot
func (p OfferPayload) Buyer() common.Address { return p.call.Maker }

func tokenIDOf(call model.MaskedCall) codec.Word {
	var w codec.Word
	copy(w[:], call.Calldata[tokenIDOffset:calldataLength])
	return w
}

// maskedOffset is the calldata offset of the slot the counterparty fills
func maskedOffset(side model.Side) int {
	if side == model.SideSell {
		return toOffset
	}
	return fromOffset
}

// knownOffset is the calldata offset of the slot holding the maker
func knownOffset(side model.Side) int {
	if side == model.SideSell {
		return fromOffset
	}
	return toOffset
}

func buildCalldata(side model.Side, maker common.Address, tokenID codec.Word) []byte {
	calldata := make([]byte, calldataLength)
	copy(calldata, TransferSelector)
	makerWord := codec.AddressWord(maker)
	copy(calldata[knownOffset(side):], makerWord[:])
	copy(calldata[tokenIDOffset:], tokenID[:])
	return calldata
}

// ReplacementPattern returns the mask for side: all ones over the unknown
// party's slot, zero everywhere else.
func ReplacementPattern(side model.Side) []byte {
	mask := make([]byte, calldataLength)
	offset := maskedOffset(side)
	for i := offset; i < offset+codec.WordLength; i++ {
		mask[i] = 0xff
	}
	return mask
}

func wrap(call model.MaskedCall) Payload {
	if call.SaleSide == model.SideSell {
		return SellPayload{call: call}
	}
	return OfferPayload{call: call}
}

// FromCall checks that call has the layout the encoder produces and wraps it.
// The sale kind is not checked so callers can report it separately, and the
// fixed price rule only applies to fixed-price calls.
func FromCall(call model.MaskedCall) (Payload, error) {
	if call.SaleSide != model.SideSell && call.SaleSide != model.SideOffer {
		return nil, fmt.Errorf("%w: unknown sale side %d", model.ErrInvalidArgument, call.SaleSide)
	}
	if call.Maker == (common.Address{}) {
		return nil, fmt.Errorf("%w: maker is the zero address", model.ErrInvalidArgument)
	}
	if len(call.Calldata) != calldataLength {
		return nil, fmt.Errorf("%w: calldata must be %d bytes, got %d", model.ErrInvalidArgument, calldataLength, len(call.Calldata))
	}
	if !bytes.Equal(call.Calldata[:selectorLength], TransferSelector) {
		return nil, fmt.Errorf("%w: calldata is not a safeTransferFrom call", model.ErrInvalidArgument)
	}
	if !bytes.Equal(call.ReplacementPattern, ReplacementPattern(call.SaleSide)) {
		return nil, fmt.Errorf("%w: replacement pattern does not match %s side", model.ErrInvalidArgument, call.SaleSide)
	}

	masked := maskedOffset(call.SaleSide)
	if !bytes.Equal(call.Calldata[masked:masked+codec.WordLength], make([]byte, codec.WordLength)) {
		return nil, fmt.Errorf("%w: counterparty slot must be zero", model.ErrInvalidArgument)
	}
	known := knownOffset(call.SaleSide)
	makerWord := codec.AddressWord(call.Maker)
	if !bytes.Equal(call.Calldata[known:known+codec.WordLength], makerWord[:]) {
		return nil, fmt.Errorf("%w: calldata does not commit to the maker", model.ErrInvalidArgument)
	}
	if call.SaleKind == model.SaleKindFixedPrice && call.BasePrice != call.EndPrice {
		return nil, fmt.Errorf("%w: base and end price differ", model.ErrInvalidArgument)
	}
	if call.BasePrice.IsZero() {
		return nil, fmt.Errorf("%w: price is zero", model.ErrInvalidArgument)
	}

	return wrap(call.Clone()), nil
}

// Encode serializes p into the stored raw form
func Encode(p Payload) (string, error) {
	raw, err := json.Marshal(p.Call())
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(raw), nil
}

// Decode parses a stored raw payload and validates its layout
func Decode(raw string) (Payload, error) {
	var call model.MaskedCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		return nil, fmt.Errorf("%w: failed to decode payload: %v", model.ErrInvalidArgument, err)
	}
	return FromCall(call)
}

// DecodeStored decodes the raw payload of a persisted order. A failure means
// the row is corrupt, not that the caller sent bad input.
func DecodeStored(order model.Order) (Payload, error) {
	p, err := Decode(order.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %v", model.ErrCorruptOrder, order.OrderID, err)
	}
	return p, nil
}

// Project builds the queryable order row for p
func Project(orderID string, p Payload) (model.Order, error) {
	raw, err := Encode(p)
	if err != nil {
		return model.Order{}, err
	}

	call := p.Call()
	if call.ExpirationTime > uint64(1<<63-1) {
		return model.Order{}, fmt.Errorf("%w: expiration time out of range", model.ErrInvalidArgument)
	}

	return model.Order{
		OrderID:         orderID,
		Raw:             raw,
		IsSell:          p.Side() == model.SideSell,
		Maker:           codec.AddressKey(call.Maker),
		ContractAddress: codec.AddressKey(call.Target),
		TokenID:         p.TokenID().Hex(),
		Price:           call.BasePrice.Hex(),
		ExpirationTime:  int64(call.ExpirationTime),
	}, nil
}

// Price returns the fixed price of p
func Price(p Payload) *big.Int {
	call := p.Call()
	return call.BasePrice.Big()
}
