package assets

import (
	"github.com/ethereum/go-ethereum/common"
	"nftmarket/apps/market/internal/model"
)

// Asset represents a currency an order can be paid in
type Asset struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

// IsNative reports whether the asset is the chain's native currency
func (a *Asset) IsNative() bool {
	return a.Address == (common.Address{})
}

// PaymentRegistry holds the payment assets for each sale side. Sell orders are
// paid in the native currency, offers in an ERC-20 the exchange can pull.
type PaymentRegistry struct {
	byAddress map[common.Address]*Asset
	bySide    map[model.Side]*Asset
}

// NewPaymentRegistry creates a registry with the native currency and the
// configured offer token.
func NewPaymentRegistry(offerToken common.Address) *PaymentRegistry {
	registry := &PaymentRegistry{
		byAddress: make(map[common.Address]*Asset),
		bySide:    make(map[model.Side]*Asset),
	}

	native := &Asset{
		Symbol:   "ETH",
		Name:     "Ether",
		Address:  common.Address{},
		Decimals: 18,
	}
	wrapped := &Asset{
		Symbol:   "WETH",
		Name:     "Wrapped Ether",
		Address:  offerToken,
		Decimals: 18,
	}

	for _, asset := range []*Asset{native, wrapped} {
		registry.byAddress[asset.Address] = asset
	}
	registry.bySide[model.SideSell] = native
	registry.bySide[model.SideOffer] = wrapped

	return registry
}

// ForSide returns the asset orders of the given side are paid in
func (r *PaymentRegistry) ForSide(side model.Side) *Asset {
	return r.bySide[side]
}

// GetByAddress returns an asset by its contract address
func (r *PaymentRegistry) GetByAddress(address common.Address) (*Asset, bool) {
	asset, exists := r.byAddress[address]
	return asset, exists
}
