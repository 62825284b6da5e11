package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/encoder"
	"nftmarket/apps/market/internal/model"
)

type OrderStore interface {
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)
}

// Matcher derives counter-orders for verified orders. Nothing it produces is
// persisted; a signed counter-order is registered through
// encoder.CreateCounterOrder.
type Matcher struct {
	store   OrderStore
	encoder *encoder.Encoder
	logger  *zap.Logger
	now     func() time.Time
}

func NewMatcher(store OrderStore, enc *encoder.Encoder, logger *zap.Logger) *Matcher {
	return &Matcher{
		store:   store,
		encoder: enc,
		logger:  logger,
		now:     time.Now,
	}
}

// GenerateBuyFromSell returns the offer-side payload buyer signs to fill a
// verified sell order.
func (m *Matcher) GenerateBuyFromSell(ctx context.Context, orderID string, buyer common.Address) (encoder.Payload, error) {
	return m.generate(ctx, orderID, model.SideSell, buyer)
}

// GenerateSellFromOffer returns the sell-side payload seller signs to accept
// a verified offer.
func (m *Matcher) GenerateSellFromOffer(ctx context.Context, orderID string, seller common.Address) (encoder.Payload, error) {
	return m.generate(ctx, orderID, model.SideOffer, seller)
}

func (m *Matcher) generate(ctx context.Context, orderID string, side model.Side, counterparty common.Address) (encoder.Payload, error) {
	order, err := m.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || !order.Verified || order.Side() != side {
		return nil, fmt.Errorf("%w: no verified %s order %s", model.ErrNotFound, side, orderID)
	}
	if order.Expired(m.now()) {
		return nil, fmt.Errorf("%w: order %s", model.ErrExpired, orderID)
	}

	original, err := encoder.DecodeStored(*order)
	if err != nil {
		return nil, err
	}
	if kind := original.Call().SaleKind; kind != model.SaleKindFixedPrice {
		return nil, fmt.Errorf("%w: sale kind %d", model.ErrUnsupportedSaleKind, kind)
	}

	counter, err := m.encoder.Counter(original, counterparty)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Derived counter-order",
		zap.String("order_id", orderID),
		zap.String("side", counter.Side().String()),
		zap.String("counterparty", counterparty.Hex()))
	return counter, nil
}
