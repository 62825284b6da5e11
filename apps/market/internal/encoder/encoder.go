package encoder

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/model"
)

// OrderStore is the persistence the encoder needs
type OrderStore interface {
	CreateOrder(ctx context.Context, order model.Order) error
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)
}

// Request is a maker's trade intent. The maker is assumed to be authenticated
// by the caller.
type Request struct {
	Maker          common.Address
	Contract       common.Address
	TokenID        *big.Int
	Price          *big.Int
	ExpirationTime int64
}

type Encoder struct {
	store    OrderStore
	payments *assets.PaymentRegistry
	exchange common.Address
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewEncoder(store OrderStore, payments *assets.PaymentRegistry, exchange common.Address, logger *zap.Logger, m *metrics.Metrics) *Encoder {
	return &Encoder{
		store:    store,
		payments: payments,
		exchange: exchange,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Sell builds a sell payload without persisting it
func (e *Encoder) Sell(req Request) (Payload, error) {
	return e.build(model.SideSell, req)
}

// Offer builds an offer payload without persisting it
func (e *Encoder) Offer(req Request) (Payload, error) {
	return e.build(model.SideOffer, req)
}

func (e *Encoder) build(side model.Side, req Request) (Payload, error) {
	tokenID, price, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}

	return wrap(model.MaskedCall{
		Exchange:           e.exchange,
		Maker:              req.Maker,
		SaleSide:           side,
		SaleKind:           model.SaleKindFixedPrice,
		Target:             req.Contract,
		PaymentToken:       e.payments.ForSide(side).Address,
		Calldata:           buildCalldata(side, req.Maker, tokenID),
		ReplacementPattern: ReplacementPattern(side),
		StaticExtra:        hexutil.Bytes{},
		BasePrice:          price,
		EndPrice:           price,
		ExpirationTime:     uint64(req.ExpirationTime),
		Salt:               salt,
	}), nil
}

func (e *Encoder) validate(req Request) (codec.Word, codec.Word, error) {
	if req.Maker == (common.Address{}) {
		return codec.Word{}, codec.Word{}, fmt.Errorf("%w: maker is required", model.ErrInvalidArgument)
	}
	if req.Contract == (common.Address{}) {
		return codec.Word{}, codec.Word{}, fmt.Errorf("%w: contract is required", model.ErrInvalidArgument)
	}
	tokenID, err := codec.WordFromBig(req.TokenID)
	if err != nil {
		return codec.Word{}, codec.Word{}, fmt.Errorf("%w: token id: %v", model.ErrInvalidArgument, err)
	}
	if req.Price == nil || req.Price.Sign() <= 0 {
		return codec.Word{}, codec.Word{}, fmt.Errorf("%w: price must be positive", model.ErrInvalidArgument)
	}
	price, err := codec.WordFromBig(req.Price)
	if err != nil {
		return codec.Word{}, codec.Word{}, fmt.Errorf("%w: price: %v", model.ErrInvalidArgument, err)
	}
	if req.ExpirationTime <= e.now().Unix() {
		return codec.Word{}, codec.Word{}, fmt.Errorf("%w: expiration time must be in the future", model.ErrInvalidArgument)
	}
	return tokenID, price, nil
}

// Counter derives the complement of original for counterparty: the opposite
// side with the counterparty in the slot original left open. Pricing and
// timing are copied, the salt is fresh.
func (e *Encoder) Counter(original Payload, counterparty common.Address) (Payload, error) {
	if counterparty == (common.Address{}) {
		return nil, fmt.Errorf("%w: counterparty is required", model.ErrInvalidArgument)
	}

	salt, err := randomSalt()
	if err != nil {
		return nil, err
	}

	src := original.Call()
	side := original.Side().Opposite()
	return wrap(model.MaskedCall{
		Exchange:           e.exchange,
		Maker:              counterparty,
		SaleSide:           side,
		SaleKind:           src.SaleKind,
		Target:             src.Target,
		PaymentToken:       src.PaymentToken,
		Calldata:           buildCalldata(side, counterparty, original.TokenID()),
		ReplacementPattern: ReplacementPattern(side),
		StaticExtra:        hexutil.Bytes{},
		BasePrice:          src.BasePrice,
		EndPrice:           src.EndPrice,
		ListingTime:        src.ListingTime,
		ExpirationTime:     src.ExpirationTime,
		Salt:               salt,
	}), nil
}

// CreateSellOrder builds and persists an unverified sell order
func (e *Encoder) CreateSellOrder(ctx context.Context, req Request) (*model.Order, error) {
	p, err := e.Sell(req)
	if err != nil {
		return nil, err
	}
	return e.persist(ctx, p, nil)
}

// CreateOfferOrder builds and persists an unverified offer order
func (e *Encoder) CreateOfferOrder(ctx context.Context, req Request) (*model.Order, error) {
	p, err := e.Offer(req)
	if err != nil {
		return nil, err
	}
	return e.persist(ctx, p, nil)
}

// CreateCounterOrder persists a counterparty's completion of a verified order
// as a new unverified order referencing it. call must be exactly what Counter
// would produce for its maker, apart from the salt.
func (e *Encoder) CreateCounterOrder(ctx context.Context, originalID string, call model.MaskedCall) (*model.Order, error) {
	stored, err := e.store.GetOrderByID(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if stored == nil || !stored.Verified {
		return nil, fmt.Errorf("%w: no verified order %s", model.ErrNotFound, originalID)
	}
	if stored.Expired(e.now()) {
		return nil, fmt.Errorf("%w: order %s", model.ErrExpired, originalID)
	}

	original, err := DecodeStored(*stored)
	if err != nil {
		return nil, err
	}
	if original.Call().SaleKind != model.SaleKindFixedPrice {
		return nil, fmt.Errorf("%w: order %s", model.ErrUnsupportedSaleKind, originalID)
	}

	counter, err := FromCall(call)
	if err != nil {
		return nil, err
	}
	if err := checkComplement(original, counter, e.exchange); err != nil {
		return nil, err
	}

	return e.persist(ctx, counter, &stored.OrderID)
}

func checkComplement(original, counter Payload, exchange common.Address) error {
	if counter.Side() != original.Side().Opposite() {
		return fmt.Errorf("%w: counter-order must take the %s side", model.ErrInvalidArgument, original.Side().Opposite())
	}

	src, dst := original.Call(), counter.Call()
	switch {
	case dst.Exchange != exchange:
		return fmt.Errorf("%w: exchange mismatch", model.ErrInvalidArgument)
	case dst.Taker != (common.Address{}):
		return fmt.Errorf("%w: taker must be unset", model.ErrInvalidArgument)
	case dst.SaleKind != src.SaleKind:
		return fmt.Errorf("%w: sale kind mismatch", model.ErrInvalidArgument)
	case dst.Target != src.Target:
		return fmt.Errorf("%w: target mismatch", model.ErrInvalidArgument)
	case dst.PaymentToken != src.PaymentToken:
		return fmt.Errorf("%w: payment token mismatch", model.ErrInvalidArgument)
	case counter.TokenID() != original.TokenID():
		return fmt.Errorf("%w: token id mismatch", model.ErrInvalidArgument)
	case dst.BasePrice != src.BasePrice || dst.EndPrice != src.EndPrice:
		return fmt.Errorf("%w: price mismatch", model.ErrInvalidArgument)
	case dst.ListingTime != src.ListingTime || dst.ExpirationTime != src.ExpirationTime:
		return fmt.Errorf("%w: timing mismatch", model.ErrInvalidArgument)
	case dst.StaticTarget != (common.Address{}) || len(dst.StaticExtra) != 0:
		return fmt.Errorf("%w: static call not supported", model.ErrInvalidArgument)
	}
	return nil
}

func (e *Encoder) persist(ctx context.Context, p Payload, matchedOrderID *string) (*model.Order, error) {
	order, err := Project(uuid.NewString(), p)
	if err != nil {
		return nil, err
	}
	order.MatchedOrderID = matchedOrderID
	order.CreatedAt = e.now().UTC()

	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to store order: %w", err)
	}
	e.metrics.OrdersCreated.WithLabelValues(p.Side().String()).Inc()

	return &order, nil
}

// randomSalt returns 32 random bytes so identical orders hash differently
func randomSalt() (codec.Word, error) {
	var salt codec.Word
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
