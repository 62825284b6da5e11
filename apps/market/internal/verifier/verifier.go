package verifier

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/chain"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/encoder"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/model"
)

type OrderStore interface {
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)
	MarkOrderVerified(ctx context.Context, orderID, signature string, verifiedAt time.Time) (bool, error)
}

// ChainReader is the subset of *chain.Client the verifier calls
type ChainReader interface {
	Exchange() common.Address
	ProxyAddress(ctx context.Context, owner common.Address) (common.Address, error)
	IsApprovedForAll(ctx context.Context, contract, owner, operator common.Address) (bool, error)
	OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	ValidateOrder(ctx context.Context, call model.MaskedCall, sig codec.Signature) error
}

type Options struct {
	// EnforceAllowanceCheck makes offer verification require the maker to
	// hold and have approved at least the offered amount of the payment token.
	EnforceAllowanceCheck bool
}

type Verifier struct {
	store    OrderStore
	chain    ChainReader
	payments *assets.PaymentRegistry
	opts     Options
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewVerifier(store OrderStore, chain ChainReader, payments *assets.PaymentRegistry, opts Options, logger *zap.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{
		store:    store,
		chain:    chain,
		payments: payments,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Verify checks a signed order against chain state and, if every check
// passes, marks it verified with sig. Any failure leaves the order untouched.
// Of several concurrent calls for one order at most one succeeds; the others
// get ErrNotFound.
func (v *Verifier) Verify(ctx context.Context, orderID string, sig codec.Signature) (*model.Order, error) {
	order, err := v.verify(ctx, orderID, sig)
	v.metrics.ObserveVerification(err)
	if err != nil {
		v.logger.Info("Order verification rejected",
			zap.String("order_id", orderID),
			zap.String("outcome", metrics.Outcome(err)),
			zap.Error(err))
		return nil, err
	}

	v.logger.Info("Order verified",
		zap.String("order_id", order.OrderID),
		zap.String("maker", order.Maker),
		zap.Bool("is_sell", order.IsSell))
	return order, nil
}

func (v *Verifier) verify(ctx context.Context, orderID string, sig codec.Signature) (*model.Order, error) {
	order, err := v.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, orderID)
	}
	if order.Verified {
		return nil, fmt.Errorf("%w: order %s already verified", model.ErrNotFound, orderID)
	}

	now := v.now()
	if order.Expired(now) {
		return nil, fmt.Errorf("%w: order %s", model.ErrExpired, orderID)
	}

	payload, err := encoder.DecodeStored(*order)
	if err != nil {
		return nil, err
	}
	call := payload.Call()
	if call.SaleKind != model.SaleKindFixedPrice {
		return nil, fmt.Errorf("%w: sale kind %d", model.ErrUnsupportedSaleKind, call.SaleKind)
	}

	switch p := payload.(type) {
	case encoder.SellPayload:
		if err := v.checkSeller(ctx, p); err != nil {
			return nil, err
		}
	case encoder.OfferPayload:
		if v.opts.EnforceAllowanceCheck {
			if err := v.checkBuyer(ctx, p); err != nil {
				return nil, err
			}
		}
	}

	if err := v.chain.ValidateOrder(ctx, call, sig); err != nil {
		return nil, err
	}

	ok, err := v.store.MarkOrderVerified(ctx, orderID, sig.Concat(), now.UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %s already verified", model.ErrNotFound, orderID)
	}

	signature := sig.Concat()
	verifiedAt := now.UTC()
	order.Verified = true
	order.Signature = &signature
	order.VerifiedAt = &verifiedAt
	return order, nil
}

// checkSeller requires the seller to own the token and to have a proxy that
// may transfer it.
func (v *Verifier) checkSeller(ctx context.Context, p encoder.SellPayload) error {
	call := p.Call()
	seller := p.Seller()

	proxy, err := v.chain.ProxyAddress(ctx, seller)
	if err != nil {
		return precondition(err, "proxy lookup")
	}
	if proxy == (common.Address{}) {
		return fmt.Errorf("%w: %s has no proxy", model.ErrPreconditionFailed, seller.Hex())
	}

	approved, err := v.chain.IsApprovedForAll(ctx, call.Target, seller, proxy)
	if err != nil {
		return precondition(err, "approval check")
	}
	if !approved {
		return fmt.Errorf("%w: proxy %s is not approved for %s", model.ErrPreconditionFailed, proxy.Hex(), call.Target.Hex())
	}

	owner, err := v.chain.OwnerOf(ctx, call.Target, p.TokenID().Big())
	if err != nil {
		return precondition(err, "owner lookup")
	}
	if owner != seller {
		return fmt.Errorf("%w: %s does not own token %s", model.ErrPreconditionFailed, seller.Hex(), p.TokenID().Big())
	}
	return nil
}

// checkBuyer requires the buyer to hold and have approved the offered amount.
//
// TODO: the exchange pulls ERC-20 payments through its token transfer proxy,
// not the exchange itself; check the allowance against that spender once its
// address is configurable.
func (v *Verifier) checkBuyer(ctx context.Context, p encoder.OfferPayload) error {
	call := p.Call()
	buyer := p.Buyer()
	price := encoder.Price(p)

	token := call.PaymentToken
	if asset, ok := v.payments.GetByAddress(token); ok && asset.IsNative() {
		return nil
	}

	allowance, err := v.chain.Allowance(ctx, token, buyer, v.chain.Exchange())
	if err != nil {
		return precondition(err, "allowance check")
	}
	if allowance.Cmp(price) < 0 {
		return fmt.Errorf("%w: allowance %s below price %s", model.ErrPreconditionFailed, allowance, price)
	}

	balance, err := v.chain.BalanceOf(ctx, token, buyer)
	if err != nil {
		return precondition(err, "balance check")
	}
	if balance.Cmp(price) < 0 {
		return fmt.Errorf("%w: balance %s below price %s", model.ErrPreconditionFailed, balance, price)
	}
	return nil
}

// CheckSignature simulates the exchange's validation of sig over an arbitrary
// payload without touching the store.
func (v *Verifier) CheckSignature(ctx context.Context, call model.MaskedCall, sig codec.Signature) (bool, error) {
	err := v.chain.ValidateOrder(ctx, call, sig)
	if errors.Is(err, model.ErrSignatureInvalid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// precondition turns a contract revert into a failed precondition. Transport
// errors pass through unchanged.
func precondition(err error, what string) error {
	var revert *chain.RevertError
	if errors.As(err, &revert) {
		return fmt.Errorf("%w: %s: %v", model.ErrPreconditionFailed, what, revert)
	}
	return err
}
