package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nftmarket/apps/market/internal/chain"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/model"
)

type OrderStore interface {
	GetOrderByID(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, q model.OrderQuery) ([]model.Order, error)
}

type ChainReader interface {
	ProxyAddress(ctx context.Context, owner common.Address) (common.Address, error)
	OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error)
}

// Service serves the read paths of the order book
type Service struct {
	store  OrderStore
	chain  ChainReader
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store OrderStore, chain ChainReader, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		chain:  chain,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, orderID)
	}
	return order, nil
}

// ListSellOrders returns the live sell orders for a token, cheapest first.
// Orders whose maker no longer owns the token are left out.
func (s *Service) ListSellOrders(ctx context.Context, contract common.Address, tokenID *big.Int) ([]model.Order, error) {
	q, err := s.tokenQuery(contract, tokenID, true, model.OrderByPriceAsc)
	if err != nil {
		return nil, err
	}

	var (
		owner      common.Address
		noOwner    bool
		candidates []model.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owner, err = s.chain.OwnerOf(gctx, contract, tokenID)
		var revert *chain.RevertError
		if errors.As(err, &revert) {
			noOwner = true
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		candidates, err = s.store.ListOrders(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(candidates))
	if noOwner {
		s.logger.Debug("Token has no owner, no sell orders listed",
			zap.String("contract_address", contract.Hex()),
			zap.String("token_id", tokenID.String()))
		return orders, nil
	}

	ownerKey := codec.AddressKey(owner)
	for _, order := range candidates {
		if order.Maker == ownerKey {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

// ListOfferOrders returns the live offers for a token, highest first
func (s *Service) ListOfferOrders(ctx context.Context, contract common.Address, tokenID *big.Int) ([]model.Order, error) {
	q, err := s.tokenQuery(contract, tokenID, false, model.OrderByPriceDesc)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrders(ctx, q)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// ListMakerOrders returns every order made by maker, newest first
func (s *Service) ListMakerOrders(ctx context.Context, maker common.Address) ([]model.Order, error) {
	orders, err := s.store.ListOrders(ctx, model.OrderQuery{
		Maker:   codec.AddressKey(maker),
		OrderBy: model.OrderByCreated,
	})
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return orders, nil
}

// ProxyAddress returns the registered proxy of owner, or the zero address
func (s *Service) ProxyAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	return s.chain.ProxyAddress(ctx, owner)
}

func (s *Service) tokenQuery(contract common.Address, tokenID *big.Int, isSell bool, orderBy model.OrderBy) (model.OrderQuery, error) {
	id, err := codec.WordFromBig(tokenID)
	if err != nil {
		return model.OrderQuery{}, fmt.Errorf("%w: token id: %v", model.ErrInvalidArgument, err)
	}
	verified := true
	return model.OrderQuery{
		ContractAddress: codec.AddressKey(contract),
		TokenID:         id.Hex(),
		IsSell:          &isSell,
		Verified:        &verified,
		ActiveAt:        s.now().Unix(),
		OrderBy:         orderBy,
	}, nil
}
