package api

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/model"
)

// AccountReader is the chain access the account endpoint needs
type AccountReader interface {
	Exchange() common.Address
	ProxyAddress(ctx context.Context, owner common.Address) (common.Address, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// AccountHandler reports whether a wallet is set up to trade
type AccountHandler struct {
	chain    AccountReader
	payments *assets.PaymentRegistry
	logger   *zap.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(chain AccountReader, payments *assets.PaymentRegistry, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		chain:    chain,
		payments: payments,
		logger:   logger,
	}
}

// GetAccount handles GET /api/accounts/{address}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	address, err := codec.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}

	token := h.payments.ForSide(model.SideOffer)

	var (
		proxy     common.Address
		balance   *big.Int
		allowance *big.Int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		proxy, err = h.chain.ProxyAddress(ctx, address)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = h.chain.BalanceOf(ctx, token.Address, address)
		return err
	})
	g.Go(func() error {
		var err error
		allowance, err = h.chain.Allowance(ctx, token.Address, address, h.chain.Exchange())
		return err
	})
	if err := g.Wait(); err != nil {
		writeServiceError(w, h.logger.With(zap.String("address", address.Hex())), err)
		return
	}

	exp := -int32(token.Decimals)
	response := AccountResponse{
		Address:      address.Hex(),
		ProxyAddress: proxy.Hex(),
		PaymentToken: TokenBalance{
			Symbol:           token.Symbol,
			Address:          token.Address.Hex(),
			Decimals:         token.Decimals,
			Balance:          balance.String(),
			BalanceDecimal:   decimal.NewFromBigInt(balance, exp).String(),
			Allowance:        allowance.String(),
			AllowanceDecimal: decimal.NewFromBigInt(allowance, exp).String(),
		},
	}

	h.logger.Info("Retrieved account state",
		zap.String("address", address.Hex()),
		zap.String("proxy_address", proxy.Hex()))

	writeJSONResponse(w, h.logger, http.StatusOK, response)
}
