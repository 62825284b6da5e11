package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/model"
)

// InfoHandler serves the static market configuration clients need to build orders
type InfoHandler struct {
	response InfoResponse
	logger   *zap.Logger
}

// NewInfoHandler creates a new InfoHandler
func NewInfoHandler(exchange, proxyRegistry common.Address, payments *assets.PaymentRegistry, enforceAllowanceCheck bool, logger *zap.Logger) *InfoHandler {
	var tokens []AssetInfo
	for _, side := range []model.Side{model.SideSell, model.SideOffer} {
		asset := payments.ForSide(side)
		tokens = append(tokens, AssetInfo{
			Side:     side.String(),
			Symbol:   asset.Symbol,
			Address:  asset.Address.Hex(),
			Decimals: asset.Decimals,
		})
	}

	return &InfoHandler{
		response: InfoResponse{
			Exchange:              exchange.Hex(),
			ProxyRegistry:         proxyRegistry.Hex(),
			PaymentTokens:         tokens,
			EnforceAllowanceCheck: enforceAllowanceCheck,
		},
		logger: logger,
	}
}

// GetInfo handles GET /api/info
func (h *InfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.logger, http.StatusOK, h.response)
}
