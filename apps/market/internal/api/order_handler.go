package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/encoder"
	"nftmarket/apps/market/internal/matcher"
	"nftmarket/apps/market/internal/model"
	"nftmarket/apps/market/internal/query"
	"nftmarket/apps/market/internal/verifier"
)

// OrderHandler handles order-related API endpoints
type OrderHandler struct {
	encoder  *encoder.Encoder
	verifier *verifier.Verifier
	matcher  *matcher.Matcher
	query    *query.Service
	payments *assets.PaymentRegistry
	logger   *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(enc *encoder.Encoder, ver *verifier.Verifier, m *matcher.Matcher, q *query.Service, payments *assets.PaymentRegistry, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		encoder:  enc,
		verifier: ver,
		matcher:  m,
		query:    q,
		payments: payments,
		logger:   logger,
	}
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.query.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, h.toOrderResponse(*order))
}

// CreateSellOrder handles POST /api/orders/sell
func (h *OrderHandler) CreateSellOrder(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r, model.SideSell)
}

// CreateOfferOrder handles POST /api/orders/offer
func (h *OrderHandler) CreateOfferOrder(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r, model.SideOffer)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request, side model.Side) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	maker, err := codec.ParseAddress(req.Maker)
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_maker", err.Error())
		return
	}
	contract, err := codec.ParseAddress(req.Contract)
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_contract", err.Error())
		return
	}
	tokenID, err := codec.ParseAmount(req.TokenID)
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_token_id", err.Error())
		return
	}
	price, err := codec.ParseAmount(req.Price)
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_price", err.Error())
		return
	}

	encReq := encoder.Request{
		Maker:          maker,
		Contract:       contract,
		TokenID:        tokenID,
		Price:          price,
		ExpirationTime: req.ExpirationTime,
	}

	var order *model.Order
	if side == model.SideSell {
		order, err = h.encoder.CreateSellOrder(r.Context(), encReq)
	} else {
		order, err = h.encoder.CreateOfferOrder(r.Context(), encReq)
	}
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusCreated, h.toOrderResponse(*order))
}

// VerifyOrder handles POST /api/orders/{id}/verify
func (h *OrderHandler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	var req SignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	sig, err := codec.ParseSignature(req.R, req.S, string(req.V))
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_signature", err.Error())
		return
	}

	order, err := h.verifier.Verify(r.Context(), mux.Vars(r)["id"], sig)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, h.toOrderResponse(*order))
}

// BuyFromSell handles POST /api/orders/{id}/buy
func (h *OrderHandler) BuyFromSell(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}
	buyer, err := codec.ParseAddress(req.Buyer)
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_buyer", err.Error())
		return
	}

	payload, err := h.matcher.GenerateBuyFromSell(r.Context(), mux.Vars(r)["id"], buyer)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, PayloadResponse{Side: payload.Side().String(), Order: payload.Call()})
}

// AcceptOffer handles POST /api/orders/{id}/accept
func (h *OrderHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}
	seller, err := codec.ParseAddress(req.Seller)
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_seller", err.Error())
		return
	}

	payload, err := h.matcher.GenerateSellFromOffer(r.Context(), mux.Vars(r)["id"], seller)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, PayloadResponse{Side: payload.Side().String(), Order: payload.Call()})
}

// CreateCounterOrder handles POST /api/orders/{id}/counter
func (h *OrderHandler) CreateCounterOrder(w http.ResponseWriter, r *http.Request) {
	var req CounterOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	order, err := h.encoder.CreateCounterOrder(r.Context(), mux.Vars(r)["id"], req.Order)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusCreated, h.toOrderResponse(*order))
}

// CheckSignature handles POST /api/orders/signature
func (h *OrderHandler) CheckSignature(w http.ResponseWriter, r *http.Request) {
	var req CheckSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_request_body", "Invalid JSON in request body")
		return
	}

	sig, err := codec.ParseSignature(req.R, req.S, string(req.V))
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_signature", err.Error())
		return
	}

	valid, err := h.verifier.CheckSignature(r.Context(), req.Order, sig)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, CheckSignatureResponse{Valid: valid})
}

// ListSellOrders handles GET /api/orders/sell/{contract}/{token_id}
func (h *OrderHandler) ListSellOrders(w http.ResponseWriter, r *http.Request) {
	contract, tokenID, ok := h.parseAsset(w, r)
	if !ok {
		return
	}

	orders, err := h.query.ListSellOrders(r.Context(), contract, tokenID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, h.toOrdersResponse(orders))
}

// ListOfferOrders handles GET /api/orders/offer/{contract}/{token_id}
func (h *OrderHandler) ListOfferOrders(w http.ResponseWriter, r *http.Request) {
	contract, tokenID, ok := h.parseAsset(w, r)
	if !ok {
		return
	}

	orders, err := h.query.ListOfferOrders(r.Context(), contract, tokenID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, h.toOrdersResponse(orders))
}

// ListMakerOrders handles GET /api/makers/{address}/orders
func (h *OrderHandler) ListMakerOrders(w http.ResponseWriter, r *http.Request) {
	maker, err := codec.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}

	orders, err := h.query.ListMakerOrders(r.Context(), maker)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, h.toOrdersResponse(orders))
}

// GetProxy handles GET /api/proxy/{address}
func (h *OrderHandler) GetProxy(w http.ResponseWriter, r *http.Request) {
	owner, err := codec.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}

	proxy, err := h.query.ProxyAddress(r.Context(), owner)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSONResponse(w, h.logger, http.StatusOK, ProxyResponse{
		Address:      owner.Hex(),
		ProxyAddress: proxy.Hex(),
		Registered:   proxy != (common.Address{}),
	})
}

func (h *OrderHandler) parseAsset(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	vars := mux.Vars(r)
	contract, err := codec.ParseAddress(vars["contract"])
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_contract", err.Error())
		return common.Address{}, nil, false
	}
	tokenID, err := codec.ParseAmount(vars["token_id"])
	if err != nil {
		writeErrorResponse(w, h.logger, http.StatusBadRequest, "invalid_token_id", err.Error())
		return common.Address{}, nil, false
	}
	return contract, tokenID, true
}

func (h *OrderHandler) toOrdersResponse(orders []model.Order) OrdersResponse {
	out := OrdersResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for _, order := range orders {
		out.Orders = append(out.Orders, h.toOrderResponse(order))
	}
	return out
}

func (h *OrderHandler) toOrderResponse(order model.Order) OrderResponse {
	response := OrderResponse{
		OrderID:         order.OrderID,
		IsSell:          order.IsSell,
		Maker:           order.Maker,
		ContractAddress: order.ContractAddress,
		TokenIDHex:      order.TokenID,
		PriceHex:        order.Price,
		ExpirationTime:  order.ExpirationTime,
		Verified:        order.Verified,
		Signature:       order.Signature,
		MatchedOrderID:  order.MatchedOrderID,
		CreatedAt:       order.CreatedAt,
		VerifiedAt:      order.VerifiedAt,
		Order:           json.RawMessage(order.Raw),
	}

	if tokenID, err := codec.ParseAmount(order.TokenID); err == nil {
		response.TokenID = tokenID.String()
	}
	price, err := codec.ParseAmount(order.Price)
	if err != nil {
		return response
	}
	response.Price = price.String()

	if payload, err := encoder.Decode(order.Raw); err == nil {
		if asset, ok := h.payments.GetByAddress(payload.Call().PaymentToken); ok {
			response.PaymentSymbol = asset.Symbol
			response.PriceDecimal = decimal.NewFromBigInt(price, -int32(asset.Decimals)).String()
		}
	}
	return response
}

// writeServiceError maps service errors onto HTTP status codes. Only node
// failures are reported as retryable.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		writeErrorResponse(w, logger, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeErrorResponse(w, logger, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, model.ErrExpired):
		writeErrorResponse(w, logger, http.StatusGone, "order_expired", err.Error())
	case errors.Is(err, model.ErrPreconditionFailed):
		writeErrorResponse(w, logger, http.StatusPreconditionFailed, "precondition_failed", err.Error())
	case errors.Is(err, model.ErrUnsupportedSaleKind):
		writeErrorResponse(w, logger, http.StatusUnprocessableEntity, "unsupported_sale_kind", err.Error())
	case errors.Is(err, model.ErrSignatureInvalid):
		writeErrorResponse(w, logger, http.StatusUnprocessableEntity, "signature_invalid", err.Error())
	case errors.Is(err, model.ErrExternalUnavailable):
		logger.Warn("Chain unavailable", zap.Error(err))
		writeErrorResponse(w, logger, http.StatusServiceUnavailable, "chain_unavailable", "Blockchain node unavailable, retry later")
	default:
		logger.Error("Request failed", zap.Error(err))
		writeErrorResponse(w, logger, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// writeJSONResponse writes a JSON response with the specified status code
func writeJSONResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	writeJSONResponse(w, logger, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
