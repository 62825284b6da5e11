package encoder

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/model"
)

var (
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	weth     = common.HexToAddress("0x00000000000000000000000000000000000000e3")
	makerA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	buyerB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	contract = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]model.Order
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]model.Order)}
}

func (m *memStore) CreateOrder(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderID] = order
	return nil
}

func (m *memStore) GetOrderByID(_ context.Context, orderID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *memStore) markVerified(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order := m.orders[orderID]
	sig := "00"
	order.Verified = true
	order.Signature = &sig
	m.orders[orderID] = order
}

func newTestEncoder(store OrderStore) (*Encoder, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewEncoder(store, assets.NewPaymentRegistry(weth), exchange, zap.NewNop(), m), m
}

func request(maker common.Address, tokenID, price int64) Request {
	return Request{
		Maker:          maker,
		Contract:       contract,
		TokenID:        big.NewInt(tokenID),
		Price:          big.NewInt(price),
		ExpirationTime: time.Now().Add(time.Hour).Unix(),
	}
}

func slot(b []byte, offset int) []byte {
	return b[offset : offset+codec.WordLength]
}

func TestSelector(t *testing.T) {
	require.Equal(t, []byte{0x42, 0x84, 0x2e, 0x0e}, TransferSelector)
}

func TestSellLayout(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())
	req := request(makerA, 1, 100)

	p, err := enc.Sell(req)
	require.NoError(t, err)
	sell, ok := p.(SellPayload)
	require.True(t, ok)
	require.Equal(t, makerA, sell.Seller())

	call := p.Call()
	require.Equal(t, model.SideSell, call.SaleSide)
	require.Equal(t, model.SaleKindFixedPrice, call.SaleKind)
	require.Equal(t, exchange, call.Exchange)
	require.Equal(t, common.Address{}, call.Taker)
	require.Equal(t, common.Address{}, call.PaymentToken)
	require.Equal(t, contract, call.Target)
	require.Len(t, call.Calldata, 100)
	require.Equal(t, TransferSelector, []byte(call.Calldata[:4]))

	makerWord := codec.AddressWord(makerA)
	require.Equal(t, makerWord[:], slot(call.Calldata, fromOffset))
	require.Equal(t, make([]byte, 32), slot(call.Calldata, toOffset))
	one, _ := codec.WordFromBig(big.NewInt(1))
	require.Equal(t, one[:], slot(call.Calldata, tokenIDOffset))

	require.Equal(t, bytes.Repeat([]byte{0xff}, 32), slot(call.ReplacementPattern, toOffset))
	require.Equal(t, make([]byte, 32), slot(call.ReplacementPattern, fromOffset))
	require.Equal(t, make([]byte, 4), []byte(call.ReplacementPattern[:4]))

	price, _ := codec.WordFromBig(big.NewInt(100))
	require.Equal(t, price, call.BasePrice)
	require.Equal(t, price, call.EndPrice)
	require.Equal(t, uint64(0), call.ListingTime)
	require.Equal(t, uint64(req.ExpirationTime), call.ExpirationTime)
	require.Empty(t, call.StaticExtra)
}

func TestOfferLayout(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())

	p, err := enc.Offer(request(makerA, 1, 100))
	require.NoError(t, err)
	offer, ok := p.(OfferPayload)
	require.True(t, ok)
	require.Equal(t, makerA, offer.Buyer())

	call := p.Call()
	require.Equal(t, model.SideOffer, call.SaleSide)
	require.Equal(t, weth, call.PaymentToken)

	makerWord := codec.AddressWord(makerA)
	require.Equal(t, make([]byte, 32), slot(call.Calldata, fromOffset))
	require.Equal(t, makerWord[:], slot(call.Calldata, toOffset))
	require.Equal(t, bytes.Repeat([]byte{0xff}, 32), slot(call.ReplacementPattern, fromOffset))
	require.Equal(t, make([]byte, 32), slot(call.ReplacementPattern, toOffset))
}

func TestReplacementPatternOnlyMasksCounterpartySlot(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())

	for _, side := range []model.Side{model.SideSell, model.SideOffer} {
		for _, tokenID := range []int64{0, 1, 1 << 40} {
			req := request(makerA, tokenID, 7)
			var (
				p   Payload
				err error
			)
			if side == model.SideSell {
				p, err = enc.Sell(req)
			} else {
				p, err = enc.Offer(req)
			}
			require.NoError(t, err)

			mask := p.Call().ReplacementPattern
			open := maskedOffset(side)
			for i, b := range mask {
				if i >= open && i < open+codec.WordLength {
					require.Equal(t, byte(0xff), b, "side %s byte %d", side, i)
				} else {
					require.Equal(t, byte(0), b, "side %s byte %d", side, i)
				}
			}
		}
	}
}

func TestSaltIsFreshPerOrder(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())
	req := request(makerA, 1, 100)

	first, err := enc.Sell(req)
	require.NoError(t, err)
	second, err := enc.Sell(req)
	require.NoError(t, err)

	a, b := first.Call(), second.Call()
	require.NotEqual(t, a.Salt, b.Salt)
	a.Salt, b.Salt = codec.Word{}, codec.Word{}
	require.Equal(t, a, b)
}

func TestRawRoundTrip(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())
	tokenID, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)

	req := request(makerA, 0, 0)
	req.TokenID = tokenID
	req.Price = big.NewInt(1_000_000_000_000_000_000)
	p, err := enc.Offer(req)
	require.NoError(t, err)

	order, err := Project("id", p)
	require.NoError(t, err)
	require.Equal(t, "0x"+string(bytes.Repeat([]byte("f"), 64)), order.TokenID)
	require.Equal(t, "0x0000000000000000000000000000000000000000000000000de0b6b3a7640000", order.Price)
	require.Equal(t, codec.AddressKey(makerA), order.Maker)
	require.False(t, order.IsSell)

	decoded, err := Decode(order.Raw)
	require.NoError(t, err)
	require.Equal(t, order.TokenID, decoded.TokenID().Hex())
	require.Equal(t, order.Price, decoded.Call().BasePrice.Hex())
	require.Equal(t, p.Call(), decoded.Call())

	again, err := Encode(decoded)
	require.NoError(t, err)
	require.Equal(t, order.Raw, again)
}

func TestRequestValidation(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero maker", func(r *Request) { r.Maker = common.Address{} }},
		{"zero contract", func(r *Request) { r.Contract = common.Address{} }},
		{"nil token id", func(r *Request) { r.TokenID = nil }},
		{"token id overflow", func(r *Request) { r.TokenID = tooBig }},
		{"zero price", func(r *Request) { r.Price = big.NewInt(0) }},
		{"negative price", func(r *Request) { r.Price = big.NewInt(-1) }},
		{"price overflow", func(r *Request) { r.Price = tooBig }},
		{"expired", func(r *Request) { r.ExpirationTime = time.Now().Unix() }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := request(makerA, 1, 100)
			tt.mutate(&req)
			_, err := enc.Sell(req)
			require.ErrorIs(t, err, model.ErrInvalidArgument)
		})
	}
}

func TestCreateSellOrderPersistsUnverified(t *testing.T) {
	store := newMemStore()
	enc, m := newTestEncoder(store)

	order, err := enc.CreateSellOrder(context.Background(), request(makerA, 1, 100))
	require.NoError(t, err)
	require.False(t, order.Verified)
	require.Nil(t, order.Signature)
	require.Nil(t, order.MatchedOrderID)

	stored, err := store.GetOrderByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.Equal(t, *order, *stored)
	require.True(t, stored.IsSell)
	require.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCreated.WithLabelValues("sell")))

	_, err = enc.CreateOfferOrder(context.Background(), request(buyerB, 1, 90))
	require.NoError(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCreated.WithLabelValues("offer")))
}

func TestCounter(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())

	sell, err := enc.Sell(request(makerA, 5, 100))
	require.NoError(t, err)

	counter, err := enc.Counter(sell, buyerB)
	require.NoError(t, err)
	offer, ok := counter.(OfferPayload)
	require.True(t, ok)
	require.Equal(t, buyerB, offer.Buyer())

	src, dst := sell.Call(), counter.Call()
	buyerWord := codec.AddressWord(buyerB)
	require.Equal(t, buyerWord[:], slot(dst.Calldata, toOffset))
	require.Equal(t, make([]byte, 32), slot(dst.Calldata, fromOffset))
	require.Equal(t, sell.TokenID(), counter.TokenID())
	require.Equal(t, src.BasePrice, dst.BasePrice)
	require.Equal(t, src.PaymentToken, dst.PaymentToken)
	require.Equal(t, src.ExpirationTime, dst.ExpirationTime)
	require.Equal(t, common.Address{}, dst.Taker)
	require.NotEqual(t, src.Salt, dst.Salt)

	_, err = FromCall(dst)
	require.NoError(t, err)

	_, err = enc.Counter(sell, common.Address{})
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestFromCallRejectsTamperedLayouts(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())
	p, err := enc.Sell(request(makerA, 1, 100))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*model.MaskedCall)
	}{
		{"short calldata", func(c *model.MaskedCall) { c.Calldata = c.Calldata[:68] }},
		{"wrong selector", func(c *model.MaskedCall) { c.Calldata[0] = 0x23 }},
		{"mask over token id", func(c *model.MaskedCall) { c.ReplacementPattern[99] = 0xff }},
		{"mask over maker", func(c *model.MaskedCall) { c.ReplacementPattern[fromOffset] = 0x01 }},
		{"open slot filled", func(c *model.MaskedCall) { c.Calldata[toOffset+31] = 0x01 }},
		{"maker mismatch", func(c *model.MaskedCall) { c.Maker = buyerB }},
		{"unknown side", func(c *model.MaskedCall) { c.SaleSide = 2 }},
		{"decaying price", func(c *model.MaskedCall) { c.EndPrice = codec.Word{} }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			call := p.Call()
			tt.mutate(&call)
			_, err := FromCall(call)
			require.ErrorIs(t, err, model.ErrInvalidArgument)
		})
	}
}

func TestDecodeLeavesSaleKindToCaller(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())
	p, err := enc.Sell(request(makerA, 1, 100))
	require.NoError(t, err)

	call := p.Call()
	call.SaleKind = 1
	call.EndPrice = codec.Word{}
	dutch, err := FromCall(call)
	require.NoError(t, err)

	raw, err := Encode(dutch)
	require.NoError(t, err)
	decoded, err := DecodeStored(model.Order{OrderID: "dutch", Raw: raw})
	require.NoError(t, err)
	require.Equal(t, uint8(1), decoded.Call().SaleKind)

	_, err = DecodeStored(model.Order{OrderID: "broken", Raw: "{"})
	require.ErrorIs(t, err, model.ErrCorruptOrder)
	require.NotErrorIs(t, err, model.ErrInvalidArgument)
}

func TestCallReturnsCopy(t *testing.T) {
	enc, _ := newTestEncoder(newMemStore())
	p, err := enc.Sell(request(makerA, 1, 100))
	require.NoError(t, err)

	call := p.Call()
	call.Calldata[fromOffset+31] = 0
	require.NotEqual(t, call.Calldata, p.Call().Calldata)
}

func TestCreateCounterOrder(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Encoder, *memStore, *model.Order) {
		store := newMemStore()
		enc, _ := newTestEncoder(store)
		original, err := enc.CreateSellOrder(ctx, request(makerA, 3, 100))
		require.NoError(t, err)
		return enc, store, original
	}

	counterFor := func(t *testing.T, enc *Encoder, order *model.Order) model.MaskedCall {
		p, err := Decode(order.Raw)
		require.NoError(t, err)
		counter, err := enc.Counter(p, buyerB)
		require.NoError(t, err)
		return counter.Call()
	}

	t.Run("persists with cross reference", func(t *testing.T) {
		enc, store, original := setup(t)
		store.markVerified(original.OrderID)

		created, err := enc.CreateCounterOrder(ctx, original.OrderID, counterFor(t, enc, original))
		require.NoError(t, err)
		require.NotNil(t, created.MatchedOrderID)
		require.Equal(t, original.OrderID, *created.MatchedOrderID)
		require.False(t, created.IsSell)
		require.False(t, created.Verified)
		require.Equal(t, codec.AddressKey(buyerB), created.Maker)
		require.Equal(t, original.TokenID, created.TokenID)
		require.Equal(t, original.Price, created.Price)
	})

	t.Run("original must be verified", func(t *testing.T) {
		enc, _, original := setup(t)
		_, err := enc.CreateCounterOrder(ctx, original.OrderID, counterFor(t, enc, original))
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("unknown original", func(t *testing.T) {
		enc, _, original := setup(t)
		_, err := enc.CreateCounterOrder(ctx, "missing", counterFor(t, enc, original))
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("original expired", func(t *testing.T) {
		enc, store, original := setup(t)
		store.markVerified(original.OrderID)
		call := counterFor(t, enc, original)
		enc.now = func() time.Time { return time.Unix(original.ExpirationTime, 0) }
		_, err := enc.CreateCounterOrder(ctx, original.OrderID, call)
		require.ErrorIs(t, err, model.ErrExpired)
	})

	t.Run("rejects lower price", func(t *testing.T) {
		enc, store, original := setup(t)
		store.markVerified(original.OrderID)
		call := counterFor(t, enc, original)
		cheaper, _ := codec.WordFromBig(big.NewInt(1))
		call.BasePrice, call.EndPrice = cheaper, cheaper
		_, err := enc.CreateCounterOrder(ctx, original.OrderID, call)
		require.ErrorIs(t, err, model.ErrInvalidArgument)
	})

	t.Run("rejects same side", func(t *testing.T) {
		enc, store, original := setup(t)
		store.markVerified(original.OrderID)
		same, err := enc.Sell(request(buyerB, 3, 100))
		require.NoError(t, err)
		_, err = enc.CreateCounterOrder(ctx, original.OrderID, same.Call())
		require.ErrorIs(t, err, model.ErrInvalidArgument)
	})

	t.Run("rejects other token", func(t *testing.T) {
		enc, store, original := setup(t)
		store.markVerified(original.OrderID)
		other, err := enc.Offer(request(buyerB, 4, 100))
		require.NoError(t, err)
		call := other.Call()
		call.PaymentToken = common.Address{}
		_, err = enc.CreateCounterOrder(ctx, original.OrderID, call)
		require.ErrorIs(t, err, model.ErrInvalidArgument)
	})
}
