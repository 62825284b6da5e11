package matcher

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nftmarket/apps/market/internal/assets"
	"nftmarket/apps/market/internal/codec"
	"nftmarket/apps/market/internal/encoder"
	"nftmarket/apps/market/internal/metrics"
	"nftmarket/apps/market/internal/model"
)

var (
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	weth     = common.HexToAddress("0x00000000000000000000000000000000000000e3")
	seller   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	buyer    = common.HexToAddress("0x000000000000000000000000000000000000000b")
	nft      = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]model.Order
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

func (m *memStore) verify(order *model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig := "00"
	order.Verified = true
	order.Signature = &sig
	m.orders[order.OrderID] = *order
}

func setup(t *testing.T) (*Matcher, *encoder.Encoder, *memStore) {
	t.Helper()
	store := &memStore{orders: make(map[string]model.Order)}
	enc := encoder.NewEncoder(store, assets.NewPaymentRegistry(weth), exchange, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	return NewMatcher(store, enc, zap.NewNop()), enc, store
}

func request(maker common.Address) encoder.Request {
	return encoder.Request{
		Maker:          maker,
		Contract:       nft,
		TokenID:        big.NewInt(42),
		Price:          big.NewInt(100),
		ExpirationTime: time.Now().Add(time.Hour).Unix(),
	}
}

func TestGenerateBuyFromSell(t *testing.T) {
	m, enc, store := setup(t)
	ctx := context.Background()

	sell, err := enc.CreateSellOrder(ctx, request(seller))
	require.NoError(t, err)
	store.verify(sell)

	p, err := m.GenerateBuyFromSell(ctx, sell.OrderID, buyer)
	require.NoError(t, err)
	offer, ok := p.(encoder.OfferPayload)
	require.True(t, ok)
	require.Equal(t, buyer, offer.Buyer())

	original, err := encoder.Decode(sell.Raw)
	require.NoError(t, err)
	src, dst := original.Call(), p.Call()

	require.Equal(t, model.SideOffer, dst.SaleSide)
	require.Equal(t, common.Address{}, dst.Taker)
	require.Equal(t, src.Target, dst.Target)
	require.Equal(t, src.PaymentToken, dst.PaymentToken)
	require.Equal(t, src.BasePrice, dst.BasePrice)
	require.Equal(t, src.EndPrice, dst.EndPrice)
	require.Equal(t, src.ListingTime, dst.ListingTime)
	require.Equal(t, src.ExpirationTime, dst.ExpirationTime)
	require.Equal(t, original.TokenID(), p.TokenID())

	// the buyer sits in the slot the sell order left open
	buyerWord := codec.AddressWord(buyer)
	require.Equal(t, buyerWord[:], []byte(dst.Calldata[36:68]))
	for i := 36; i < 68; i++ {
		require.Equal(t, byte(0xff), src.ReplacementPattern[i])
	}

	// the original is untouched
	after, err := store.GetOrderByID(ctx, sell.OrderID)
	require.NoError(t, err)
	require.Equal(t, *sell, *after)
	require.Len(t, store.orders, 1)
}

func TestGenerateSellFromOffer(t *testing.T) {
	m, enc, store := setup(t)
	ctx := context.Background()

	offer, err := enc.CreateOfferOrder(ctx, request(buyer))
	require.NoError(t, err)
	store.verify(offer)

	p, err := m.GenerateSellFromOffer(ctx, offer.OrderID, seller)
	require.NoError(t, err)
	sell, ok := p.(encoder.SellPayload)
	require.True(t, ok)
	require.Equal(t, seller, sell.Seller())
	require.Equal(t, weth, p.Call().PaymentToken)

	sellerWord := codec.AddressWord(seller)
	require.Equal(t, sellerWord[:], []byte(p.Call().Calldata[4:36]))
}

func TestGenerateIsSideEffectFree(t *testing.T) {
	m, enc, store := setup(t)
	ctx := context.Background()

	sell, err := enc.CreateSellOrder(ctx, request(seller))
	require.NoError(t, err)
	store.verify(sell)

	first, err := m.GenerateBuyFromSell(ctx, sell.OrderID, buyer)
	require.NoError(t, err)
	second, err := m.GenerateBuyFromSell(ctx, sell.OrderID, buyer)
	require.NoError(t, err)

	a, b := first.Call(), second.Call()
	require.NotEqual(t, a.Salt, b.Salt)
	a.Salt, b.Salt = codec.Word{}, codec.Word{}
	require.Equal(t, a, b)
	require.Len(t, store.orders, 1)
}

func TestGenerateRequiresVerifiedOrderOfSide(t *testing.T) {
	m, enc, store := setup(t)
	ctx := context.Background()

	sell, err := enc.CreateSellOrder(ctx, request(seller))
	require.NoError(t, err)

	_, err = m.GenerateBuyFromSell(ctx, sell.OrderID, buyer)
	require.ErrorIs(t, err, model.ErrNotFound, "unverified")

	store.verify(sell)
	_, err = m.GenerateSellFromOffer(ctx, sell.OrderID, buyer)
	require.ErrorIs(t, err, model.ErrNotFound, "wrong side")

	_, err = m.GenerateBuyFromSell(ctx, "missing", buyer)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestGenerateExpired(t *testing.T) {
	m, enc, store := setup(t)
	ctx := context.Background()

	sell, err := enc.CreateSellOrder(ctx, request(seller))
	require.NoError(t, err)
	store.verify(sell)

	m.now = func() time.Time { return time.Unix(sell.ExpirationTime+1, 0) }
	_, err = m.GenerateBuyFromSell(ctx, sell.OrderID, buyer)
	require.ErrorIs(t, err, model.ErrExpired)
}

func TestGenerateUnsupportedSaleKind(t *testing.T) {
	m, _, store := setup(t)
	ctx := context.Background()

	makerWord := codec.AddressWord(seller)
	calldata := "0x42842e0e" + makerWord.Hex()[2:] + codec.Word{}.Hex()[2:] +
		"000000000000000000000000000000000000000000000000000000000000002a"
	mask := "0x00000000" + codec.Word{}.Hex()[2:] +
		"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff" + codec.Word{}.Hex()[2:]
	price := "0x0000000000000000000000000000000000000000000000000000000000000064"
	endPrice := "0x0000000000000000000000000000000000000000000000000000000000000032"
	raw := `{"exchange":"` + exchange.Hex() + `","maker":"` + seller.Hex() +
		`","taker":"0x0000000000000000000000000000000000000000","saleSide":1,"saleKind":1,` +
		`"target":"` + nft.Hex() + `","paymentToken":"0x0000000000000000000000000000000000000000",` +
		`"calldata_":"` + calldata + `","replacementPattern":"` + mask + `",` +
		`"staticTarget":"0x0000000000000000000000000000000000000000","staticExtra":"0x",` +
		`"basePrice":"` + price + `","endPrice":"` + endPrice + `","listingTime":0,` +
		`"expirationTime":4102444800,"salt":"` + codec.Word{}.Hex() + `"}`

	sig := "00"
	order := model.Order{
		OrderID:         "dutch",
		Raw:             raw,
		IsSell:          true,
		Maker:           codec.AddressKey(seller),
		ContractAddress: codec.AddressKey(nft),
		TokenID:         "0x000000000000000000000000000000000000000000000000000000000000002a",
		Price:           price,
		ExpirationTime:  4102444800,
		Verified:        true,
		Signature:       &sig,
	}
	require.NoError(t, store.CreateOrder(ctx, order))

	_, err := m.GenerateBuyFromSell(ctx, "dutch", buyer)
	require.ErrorIs(t, err, model.ErrUnsupportedSaleKind)
}

func TestGenerateCorruptStoredOrder(t *testing.T) {
	m, enc, store := setup(t)
	ctx := context.Background()

	sell, err := enc.CreateSellOrder(ctx, request(seller))
	require.NoError(t, err)
	sell.Raw = "not json"
	store.verify(sell)

	_, err = m.GenerateBuyFromSell(ctx, sell.OrderID, buyer)
	require.ErrorIs(t, err, model.ErrCorruptOrder)
	require.NotErrorIs(t, err, model.ErrInvalidArgument)
}
