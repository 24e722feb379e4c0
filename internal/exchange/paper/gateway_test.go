package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

type book struct{ bid, ask float64 }

func (b *book) BookTicker(_ context.Context, p domain.Pair) (domain.MarketSample, error) {
	return domain.MarketSample{Pair: p, Bid: b.bid, Ask: b.ask}, nil
}

const pair = domain.Pair("BTC/USDT")

func newGateway(b *book) *Gateway {
	return New(b, Config{Balances: map[string]float64{"USDT": 1000}, CommissionRate: 0.001})
}

func TestLimitBuyFillsWhenAskCrosses(t *testing.T) {
	b := &book{bid: 99, ask: 101}
	gw := newGateway(b)
	ctx := context.Background()

	id, err := gw.SubmitLimitOrder(ctx, pair, domain.SideBuy, 100, 2)
	require.NoError(t, err)

	st, err := gw.FetchOrderStatus(ctx, id, pair)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, st.Status)
	open, _ := gw.FetchOpenOrders(ctx)
	assert.Len(t, open, 1)

	b.ask = 100
	st, err = gw.FetchOrderStatus(ctx, id, pair)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClosed, st.Status)
	assert.InDelta(t, 2.0, st.FilledQty, 1e-12)

	fills, err := gw.FetchFills(ctx, id, pair)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.InDelta(t, 0.2, fills[0].Commission, 1e-12)

	btc, _ := gw.FetchFreeBalance(ctx, "BTC")
	usdt, _ := gw.FetchFreeBalance(ctx, "USDT")
	assert.InDelta(t, 2.0, btc, 1e-12)
	assert.InDelta(t, 800.0, usdt, 1e-12)

	err = gw.CancelOrder(ctx, id, pair)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestCancelOpenOrder(t *testing.T) {
	gw := newGateway(&book{bid: 99, ask: 101})
	ctx := context.Background()
	id, _ := gw.SubmitLimitOrder(ctx, pair, domain.SideSell, 110, 1)

	require.NoError(t, gw.CancelOrder(ctx, id, pair))
	st, err := gw.FetchOrderStatus(ctx, id, pair)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, st.Status)

	_, err = gw.FetchOrderStatus(ctx, "missing", pair)
	assert.True(t, errors.Is(err, domain.ErrOrderNotFound))
}

func TestMarketRoundTrip(t *testing.T) {
	b := &book{bid: 100, ask: 100}
	gw := newGateway(b)
	ctx := context.Background()

	buy, err := gw.ExecuteBuyByNotional(ctx, pair, 50)
	require.NoError(t, err)
	require.NotNil(t, buy)
	assert.InDelta(t, 0.5, buy.FilledQty, 1e-12)

	b.bid = 102
	sell, err := gw.ExecuteSellByQuantity(ctx, pair, buy.FilledQty, buy.AvgPrice)
	require.NoError(t, err)
	require.NotNil(t, sell.PnL)
	assert.InDelta(t, 1.0, *sell.PnL, 1e-9)
}

func TestMarketBuyWithoutAsk(t *testing.T) {
	gw := newGateway(&book{})
	buy, err := gw.ExecuteBuyByNotional(context.Background(), pair, 50)
	require.NoError(t, err)
	assert.Nil(t, buy)
}
