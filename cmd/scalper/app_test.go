package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/exchange/exchangetest"
	"github.com/ricardogal/defi-scalping-rebate/pkg/config"
	"github.com/ricardogal/defi-scalping-rebate/pkg/persistence"
)

func TestParsePairMap(t *testing.T) {
	m, err := parsePairMap(map[string]float64{"btc/usdt": 10, "ETH-USDT": 5})
	require.NoError(t, err)
	assert.Equal(t, 10.0, m["BTC/USDT"])
	assert.Equal(t, 5.0, m["ETH/USDT"])

	_, err = parsePairMap(map[string]float64{"BTCUSDT": 1})
	assert.Error(t, err)
}

func testConfig(t *testing.T, backend string) *config.Config {
	cfg := config.Default()
	cfg.Pairs = []string{"BTC/USDT"}
	cfg.CapitalLimits = map[string]float64{"BTC/USDT": 100}
	cfg.Exchange.Name = "paper"
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.OpenOrdersBackend = backend
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewAppBackends(t *testing.T) {
	for _, backend := range []string{"sqlite", "json", "badger"} {
		t.Run(backend, func(t *testing.T) {
			a, err := newApp(testConfig(t, backend))
			require.NoError(t, err)
			defer a.close()

			ctx := context.Background()
			rec := domain.OpenOrder{OrderID: "o1", Pair: "BTC/USDT", Side: domain.SideBuy, Price: 1, Quantity: 1, CreatedAt: time.Now()}
			require.NoError(t, a.orders.Put(ctx, rec))
			list, err := a.orders.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)
			assert.True(t, a.ledger.CanReserve("BTC/USDT", 100))
		})
	}
}

func TestStopAll(t *testing.T) {
	gw := exchangetest.NewGateway()
	journal := &exchangetest.Journal{}
	orders := persistence.NewMemoryStore()
	a := &app{gateway: gw, orders: orders, events: events.NewRecorder(journal)}

	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		o := domain.OpenOrder{OrderID: id, Pair: "BTC/USDT", Side: domain.SideBuy, Price: 1, Quantity: 1, CreatedAt: now}
		gw.AddOrder(o, domain.OrderStatusOpen)
		require.NoError(t, orders.Put(ctx, o))
	}
	// 只在本地存在的记录
	require.NoError(t, orders.Put(ctx, domain.OpenOrder{OrderID: "d", Pair: "BTC/USDT", Side: domain.SideSell, Price: 1, Quantity: 1, CreatedAt: now}))
	gw.FailNext("Cancel", 1)

	err := a.stopAll(ctx)
	require.Error(t, err)
	require.Len(t, gw.Cancels, 2)

	// 撤单失败的那一个仍挂在交易所上，本地记录保留
	var failed string
	for _, id := range []string{"a", "b", "c"} {
		if !slices.Contains(gw.Cancels, id) {
			failed = id
		}
	}
	require.NotEmpty(t, failed)
	left, err := orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, failed, left[0].OrderID)

	stopped := journal.EventsOf(domain.EventBotStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, 1, stopped[0].Detail["kept"])
}

func TestStopAllClearsStoreWhenEveryCancelSucceeds(t *testing.T) {
	gw := exchangetest.NewGateway()
	orders := persistence.NewMemoryStore()
	a := &app{gateway: gw, orders: orders, events: events.NewRecorder(&exchangetest.Journal{})}

	ctx := context.Background()
	o := domain.OpenOrder{OrderID: "a", Pair: "BTC/USDT", Side: domain.SideBuy, Price: 1, Quantity: 1, CreatedAt: time.Now()}
	gw.AddOrder(o, domain.OrderStatusOpen)
	require.NoError(t, orders.Put(ctx, o))

	require.NoError(t, a.stopAll(ctx))
	assert.Equal(t, []string{"a"}, gw.Cancels)
	assert.Equal(t, 0, orders.Len())
}

func TestRemoteSweep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"examined":2,"canceled":2}`))
	}))
	addr := srv.Listener.Addr().String()

	report, ok := remoteSweep(context.Background(), addr)
	require.True(t, ok)
	assert.Equal(t, 2, report.Canceled)

	// 没有运行中的进程时回落到本地
	srv.Close()
	_, ok = remoteSweep(context.Background(), addr)
	assert.False(t, ok)

	_, ok = remoteSweep(context.Background(), "")
	assert.False(t, ok)
}
