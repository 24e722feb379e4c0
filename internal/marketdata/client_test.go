package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

func TestBookTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","bidPrice":"2000.10","bidQty":"1","askPrice":"2000.50","askQty":"2"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	s, err := c.BookTicker(context.Background(), "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, domain.Pair("ETH/USDT"), s.Pair)
	assert.InDelta(t, 2000.10, s.Bid, 1e-9)
	assert.InDelta(t, 2000.50, s.Ask, 1e-9)
}

func TestTickers24hRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","priceChangePercent":"3.5"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil)
	tickers, err := c.Tickers24h(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	pct, ok := tickers[0].ChangePercent()
	assert.True(t, ok)
	assert.InDelta(t, 3.5, pct, 1e-9)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).BookTicker(context.Background(), "NOPE/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol")
}
