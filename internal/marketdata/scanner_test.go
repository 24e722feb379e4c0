package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

type staticQuotes map[domain.Pair]domain.MarketSample

func (q staticQuotes) BookTicker(_ context.Context, p domain.Pair) (domain.MarketSample, error) {
	s, ok := q[p]
	if !ok {
		return domain.MarketSample{}, errors.New("no book")
	}
	return s, nil
}

func quotes() staticQuotes {
	return staticQuotes{
		"BTC/USDT": {Pair: "BTC/USDT", Bid: 100, Ask: 100.5},  // 0.5%
		"ETH/USDT": {Pair: "ETH/USDT", Bid: 100, Ask: 100.01}, // 0.01%
		"BAD/USDT": {Pair: "BAD/USDT", Bid: 0, Ask: 1},
	}
}

func TestScanFiltersBySpread(t *testing.T) {
	s := NewScanner(quotes(), false, 0)
	got := s.Scan(context.Background(), []domain.Pair{"BTC/USDT", "ETH/USDT", "BAD/USDT", "MISSING/USDT"}, 0.001)
	assert.Len(t, got, 1)
	assert.Equal(t, domain.Pair("BTC/USDT"), got[0].Pair)
}

func TestScanFlexibleKeepsAll(t *testing.T) {
	s := NewScanner(quotes(), true, 0)
	got := s.Scan(context.Background(), []domain.Pair{"BTC/USDT", "ETH/USDT", "BAD/USDT"}, 0.001)
	assert.Len(t, got, 2)
}

func TestScanStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := NewScanner(quotes(), true, 0).Scan(ctx, []domain.Pair{"BTC/USDT"}, 0)
	assert.Empty(t, got)
}
