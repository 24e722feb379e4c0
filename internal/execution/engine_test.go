package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricardogal/defi-scalping-rebate/internal/capital"
	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/exchange/exchangetest"
	"github.com/ricardogal/defi-scalping-rebate/internal/oms"
	"github.com/ricardogal/defi-scalping-rebate/pkg/persistence"
)

const btc = domain.Pair("BTC/USDT")

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	gw      *exchangetest.Gateway
	ledger  *capital.Ledger
	journal *exchangetest.Journal
	store   *persistence.MemoryStore
	engine  *Engine
}

func newHarness(limit float64, cfg Config) *harness {
	h := &harness{
		gw:      exchangetest.NewGateway(),
		ledger:  capital.NewLedger(map[domain.Pair]float64{btc: limit}),
		journal: &exchangetest.Journal{},
		store:   persistence.NewMemoryStore(),
	}
	clock := exchangetest.NewManualClock(t0)
	rec := events.NewRecorder(h.journal).WithClock(clock.Now)
	tracker := oms.NewTracker(h.gw, h.store, oms.NewClaims(0), oms.Options{Clock: clock, Events: rec})
	h.engine = NewEngine(Deps{
		Gateway: h.gw,
		Ledger:  h.ledger,
		Tracker: tracker,
		Trades:  h.journal,
		Events:  rec,
		Now:     clock.Now,
	}, cfg)
	return h
}

func sample(bid, ask float64) domain.MarketSample {
	return domain.MarketSample{Pair: btc, Bid: bid, Ask: ask, Time: t0}
}

func TestSimulationRoundTrip(t *testing.T) {
	h := newHarness(1000, Config{Simulation: true, SlippageTolerance: 0.02, RebateRate: 0.0005})

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.001)
	require.NoError(t, rep.Err)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)

	trades := h.journal.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.InDelta(t, 100.01, trades[0].Price, 1e-9)
	assert.Equal(t, 0.0, trades[0].PnL)

	assert.Equal(t, domain.SideSell, trades[1].Side)
	assert.InDelta(t, 101.99, trades[1].Price, 1e-9)
	assert.InDelta(t, 0.0005, trades[1].Rebate, 1e-12)
	assert.InDelta(t, 1.98+0.0005, trades[1].PnL, 1e-9)

	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Equal(t, 0, h.gw.Calls("Submit"))
	assert.Equal(t, 0, h.gw.Calls("Buy"))
	assert.Len(t, h.journal.EventsOf(domain.EventSimulatedTrade), 1)
}

func TestSimulationIgnoresTargetSpread(t *testing.T) {
	h := newHarness(1000, Config{Simulation: true})
	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 100.001), 0.05)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)
	assert.Len(t, h.journal.Trades(), 2)
}

func TestSkipWhenSpreadBelowTarget(t *testing.T) {
	h := newHarness(1000, Config{SlippageTolerance: 0.02})
	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 100.1), 0.01)

	assert.Equal(t, OutcomeSkipped, rep.Outcome)
	assert.NoError(t, rep.Err)
	assert.Empty(t, h.journal.Trades())
	assert.Equal(t, 0, h.gw.Calls("Submit"))
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}

func TestAdmissionDenied(t *testing.T) {
	h := newHarness(50, Config{Simulation: true, SlippageTolerance: 0.02})
	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0)

	assert.Equal(t, OutcomeDenied, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, domain.ErrAdmissionDenied))
	assert.Empty(t, h.journal.Trades())
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Len(t, h.journal.EventsOf(domain.EventAdmissionDenied), 1)
}

func TestQuantityOverride(t *testing.T) {
	h := newHarness(1000, Config{
		Simulation:        true,
		SlippageTolerance: 0.02,
		QuantityOverrides: map[domain.Pair]float64{btc: 2},
	})
	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0)
	assert.Equal(t, 2.0, rep.Quantity)
	assert.InDelta(t, 200.02, rep.Cost, 1e-9)
	assert.Equal(t, 2.0, h.journal.Trades()[0].Quantity)
}

func TestInvalidSample(t *testing.T) {
	h := newHarness(1000, Config{Simulation: true})
	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(0, 102), 0)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.Error(t, rep.Err)
}

func TestLimitModeRoundTrip(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02, OrderTimeout: 5 * time.Second})
	h.gw.DefaultStatuses = []domain.OrderStatus{domain.OrderStatusOpen, domain.OrderStatusClosed}
	h.gw.FreeBalance["BTC"] = 1
	h.gw.Fills[domain.SideBuy] = []domain.Fill{{Price: 100.01, Quantity: 1, Commission: 0.01}}
	h.gw.Fills[domain.SideSell] = []domain.Fill{{Price: 101.99, Quantity: 1, Commission: 0.02}}

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	require.NoError(t, rep.Err)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)

	require.Len(t, h.gw.Submitted, 2)
	assert.Equal(t, domain.SideBuy, h.gw.Submitted[0].Side)
	assert.InDelta(t, 100.01, h.gw.Submitted[0].Price, 1e-9)
	assert.Equal(t, domain.SideSell, h.gw.Submitted[1].Side)
	assert.InDelta(t, 101.99, h.gw.Submitted[1].Price, 1e-9)
	assert.Empty(t, h.gw.Cancels)

	trades := h.journal.Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 0.03, trades[1].Rebate, 1e-12)
	assert.InDelta(t, 1.98+0.03, trades[1].PnL, 1e-9)

	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Equal(t, 0, h.store.Len())
}

func TestLimitModeBuyTimeoutReleasesCapital(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02, OrderTimeout: 3 * time.Second})

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, domain.ErrUnconfirmed))

	assert.Len(t, h.gw.Submitted, 1, "no sell after a failed buy")
	assert.Equal(t, []string{"ord-1"}, h.gw.Cancels)
	assert.Empty(t, h.journal.Trades())
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Equal(t, 0, h.store.Len())
	assert.Len(t, h.journal.EventsOf(domain.EventLegFailed), 1)
}

func TestLimitModeSellConstraintViolation(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02})
	h.gw.DefaultStatuses = []domain.OrderStatus{domain.OrderStatusClosed}
	h.gw.FreeBalance["BTC"] = 0

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, domain.ErrConstraintViolation))

	assert.Len(t, h.gw.Submitted, 1)
	assert.Len(t, h.journal.Trades(), 1)
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Len(t, h.journal.EventsOf(domain.EventConstraintRejected), 1)
}

func TestLimitModeSubmitErrorReleasesCapital(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02})
	h.gw.FailNext("Submit", 1)

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, exchangetest.ErrInjected))
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}

func TestMarketModeRoundTrip(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeMarket, SlippageTolerance: 0.02, RebateRate: 0.001})
	h.gw.Buy = &domain.BuyExecution{OrderID: "m-1", FilledQty: 1, AvgPrice: 100.02}
	h.gw.Sell = &domain.SellExecution{OrderID: "m-2", AvgPrice: 101.97}
	h.gw.FreeBalance["BTC"] = 1

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	require.NoError(t, rep.Err)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)

	trades := h.journal.Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 100.02, trades[0].Price, 1e-9)
	assert.InDelta(t, 101.97, trades[1].Price, 1e-9)
	assert.InDelta(t, 0.001, trades[1].Rebate, 1e-12)
	assert.InDelta(t, 1.95+0.001, trades[1].PnL, 1e-9)
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Len(t, h.journal.EventsOf(domain.EventTradeCompleted), 1)
}

func TestMarketModeUsesGatewayPnL(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeMarket, SlippageTolerance: 0.02})
	pnl := 1.5
	h.gw.Buy = &domain.BuyExecution{FilledQty: 1, AvgPrice: 100}
	h.gw.Sell = &domain.SellExecution{AvgPrice: 101.5, PnL: &pnl}
	h.gw.FreeBalance["BTC"] = 1

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	require.NoError(t, rep.Err)
	assert.Equal(t, 1.5, rep.PnL)
}

func TestMarketModeBuyNoneStops(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeMarket, SlippageTolerance: 0.02})

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.Equal(t, 0, h.gw.Calls("Sell"))
	assert.Empty(t, h.journal.Trades())
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}

func TestMarketModeBelowMinNotional(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeMarket, SlippageTolerance: 0.02})
	h.gw.Constraints.MinNotional = 500

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.True(t, errors.Is(rep.Err, domain.ErrConstraintViolation))
	assert.Equal(t, 0, h.gw.Calls("Buy"))
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}

func TestPanicInsideCycleReleasesCapital(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeMarket, SlippageTolerance: 0.02})
	h.gw.PanicOn = "Buy"

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	require.Error(t, rep.Err)
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))

	// 下一轮不受影响
	h.gw.PanicOn = ""
	h.gw.Buy = &domain.BuyExecution{FilledQty: 1, AvgPrice: 100}
	h.gw.Sell = &domain.SellExecution{AvgPrice: 101}
	h.gw.FreeBalance["BTC"] = 1
	rep = h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeCompleted, rep.Outcome)
}

func TestTradeWriteFailureReleasesCapital(t *testing.T) {
	h := newHarness(1000, Config{Simulation: true})
	h.journal.FailTrades = true

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}

func TestLimitModeSellTimeoutCancelsSellOrder(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02, OrderTimeout: 3 * time.Second})
	h.gw.SideStatuses[domain.SideBuy] = []domain.OrderStatus{domain.OrderStatusClosed}
	h.gw.SideStatuses[domain.SideSell] = []domain.OrderStatus{domain.OrderStatusOpen}
	h.gw.FreeBalance["BTC"] = 1

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, domain.ErrUnconfirmed))

	require.Len(t, h.gw.Submitted, 2)
	assert.Equal(t, domain.SideSell, h.gw.Submitted[1].Side)
	assert.Equal(t, []string{"ord-2"}, h.gw.Cancels)

	trades := h.journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Len(t, h.journal.EventsOf(domain.EventLegFailed), 1)
}

func TestLimitModeSellSubmitErrorReleasesCapital(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02})
	h.gw.SideStatuses[domain.SideBuy] = []domain.OrderStatus{domain.OrderStatusClosed}
	h.gw.FreeBalance["BTC"] = 1
	h.gw.FailNext("Submit:sell", 1)

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, exchangetest.ErrInjected))

	assert.Len(t, h.gw.Submitted, 1)
	assert.Empty(t, h.gw.Cancels)
	trades := h.journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}

func TestMarketModeSellErrorAfterBuy(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeMarket, SlippageTolerance: 0.02})
	h.gw.Buy = &domain.BuyExecution{OrderID: "m-1", FilledQty: 1, AvgPrice: 100.02}
	h.gw.Sell = &domain.SellExecution{OrderID: "m-2", AvgPrice: 101.97}
	h.gw.FreeBalance["BTC"] = 1
	h.gw.FailNext("Sell", 1)

	rep := h.engine.RunCycle(context.Background(), btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, exchangetest.ErrInjected))

	trades := h.journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
	assert.Len(t, h.journal.EventsOf(domain.EventLegFailed), 1)
}

func TestCanceledContextSkipsDispatch(t *testing.T) {
	h := newHarness(1000, Config{Mode: ModeLimit, SlippageTolerance: 0.02})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := h.engine.RunCycle(ctx, btc, 1, sample(100, 102), 0.01)
	assert.Equal(t, OutcomeFailed, rep.Outcome)
	assert.True(t, errors.Is(rep.Err, context.Canceled))
	assert.Equal(t, 0, h.gw.Calls("Submit"))
	assert.Equal(t, 0, h.gw.Calls("Buy"))
	assert.Empty(t, h.journal.Trades())
	assert.Equal(t, 0.0, h.ledger.Reserved(btc))
}
