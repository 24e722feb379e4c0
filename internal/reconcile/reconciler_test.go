package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/exchange/exchangetest"
	"github.com/ricardogal/defi-scalping-rebate/internal/oms"
	"github.com/ricardogal/defi-scalping-rebate/pkg/persistence"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	gw      *exchangetest.Gateway
	store   *persistence.MemoryStore
	claims  *oms.Claims
	journal *exchangetest.Journal
	rec     *Reconciler
}

func newFixture(now time.Time) *fixture {
	f := &fixture{
		gw:      exchangetest.NewGateway(),
		store:   persistence.NewMemoryStore(),
		claims:  oms.NewClaims(0),
		journal: &exchangetest.Journal{},
	}
	f.rec = New(f.gw, f.store, f.claims, Options{
		Clock:  exchangetest.NewManualClock(now),
		Events: events.NewRecorder(f.journal),
	})
	return f
}

func (f *fixture) add(t *testing.T, id string, age time.Duration, now time.Time, statuses ...domain.OrderStatus) {
	t.Helper()
	o := domain.OpenOrder{OrderID: id, Pair: "BTC/USDT", Side: domain.SideBuy, Price: 100, Quantity: 1, CreatedAt: now.Add(-age)}
	f.gw.AddOrder(o, statuses...)
	require.NoError(t, f.store.Put(context.Background(), o))
}

func TestSweepCancelsOpenAndDropsClosed(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "open-old", 90*time.Second, t0, domain.OrderStatusOpen)
	f.add(t, "closed-old", 120*time.Second, t0, domain.OrderStatusClosed)
	f.add(t, "fresh", 10*time.Second, t0, domain.OrderStatusOpen)

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Examined)
	assert.Equal(t, 1, rep.Canceled)
	assert.Equal(t, 1, rep.AlreadyClosed)
	assert.Equal(t, []string{"open-old"}, f.gw.Cancels)

	left, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].OrderID)

	assert.Len(t, f.journal.EventsOf(domain.EventReconcileCanceled), 1)
	assert.Len(t, f.journal.EventsOf(domain.EventReconcileExecuted), 1)
}

func TestSweepExactlyMaxAgeIsKept(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "edge", DefaultMaxAge, t0, domain.OrderStatusOpen)

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Examined)
	assert.Equal(t, 1, f.store.Len())
}

func TestSweepErrorDoesNotStopOthers(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "a-broken", 200*time.Second, t0, domain.OrderStatusOpen)
	f.add(t, "b-open", 100*time.Second, t0, domain.OrderStatusOpen)
	f.gw.SetStatusError("a-broken", exchangetest.ErrInjected)

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, rep.Canceled)
	assert.Equal(t, []string{"b-open"}, f.gw.Cancels)

	// 状态未知的记录保留
	left, err := f.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "a-broken", left[0].OrderID)
}

func TestSweepRemovesOrderUnknownToExchange(t *testing.T) {
	f := newFixture(t0)
	o := domain.OpenOrder{OrderID: "ghost", Pair: "BTC/USDT", Side: domain.SideSell, CreatedAt: t0.Add(-5 * time.Minute)}
	require.NoError(t, f.store.Put(context.Background(), o))

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.AlreadyClosed)
	assert.Empty(t, f.gw.Cancels)
	assert.Equal(t, 0, f.store.Len())
}

func TestSweepCancelFailureKeepsRecord(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "stuck", 100*time.Second, t0, domain.OrderStatusOpen)
	f.gw.FailNext("Cancel", 1)

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, f.store.Len())

	// 下一次清理成功
	rep, err = f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Canceled)
	assert.Equal(t, 0, f.store.Len())
}

func TestSweepSkipsClaimedOrders(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "tracked", 100*time.Second, t0, domain.OrderStatusOpen)
	require.True(t, f.claims.TryClaim("tracked"))

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, f.gw.Cancels)
	assert.Equal(t, 0, f.gw.Calls("Status"))
	assert.Equal(t, 1, f.store.Len())
	assert.True(t, f.claims.Held("tracked"))
}

func TestSweepGivesUpAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t0)
	f.rec = New(f.gw, f.store, f.claims, Options{
		MaxFailures: 3,
		Clock:       exchangetest.NewManualClock(t0),
		Events:      events.NewRecorder(f.journal),
	})
	f.add(t, "broken", 100*time.Second, t0, domain.OrderStatusOpen)
	f.gw.SetStatusError("broken", exchangetest.ErrInjected)

	for i := 0; i < 2; i++ {
		rep, err := f.rec.Sweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Errors)
		assert.Equal(t, 0, rep.Abandoned)
		assert.Equal(t, 1, f.store.Len())
	}

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Abandoned)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.gw.Cancels)

	abandoned := f.journal.EventsOf(domain.EventReconcileAbandoned)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "broken", abandoned[0].Detail["order_id"])
	assert.Equal(t, 3, abandoned[0].Detail["failures"])
}

func TestSweepForgetsFailureCountOnSuccess(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "flaky", 100*time.Second, t0, domain.OrderStatusOpen)
	f.gw.FailNext("Cancel", 1)

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, f.rec.failures["flaky"])

	rep, err = f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Canceled)
	assert.Equal(t, 0, rep.Abandoned)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.rec.failures)
}

func TestSweepLabelsCanceledAndFilledOrders(t *testing.T) {
	f := newFixture(t0)
	f.add(t, "filled", 100*time.Second, t0, domain.OrderStatusClosed)
	f.add(t, "gone", 100*time.Second, t0, domain.OrderStatusCanceled)

	rep, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.AlreadyClosed)
	assert.Empty(t, f.gw.Cancels)

	msgs := map[string]string{}
	for _, ev := range f.journal.EventsOf(domain.EventReconcileExecuted) {
		msgs[ev.Detail["order_id"].(string)] = ev.Message
	}
	assert.Equal(t, "订单 filled 已成交", msgs["filled"])
	assert.Equal(t, "订单 gone 已撤销", msgs["gone"])
}
