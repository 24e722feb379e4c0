package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerConsecutiveErrors(t *testing.T) {
	b := New(Config{MaxConsecutiveErrors: 3})

	b.OnError()
	b.OnError()
	require.NoError(t, b.Allow())

	b.OnSuccess()
	b.OnError()
	b.OnError()
	require.NoError(t, b.Allow(), "成功一次后计数清零")

	b.OnError()
	assert.ErrorIs(t, b.Allow(), ErrHalted)
	assert.True(t, b.Halted())

	// 熔断后保持，直到 Resume
	b.OnSuccess()
	assert.ErrorIs(t, b.Allow(), ErrHalted)

	b.Resume()
	assert.NoError(t, b.Allow())
	assert.Equal(t, int64(0), b.Snapshot().ConsecutiveErrors)
}

func TestBreakerDailyLoss(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.Local)
	b := New(Config{DailyLossLimit: 5}).WithClock(func() time.Time { return now })

	b.AddPnL(-2.5)
	b.AddPnL(0.4)
	require.NoError(t, b.Allow())
	assert.InDelta(t, -2.1, b.Snapshot().DailyPnL, 1e-9)

	b.AddPnL(-2.9)
	assert.ErrorIs(t, b.Allow(), ErrHalted)

	// 跨日清零，但熔断状态需要手动恢复
	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, b.Allow(), ErrHalted)
	b.Resume()
	assert.NoError(t, b.Allow())
	assert.Zero(t, b.Snapshot().DailyPnL)
}

func TestBreakerDisabledAndNil(t *testing.T) {
	b := New(Config{})
	for i := 0; i < 100; i++ {
		b.OnError()
	}
	b.AddPnL(-1e6)
	assert.NoError(t, b.Allow())

	var nilB *Breaker
	assert.NoError(t, nilB.Allow())
	nilB.OnError()
	nilB.Halt()
	assert.False(t, nilB.Halted())
}

func TestBreakerManualHalt(t *testing.T) {
	b := New(Config{})
	b.Halt()
	assert.ErrorIs(t, b.Allow(), ErrHalted)
	b.Resume()
	assert.NoError(t, b.Allow())
}
