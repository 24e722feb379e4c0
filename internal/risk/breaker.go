// Package risk 交易循环的熔断器：连续失败次数与当日亏损两道闸门。
package risk

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

// ErrHalted 熔断器已打开，禁止开新一轮
var ErrHalted = errors.New("circuit breaker open")

// micros 每单位计价币种的内部计数精度（1e-6）
const micros = 1_000_000

// Config 熔断配置。阈值 <= 0 表示关闭对应限制。
type Config struct {
	// MaxConsecutiveErrors 连续失败的交易循环上限
	MaxConsecutiveErrors int64
	// DailyLossLimit 当日最大亏损（计价币种，例如 USDT）
	DailyLossLimit float64
}

// Breaker 热路径全部是原子操作，主循环和控制面可以并发调用。
type Breaker struct {
	halted atomic.Bool

	consecutiveErrors atomic.Int64
	dailyPnL          atomic.Int64 // 1e-6 计价币种
	dayKey            atomic.Int64 // YYYYMMDD

	maxConsecutiveErrors atomic.Int64
	dailyLossLimit       atomic.Int64 // 1e-6 计价币种

	now func() time.Time
}

func New(cfg Config) *Breaker {
	b := &Breaker{now: time.Now}
	b.SetConfig(cfg)
	return b
}

// WithClock 替换时钟（测试跨日用）
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

func (b *Breaker) SetConfig(cfg Config) {
	if b == nil {
		return
	}
	b.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	b.dailyLossLimit.Store(toMicros(cfg.DailyLossLimit))
}

// Halt 手动熔断
func (b *Breaker) Halt() {
	if b == nil {
		return
	}
	b.halted.Store(true)
}

// Resume 手动恢复，同时清空连续失败计数
func (b *Breaker) Resume() {
	if b == nil {
		return
	}
	b.halted.Store(false)
	b.consecutiveErrors.Store(0)
}

// Halted 当前是否处于熔断状态（不触发阈值检查）
func (b *Breaker) Halted() bool {
	return b != nil && b.halted.Load()
}

// Allow 是否允许开新一轮。阈值触发后保持熔断，直到 Resume。
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	if b.halted.Load() {
		return ErrHalted
	}

	maxErr := b.maxConsecutiveErrors.Load()
	if maxErr > 0 && b.consecutiveErrors.Load() >= maxErr {
		b.halted.Store(true)
		return ErrHalted
	}

	if limit := b.dailyLossLimit.Load(); limit > 0 {
		b.rollDay()
		if b.dailyPnL.Load() <= -limit {
			b.halted.Store(true)
			return ErrHalted
		}
	}
	return nil
}

// OnSuccess 一轮正常结束，清空连续失败计数
func (b *Breaker) OnSuccess() {
	if b == nil {
		return
	}
	b.consecutiveErrors.Store(0)
}

// OnError 一轮失败，累计连续失败计数
func (b *Breaker) OnError() {
	if b == nil {
		return
	}
	b.consecutiveErrors.Add(1)
}

// AddPnL 累加当日盈亏，负数为亏损
func (b *Breaker) AddPnL(delta float64) {
	if b == nil {
		return
	}
	b.rollDay()
	b.dailyPnL.Add(toMicros(delta))
}

// Snapshot 控制面展示用
type Snapshot struct {
	Halted            bool    `json:"halted"`
	ConsecutiveErrors int64   `json:"consecutive_errors"`
	DailyPnL          float64 `json:"daily_pnl"`
}

func (b *Breaker) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{}
	}
	b.rollDay()
	return Snapshot{
		Halted:            b.halted.Load(),
		ConsecutiveErrors: b.consecutiveErrors.Load(),
		DailyPnL:          float64(b.dailyPnL.Load()) / micros,
	}
}

func (b *Breaker) rollDay() {
	// 本地日期即可
	now := b.now()
	key := int64(now.Year()*10000 + int(now.Month())*100 + now.Day())
	prev := b.dayKey.Load()
	if prev == key {
		return
	}
	// 切换成功的一方负责清零
	if b.dayKey.CompareAndSwap(prev, key) {
		b.dailyPnL.Store(0)
	}
}

func toMicros(v float64) int64 {
	return int64(math.Round(v * micros))
}
