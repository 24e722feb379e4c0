package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/risk"
)

// Scanner 扫描交易对，返回值得跑一轮的行情样本
type Scanner interface {
	Scan(ctx context.Context, pairs []domain.Pair, targetSpread float64) []domain.MarketSample
}

// PairSource 本轮要扫描的交易对
type PairSource interface {
	Pairs(ctx context.Context) []domain.Pair
}

// StaticPairs 固定交易对列表
type StaticPairs []domain.Pair

func (s StaticPairs) Pairs(context.Context) []domain.Pair { return s }

// RunnerConfig 主循环参数
type RunnerConfig struct {
	Interval        time.Duration // 两次扫描之间的等待
	PairPause       time.Duration // 同一次扫描内两个交易对之间的停顿
	TargetSpread    float64
	DefaultQuantity float64
}

// Runner 主循环：扫描 -> 逐个机会跑 RunCycle -> 等待下一轮
type Runner struct {
	engine  *Engine
	scanner Scanner
	pairs   PairSource
	events  *events.Recorder
	breaker *risk.Breaker
	cfg     RunnerConfig
}

func NewRunner(engine *Engine, scanner Scanner, pairs PairSource, rec *events.Recorder, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Runner{engine: engine, scanner: scanner, pairs: pairs, events: rec, cfg: cfg}
}

// WithBreaker 挂上熔断器；nil 表示不限制
func (r *Runner) WithBreaker(b *risk.Breaker) *Runner {
	r.breaker = b
	return r
}

// RunOnce 扫描一次并处理所有机会
func (r *Runner) RunOnce(ctx context.Context) []CycleReport {
	if !r.allow(ctx) {
		return nil
	}
	pairs := r.pairs.Pairs(ctx)
	log.Infof("🔍 [Runner] 扫描 %d 个交易对，目标价差 %.5f%%", len(pairs), r.cfg.TargetSpread*100)

	samples := r.scanner.Scan(ctx, pairs, r.cfg.TargetSpread)
	if len(samples) == 0 {
		log.Infof("⏳ [Runner] 本轮没有机会")
		return nil
	}
	log.Infof("💡 [Runner] 发现 %d 个机会", len(samples))

	reports := make([]CycleReport, 0, len(samples))
	for i, s := range samples {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && r.cfg.PairPause > 0 {
			select {
			case <-ctx.Done():
				return reports
			case <-time.After(r.cfg.PairPause):
			}
		}
		if !r.allow(ctx) {
			break
		}
		rep := r.cycle(ctx, s)
		r.observe(rep)
		reports = append(reports, rep)
	}
	return reports
}

// allow 熔断检查；第一次触发时记一条事件
func (r *Runner) allow(ctx context.Context) bool {
	wasHalted := r.breaker.Halted()
	err := r.breaker.Allow()
	if err == nil {
		return true
	}
	if !wasHalted {
		snap := r.breaker.Snapshot()
		log.Warnf("🛑 [Runner] 熔断: consecutive_errors=%d daily_pnl=%.6f", snap.ConsecutiveErrors, snap.DailyPnL)
		r.events.Emit(ctx, domain.EventBreakerTripped, "", "熔断，暂停交易",
			map[string]any{"consecutive_errors": snap.ConsecutiveErrors, "daily_pnl": snap.DailyPnL})
	} else {
		log.Debugf("[Runner] 熔断中，跳过本轮")
	}
	return false
}

func (r *Runner) observe(rep CycleReport) {
	switch rep.Outcome {
	case OutcomeFailed:
		r.breaker.OnError()
	case OutcomeCompleted:
		r.breaker.OnSuccess()
		r.breaker.AddPnL(rep.PnL)
	}
}

// cycle 单个交易对的一轮；panic 只影响这一轮
func (r *Runner) cycle(ctx context.Context, s domain.MarketSample) (rep CycleReport) {
	defer func() {
		if v := recover(); v != nil {
			rep = CycleReport{Pair: s.Pair, Outcome: OutcomeFailed, Err: fmt.Errorf("panic: %v", v)}
			log.Errorf("❌ [Runner] 交易循环 panic: pair=%s err=%v", s.Pair, v)
		}
	}()

	log.Infof("⚡ [Runner] 执行: pair=%s spread=%.3f%%", s.Pair, s.Spread()*100)
	r.events.Emit(ctx, domain.EventCycleStarted, s.Pair, fmt.Sprintf("开始 %s", s.Pair),
		map[string]any{"bid": s.Bid, "ask": s.Ask, "spread": s.Spread()})
	return r.engine.RunCycle(ctx, s.Pair, r.cfg.DefaultQuantity, s, r.cfg.TargetSpread)
}

// Run 循环直到 ctx 结束
func (r *Runner) Run(ctx context.Context) error {
	log.Infof("🚀 [Runner] 启动: interval=%s simulation=%v mode=%s", r.cfg.Interval, r.engine.cfg.Simulation, r.engine.cfg.Mode)
	for {
		start := time.Now()
		r.RunOnce(ctx)
		log.Infof("⏱️ [Runner] 本轮耗时 %.2fs，等待 %s", time.Since(start).Seconds(), r.cfg.Interval)

		select {
		case <-ctx.Done():
			log.Infof("⛔ [Runner] 已停止")
			return nil
		case <-time.After(r.cfg.Interval):
		}
	}
}
