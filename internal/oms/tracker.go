// Package oms 订单生命周期：提交限价单、持久化挂单记录、轮询成交、超时撤单。
package oms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/metrics"
	"github.com/ricardogal/defi-scalping-rebate/internal/ports"
)

var log = logrus.WithField("module", "oms")

// Outcome 单腿结果
type Outcome string

const (
	OutcomeFilled   Outcome = "filled"
	OutcomeTimedOut Outcome = "timed_out"
)

// LegResult SubmitAndAwait 的结果。Filled 时 Price/Quantity 为实际成交均价与数量。
type LegResult struct {
	Outcome    Outcome
	OrderID    string
	Pair       domain.Pair
	Side       domain.Side
	Price      float64
	Quantity   float64
	Commission float64 // 成交手续费合计（maker 返佣按此记账）
}

// Filled 是否已确认成交
func (r LegResult) Filled() bool { return r.Outcome == OutcomeFilled }

// Options Tracker 参数
type Options struct {
	PollInterval time.Duration // 默认 1s
	CancelGrace  time.Duration // 关停时尽力撤单的超时，默认 5s
	Clock        Clock
	Events       *events.Recorder
}

// Tracker 订单生命周期跟踪器
type Tracker struct {
	gw     ports.Gateway
	store  ports.OpenOrderStore
	claims *Claims
	opts   Options
}

// NewTracker 创建 Tracker。claims 为 nil 时不与 Reconciler 协调。
func NewTracker(gw ports.Gateway, store ports.OpenOrderStore, claims *Claims, opts Options) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Tracker{gw: gw, store: store, claims: claims, opts: opts}
}

// SubmitAndAwait 提交限价单并等待成交。
//
//   - 提交失败：返回错误，不写任何记录
//   - timeout 内确认 closed：删除挂单记录，返回 Filled
//   - 超时：撤单一次（失败只记日志），删除记录，返回 TimedOut
//   - ctx 取消：尽力撤单；撤单成功才删除记录，否则留给 Reconciler；返回 ctx.Err()
//
// 轮询期间的网关错误只记日志，继续轮询直到超时。
func (t *Tracker) SubmitAndAwait(ctx context.Context, pair domain.Pair, side domain.Side, price, qty float64, timeout time.Duration) (LegResult, error) {
	res := LegResult{Outcome: OutcomeTimedOut, Pair: pair, Side: side, Price: price, Quantity: qty}

	orderID, err := t.gw.SubmitLimitOrder(ctx, pair, side, price, qty)
	if err != nil {
		metrics.IncOrder(string(side), "error")
		return res, fmt.Errorf("提交%s订单失败: %w", side, err)
	}
	res.OrderID = orderID

	t.claims.TryClaim(orderID)
	defer t.claims.Release(orderID)

	record := domain.OpenOrder{
		OrderID:   orderID,
		Pair:      pair,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		CreatedAt: t.opts.Clock.Now(),
	}
	if err := t.store.Put(ctx, record); err != nil {
		// 订单已在交易所上，继续跟踪
		log.Errorf("❌ [Tracker] 保存挂单记录失败: orderID=%s pair=%s err=%v", orderID, pair, err)
	}
	log.Infof("📤 [Tracker] 订单已提交: pair=%s side=%s orderID=%s price=%.8f qty=%.8f", pair, side, orderID, price, qty)
	t.opts.Events.Emit(ctx, domain.EventOrderSubmitted, pair,
		fmt.Sprintf("%s %s @ %.8f x %.8f", side, orderID, price, qty),
		map[string]any{"order_id": orderID, "side": string(side), "price": price, "quantity": qty})

	state, filled, err := t.await(ctx, orderID, pair, timeout)
	if err != nil {
		t.abandon(orderID, pair)
		return res, err
	}

	if filled {
		t.fillDetails(ctx, &res, state)
		t.remove(ctx, orderID)
		metrics.IncOrder(string(side), "filled")
		log.Infof("✅ [Tracker] 订单已成交: pair=%s side=%s orderID=%s price=%.8f qty=%.8f", pair, side, orderID, res.Price, res.Quantity)
		t.opts.Events.Emit(ctx, domain.EventOrderFilled, pair,
			fmt.Sprintf("%s %s 成交 @ %.8f", side, orderID, res.Price),
			map[string]any{"order_id": orderID, "price": res.Price, "quantity": res.Quantity, "commission": res.Commission})
		res.Outcome = OutcomeFilled
		return res, nil
	}

	if err := t.gw.CancelOrder(ctx, orderID, pair); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		log.Errorf("❌ [Tracker] 超时撤单失败: orderID=%s pair=%s err=%v", orderID, pair, err)
	}
	log.Warnf("⏰ [Tracker] 订单超时已撤单: pair=%s side=%s orderID=%s timeout=%s", pair, side, orderID, timeout)
	t.remove(ctx, orderID)
	metrics.IncOrder(string(side), "timeout")
	t.opts.Events.Emit(ctx, domain.EventOrderTimeout, pair,
		fmt.Sprintf("%s %s 超时撤单", side, orderID),
		map[string]any{"order_id": orderID, "timeout_s": timeout.Seconds()})
	return res, nil
}

// await 轮询订单状态直到 closed、canceled 或超时。
// filled=false 且 err=nil 表示未能确认成交。
func (t *Tracker) await(ctx context.Context, orderID string, pair domain.Pair, timeout time.Duration) (domain.OrderState, bool, error) {
	deadline := t.opts.Clock.Now().Add(timeout)
	for {
		state, err := t.gw.FetchOrderStatus(ctx, orderID, pair)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return state, false, ctx.Err()
			}
			log.Warnf("⚠️ [Tracker] 查询订单状态失败: orderID=%s err=%v", orderID, err)
		case state.Status == domain.OrderStatusClosed:
			return state, true, nil
		case state.Status == domain.OrderStatusCanceled:
			log.Warnf("⚠️ [Tracker] 订单在等待期间被取消: orderID=%s", orderID)
			return state, false, nil
		}

		if !t.opts.Clock.Now().Before(deadline) {
			return state, false, nil
		}
		if err := ctx.Err(); err != nil {
			return state, false, err
		}
		select {
		case <-ctx.Done():
			return state, false, ctx.Err()
		case <-t.opts.Clock.After(t.opts.PollInterval):
		}
	}
}

// fillDetails 用成交明细填充均价/数量/手续费；拿不到明细时退回订单状态或下单参数
func (t *Tracker) fillDetails(ctx context.Context, res *LegResult, state domain.OrderState) {
	if state.FilledQty > 0 {
		res.Quantity = state.FilledQty
	}
	if state.AvgPrice > 0 {
		res.Price = state.AvgPrice
	}

	fills, err := t.gw.FetchFills(ctx, res.OrderID, res.Pair)
	if err != nil {
		log.Warnf("⚠️ [Tracker] 获取成交明细失败，返佣按 0 计: orderID=%s err=%v", res.OrderID, err)
		return
	}
	qty, avg, commission := domain.SummarizeFills(fills)
	if qty > 0 {
		res.Quantity = qty
		res.Price = avg
	}
	res.Commission = commission
}

// abandon 关停路径：在独立的短超时 context 上尽力撤单
func (t *Tracker) abandon(orderID string, pair domain.Pair) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.CancelGrace)
	defer cancel()

	err := t.gw.CancelOrder(ctx, orderID, pair)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		log.Warnf("⚠️ [Tracker] 关停时撤单失败，记录留给清理任务: orderID=%s err=%v", orderID, err)
		return
	}
	t.remove(ctx, orderID)
	log.Infof("🛑 [Tracker] 关停时已撤单: orderID=%s", orderID)
}

func (t *Tracker) remove(ctx context.Context, orderID string) {
	if err := t.store.Remove(ctx, orderID); err != nil {
		log.Errorf("❌ [Tracker] 删除挂单记录失败: orderID=%s err=%v", orderID, err)
	}
}
