// Package reconcile 清理超龄挂单：仍挂着的撤掉，已成交的只删本地记录。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/metrics"
	"github.com/ricardogal/defi-scalping-rebate/internal/oms"
	"github.com/ricardogal/defi-scalping-rebate/internal/ports"
)

var log = logrus.WithField("module", "reconcile")

// DefaultMaxAge 挂单记录超过该时长才会被处理
const DefaultMaxAge = 60 * time.Second

// DefaultMaxFailures 同一订单连续出错达到该次数后放弃，只删本地记录
const DefaultMaxFailures = 5

// Options Reconciler 参数
type Options struct {
	MaxAge      time.Duration
	MaxFailures int
	Clock       oms.Clock
	Events      *events.Recorder
}

// Report 一次清理的统计
type Report struct {
	Examined      int `json:"examined"`
	Canceled      int `json:"canceled"`
	AlreadyClosed int `json:"already_closed"`
	Skipped       int `json:"skipped"` // 正被 Tracker 跟踪
	Errors        int `json:"errors"`
	Abandoned     int `json:"abandoned"`
}

func (r Report) String() string {
	return fmt.Sprintf("examined=%d canceled=%d closed=%d skipped=%d errors=%d abandoned=%d",
		r.Examined, r.Canceled, r.AlreadyClosed, r.Skipped, r.Errors, r.Abandoned)
}

// Reconciler 超龄挂单清理器
type Reconciler struct {
	gw     ports.Gateway
	store  ports.OpenOrderStore
	claims *oms.Claims
	opts   Options

	mu       sync.Mutex
	failures map[string]int // orderID -> 连续失败次数
}

func New(gw ports.Gateway, store ports.OpenOrderStore, claims *oms.Claims, opts Options) *Reconciler {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Clock == nil {
		opts.Clock = oms.RealClock()
	}
	return &Reconciler{gw: gw, store: store, claims: claims, opts: opts, failures: make(map[string]int)}
}

// Sweep 处理一遍所有超龄记录。单个订单出错不影响其余订单；
// 状态未知（网关临时错误）的记录保留到下一次，连续 MaxFailures 次出错后放弃。
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	orders, err := r.store.List(ctx)
	if err != nil {
		return rep, fmt.Errorf("读取挂单记录失败: %w", err)
	}

	now := r.opts.Clock.Now()
	for _, o := range orders {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if o.Age(now) <= r.opts.MaxAge {
			continue
		}
		rep.Examined++

		if !r.claims.TryClaim(o.OrderID) {
			rep.Skipped++
			metrics.IncReconcile("skipped")
			log.Debugf("[Reconcile] 订单正在被跟踪，跳过: orderID=%s", o.OrderID)
			continue
		}
		r.handle(ctx, o, &rep)
		r.claims.Release(o.OrderID)
	}

	if rep.Examined > 0 {
		log.Infof("🧹 [Reconcile] 清理完成: %s", rep)
	}
	return rep, nil
}

func (r *Reconciler) handle(ctx context.Context, o domain.OpenOrder, rep *Report) {
	state, err := r.gw.FetchOrderStatus(ctx, o.OrderID, o.Pair)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		log.Infof("✅ [Reconcile] 交易所已无此订单，删除记录: orderID=%s pair=%s", o.OrderID, o.Pair)
		rep.AlreadyClosed++
		metrics.IncReconcile("already_closed")
		r.forget(o.OrderID)
		r.remove(ctx, o, rep)
		return
	case err != nil:
		log.Errorf("❌ [Reconcile] 查询订单状态失败: orderID=%s pair=%s err=%v", o.OrderID, o.Pair, err)
		r.failed(ctx, o, err, rep)
		return
	}

	switch state.Status {
	case domain.OrderStatusOpen:
		if err := r.gw.CancelOrder(ctx, o.OrderID, o.Pair); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			log.Errorf("❌ [Reconcile] 撤单失败: orderID=%s pair=%s err=%v", o.OrderID, o.Pair, err)
			r.failed(ctx, o, err, rep)
			return
		}
		rep.Canceled++
		metrics.IncReconcile("canceled")
		log.Warnf("🛑 [Reconcile] 超龄挂单已撤销: orderID=%s pair=%s side=%s age=%s", o.OrderID, o.Pair, o.Side, o.Age(r.opts.Clock.Now()).Truncate(time.Second))
		r.opts.Events.Emit(ctx, domain.EventReconcileCanceled, o.Pair,
			fmt.Sprintf("订单 %s 超时撤销", o.OrderID),
			map[string]any{"order_id": o.OrderID, "side": string(o.Side), "price": o.Price, "quantity": o.Quantity})
	case domain.OrderStatusCanceled:
		rep.AlreadyClosed++
		metrics.IncReconcile("already_closed")
		log.Infof("🚫 [Reconcile] 订单已在交易所撤销: orderID=%s pair=%s", o.OrderID, o.Pair)
		r.opts.Events.Emit(ctx, domain.EventReconcileExecuted, o.Pair,
			fmt.Sprintf("订单 %s 已撤销", o.OrderID),
			map[string]any{"order_id": o.OrderID, "status": string(state.Status)})
	default:
		rep.AlreadyClosed++
		metrics.IncReconcile("already_closed")
		log.Infof("✅ [Reconcile] 订单已成交: orderID=%s pair=%s status=%s", o.OrderID, o.Pair, state.Status)
		r.opts.Events.Emit(ctx, domain.EventReconcileExecuted, o.Pair,
			fmt.Sprintf("订单 %s 已成交", o.OrderID),
			map[string]any{"order_id": o.OrderID, "status": string(state.Status)})
	}
	r.forget(o.OrderID)
	r.remove(ctx, o, rep)
}

// failed 记一次失败；未到上限时保留记录等下次重试
func (r *Reconciler) failed(ctx context.Context, o domain.OpenOrder, cause error, rep *Report) {
	rep.Errors++
	metrics.IncReconcile("error")

	r.mu.Lock()
	r.failures[o.OrderID]++
	n := r.failures[o.OrderID]
	r.mu.Unlock()
	if n < r.opts.MaxFailures {
		return
	}

	rep.Abandoned++
	metrics.IncReconcile("abandoned")
	log.Warnf("⚠️ [Reconcile] 连续 %d 次失败，放弃跟踪并删除记录: orderID=%s pair=%s err=%v", n, o.OrderID, o.Pair, cause)
	r.opts.Events.Emit(ctx, domain.EventReconcileAbandoned, o.Pair,
		fmt.Sprintf("订单 %s 连续 %d 次处理失败，已放弃，请人工核对", o.OrderID, n),
		map[string]any{"order_id": o.OrderID, "failures": n, "error": cause.Error()})
	r.forget(o.OrderID)
	r.remove(ctx, o, rep)
}

func (r *Reconciler) forget(orderID string) {
	r.mu.Lock()
	delete(r.failures, orderID)
	r.mu.Unlock()
}

func (r *Reconciler) remove(ctx context.Context, o domain.OpenOrder, rep *Report) {
	if err := r.store.Remove(ctx, o.OrderID); err != nil {
		rep.Errors++
		log.Errorf("❌ [Reconcile] 删除挂单记录失败: orderID=%s err=%v", o.OrderID, err)
	}
}

// Run 每隔 interval 清理一次，直到 ctx 结束
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log.Infof("🧹 [Reconcile] 启动: interval=%s maxAge=%s", interval, r.opts.MaxAge)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("❌ [Reconcile] 清理失败: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Infof("🧹 [Reconcile] 已停止")
			return nil
		case <-ticker.C:
		}
	}
}
