// Package execution 交易循环：价差判断、资金准入、买卖两腿执行与盈亏/返佣记账。
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/capital"
	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/metrics"
	"github.com/ricardogal/defi-scalping-rebate/internal/oms"
	"github.com/ricardogal/defi-scalping-rebate/internal/ports"
	"github.com/ricardogal/defi-scalping-rebate/pkg/id"
	"github.com/ricardogal/defi-scalping-rebate/pkg/marketmath"
)

var log = logrus.WithField("module", "execution")

// Outcome 一轮交易的结果
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDenied    Outcome = "denied"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// CycleReport RunCycle 的结果。RunCycle 不返回 error，失败原因放在 Err。
type CycleReport struct {
	Pair      domain.Pair
	Outcome   Outcome
	Spread    float64
	BuyPrice  float64
	SellPrice float64
	Quantity  float64
	Cost      float64
	PnL       float64
	Rebate    float64
	Err       error
}

// Deps Engine 依赖。Tracker 仅限价模式需要。
type Deps struct {
	Gateway ports.Gateway
	Ledger  *capital.Ledger
	Tracker *oms.Tracker
	Trades  ports.TradeRecorder
	Events  *events.Recorder
	Now     func() time.Time
}

// Engine 交易循环
type Engine struct {
	deps Deps
	cfg  Config
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{deps: deps, cfg: cfg.withDefaults()}
}

// Config 当前配置
func (e *Engine) Config() Config { return e.cfg }

// RunCycle 对一个交易对跑一轮：
//
//	价差不足（非模拟模式）-> skipped
//	额度不足              -> denied
//	两腿都完成            -> completed
//	任一步出错            -> failed
//
// 占用的资金在所有退出路径上释放（包括 panic）。
func (e *Engine) RunCycle(ctx context.Context, pair domain.Pair, quantity float64, sample domain.MarketSample, targetSpread float64) (rep CycleReport) {
	rep = CycleReport{Pair: pair, Spread: sample.Spread()}
	defer func() { metrics.IncCycle(string(rep.Outcome)) }()

	if !sample.Valid() {
		rep.Outcome = OutcomeFailed
		rep.Err = fmt.Errorf("无效行情: bid=%.8f ask=%.8f", sample.Bid, sample.Ask)
		return rep
	}
	if rep.Spread < targetSpread && !e.cfg.Simulation {
		rep.Outcome = OutcomeSkipped
		log.Debugf("⏭️ [Cycle] 价差不足: pair=%s spread=%.5f%% target=%.5f%%", pair, rep.Spread*100, targetSpread*100)
		return rep
	}

	rep.Quantity = e.cfg.QuantityFor(pair, quantity)
	rep.BuyPrice, rep.SellPrice = marketmath.QuotePrices(sample.Bid, sample.Ask, e.cfg.SlippageTolerance)
	rep.Cost = rep.BuyPrice * rep.Quantity

	reservation, ok := e.deps.Ledger.TryReserve(pair, rep.Cost)
	if !ok {
		rep.Outcome = OutcomeDenied
		rep.Err = fmt.Errorf("%s 需要 %.4f: %w", pair, rep.Cost, domain.ErrAdmissionDenied)
		e.deps.Events.Emit(ctx, domain.EventAdmissionDenied, pair,
			fmt.Sprintf("资金不足，需要 %.4f", rep.Cost),
			map[string]any{"cost": rep.Cost})
		return rep
	}
	defer reservation.Release()
	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = OutcomeFailed
			rep.Err = fmt.Errorf("panic: %v", r)
			log.Errorf("❌ [Cycle] 交易循环 panic: pair=%s err=%v", pair, r)
			e.deps.Events.Emit(context.WithoutCancel(ctx), domain.EventCycleError, pair, rep.Err.Error(), nil)
		}
	}()

	// 预留期间可能已收到停止信号，此时不再下单
	if err := ctx.Err(); err != nil {
		rep.Outcome = OutcomeFailed
		rep.Err = err
		log.Warnf("⏹️ [Cycle] 已停止，放弃本轮: pair=%s", pair)
		return rep
	}

	log.Infof("🚀 [Cycle] 开始: pair=%s spread=%.5f%% buy=%.8f sell=%.8f qty=%.8f cost=%.4f",
		pair, rep.Spread*100, rep.BuyPrice, rep.SellPrice, rep.Quantity, rep.Cost)

	var err error
	switch {
	case e.cfg.Simulation:
		err = e.simulate(ctx, &rep)
	case e.cfg.Mode == ModeMarket:
		err = e.runMarket(ctx, &rep)
	default:
		err = e.runLimit(ctx, &rep)
	}

	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Err = err
		kind := domain.EventCycleError
		if errors.Is(err, domain.ErrConstraintViolation) {
			kind = domain.EventConstraintRejected
		}
		log.Errorf("❌ [Cycle] 失败: pair=%s err=%v", pair, err)
		e.deps.Events.Emit(context.WithoutCancel(ctx), kind, pair, err.Error(), nil)
		return rep
	}

	rep.Outcome = OutcomeCompleted
	metrics.AddPnL(rep.PnL)
	log.Infof("💰 [Cycle] 完成: pair=%s pnl=%.8f rebate=%.8f", pair, rep.PnL, rep.Rebate)
	return rep
}

// simulate 不调用网关，直接按报价生成一买一卖
func (e *Engine) simulate(ctx context.Context, rep *CycleReport) error {
	rep.Rebate = rep.Quantity * e.cfg.RebateRate
	rep.PnL = marketmath.GrossPnL(rep.BuyPrice, rep.SellPrice, rep.Quantity) + rep.Rebate

	if err := e.record(ctx, rep.Pair, domain.SideBuy, rep.BuyPrice, rep.Quantity, 0, 0); err != nil {
		return err
	}
	if err := e.record(ctx, rep.Pair, domain.SideSell, rep.SellPrice, rep.Quantity, rep.Rebate, rep.PnL); err != nil {
		return err
	}
	e.deps.Events.Emit(ctx, domain.EventSimulatedTrade, rep.Pair,
		fmt.Sprintf("模拟成交 buy=%.8f sell=%.8f pnl=%.8f", rep.BuyPrice, rep.SellPrice, rep.PnL),
		map[string]any{"buy": rep.BuyPrice, "sell": rep.SellPrice, "quantity": rep.Quantity, "pnl": rep.PnL, "rebate": rep.Rebate})
	return nil
}

// runLimit 两条限价单生命周期：买单成交后按成交数量挂卖单
func (e *Engine) runLimit(ctx context.Context, rep *CycleReport) error {
	buyLeg, err := e.deps.Tracker.SubmitAndAwait(ctx, rep.Pair, domain.SideBuy, rep.BuyPrice, rep.Quantity, e.cfg.OrderTimeout)
	if err != nil {
		return fmt.Errorf("买单失败: %w", err)
	}
	if !buyLeg.Filled() {
		e.legFailed(ctx, rep.Pair, domain.SideBuy, buyLeg.OrderID)
		return fmt.Errorf("买单 %s 超时未成交: %w", buyLeg.OrderID, domain.ErrUnconfirmed)
	}
	if err := e.record(ctx, rep.Pair, domain.SideBuy, buyLeg.Price, buyLeg.Quantity, 0, 0); err != nil {
		return err
	}

	sellQty, err := e.sellQuantity(ctx, rep.Pair, buyLeg.Quantity, rep.SellPrice)
	if err != nil {
		return err
	}
	sellLeg, err := e.deps.Tracker.SubmitAndAwait(ctx, rep.Pair, domain.SideSell, rep.SellPrice, sellQty, e.cfg.OrderTimeout)
	if err != nil {
		return fmt.Errorf("卖单失败: %w", err)
	}
	if !sellLeg.Filled() {
		e.legFailed(ctx, rep.Pair, domain.SideSell, sellLeg.OrderID)
		return fmt.Errorf("卖单 %s 超时未成交，持仓保留: %w", sellLeg.OrderID, domain.ErrUnconfirmed)
	}

	rep.Rebate = buyLeg.Commission + sellLeg.Commission
	rep.PnL = marketmath.GrossPnL(buyLeg.Price, sellLeg.Price, sellLeg.Quantity) + rep.Rebate
	if err := e.record(ctx, rep.Pair, domain.SideSell, sellLeg.Price, sellLeg.Quantity, rep.Rebate, rep.PnL); err != nil {
		return err
	}
	e.completed(ctx, rep, buyLeg.Price, sellLeg.Price)
	return nil
}

// runMarket 按金额市价买入，再按成交数量市价卖出
func (e *Engine) runMarket(ctx context.Context, rep *CycleReport) error {
	gw := e.deps.Gateway
	c, err := gw.FetchMarketConstraints(ctx, rep.Pair)
	if err != nil {
		return fmt.Errorf("获取交易约束失败: %w", err)
	}
	if rep.Cost < c.MinNotional {
		return &domain.ConstraintError{Pair: rep.Pair, Field: "min_notional", Value: rep.Cost, Limit: c.MinNotional}
	}

	buy, err := gw.ExecuteBuyByNotional(ctx, rep.Pair, rep.Cost)
	if err != nil {
		e.legFailed(ctx, rep.Pair, domain.SideBuy, "")
		return fmt.Errorf("市价买入失败: %w", err)
	}
	if buy == nil || buy.FilledQty <= 0 {
		e.legFailed(ctx, rep.Pair, domain.SideBuy, "")
		return fmt.Errorf("市价买入无成交: %w", domain.ErrUnconfirmed)
	}
	metrics.IncOrder(string(domain.SideBuy), "filled")
	if err := e.record(ctx, rep.Pair, domain.SideBuy, buy.AvgPrice, buy.FilledQty, 0, 0); err != nil {
		return err
	}

	sellQty, err := e.sellQuantityWith(ctx, rep.Pair, buy.FilledQty, rep.SellPrice, c)
	if err != nil {
		return err
	}
	sell, err := gw.ExecuteSellByQuantity(ctx, rep.Pair, sellQty, buy.AvgPrice)
	if err != nil {
		e.legFailed(ctx, rep.Pair, domain.SideSell, "")
		return fmt.Errorf("市价卖出失败: %w", err)
	}
	if sell == nil || sell.FilledQty <= 0 {
		e.legFailed(ctx, rep.Pair, domain.SideSell, "")
		return fmt.Errorf("市价卖出无成交，持仓保留: %w", domain.ErrUnconfirmed)
	}
	metrics.IncOrder(string(domain.SideSell), "filled")

	rep.Rebate = sell.FilledQty * e.cfg.RebateRate
	if sell.PnL != nil {
		rep.PnL = *sell.PnL + rep.Rebate
	} else {
		rep.PnL = marketmath.GrossPnL(buy.AvgPrice, sell.AvgPrice, sell.FilledQty) + rep.Rebate
	}
	if err := e.record(ctx, rep.Pair, domain.SideSell, sell.AvgPrice, sell.FilledQty, rep.Rebate, rep.PnL); err != nil {
		return err
	}
	e.completed(ctx, rep, buy.AvgPrice, sell.AvgPrice)
	return nil
}

func (e *Engine) sellQuantity(ctx context.Context, pair domain.Pair, desired, price float64) (float64, error) {
	c, err := e.deps.Gateway.FetchMarketConstraints(ctx, pair)
	if err != nil {
		return 0, fmt.Errorf("获取交易约束失败: %w", err)
	}
	return e.sellQuantityWith(ctx, pair, desired, price, c)
}

// sellQuantityWith 按可用余额和交易约束修正卖出数量
func (e *Engine) sellQuantityWith(ctx context.Context, pair domain.Pair, desired, price float64, c domain.MarketConstraints) (float64, error) {
	free, err := e.deps.Gateway.FetchFreeBalance(ctx, pair.Base())
	if err != nil {
		return 0, fmt.Errorf("获取 %s 余额失败: %w", pair.Base(), err)
	}
	qty, err := marketmath.AdjustSellQuantity(pair, desired, free, c, price)
	if err != nil {
		return 0, fmt.Errorf("卖出数量不满足约束: %w", err)
	}
	if qty < desired {
		log.Infof("✂️ [Cycle] 卖出数量已修正: pair=%s desired=%.8f free=%.8f qty=%.8f", pair, desired, free, qty)
	}
	return qty, nil
}

func (e *Engine) record(ctx context.Context, pair domain.Pair, side domain.Side, price, qty, rebate, pnl float64) error {
	now := e.deps.Now()
	t := domain.TradeRecord{
		ID:        id.At(now),
		Pair:      pair,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Rebate:    rebate,
		PnL:       pnl,
		Timestamp: now,
	}
	if err := e.deps.Trades.RecordTrade(ctx, t); err != nil {
		return fmt.Errorf("写入%s成交记录失败: %w", side, err)
	}
	return nil
}

func (e *Engine) legFailed(ctx context.Context, pair domain.Pair, side domain.Side, orderID string) {
	e.deps.Events.Emit(ctx, domain.EventLegFailed, pair,
		fmt.Sprintf("%s 腿未完成 %s", side, orderID),
		map[string]any{"side": string(side), "order_id": orderID})
}

func (e *Engine) completed(ctx context.Context, rep *CycleReport, buyPrice, sellPrice float64) {
	e.deps.Events.Emit(ctx, domain.EventTradeCompleted, rep.Pair,
		fmt.Sprintf("买 %.8f 卖 %.8f 盈亏 %.8f 返佣 %.8f", buyPrice, sellPrice, rep.PnL, rep.Rebate),
		map[string]any{"buy": buyPrice, "sell": sellPrice, "pnl": rep.PnL, "rebate": rep.Rebate})
}
