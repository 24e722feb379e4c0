package paper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/pkg/marketmath"
)

var log = logrus.WithField("module", "paper")

// Quoter 实时盘口来源
type Quoter interface {
	BookTicker(ctx context.Context, pair domain.Pair) (domain.MarketSample, error)
}

// Config 模拟账户参数
type Config struct {
	Balances    map[string]float64
	Constraints domain.MarketConstraints
	// CommissionRate 成交手续费率（按成交额），写入 Fill.Commission
	CommissionRate float64
}

// DefaultConstraints 未配置时使用的下单约束
var DefaultConstraints = domain.MarketConstraints{StepSize: 0.00001, MinQty: 0.00001, MinNotional: 5, Precision: 5}

type order struct {
	rec    domain.OpenOrder
	status domain.OrderStatus
	fill   *domain.Fill
}

// Gateway 纸面交易网关：用真实盘口撮合，资金只记在内存里
type Gateway struct {
	quotes Quoter
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	orders   map[string]*order
	balances map[string]float64
}

func New(quotes Quoter, cfg Config) *Gateway {
	if cfg.Constraints.StepSize <= 0 {
		cfg.Constraints = DefaultConstraints
	}
	balances := make(map[string]float64, len(cfg.Balances))
	for k, v := range cfg.Balances {
		balances[k] = v
	}
	return &Gateway{
		quotes:   quotes,
		cfg:      cfg,
		now:      time.Now,
		orders:   make(map[string]*order),
		balances: balances,
	}
}

func (g *Gateway) SubmitLimitOrder(_ context.Context, pair domain.Pair, side domain.Side, price, quantity float64) (string, error) {
	if price <= 0 || quantity <= 0 {
		return "", errors.Errorf("paper: invalid order %s %v@%v", side, quantity, price)
	}
	id := uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[id] = &order{
		rec: domain.OpenOrder{
			OrderID:   id,
			Pair:      pair,
			Side:      side,
			Price:     price,
			Quantity:  quantity,
			CreatedAt: g.now(),
		},
		status: domain.OrderStatusOpen,
	}
	log.Debugf("[paper] 挂单 %s %s %s %.8f@%.8f", id, pair, side, quantity, price)
	return id, nil
}

func (g *Gateway) CancelOrder(_ context.Context, orderID string, _ domain.Pair) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok || o.status.IsFinal() {
		return errors.Wrapf(domain.ErrOrderNotFound, "paper cancel %s", orderID)
	}
	o.status = domain.OrderStatusCanceled
	return nil
}

// FetchOrderStatus 每次查询时按最新盘口尝试撮合
func (g *Gateway) FetchOrderStatus(ctx context.Context, orderID string, pair domain.Pair) (domain.OrderState, error) {
	g.mu.Lock()
	o, ok := g.orders[orderID]
	open := ok && o.status == domain.OrderStatusOpen
	g.mu.Unlock()
	if !ok {
		return domain.OrderState{}, errors.Wrapf(domain.ErrOrderNotFound, "paper status %s", orderID)
	}

	if open {
		sample, err := g.quotes.BookTicker(ctx, pair)
		if err != nil {
			return domain.OrderState{}, errors.Wrap(domain.ErrGatewayTransient, err.Error())
		}
		g.mu.Lock()
		g.match(o, sample)
		g.mu.Unlock()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st := domain.OrderState{OrderID: orderID, Status: o.status}
	if o.fill != nil {
		st.FilledQty = o.fill.Quantity
		st.AvgPrice = o.fill.Price
	}
	return st, nil
}

// match 买单在 ask<=限价、卖单在 bid>=限价时按限价全部成交（调用方持锁）
func (g *Gateway) match(o *order, s domain.MarketSample) {
	if o.status.IsFinal() {
		return
	}
	crossed := (o.rec.Side == domain.SideBuy && s.Ask > 0 && s.Ask <= o.rec.Price) ||
		(o.rec.Side == domain.SideSell && s.Bid > 0 && s.Bid >= o.rec.Price)
	if !crossed {
		return
	}
	f := g.settle(o.rec.Pair, o.rec.Side, o.rec.Price, o.rec.Quantity)
	o.fill = &f
	o.status = domain.OrderStatusClosed
}

// settle 记账并返回成交明细（调用方持锁）
func (g *Gateway) settle(pair domain.Pair, side domain.Side, price, qty float64) domain.Fill {
	notional := price * qty
	if side == domain.SideBuy {
		g.balances[pair.Base()] += qty
		g.balances[pair.Quote()] -= notional
	} else {
		g.balances[pair.Base()] -= qty
		g.balances[pair.Quote()] += notional
	}
	return domain.Fill{
		Price:           price,
		Quantity:        qty,
		Commission:      notional * g.cfg.CommissionRate,
		CommissionAsset: pair.Quote(),
	}
}

func (g *Gateway) FetchFills(_ context.Context, orderID string, _ domain.Pair) ([]domain.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "paper fills %s", orderID)
	}
	if o.fill == nil {
		return nil, nil
	}
	return []domain.Fill{*o.fill}, nil
}

func (g *Gateway) FetchOpenOrders(context.Context) ([]domain.OpenOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.OpenOrder
	for _, o := range g.orders {
		if o.status == domain.OrderStatusOpen {
			out = append(out, o.rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (g *Gateway) ExecuteBuyByNotional(ctx context.Context, pair domain.Pair, quoteAmount float64) (*domain.BuyExecution, error) {
	sample, err := g.quotes.BookTicker(ctx, pair)
	if err != nil {
		return nil, errors.Wrap(domain.ErrGatewayTransient, err.Error())
	}
	if sample.Ask <= 0 || quoteAmount <= 0 {
		return nil, nil
	}
	qty := marketmath.FloorToStep(quoteAmount/sample.Ask, g.cfg.Constraints.StepSize, g.cfg.Constraints.Precision)
	if qty <= 0 {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.settle(pair, domain.SideBuy, sample.Ask, qty)
	return &domain.BuyExecution{OrderID: uuid.NewString(), FilledQty: qty, AvgPrice: sample.Ask}, nil
}

func (g *Gateway) ExecuteSellByQuantity(ctx context.Context, pair domain.Pair, quantity, entryPrice float64) (*domain.SellExecution, error) {
	sample, err := g.quotes.BookTicker(ctx, pair)
	if err != nil {
		return nil, errors.Wrap(domain.ErrGatewayTransient, err.Error())
	}
	if sample.Bid <= 0 || quantity <= 0 {
		return nil, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.settle(pair, domain.SideSell, sample.Bid, quantity)
	exec := &domain.SellExecution{OrderID: uuid.NewString(), FilledQty: quantity, AvgPrice: sample.Bid}
	if entryPrice > 0 {
		pnl := marketmath.GrossPnL(entryPrice, sample.Bid, quantity)
		exec.PnL = &pnl
	}
	return exec, nil
}

func (g *Gateway) FetchMarketConstraints(context.Context, domain.Pair) (domain.MarketConstraints, error) {
	return g.cfg.Constraints, nil
}

func (g *Gateway) FetchFreeBalance(_ context.Context, asset string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.balances[asset]
	if v < 0 {
		return 0, nil
	}
	return v, nil
}
