// Package exchangetest 可编排的网关替身：按订单设定状态序列、注入错误、统计调用次数。
package exchangetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// ErrInjected 注入的网关错误
var ErrInjected = errors.New("injected gateway error")

// Gateway 线程安全的网关替身。零值不可用，请用 NewGateway。
type Gateway struct {
	mu sync.Mutex

	nextID int
	orders map[string]*order

	// DefaultStatuses 新订单的状态序列；每次查询弹出一个，最后一个保持不变。默认一直 open。
	DefaultStatuses []domain.OrderStatus
	// SideStatuses 按方向覆盖 DefaultStatuses
	SideStatuses map[domain.Side][]domain.OrderStatus
	// Fills 成交明细（按订单方向）
	Fills map[domain.Side][]domain.Fill
	// Constraints/FreeBalance 给数量修正用
	Constraints domain.MarketConstraints
	FreeBalance map[string]float64

	// Buy/Sell 市价执行结果，nil 表示无成交
	Buy  *domain.BuyExecution
	Sell *domain.SellExecution

	// 错误注入：键为方法名（"Submit"、"Cancel"、"Status"、"Fills"、"Buy"、"Sell"、"Constraints"、"Balance"、"OpenOrders"），
	// 下单还可以按方向注入（"Submit:buy"、"Submit:sell"）。值为剩余失败次数，<0 表示一直失败
	failures map[string]int
	// PanicOn 方法名，调用时 panic（测试错误隔离）
	PanicOn string

	calls map[string]int
	// Cancels 记录被撤的订单
	Cancels []string
	// Submitted 记录所有下单
	Submitted []domain.OpenOrder
}

type order struct {
	domain.OpenOrder
	statuses []domain.OrderStatus
	err      error
}

func NewGateway() *Gateway {
	return &Gateway{
		orders:       make(map[string]*order),
		failures:     make(map[string]int),
		calls:        make(map[string]int),
		Fills:        make(map[domain.Side][]domain.Fill),
		FreeBalance:  make(map[string]float64),
		SideStatuses: make(map[domain.Side][]domain.OrderStatus),
		Constraints: domain.MarketConstraints{StepSize: 0.00001, MinQty: 0.00001, MinNotional: 1, Precision: 5},
	}
}

// FailNext 让 method 接下来 n 次调用失败；n<0 一直失败
func (g *Gateway) FailNext(method string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[method] = n
}

// Calls 某方法的调用次数
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// AddOrder 直接放入一笔已存在的订单（模拟重启前遗留的订单）
func (g *Gateway) AddOrder(o domain.OpenOrder, statuses ...domain.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[o.OrderID] = &order{OpenOrder: o, statuses: statuses}
}

// SetStatusError 让某订单的状态查询一直返回 err
func (g *Gateway) SetStatusError(orderID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[orderID]; ok {
		o.err = err
	}
}

// step 记一次调用，返回注入的错误
func (g *Gateway) step(method string) error {
	g.calls[method]++
	if g.PanicOn == method {
		panic(fmt.Sprintf("exchangetest: panic in %s", method))
	}
	return g.injected(method)
}

func (g *Gateway) injected(method string) error {
	n, ok := g.failures[method]
	if !ok || n == 0 {
		return nil
	}
	if n > 0 {
		g.failures[method] = n - 1
	}
	return fmt.Errorf("%s: %w", method, ErrInjected)
}

func (g *Gateway) SubmitLimitOrder(_ context.Context, pair domain.Pair, side domain.Side, price, quantity float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Submit"); err != nil {
		return "", err
	}
	if err := g.injected("Submit:" + string(side)); err != nil {
		return "", err
	}
	g.nextID++
	id := fmt.Sprintf("ord-%d", g.nextID)
	o := domain.OpenOrder{OrderID: id, Pair: pair, Side: side, Price: price, Quantity: quantity}
	script := g.DefaultStatuses
	if ss, ok := g.SideStatuses[side]; ok {
		script = ss
	}
	statuses := append([]domain.OrderStatus(nil), script...)
	g.orders[id] = &order{OpenOrder: o, statuses: statuses}
	g.Submitted = append(g.Submitted, o)
	return id, nil
}

func (g *Gateway) CancelOrder(_ context.Context, orderID string, _ domain.Pair) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Cancel"); err != nil {
		return err
	}
	o, ok := g.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	g.Cancels = append(g.Cancels, orderID)
	o.statuses = []domain.OrderStatus{domain.OrderStatusCanceled}
	return nil
}

func (g *Gateway) FetchOrderStatus(_ context.Context, orderID string, _ domain.Pair) (domain.OrderState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Status"); err != nil {
		return domain.OrderState{}, err
	}
	o, ok := g.orders[orderID]
	if !ok {
		return domain.OrderState{}, domain.ErrOrderNotFound
	}
	if o.err != nil {
		return domain.OrderState{}, o.err
	}
	status := domain.OrderStatusOpen
	if len(o.statuses) > 0 {
		status = o.statuses[0]
		if len(o.statuses) > 1 {
			o.statuses = o.statuses[1:]
		}
	}
	st := domain.OrderState{OrderID: orderID, Status: status}
	if status == domain.OrderStatusClosed {
		st.FilledQty = o.Quantity
		st.AvgPrice = o.Price
	}
	return st, nil
}

func (g *Gateway) FetchFills(_ context.Context, orderID string, _ domain.Pair) ([]domain.Fill, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Fills"); err != nil {
		return nil, err
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return append([]domain.Fill(nil), g.Fills[o.Side]...), nil
}

func (g *Gateway) FetchOpenOrders(_ context.Context) ([]domain.OpenOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("OpenOrders"); err != nil {
		return nil, err
	}
	var out []domain.OpenOrder
	for _, o := range g.orders {
		if len(o.statuses) == 0 || o.statuses[0] == domain.OrderStatusOpen {
			out = append(out, o.OpenOrder)
		}
	}
	return out, nil
}

func (g *Gateway) ExecuteBuyByNotional(_ context.Context, _ domain.Pair, _ float64) (*domain.BuyExecution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Buy"); err != nil {
		return nil, err
	}
	if g.Buy == nil {
		return nil, nil
	}
	b := *g.Buy
	return &b, nil
}

func (g *Gateway) ExecuteSellByQuantity(_ context.Context, _ domain.Pair, quantity, _ float64) (*domain.SellExecution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Sell"); err != nil {
		return nil, err
	}
	if g.Sell == nil {
		return nil, nil
	}
	s := *g.Sell
	if s.FilledQty == 0 {
		s.FilledQty = quantity
	}
	return &s, nil
}

func (g *Gateway) FetchMarketConstraints(_ context.Context, _ domain.Pair) (domain.MarketConstraints, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Constraints"); err != nil {
		return domain.MarketConstraints{}, err
	}
	return g.Constraints, nil
}

func (g *Gateway) FetchFreeBalance(_ context.Context, asset string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.step("Balance"); err != nil {
		return 0, err
	}
	return g.FreeBalance[asset], nil
}
