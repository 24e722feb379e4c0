package binance

import (
	"context"
	stdErrors "errors"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/pkg/cache"
	"github.com/ricardogal/defi-scalping-rebate/pkg/logger"
	"github.com/ricardogal/defi-scalping-rebate/pkg/marketmath"
	"github.com/ricardogal/defi-scalping-rebate/pkg/ratelimit"
)

// 订单不存在相关的错误码
const (
	codeCancelRejected = -2011
	codeNoSuchOrder    = -2013
)

// Config 网关配置
type Config struct {
	APIKey            string
	APISecret         string
	Testnet           bool
	BaseURL           string
	RequestsPerSecond float64
	ConstraintsTTL    time.Duration
}

// Gateway 基于 go-binance 的现货网关
type Gateway struct {
	client      *gobinance.Client
	limits      *ratelimit.Manager
	constraints *cache.InMemoryCache[domain.Pair, domain.MarketConstraints]
}

// New 创建网关
func New(cfg Config) *Gateway {
	if cfg.Testnet {
		gobinance.UseTestnet = true
	}
	client := gobinance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	ttl := cfg.ConstraintsTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Gateway{
		client:      client,
		limits:      ratelimit.NewExchangeManager(cfg.RequestsPerSecond),
		constraints: cache.NewInMemoryCache[domain.Pair, domain.MarketConstraints](ttl),
	}
}

func (g *Gateway) SubmitLimitOrder(ctx context.Context, pair domain.Pair, side domain.Side, price, quantity float64) (string, error) {
	c, err := g.FetchMarketConstraints(ctx, pair)
	if err != nil {
		return "", err
	}
	if err := g.limits.Wait(ctx, "order"); err != nil {
		return "", err
	}
	resp, err := g.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(toSideType(side)).
		Type(gobinance.OrderTypeLimit).
		TimeInForce(gobinance.TimeInForceTypeGTC).
		Quantity(marketmath.FormatQuantity(quantity, c.Precision)).
		Price(marketmath.FormatPrice(marketmath.SnapPrice(price, c.TickSize, side), c.PricePrecision)).
		Do(ctx)
	if err != nil {
		return "", errors.Wrapf(translate(err), "submit %s %s", side, pair)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string, pair domain.Pair) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	if err := g.limits.Wait(ctx, "order"); err != nil {
		return err
	}
	_, err = g.client.NewCancelOrderService().Symbol(pair.Symbol()).OrderID(id).Do(ctx)
	if err != nil {
		return errors.Wrapf(translate(err), "cancel %s", orderID)
	}
	return nil
}

func (g *Gateway) FetchOrderStatus(ctx context.Context, orderID string, pair domain.Pair) (domain.OrderState, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return domain.OrderState{}, err
	}
	if err := g.limits.Wait(ctx, "query"); err != nil {
		return domain.OrderState{}, err
	}
	o, err := g.client.NewGetOrderService().Symbol(pair.Symbol()).OrderID(id).Do(ctx)
	if err != nil {
		return domain.OrderState{}, errors.Wrapf(translate(err), "status %s", orderID)
	}
	return orderState(o), nil
}

func (g *Gateway) FetchFills(ctx context.Context, orderID string, pair domain.Pair) ([]domain.Fill, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if err := g.limits.Wait(ctx, "query"); err != nil {
		return nil, err
	}
	trades, err := g.client.NewListTradesService().Symbol(pair.Symbol()).OrderId(id).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(translate(err), "fills %s", orderID)
	}
	return fillsForOrder(trades, id), nil
}

func (g *Gateway) FetchOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	if err := g.limits.Wait(ctx, "query"); err != nil {
		return nil, err
	}
	orders, err := g.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(translate(err), "open orders")
	}
	out := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		rec, ok := openOrder(o)
		if !ok {
			logger.Warnf("⚠️ [binance] 无法识别的交易对: %s", o.Symbol)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *Gateway) ExecuteBuyByNotional(ctx context.Context, pair domain.Pair, quoteAmount float64) (*domain.BuyExecution, error) {
	if err := g.limits.Wait(ctx, "order"); err != nil {
		return nil, err
	}
	resp, err := g.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(gobinance.SideTypeBuy).
		Type(gobinance.OrderTypeMarket).
		QuoteOrderQty(marketmath.FormatPrice(quoteAmount, 8)).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(translate(err), "market buy %s", pair)
	}
	qty, avg := executed(resp)
	if qty <= 0 {
		return nil, nil
	}
	return &domain.BuyExecution{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		FilledQty: qty,
		AvgPrice:  avg,
	}, nil
}

func (g *Gateway) ExecuteSellByQuantity(ctx context.Context, pair domain.Pair, quantity, entryPrice float64) (*domain.SellExecution, error) {
	c, err := g.FetchMarketConstraints(ctx, pair)
	if err != nil {
		return nil, err
	}
	if err := g.limits.Wait(ctx, "order"); err != nil {
		return nil, err
	}
	resp, err := g.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(gobinance.SideTypeSell).
		Type(gobinance.OrderTypeMarket).
		Quantity(marketmath.FormatQuantity(quantity, c.Precision)).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(translate(err), "market sell %s", pair)
	}
	qty, avg := executed(resp)
	if qty <= 0 {
		return nil, nil
	}
	exec := &domain.SellExecution{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		FilledQty: qty,
		AvgPrice:  avg,
	}
	if entryPrice > 0 {
		pnl := marketmath.GrossPnL(entryPrice, avg, qty)
		exec.PnL = &pnl
	}
	return exec, nil
}

func (g *Gateway) FetchMarketConstraints(ctx context.Context, pair domain.Pair) (domain.MarketConstraints, error) {
	return g.constraints.GetOrLoad(pair, func() (domain.MarketConstraints, error) {
		if err := g.limits.Wait(ctx, "public"); err != nil {
			return domain.MarketConstraints{}, err
		}
		info, err := g.client.NewExchangeInfoService().Symbol(pair.Symbol()).Do(ctx)
		if err != nil {
			return domain.MarketConstraints{}, errors.Wrapf(translate(err), "exchange info %s", pair)
		}
		for _, s := range info.Symbols {
			if s.Symbol == pair.Symbol() {
				return constraintsFromSymbol(s), nil
			}
		}
		return domain.MarketConstraints{}, errors.Errorf("exchange info: symbol %s not listed", pair.Symbol())
	})
}

func (g *Gateway) FetchFreeBalance(ctx context.Context, asset string) (float64, error) {
	if err := g.limits.Wait(ctx, "query"); err != nil {
		return 0, err
	}
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, errors.Wrap(translate(err), "account")
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return parseFloat(b.Free), nil
		}
	}
	return 0, nil
}

// translate 把交易所错误映射到领域错误
func translate(err error) error {
	var apiErr *common.APIError
	if stdErrors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeCancelRejected, codeNoSuchOrder:
			return errors.Wrap(domain.ErrOrderNotFound, apiErr.Message)
		}
		return err
	}
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Wrap(domain.ErrGatewayTransient, err.Error())
}

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrOrderNotFound, "invalid order id %q", orderID)
	}
	return id, nil
}
