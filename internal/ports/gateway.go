package ports

import (
	"context"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// Gateway 交易所网关。实现需对并发调用安全。
//
// CancelOrder / FetchOrderStatus 在订单已不存在时返回 domain.ErrOrderNotFound。
// ExecuteBuyByNotional 返回 (nil, nil) 表示没有成交。
type Gateway interface {
	SubmitLimitOrder(ctx context.Context, pair domain.Pair, side domain.Side, price, quantity float64) (string, error)
	CancelOrder(ctx context.Context, orderID string, pair domain.Pair) error
	FetchOrderStatus(ctx context.Context, orderID string, pair domain.Pair) (domain.OrderState, error)
	FetchFills(ctx context.Context, orderID string, pair domain.Pair) ([]domain.Fill, error)
	FetchOpenOrders(ctx context.Context) ([]domain.OpenOrder, error)

	ExecuteBuyByNotional(ctx context.Context, pair domain.Pair, quoteAmount float64) (*domain.BuyExecution, error)
	ExecuteSellByQuantity(ctx context.Context, pair domain.Pair, quantity, entryPrice float64) (*domain.SellExecution, error)

	FetchMarketConstraints(ctx context.Context, pair domain.Pair) (domain.MarketConstraints, error)
	FetchFreeBalance(ctx context.Context, asset string) (float64, error)
}
