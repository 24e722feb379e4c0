package ports

import (
	"context"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// TradeRecorder 成交记录（追加写入）
type TradeRecorder interface {
	RecordTrade(ctx context.Context, t domain.TradeRecord) error
}

// EventRecorder 事件记录（追加写入）
type EventRecorder interface {
	RecordEvent(ctx context.Context, e domain.Event) error
}

// OpenOrderStore 本地挂单集合，以 OrderID 为键
type OpenOrderStore interface {
	Put(ctx context.Context, o domain.OpenOrder) error
	List(ctx context.Context) ([]domain.OpenOrder, error)
	Remove(ctx context.Context, orderID string) error
}
