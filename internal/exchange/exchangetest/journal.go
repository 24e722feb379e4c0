package exchangetest

import (
	"context"
	"sync"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// Journal 内存版成交/事件记录
type Journal struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
	events []domain.Event
	// FailTrades 为 true 时 RecordTrade 返回错误
	FailTrades bool
}

func (j *Journal) RecordTrade(_ context.Context, t domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.FailTrades {
		return ErrInjected
	}
	j.trades = append(j.trades, t)
	return nil
}

func (j *Journal) RecordEvent(_ context.Context, e domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	return nil
}

func (j *Journal) Trades() []domain.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.TradeRecord(nil), j.trades...)
}

func (j *Journal) Events() []domain.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.Event(nil), j.events...)
}

// EventsOf 某类事件
func (j *Journal) EventsOf(kind domain.EventKind) []domain.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.Event
	for _, e := range j.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
