package store

import (
	"context"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// RecordTrade 追加一条成交记录
func (s *Store) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (id, pair, side, price, quantity, rebate, pnl, ts)
VALUES (?,?,?,?,?,?,?,?)
`, t.ID, string(t.Pair), string(t.Side), t.Price, t.Quantity, t.Rebate, t.PnL, formatTime(t.Timestamp))
	return err
}

// ListTrades 最近的成交，新的在前
func (s *Store) ListTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	limit = clampLimit(limit, 10, 1000)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, pair, side, price, quantity, rebate, pnl, ts
FROM trades
ORDER BY ts DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var (
			t          domain.TradeRecord
			pair, side string
			ts         string
		)
		if err := rows.Scan(&t.ID, &pair, &side, &t.Price, &t.Quantity, &t.Rebate, &t.PnL, &ts); err != nil {
			return nil, err
		}
		t.Pair = domain.Pair(pair)
		t.Side = domain.Side(side)
		t.Timestamp = parseTime(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Totals 汇总
type Totals struct {
	Trades int     `json:"trades"`
	PnL    float64 `json:"pnl"`
	Rebate float64 `json:"rebate"`
}

// TradeTotals 全部成交的盈亏与返佣合计
func (s *Store) TradeTotals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(pnl), 0), COALESCE(SUM(rebate), 0) FROM trades
`).Scan(&t.Trades, &t.PnL, &t.Rebate)
	return t, err
}
