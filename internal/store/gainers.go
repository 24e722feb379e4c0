package store

import (
	"context"
	"time"
)

// Gainer 涨幅榜条目
type Gainer struct {
	Symbol        string  `json:"symbol"`
	ChangePercent float64 `json:"change_percent"`
}

// CachedGainers 未过期的涨幅榜缓存，按涨幅降序
func (s *Store) CachedGainers(ctx context.Context, quote string, now time.Time) ([]Gainer, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, change_percent FROM top_gainers_cache
WHERE quote = ? AND expires_at > ?
ORDER BY change_percent DESC
`, quote, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Gainer
	for rows.Next() {
		var g Gainer
		if err := rows.Scan(&g.Symbol, &g.ChangePercent); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ReplaceGainers 整体替换某计价资产的涨幅榜缓存
func (s *Store) ReplaceGainers(ctx context.Context, quote string, gainers []Gainer, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM top_gainers_cache WHERE quote = ?`, quote); err != nil {
		return err
	}
	exp := formatTime(expiresAt)
	for _, g := range gainers {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO top_gainers_cache (symbol, change_percent, quote, expires_at) VALUES (?,?,?,?)
`, g.Symbol, g.ChangePercent, quote, exp); err != nil {
			return err
		}
	}
	return tx.Commit()
}
