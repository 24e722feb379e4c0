package store

import (
	"context"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// OpenOrders 基于 SQLite 的挂单集合
type OpenOrders struct {
	s *Store
}

// OpenOrders 返回挂单集合视图
func (s *Store) OpenOrders() *OpenOrders { return &OpenOrders{s: s} }

func (o *OpenOrders) Put(ctx context.Context, rec domain.OpenOrder) error {
	_, err := o.s.db.ExecContext(ctx, `
INSERT INTO open_orders (order_id, pair, side, price, quantity, created_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(order_id) DO UPDATE SET
  pair=excluded.pair, side=excluded.side, price=excluded.price,
  quantity=excluded.quantity, created_at=excluded.created_at
`, rec.OrderID, string(rec.Pair), string(rec.Side), rec.Price, rec.Quantity, formatTime(rec.CreatedAt))
	return err
}

func (o *OpenOrders) List(ctx context.Context) ([]domain.OpenOrder, error) {
	rows, err := o.s.db.QueryContext(ctx, `
SELECT order_id, pair, side, price, quantity, created_at
FROM open_orders
ORDER BY created_at ASC, order_id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OpenOrder
	for rows.Next() {
		var (
			rec            domain.OpenOrder
			pair, side, ts string
		)
		if err := rows.Scan(&rec.OrderID, &pair, &side, &rec.Price, &rec.Quantity, &ts); err != nil {
			return nil, err
		}
		rec.Pair = domain.Pair(pair)
		rec.Side = domain.Side(side)
		rec.CreatedAt = parseTime(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (o *OpenOrders) Remove(ctx context.Context, orderID string) error {
	_, err := o.s.db.ExecContext(ctx, `DELETE FROM open_orders WHERE order_id=?`, orderID)
	return err
}
