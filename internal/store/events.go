package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// RecordEvent 追加一条事件
func (s *Store) RecordEvent(ctx context.Context, e domain.Event) error {
	var detail *string
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return err
		}
		v := string(b)
		detail = &v
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO events (id, kind, pair, message, detail_json, ts)
VALUES (?,?,?,?,?,?)
`, e.ID, string(e.Kind), string(e.Pair), e.Message, detail, formatTime(e.Timestamp))
	return err
}

// ListEvents 最近的事件，新的在前
func (s *Store) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	limit = clampLimit(limit, 50, 1000)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, kind, pair, message, detail_json, ts
FROM events
ORDER BY ts DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e          domain.Event
			kind       string
			pair       sql.NullString
			detailJSON sql.NullString
			ts         string
		)
		if err := rows.Scan(&e.ID, &kind, &pair, &e.Message, &detailJSON, &ts); err != nil {
			return nil, err
		}
		e.Kind = domain.EventKind(kind)
		if pair.Valid {
			e.Pair = domain.Pair(pair.String)
		}
		if detailJSON.Valid && detailJSON.String != "" {
			_ = json.Unmarshal([]byte(detailJSON.String), &e.Detail)
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
