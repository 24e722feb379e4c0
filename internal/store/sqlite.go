// Package store SQLite 日志库：成交、事件、告警日志、挂单集合、涨幅榜缓存。
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var log = logrus.WithField("module", "store")

// Store SQLite 日志库
type Store struct {
	db   *sql.DB
	path string
}

// Open 打开（必要时创建）数据库并迁移表结构
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	log.Debugf("[Store] 数据库已打开: %s", path)
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path 数据库文件路径
func (s *Store) Path() string { return s.path }

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  pair TEXT NOT NULL,
  side TEXT NOT NULL,
  price REAL NOT NULL,
  quantity REAL NOT NULL,
  rebate REAL NOT NULL DEFAULT 0,
  pnl REAL NOT NULL DEFAULT 0,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts DESC);`,
		`
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  pair TEXT,
  message TEXT NOT NULL,
  detail_json TEXT,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);`,
		`
CREATE TABLE IF NOT EXISTS logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  level TEXT NOT NULL,
  module TEXT,
  message TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS open_orders (
  order_id TEXT PRIMARY KEY,
  pair TEXT NOT NULL,
  side TEXT NOT NULL,
  price REAL NOT NULL,
  quantity REAL NOT NULL,
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS top_gainers_cache (
  symbol TEXT NOT NULL,
  change_percent REAL NOT NULL,
  quote TEXT NOT NULL,
  expires_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_top_gainers_quote ON top_gainers_cache(quote, expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' && i > 0 {
			return s[:i]
		}
	}
	if len(s) > 60 {
		return s[:60]
	}
	return s
}

// timeLayout 定宽格式，保证字符串比较与时间顺序一致
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
