package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogHook 把 WARN 及以上级别的日志异步写入 logs 表。
// 队列满时丢弃，不阻塞业务日志。
type LogHook struct {
	s      *Store
	ch     chan logLine
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	levels []logrus.Level
}

type logLine struct {
	level   string
	module  string
	message string
	ts      time.Time
}

// NewLogHook 启动后台写入 goroutine，用完调用 Close
func (s *Store) NewLogHook() *LogHook {
	h := &LogHook{
		s:      s,
		ch:     make(chan logLine, 256),
		levels: []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
	}
	h.wg.Add(1)
	go h.loop()
	return h
}

func (h *LogHook) Levels() []logrus.Level { return h.levels }

func (h *LogHook) Fire(e *logrus.Entry) error {
	module, _ := e.Data["module"].(string)
	line := logLine{level: e.Level.String(), module: module, message: e.Message, ts: e.Time}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	select {
	case h.ch <- line:
	default:
	}
	return nil
}

func (h *LogHook) loop() {
	defer h.wg.Done()
	for line := range h.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := h.s.db.ExecContext(ctx, `INSERT INTO logs (level, module, message, ts) VALUES (?,?,?,?)`,
			line.level, line.module, line.message, formatTime(line.ts))
		cancel()
		if err != nil {
			// 不能再走 logrus，否则会递归进 hook
			fmt.Fprintf(os.Stderr, "[store] 写入日志表失败: %v\n", err)
		}
	}
}

// Close 停止接收并把队列里剩余的日志写完
func (h *LogHook) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.ch)
	h.mu.Unlock()
	h.wg.Wait()
}

// CountLogs 日志表条数（按级别）
func (s *Store) CountLogs(ctx context.Context, level string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs WHERE level = ?`, level).Scan(&n)
	return n, err
}
