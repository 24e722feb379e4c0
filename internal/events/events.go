// Package events 审计事件：打印日志并写入事件表。
package events

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/ports"
	"github.com/ricardogal/defi-scalping-rebate/pkg/id"
)

var log = logrus.WithField("module", "events")

// Recorder 事件记录器。nil Recorder 的 Emit 是空操作。
type Recorder struct {
	sink ports.EventRecorder
	now  func() time.Time
}

// NewRecorder sink 为 nil 时只打日志
func NewRecorder(sink ports.EventRecorder) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// WithClock 替换时间源（测试用）
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Emit 记录一个事件。写库失败只记日志，不影响调用方。
func (r *Recorder) Emit(ctx context.Context, kind domain.EventKind, pair domain.Pair, message string, detail map[string]any) {
	if r == nil {
		return
	}
	ts := r.now()
	ev := domain.Event{
		ID:        id.At(ts),
		Kind:      kind,
		Pair:      pair,
		Message:   message,
		Detail:    detail,
		Timestamp: ts,
	}
	log.Infof("[EVENT] [%s] %s -> %s", strings.ToUpper(string(kind)), pair, message)

	if r.sink == nil {
		return
	}
	if err := r.sink.RecordEvent(ctx, ev); err != nil {
		log.Warnf("⚠️ [Events] 写入事件失败: kind=%s pair=%s err=%v", kind, pair, err)
	}
}
