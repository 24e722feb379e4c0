// Package capital 按交易对管理资金额度：占用（reserve）与释放（release）。
package capital

import (
	"sort"
	"sync"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/metrics"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "capital")

// 浮点残差小于该值时视为 0
const dust = 1e-12

type entry struct {
	mu       sync.Mutex
	limit    float64
	reserved float64
}

// Ledger 资金账本。
// 每个交易对一把锁，不同交易对之间互不阻塞；未配置的交易对额度为 0。
type Ledger struct {
	mu      sync.RWMutex
	entries map[domain.Pair]*entry
}

// Position 账本快照中的一行
type Position struct {
	Pair     domain.Pair `json:"pair"`
	Limit    float64     `json:"limit"`
	Reserved float64     `json:"reserved"`
}

// Available 剩余可用额度
func (p Position) Available() float64 {
	if p.Reserved >= p.Limit {
		return 0
	}
	return p.Limit - p.Reserved
}

// NewLedger 按交易对额度创建账本，初始占用为 0
func NewLedger(limits map[domain.Pair]float64) *Ledger {
	l := &Ledger{entries: make(map[domain.Pair]*entry, len(limits))}
	for pair, limit := range limits {
		l.entries[pair] = &entry{limit: limit}
		metrics.SetReserved(string(pair), 0)
	}
	return l
}

// entryFor 返回交易对条目；未配置的交易对按额度 0 懒创建
func (l *Ledger) entryFor(pair domain.Pair) *entry {
	l.mu.RLock()
	e, ok := l.entries[pair]
	l.mu.RUnlock()
	if ok {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[pair]; !ok {
		e = &entry{}
		l.entries[pair] = e
	}
	return e
}

// CanReserve reserved+amount <= limit 时返回 true
func (l *Ledger) CanReserve(pair domain.Pair, amount float64) bool {
	e := l.entryFor(pair)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserved+amount <= e.limit
}

// Reserve 无条件增加占用。调用方应先 CanReserve；
// 需要检查与占用原子完成时请用 TryReserve。
func (l *Ledger) Reserve(pair domain.Pair, amount float64) {
	e := l.entryFor(pair)
	e.mu.Lock()
	e.reserved += amount
	reserved := e.reserved
	e.mu.Unlock()

	metrics.SetReserved(string(pair), reserved)
	log.Debugf("🔒 [Capital] 占用资金: pair=%s amount=%.4f reserved=%.4f", pair, amount, reserved)
}

// Release 释放占用，结果不低于 0；未知交易对不做任何事
func (l *Ledger) Release(pair domain.Pair, amount float64) {
	l.mu.RLock()
	e, ok := l.entries[pair]
	l.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.reserved -= amount
	if e.reserved < dust {
		e.reserved = 0
	}
	reserved := e.reserved
	e.mu.Unlock()

	metrics.SetReserved(string(pair), reserved)
	log.Debugf("🔓 [Capital] 释放资金: pair=%s amount=%.4f reserved=%.4f", pair, amount, reserved)
}

// TryReserve 原子地检查并占用。额度不足时返回 (nil, false)，账本不变。
func (l *Ledger) TryReserve(pair domain.Pair, amount float64) (*Reservation, bool) {
	e := l.entryFor(pair)
	e.mu.Lock()
	if e.reserved+amount > e.limit {
		reserved, limit := e.reserved, e.limit
		e.mu.Unlock()
		log.Infof("⛔ [Capital] 额度不足: pair=%s amount=%.4f reserved=%.4f limit=%.4f", pair, amount, reserved, limit)
		return nil, false
	}
	e.reserved += amount
	reserved := e.reserved
	e.mu.Unlock()

	metrics.SetReserved(string(pair), reserved)
	log.Debugf("🔒 [Capital] 占用资金: pair=%s amount=%.4f reserved=%.4f", pair, amount, reserved)
	return &Reservation{ledger: l, pair: pair, amount: amount}, true
}

// Reserved 当前占用
func (l *Ledger) Reserved(pair domain.Pair) float64 {
	l.mu.RLock()
	e, ok := l.entries[pair]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reserved
}

// Snapshot 按交易对排序的账本快照
func (l *Ledger) Snapshot() []Position {
	l.mu.RLock()
	out := make([]Position, 0, len(l.entries))
	for pair, e := range l.entries {
		e.mu.Lock()
		out = append(out, Position{Pair: pair, Limit: e.limit, Reserved: e.reserved})
		e.mu.Unlock()
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Reservation 一次成功的占用。Release 只释放这次占用的金额，重复调用无效。
type Reservation struct {
	ledger *Ledger
	pair   domain.Pair
	amount float64
	once   sync.Once
}

// Amount 占用金额
func (r *Reservation) Amount() float64 {
	if r == nil {
		return 0
	}
	return r.amount
}

// Release 释放占用（幂等，nil 安全）
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() { r.ledger.Release(r.pair, r.amount) })
}
