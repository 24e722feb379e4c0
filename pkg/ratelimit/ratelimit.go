package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// TokenBucket 令牌桶：容量 capacity，每秒补充 refillRate 个（按经过时间连续补充）
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶，初始为满
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill 补充令牌（调用方持锁）
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Allow 有令牌时消耗一个并返回 true
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		wait := time.Second
		if tb.refillRate > 0 {
			wait = time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
		}
		tb.mu.Unlock()
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Manager 按端点分组的限流器
type Manager struct {
	limiters map[string]RateLimiter
	fallback RateLimiter
	mu       sync.RWMutex
}

// NewManager 未登记的端点共用 fallback
func NewManager(fallback RateLimiter) *Manager {
	return &Manager{limiters: make(map[string]RateLimiter), fallback: fallback}
}

// NewExchangeManager 交易所常用端点的默认限流：下单/撤单更严，查询宽松。
// perSecond 是查询类请求的每秒上限。
func NewExchangeManager(perSecond float64) *Manager {
	if perSecond <= 0 {
		perSecond = 10
	}
	m := NewManager(NewTokenBucket(int(perSecond*2), perSecond))
	m.Set("order", NewTokenBucket(int(perSecond), perSecond/2))
	m.Set("query", NewTokenBucket(int(perSecond*2), perSecond))
	m.Set("public", NewTokenBucket(int(perSecond*2), perSecond*2))
	return m
}

// Set 登记端点限流器
func (m *Manager) Set(endpoint string, l RateLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[endpoint] = l
}

// Get 端点对应的限流器
func (m *Manager) Get(endpoint string) RateLimiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.limiters[endpoint]; ok {
		return l
	}
	return m.fallback
}

// Wait 等待端点的令牌；nil Manager 不限流
func (m *Manager) Wait(ctx context.Context, endpoint string) error {
	if m == nil {
		return nil
	}
	l := m.Get(endpoint)
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
