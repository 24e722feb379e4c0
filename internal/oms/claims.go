package oms

import (
	"hash/fnv"
	"sync"
)

// Claims 按订单 ID 的独占权。
//
// Tracker 从提交订单起持有该订单的 claim，直到确认成交或超时撤单并删除记录；
// Reconciler 只处理能拿到 claim 的订单。这样同一订单的撤单/删除不会被两方同时执行。
// 与去重窗口不同，claim 没有 TTL，必须显式 Release。
type Claims struct {
	shards []claimShard
}

type claimShard struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// NewClaims shardCount<=0 时使用 64
func NewClaims(shardCount int) *Claims {
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]claimShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]struct{})
	}
	return &Claims{shards: shards}
}

// TryClaim 获取独占权；已被持有时返回 false。nil Claims 总是成功。
func (c *Claims) TryClaim(orderID string) bool {
	if c == nil || orderID == "" {
		return true
	}
	sh := c.shard(orderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, held := sh.m[orderID]; held {
		return false
	}
	sh.m[orderID] = struct{}{}
	return true
}

// Release 释放独占权
func (c *Claims) Release(orderID string) {
	if c == nil || orderID == "" {
		return
	}
	sh := c.shard(orderID)
	sh.mu.Lock()
	delete(sh.m, orderID)
	sh.mu.Unlock()
}

// Held 是否被持有
func (c *Claims) Held(orderID string) bool {
	if c == nil {
		return false
	}
	sh := c.shard(orderID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, held := sh.m[orderID]
	return held
}

func (c *Claims) shard(key string) *claimShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.shards[h.Sum32()%uint32(len(c.shards))]
}
