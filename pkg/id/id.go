// Package id 生成按时间排序的记录 ID（ULID）。
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// 同一毫秒内生成的 ID 仍然单调递增
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New 以当前时间生成 ULID
func New() string {
	return At(time.Now())
}

// At 以给定时间生成 ULID，交易/事件记录用其时间戳，保证 ID 顺序与记录时间一致
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	v, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// 单调熵溢出或时间倒退时退化为非单调 ID
		return ulid.MustNew(ulid.Timestamp(t.UTC()), cryptoRand.Reader).String()
	}
	return v.String()
}
