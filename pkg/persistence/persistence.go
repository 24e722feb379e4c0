// Package persistence 本地挂单集合的存储后端：Badger、JSON 文件、内存。
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/pkg/logger"
)

func sortByCreated(out []domain.OpenOrder) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}

// MemoryStore 内存挂单集合（测试与 paper 模式）
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]domain.OpenOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]domain.OpenOrder)}
}

func (s *MemoryStore) Put(_ context.Context, o domain.OpenOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.OrderID] = o
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.OpenOrder, error) {
	s.mu.Lock()
	out := make([]domain.OpenOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	s.mu.Unlock()
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) Remove(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, orderID)
	return nil
}

// Len 当前记录数
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// JSONFileStore 整个集合存成一个 JSON 文件，写入时先写临时文件再 rename。
type JSONFileStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONFileStore path 为 JSON 文件路径，目录不存在时在首次写入时创建
func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) load() (map[string]domain.OpenOrder, error) {
	m := make(map[string]domain.OpenOrder)
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("解析挂单文件失败 %s: %w", s.path, err)
	}
	return m, nil
}

func (s *JSONFileStore) save(m map[string]domain.OpenOrder) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONFileStore) Put(_ context.Context, o domain.OpenOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[o.OrderID] = o
	logger.Debugf("[persistence] Put: orderID=%s path=%s", o.OrderID, s.path)
	return s.save(m)
}

func (s *JSONFileStore) List(_ context.Context) ([]domain.OpenOrder, error) {
	s.mu.Lock()
	m, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]domain.OpenOrder, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	sortByCreated(out)
	return out, nil
}

func (s *JSONFileStore) Remove(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[orderID]; !ok {
		return nil
	}
	delete(m, orderID)
	logger.Debugf("[persistence] Remove: orderID=%s path=%s", orderID, s.path)
	return s.save(m)
}
