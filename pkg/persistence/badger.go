package persistence

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

const openOrderPrefix = "open_order:"

// ErrLocked 目录锁被另一个进程持有（通常是正在运行的 run）
var ErrLocked = errors.New("persistence: badger directory is locked by another process")

// BadgerStore keeps the open-order set in an embedded Badger KV, one key per order.
type BadgerStore struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the DB unencrypted
	ReadOnly      bool
	InMemory      bool // tests
}

func OpenBadger(opts OpenOptions) (*BadgerStore, error) {
	if strings.TrimSpace(opts.Path) == "" && !opts.InMemory {
		return nil, errors.New("persistence: badger path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		// badger 没有导出锁冲突的错误值，只能看文本
		if strings.Contains(err.Error(), "Another process is using this Badger database") {
			return nil, fmt.Errorf("open badger %s: %w (%v)", opts.Path, ErrLocked, err)
		}
		return nil, fmt.Errorf("open badger %s: %w", opts.Path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) Put(_ context.Context, o domain.OpenOrder) error {
	if o.OrderID == "" {
		return errors.New("persistence: order id is empty")
	}
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(openOrderPrefix+o.OrderID), b)
	})
}

func (s *BadgerStore) List(_ context.Context) ([]domain.OpenOrder, error) {
	var out []domain.OpenOrder
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(openOrderPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var o domain.OpenOrder
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &o)
			}); err != nil {
				return err
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreated(out)
	return out, nil
}

func (s *BadgerStore) Remove(_ context.Context, orderID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(openOrderPrefix + orderID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ParseKey expects 32 bytes (hex or base64). Returns nil if input is empty.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
