package txlog

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrEntryNotFound = errors.New("tx log entry not found")
	ErrEntryExisted  = errors.New("tx log entry existed")
)

// 事务日志存储模块
type Store interface {
	// 获取一条事务日志，不存在时返回 ErrEntryNotFound
	Get(ctx context.Context, key Key) (*Entry, error)
	// 创建一条事务日志，已存在时返回 ErrEntryExisted
	Create(ctx context.Context, entry *Entry) error
	// 更新事务日志的阶段及调用记录
	Update(ctx context.Context, entry *Entry) error
}

// MemoryStore 基于内存 map 的实现，用于单节点和测试
type MemoryStore struct {
	mux     sync.Mutex
	entries map[Key]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]*Entry),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (*Entry, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry.clone(), nil
}

func (m *MemoryStore) Create(ctx context.Context, entry *Entry) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.entries[entry.Key]; ok {
		return ErrEntryExisted
	}
	m.entries[entry.Key] = entry.clone()
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, entry *Entry) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if _, ok := m.entries[entry.Key]; !ok {
		return ErrEntryNotFound
	}
	m.entries[entry.Key] = entry.clone()
	return nil
}
