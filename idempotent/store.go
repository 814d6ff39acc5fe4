package idempotent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrRecordNotHeld = errors.New("idempotent record not held")

type memoryRecord struct {
	Record
	expireAt time.Time
}

// expireAt 为零值表示永不过期
func (m *memoryRecord) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && !now.Before(m.expireAt)
}

// MemoryStore 进程内实现
type MemoryStore struct {
	mux     sync.Mutex
	records map[string]*memoryRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}
}

func (m *MemoryStore) Begin(ctx context.Context, key, token string, ttl time.Duration) (*Record, bool, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	now := m.now()
	if record, ok := m.records[key]; ok && !record.expired(now) && record.Status != StatusFailed {
		cp := record.Record
		return &cp, false, nil
	}

	m.records[key] = &memoryRecord{
		Record: Record{
			Key:    key,
			Status: StatusInProgress,
			Token:  token,
		},
		expireAt: now.Add(ttl),
	}
	return nil, true, nil
}

func (m *MemoryStore) held(key, token string) (*memoryRecord, error) {
	record, ok := m.records[key]
	if !ok || record.Status != StatusInProgress || record.Token != token {
		return nil, fmt.Errorf("%w: key: %s", ErrRecordNotHeld, key)
	}
	return record, nil
}

func (m *MemoryStore) Complete(ctx context.Context, key, token string, result []byte, ttl time.Duration) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	record, err := m.held(key, token)
	if err != nil {
		return err
	}
	record.Status = StatusCompleted
	record.Result = result
	record.expireAt = time.Time{}
	if ttl > 0 {
		record.expireAt = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryStore) Fail(ctx context.Context, key, token string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	record, err := m.held(key, token)
	if err != nil {
		return err
	}
	record.Status = StatusFailed
	return nil
}
