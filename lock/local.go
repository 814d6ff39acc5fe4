package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localToken struct {
	key    string
	holder string
}

func (l *localToken) Key() string {
	return l.key
}

type localEntry struct {
	holder     string
	acquiredAt time.Time
	expireAt   time.Time
}

// LocalLocker 单进程内的锁实现，支持 ttl 过期，适用于单节点部署和测试
type LocalLocker struct {
	mux   sync.Mutex
	locks map[string]*localEntry
	now   func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*localEntry),
		now:   time.Now,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mux.Lock()
	defer l.mux.Unlock()

	now := l.now()
	if entry, ok := l.locks[key]; ok && now.Before(entry.expireAt) {
		return nil, fmt.Errorf("%w: key: %s, holder: %s", ErrLockContention, key, entry.holder)
	}

	holder := uuid.NewString()
	l.locks[key] = &localEntry{
		holder:     holder,
		acquiredAt: now,
		expireAt:   now.Add(ttl),
	}
	return &localToken{key: key, holder: holder}, nil
}

func (l *LocalLocker) Release(ctx context.Context, token Token) error {
	t, ok := token.(*localToken)
	if !ok {
		return errors.New("invalid local lock token")
	}

	l.mux.Lock()
	defer l.mux.Unlock()

	entry, ok := l.locks[t.key]
	if !ok || entry.holder != t.holder {
		// 锁已过期并被他人获取，不能误删
		return fmt.Errorf("lock not held, key: %s", t.key)
	}
	delete(l.locks, t.key)
	return nil
}
