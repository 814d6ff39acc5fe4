package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xiaoxuxiansheng/ordertcc/log"
)

// ErrLockContention 锁已被其他调用方持有，由调用方决定是否重试
var ErrLockContention = errors.New("lock contention")

// Token 一次成功加锁的凭证，释放锁时需要原样归还
type Token interface {
	Key() string
}

// Locker 分布式锁提供方
type Locker interface {
	// Acquire 非阻塞加锁，锁被占用时返回 ErrLockContention
	Acquire(ctx context.Context, key string, ttl time.Duration) (Token, error)
	// Release 释放锁
	Release(ctx context.Context, token Token) error
}

// BuildKey 锁 key 需要带上 scene，不同类型的事务在同一个业务 id 上互不阻塞.
// scene 带长度前缀，避免 scene 或 scopeKey 中的 ':' 导致不同的锁落在同一个 key 上
func BuildKey(scopeKey, scene string) string {
	return fmt.Sprintf("ordertcc:lock:%d:%s:%s", len(scene), scene, scopeKey)
}

// WithLock 加锁 -> 执行 body -> 释放锁. body 返回错误或者 panic 时同样会释放锁
func WithLock(ctx context.Context, locker Locker, scopeKey, scene string, ttl time.Duration, body func(ctx context.Context) error) (err error) {
	key := BuildKey(scopeKey, scene)
	token, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, ErrLockContention) {
			return err
		}
		return fmt.Errorf("%w: key: %s, err: %v", ErrLockContention, key, err)
	}

	defer func() {
		// 锁释放失败不影响 body 的结果，最坏情况等待 ttl 过期
		if _err := locker.Release(context.WithoutCancel(ctx), token); _err != nil {
			log.WarnContextf(ctx, "release lock failed, key: %s, err: %v", key, _err)
		}
	}()

	return body(ctx)
}
