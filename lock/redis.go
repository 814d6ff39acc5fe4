package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xiaoxuxiansheng/redis_lock"
)

type redisToken struct {
	key  string
	lock *redis_lock.RedisLock
}

func (r *redisToken) Key() string {
	return r.key
}

// RedisLocker 基于 redis 的分布式锁. 锁的持有者身份由 redis_lock 按照进程 + 协程生成，
// 因此加锁与释放需要在同一个协程中完成，WithLock 满足这一约束
type RedisLocker struct {
	client *redis_lock.Client
}

func NewRedisLocker(client *redis_lock.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
	}
}

func expireSeconds(ttl time.Duration) int64 {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return seconds
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Token, error) {
	lock := redis_lock.NewRedisLock(key, r.client, redis_lock.WithExpireSeconds(expireSeconds(ttl)))
	if err := lock.Lock(ctx); err != nil {
		return nil, fmt.Errorf("%w: key: %s, err: %v", ErrLockContention, key, err)
	}
	return &redisToken{key: key, lock: lock}, nil
}

func (r *RedisLocker) Release(ctx context.Context, token Token) error {
	t, ok := token.(*redisToken)
	if !ok {
		return errors.New("invalid redis lock token")
	}
	return t.lock.Unlock(ctx)
}
