package idempotent

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaBegin 记录不存在或者为 failed 时抢占为 in-progress，返回空状态；否则返回已有的状态和结果
const luaBegin = `
local key = KEYS[1]
local status = redis.call('HGET', key, 'status')
if status == false or status == 'failed' then
  redis.call('HSET', key, 'status', 'in-progress', 'token', ARGV[1], 'result', '')
  redis.call('PEXPIRE', key, tonumber(ARGV[2]))
  return {'', ''}
end
local result = redis.call('HGET', key, 'result')
if result == false then
  result = ''
end
return {status, result}
`

// luaFinish 仅当记录处于 in-progress 且 token 一致时推进状态. completed 且 ttl <= 0 时移除过期时间
const luaFinish = `
local key = KEYS[1]
if redis.call('HGET', key, 'status') ~= 'in-progress' then
  return 0
end
if redis.call('HGET', key, 'token') ~= ARGV[1] then
  return 0
end
redis.call('HSET', key, 'status', ARGV[2], 'result', ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
elseif ARGV[2] == 'completed' then
  redis.call('PERSIST', key)
end
return 1
`

// RedisStore 基于 redis hash 的幂等记录存储，状态推进通过 lua 脚本保证原子性
type RedisStore struct {
	rdb *rd.Client
}

func NewRedisStore(rdb *rd.Client) *RedisStore {
	return &RedisStore{
		rdb: rdb,
	}
}

func (r *RedisStore) Begin(ctx context.Context, key, token string, ttl time.Duration) (*Record, bool, error) {
	reply, err := r.rdb.Eval(ctx, luaBegin, []string{key}, token, ttl.Milliseconds()).StringSlice()
	if err != nil {
		return nil, false, err
	}
	if len(reply) != 2 {
		return nil, false, fmt.Errorf("unexpected begin reply: %v", reply)
	}
	if reply[0] == "" {
		return nil, true, nil
	}

	record := Record{
		Key:    key,
		Status: Status(reply[0]),
	}
	if reply[1] != "" {
		record.Result = []byte(reply[1])
	}
	return &record, false, nil
}

func (r *RedisStore) finish(ctx context.Context, key, token string, status Status, result []byte, ttl time.Duration) error {
	n, err := r.rdb.Eval(ctx, luaFinish, []string{key}, token, status.String(), string(result), ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: key: %s", ErrRecordNotHeld, key)
	}
	return nil
}

func (r *RedisStore) Complete(ctx context.Context, key, token string, result []byte, ttl time.Duration) error {
	return r.finish(ctx, key, token, StatusCompleted, result, ttl)
}

func (r *RedisStore) Fail(ctx context.Context, key, token string) error {
	return r.finish(ctx, key, token, StatusFailed, nil, 0)
}
