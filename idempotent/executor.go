package idempotent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoxuxiansheng/ordertcc/log"
)

// ErrDuplicateRequest 相同幂等键的请求正在执行中
var ErrDuplicateRequest = errors.New("duplicate request")

// 幂等记录的状态
type Status string

func (s Status) String() string {
	return string(s)
}

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// 幂等记录
type Record struct {
	Key    string
	Status Status
	Token  string
	Result []byte
}

// 幂等记录存储模块
type Store interface {
	// Begin 记录不存在或者为 failed 状态时，原子地置为 in-progress 并返回 started = true;
	// 否则返回已有的记录
	Begin(ctx context.Context, key, token string, ttl time.Duration) (record *Record, started bool, err error)
	// Complete 仅当记录处于 in-progress 且 token 一致时，置为 completed 并缓存结果
	Complete(ctx context.Context, key, token string, result []byte, ttl time.Duration) error
	// Fail 仅当记录处于 in-progress 且 token 一致时，置为 failed
	Fail(ctx context.Context, key, token string) error
}

// BuildKey 幂等键由操作名称、调用方提供的 token 以及业务 id 共同决定.
// 业务 id 带长度前缀，token 由调用方提供，可能包含任意字符
func BuildKey(operation, token, bizID string) string {
	return fmt.Sprintf("ordertcc:idem:%s:%d:%s:%s", operation, len(bizID), bizID, token)
}

type Options struct {
	// in-progress 记录的过期时间，避免进程崩溃后永久阻塞
	InProgressTTL time.Duration
	// completed 记录的保留时长，<= 0 时永久保留.
	// 设置了保留时长时，记录过期之后同一个幂等键会重新执行 operation
	RecordTTL time.Duration
}

type Option func(*Options)

func WithInProgressTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.InProgressTTL = ttl
	}
}

func WithRecordTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.RecordTTL = ttl
	}
}

func repair(o *Options) {
	if o.InProgressTTL <= 0 {
		o.InProgressTTL = time.Minute
	}
}

// Executor 保证同一个幂等键对应的操作至多成功执行一次
type Executor struct {
	store Store
	opts  *Options
}

func NewExecutor(store Store, opts ...Option) *Executor {
	e := Executor{
		store: store,
		opts:  &Options{},
	}
	for _, opt := range opts {
		opt(e.opts)
	}
	repair(e.opts)
	return &e
}

// Execute 首次执行 operation 并缓存结果；已完成的直接返回缓存结果；执行中的快速失败
func (e *Executor) Execute(ctx context.Context, key string, operation func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	token := uuid.NewString()
	record, started, err := e.store.Begin(ctx, key, token, e.opts.InProgressTTL)
	if err != nil {
		return nil, err
	}

	if !started {
		switch record.Status {
		case StatusCompleted:
			log.InfoContextf(ctx, "idempotent replay, key: %s", key)
			return record.Result, nil
		default:
			return nil, fmt.Errorf("%w: key: %s, status: %s", ErrDuplicateRequest, key, record.Status)
		}
	}

	result, err := operation(ctx)
	if err != nil {
		if _err := e.store.Fail(context.WithoutCancel(ctx), key, token); _err != nil {
			log.ErrorContextf(ctx, "mark idempotent record failed err, key: %s, err: %v", key, _err)
		}
		return nil, err
	}

	if err = e.store.Complete(context.WithoutCancel(ctx), key, token, result, e.opts.RecordTTL); err != nil {
		// 副作用已经生效，结果缓存失败只记录日志. in-progress 记录会在 ttl 后过期
		log.ErrorContextf(ctx, "complete idempotent record err, key: %s, err: %v", key, err)
	}
	return result, nil
}
