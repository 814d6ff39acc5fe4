package txlog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrProtocolViolation 违反 TCC 协议的调用，例如未 try 先 confirm. 需要直接中止，不能进行补偿
var ErrProtocolViolation = errors.New("tcc protocol violation")

// Service 事务日志服务. 负责记录一笔事务在当前参与方的生命周期，并对每一次调用的结果进行分类.
// 同一个 Key 的调用需要由调用方通过分布式锁串行化，Service 本身只依赖 Store 的唯一键约束
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Get 查询事务日志
func (s *Service) Get(ctx context.Context, key Key) (*Entry, error) {
	return s.store.Get(ctx, key)
}

func (s *Service) get(ctx context.Context, key Key) (*Entry, bool, error) {
	entry, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Try 首次调用时创建 tried 记录
func (s *Service) Try(ctx context.Context, key Key) (OutcomeType, error) {
	entry, ok, err := s.get(ctx, key)
	if err != nil {
		return "", err
	}

	now := s.now()
	if !ok {
		entry = &Entry{
			Key:       key,
			Phase:     PhaseTried,
			Tried:     true,
			CreatedAt: now,
		}
		entry.record(TryOutcomeSuccess, now)
		if err = s.store.Create(ctx, entry); err != nil {
			return "", err
		}
		return TryOutcomeSuccess, nil
	}

	outcome := TryOutcomeAlreadyTried
	if !entry.Tried {
		// 空回滚之后才到达的 try 请求，不能再执行
		outcome = TryOutcomeSuspended
	}
	entry.record(outcome, now)
	if err = s.store.Update(ctx, entry); err != nil {
		return "", err
	}
	return outcome, nil
}

// Confirm 要求此前必须已经 try 过
func (s *Service) Confirm(ctx context.Context, key Key) (OutcomeType, error) {
	entry, ok, err := s.get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: confirm without try, key: %s", ErrProtocolViolation, key)
	}

	var outcome OutcomeType
	switch entry.Phase {
	case PhaseTried:
		outcome = ConfirmOutcomeSuccess
		entry.Phase = PhaseConfirmed
		entry.Confirmed = true
	case PhaseConfirmed:
		outcome = ConfirmOutcomeReplay
	default:
		return "", fmt.Errorf("%w: confirm in phase: %s, key: %s", ErrProtocolViolation, entry.Phase, key)
	}

	entry.record(outcome, s.now())
	if err = s.store.Update(ctx, entry); err != nil {
		return "", err
	}
	return outcome, nil
}

// Cancel 区分 try 后回滚、confirm 后回滚、空回滚以及重复回滚
func (s *Service) Cancel(ctx context.Context, key Key) (OutcomeType, error) {
	entry, ok, err := s.get(ctx, key)
	if err != nil {
		return "", err
	}

	now := s.now()
	if !ok {
		// 空回滚也需要留下记录，用于拦截之后到达的 try 请求
		entry = &Entry{
			Key:       key,
			Phase:     PhaseCanceled,
			CreatedAt: now,
		}
		entry.record(CancelOutcomeWithoutTry, now)
		if err = s.store.Create(ctx, entry); err != nil {
			return "", err
		}
		return CancelOutcomeWithoutTry, nil
	}

	var outcome OutcomeType
	switch entry.Phase {
	case PhaseTried:
		outcome = CancelOutcomeAfterTry
	case PhaseConfirmed:
		outcome = CancelOutcomeAfterConfirm
	default:
		outcome = CancelOutcomeReplay
	}

	entry.Phase = PhaseCanceled
	entry.record(outcome, now)
	if err = s.store.Update(ctx, entry); err != nil {
		return "", err
	}
	return outcome, nil
}
