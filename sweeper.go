package ordertcc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xiaoxuxiansheng/ordertcc/lock"
	"github.com/xiaoxuxiansheng/ordertcc/log"
	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

const sweeperLockKey = "expired-pending-sweeper"

type SweeperOptions struct {
	// 轮询间隔
	Tick time.Duration
	// pending 订单超过该时长未 confirm 即被取消
	PendingTimeout time.Duration
	// 单轮处理的订单数上限
	BatchSize int
}

type SweeperOption func(*SweeperOptions)

func WithSweepTick(tick time.Duration) SweeperOption {
	if tick <= 0 {
		tick = 10 * time.Second
	}

	return func(o *SweeperOptions) {
		o.Tick = tick
	}
}

func WithPendingTimeout(timeout time.Duration) SweeperOption {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}

	return func(o *SweeperOptions) {
		o.PendingTimeout = timeout
	}
}

func WithSweepBatch(size int) SweeperOption {
	if size <= 0 {
		size = 100
	}

	return func(o *SweeperOptions) {
		o.BatchSize = size
	}
}

func repairSweeper(o *SweeperOptions) {
	if o.Tick <= 0 {
		o.Tick = 10 * time.Second
	}

	if o.PendingTimeout <= 0 {
		o.PendingTimeout = 15 * time.Minute
	}

	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
}

// Sweeper 定时扫描超时未支付的 pending 订单并发起 cancel.
// 多个节点同时运行时，通过分布式锁保证同一时刻只有一个节点在扫描
type Sweeper struct {
	ctx         context.Context
	stop        context.CancelFunc
	opts        *SweeperOptions
	coordinator *TXCoordinator
	now         func() time.Time
}

func NewSweeper(coordinator *TXCoordinator, opts ...SweeperOption) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	s := Sweeper{
		ctx:         ctx,
		stop:        cancel,
		opts:        &SweeperOptions{},
		coordinator: coordinator,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s.opts)
	}

	repairSweeper(s.opts)
	return &s
}

// Start 启动后台扫描协程
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	s.stop()
}

func (s *Sweeper) backOffTick(tick time.Duration) time.Duration {
	tick <<= 1
	if threshold := s.opts.Tick << 3; tick > threshold {
		return threshold
	}
	return tick
}

func (s *Sweeper) run() {
	var tick time.Duration
	var err error
	for {
		// 出现失败时，按照退避策略增大 tick 间隔
		if err == nil {
			tick = s.opts.Tick
		} else {
			tick = s.backOffTick(tick)
		}
		select {
		case <-s.ctx.Done():
			return

		case <-time.After(tick):
			_, err = s.SweepOnce(s.ctx)
			if errors.Is(err, lock.ErrLockContention) {
				// 锁被其他节点占有，不对 tick 进行退避
				err = nil
			}
			if err != nil {
				log.ErrorContextf(s.ctx, "sweep expired pending orders failed, next tick: %v, err: %v", s.backOffTick(tick), err)
			}
		}
	}
}

// SweepOnce 扫描一轮，返回成功取消的订单数. 每笔订单在订单锁内重新校验状态，扫描之后才被 confirm 的订单不会被取消
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var cancelled int
	err := lock.WithLock(ctx, s.coordinator.locker, sweeperLockKey, "sweeper", s.opts.Tick, func(ctx context.Context) error {
		orders, err := s.coordinator.orders.ListExpiredPending(ctx, s.now().Add(-s.opts.PendingTimeout), s.opts.BatchSize)
		if err != nil {
			return err
		}
		cancelled, err = s.batchCancel(ctx, orders)
		return err
	})
	s.coordinator.opts.Metrics.ObserveSwept(cancelled)
	return cancelled, err
}

// discarded 超时处理的结果是否为订单作废
func discarded(outcome txlog.OutcomeType) bool {
	switch outcome {
	case txlog.CancelOutcomeAfterTry, txlog.CancelOutcomeAfterConfirm, txlog.CancelOutcomeReplay:
		return true
	default:
		return false
	}
}

func (s *Sweeper) batchCancel(ctx context.Context, orders []*Order) (int, error) {
	type result struct {
		orderID string
		outcome txlog.OutcomeType
		err     error
	}

	resultCh := make(chan result)
	go func() {
		var wg sync.WaitGroup
		for _, order := range orders {
			order := order
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := result{orderID: order.OrderID}
				resp, err := s.coordinator.expire(ctx, order.OrderID, order.Scene)
				if err != nil {
					res.err = err
				} else {
					res.outcome = resp.Outcome
				}
				resultCh <- res
			}()
		}
		wg.Wait()
		close(resultCh)
	}()

	var (
		cancelled int
		firstErr  error
	)
	for res := range resultCh {
		if res.err == nil {
			if discarded(res.outcome) {
				cancelled++
			} else {
				log.InfoContextf(ctx, "expired order not cancelled, order id: %s, outcome: %s", res.orderID, res.outcome)
			}
			continue
		}
		log.WarnContextf(ctx, "cancel expired order failed, order id: %s, err: %v", res.orderID, res.err)
		if firstErr == nil {
			firstErr = fmt.Errorf("cancel expired order: %s: %w", res.orderID, res.err)
		}
	}
	return cancelled, firstErr
}
