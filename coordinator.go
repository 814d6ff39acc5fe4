package ordertcc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xiaoxuxiansheng/ordertcc/lock"
	"github.com/xiaoxuxiansheng/ordertcc/log"
	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

const (
	phaseTry     = "try"
	phaseConfirm = "confirm"
	phaseCancel  = "cancel"
	phaseExpire  = "expire"

	// 超时取消时订单已经不再是 pending，不做任何处理
	expireOutcomeSkipped txlog.OutcomeType = "EXPIRE_SKIPPED"

	walletCredit = "credit"
	walletDebit  = "debit"
)

// TXCoordinator 订单 tcc 事务协调器
// 1. 通过分布式锁串行化同一笔订单同一 scene 下的 try/confirm/cancel
// 2. 通过事务日志对每次调用进行分类，只有首次调用才执行真正的订单变更
// 3. 金币类商品在 confirm 时入账，confirm 之后的 cancel 扣回
type TXCoordinator struct {
	opts     *Options
	txLog    *txlog.Service
	locker   lock.Locker
	orders   OrderStore
	goods    GoodsReader
	wallet   WalletSettler
	registry *sceneRegistry
}

func NewTXCoordinator(txLog *txlog.Service, locker lock.Locker, orders OrderStore, goods GoodsReader, wallet WalletSettler, opts ...Option) *TXCoordinator {
	c := TXCoordinator{
		opts:   &Options{},
		txLog:  txLog,
		locker: locker,
		orders: orders,
		goods:  goods,
		wallet: wallet,
	}

	for _, opt := range opts {
		opt(c.opts)
	}

	repair(c.opts)

	c.registry = newSceneRegistry(append([]string{c.opts.DefaultScene}, c.opts.Scenes...)...)
	return &c
}

// RegisterScene 注册新的交易场景
func (c *TXCoordinator) RegisterScene(scene string) error {
	return c.registry.register(scene)
}

// Scenes 已注册的交易场景
func (c *TXCoordinator) Scenes() []string {
	return c.registry.list()
}

// TXLog 查询订单在某个 scene 下的事务日志
func (c *TXCoordinator) TXLog(ctx context.Context, orderID, scene string) (*txlog.Entry, error) {
	return c.txLog.Get(ctx, c.key(orderID, c.scene(scene)))
}

func (c *TXCoordinator) scene(scene string) string {
	if scene == "" {
		return c.opts.DefaultScene
	}
	return scene
}

func (c *TXCoordinator) key(orderID, scene string) txlog.Key {
	return txlog.Key{
		BizID:           orderID,
		Scene:           scene,
		ParticipantType: c.opts.Participant,
	}
}

// TryOrder 第一阶段，创建 pending 订单
func (c *TXCoordinator) TryOrder(ctx context.Context, req *TryOrderReq) (*TCCResp, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	return c.do(ctx, phaseTry, req.OrderID, req.Scene, func(ctx context.Context, resp *TCCResp) error {
		// 先校验商品，避免事务日志记录成功而订单无法落库
		goods, err := c.goods.GetGoods(ctx, req.GoodsID)
		if err != nil {
			return err
		}

		outcome, err := c.txLog.Try(ctx, c.key(resp.OrderID, resp.Scene))
		if err != nil {
			return err
		}
		resp.Outcome = outcome

		switch outcome {
		case txlog.TryOutcomeSuccess:
			order := c.buildOrder(req, resp.Scene, goods)
			if err = c.orders.InsertPending(ctx, order); err != nil {
				// 事务日志已经写入，之后的 cancel 会识别出订单未落库并按空回滚处理
				return fmt.Errorf("insert pending order: %w", err)
			}
			resp.OrderNo = order.OrderNo
		case txlog.TryOutcomeAlreadyTried:
			order, err := c.orders.GetOrder(ctx, resp.OrderID)
			if err != nil {
				// 此前的 try 记录了日志但订单未落库，需要调用方发起 cancel
				return fmt.Errorf("tried order not materialized: %w", err)
			}
			resp.OrderNo = order.OrderNo
		case txlog.TryOutcomeSuspended:
			return fmt.Errorf("%w: order id: %s, scene: %s", ErrTXSuspended, resp.OrderID, resp.Scene)
		}

		resp.ACK = true
		return nil
	})
}

func (c *TXCoordinator) buildOrder(req *TryOrderReq, scene string, goods *Goods) *Order {
	order := Order{
		OrderID:        req.OrderID,
		OrderNo:        c.opts.OrderNoGenerator(),
		Scene:          scene,
		UserID:         req.UserID,
		GoodsID:        req.GoodsID,
		GoodsType:      goods.Type,
		Quantity:       req.Quantity,
		TotalAmount:    req.TotalAmount,
		DiscountAmount: req.DiscountAmount,
		FinalAmount:    req.FinalAmount(),
		Status:         OrderPending,
		PayStatus:      PayUnpaid,
	}
	if goods.Type == GoodsCoin {
		// 入账的是金币数量，与支付金额无关
		order.CoinQuantity = goods.CoinAmount * req.Quantity
	}
	return &order
}

// ConfirmOrder 第二阶段确认，订单置为 confirmed，金币类商品给买家入账
func (c *TXCoordinator) ConfirmOrder(ctx context.Context, req *TCCReq) (*TCCResp, error) {
	return c.do(ctx, phaseConfirm, req.OrderID, req.Scene, c.confirm)
}

// confirm 日志先于订单推进. 日志已是 confirmed 而订单仍为 pending 时，说明此前的订单变更失败，
// 重放时补齐订单变更与入账，钱包侧以订单号保证入账幂等
func (c *TXCoordinator) confirm(ctx context.Context, resp *TCCResp) error {
	outcome, err := c.txLog.Confirm(ctx, c.key(resp.OrderID, resp.Scene))
	if err != nil {
		return err
	}
	resp.Outcome = outcome

	order, err := c.orders.GetOrder(ctx, resp.OrderID)
	if err != nil {
		return err
	}
	resp.OrderNo = order.OrderNo

	if order.Status == OrderPending {
		if outcome == txlog.ConfirmOutcomeReplay {
			log.WarnContextf(ctx, "confirmed tx log with pending order, resume order confirmation")
		}
		if err = c.orders.MarkConfirmed(ctx, resp.OrderID); err != nil {
			return fmt.Errorf("mark order confirmed: %w", err)
		}
		if order.CoinDenominated() {
			c.settle(ctx, walletCredit, order)
		}
	}

	resp.ACK = true
	return nil
}

// CancelOrder 第二阶段回滚，区分 try 后回滚、confirm 后回滚以及空回滚
func (c *TXCoordinator) CancelOrder(ctx context.Context, req *TCCReq) (*TCCResp, error) {
	return c.do(ctx, phaseCancel, req.OrderID, req.Scene, c.cancel)
}

// cancel 日志先于订单推进. 重放时订单尚未作废，说明此前的订单变更失败，需要补齐.
// 只有订单已经 confirmed 才扣回金币，confirm 日志推进而订单未确认时并没有入账
func (c *TXCoordinator) cancel(ctx context.Context, resp *TCCResp) error {
	outcome, err := c.txLog.Cancel(ctx, c.key(resp.OrderID, resp.Scene))
	if err != nil {
		return err
	}
	resp.Outcome = outcome
	if outcome == txlog.CancelOutcomeWithoutTry {
		resp.ACK = true
		return nil
	}

	order, err := c.orders.GetOrder(ctx, resp.OrderID)
	if errors.Is(err, ErrOrderNotFound) {
		if outcome.FirstTime() {
			// try 记录了日志但订单没有落库，没有需要回滚的数据
			log.WarnContextf(ctx, "order not materialized, treated as empty rollback, outcome: %s", outcome)
			resp.Outcome = txlog.CancelOutcomeWithoutTry
		}
		resp.ACK = true
		return nil
	}
	if err != nil {
		return err
	}
	resp.OrderNo = order.OrderNo

	if order.Discarded() {
		resp.ACK = true
		return nil
	}
	if outcome == txlog.CancelOutcomeReplay {
		log.WarnContextf(ctx, "cancelled tx log with %s order, resume order discard", order.Status)
	}

	if err = c.orders.MarkDiscarded(ctx, resp.OrderID); err != nil {
		return fmt.Errorf("mark order discarded: %w", err)
	}
	if order.Status == OrderConfirmed && order.CoinDenominated() {
		c.settle(ctx, walletDebit, order)
	}

	resp.ACK = true
	return nil
}

// expire 超时取消. 加锁之后重新读取订单，期间已经被 confirm 或者 cancel 的订单直接跳过;
// 日志已推进而订单仍为 pending 的，按日志所处阶段补齐 confirm 或 cancel
func (c *TXCoordinator) expire(ctx context.Context, orderID, scene string) (*TCCResp, error) {
	return c.do(ctx, phaseExpire, orderID, scene, func(ctx context.Context, resp *TCCResp) error {
		order, err := c.orders.GetOrder(ctx, resp.OrderID)
		if err != nil {
			return err
		}
		resp.OrderNo = order.OrderNo
		if order.Status != OrderPending {
			resp.Outcome = expireOutcomeSkipped
			resp.ACK = true
			return nil
		}

		entry, err := c.txLog.Get(ctx, c.key(resp.OrderID, resp.Scene))
		if err != nil {
			return err
		}
		if entry.Phase == txlog.PhaseConfirmed {
			return c.confirm(ctx, resp)
		}
		return c.cancel(ctx, resp)
	})
}

// settle 钱包入账/扣减失败只记录日志，不影响订单状态的推进
func (c *TXCoordinator) settle(ctx context.Context, direction string, order *Order) {
	var err error
	switch direction {
	case walletCredit:
		err = c.wallet.CreditBalance(ctx, order.UserID, order.CoinQuantity, order.OrderNo, fmt.Sprintf("order %s confirmed", order.OrderNo))
	default:
		err = c.wallet.DebitBalance(ctx, order.UserID, order.CoinQuantity, order.OrderNo, fmt.Sprintf("order %s cancelled", order.OrderNo))
	}
	if err != nil {
		c.opts.Metrics.ObserveWalletFailure(direction)
		log.ErrorContextf(ctx, "wallet %s failed, need reconciliation, user id: %d, coins: %d, order no: %s, err: %v",
			direction, order.UserID, order.CoinQuantity, order.OrderNo, err)
		return
	}
	log.InfoContextf(ctx, "wallet %s succeeded, user id: %d, coins: %d, order no: %s", direction, order.UserID, order.CoinQuantity, order.OrderNo)
}

// do 校验 scene -> 加锁 -> 执行 body -> 释放锁，并统一记录日志与监控
func (c *TXCoordinator) do(ctx context.Context, phase, orderID, scene string, body func(ctx context.Context, resp *TCCResp) error) (*TCCResp, error) {
	scene = c.scene(scene)
	if orderID == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrInvalidOrder)
	}
	if err := c.registry.check(scene); err != nil {
		return nil, err
	}

	ctx = log.WithFields(ctx, "order_id", orderID, "scene", scene, "phase", phase)
	resp := TCCResp{
		OrderID: orderID,
		Scene:   scene,
	}

	err := lock.WithLock(ctx, c.locker, orderID, scene, c.opts.LockExpire, func(ctx context.Context) error {
		start := time.Now()
		defer func() {
			c.opts.Metrics.ObserveLockHold(scene, phase, time.Since(start))
		}()
		return body(ctx, &resp)
	})
	if err != nil {
		c.opts.Metrics.ObserveError(scene, phase)
		log.ErrorContextf(ctx, "%s order failed, outcome: %s, err: %v", phase, resp.Outcome, err)
		return nil, err
	}

	c.opts.Metrics.ObserveOutcome(scene, phase, resp.Outcome.String())
	log.InfoContextf(ctx, "%s order done, outcome: %s, order no: %s", phase, resp.Outcome, resp.OrderNo)
	return &resp, nil
}
