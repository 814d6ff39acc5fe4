package ordertcc

import (
	"context"
	"errors"
	"time"

	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

var (
	// ErrProtocolViolation 违反 tcc 协议，例如未 try 先 confirm
	ErrProtocolViolation = txlog.ErrProtocolViolation
	// ErrTXSuspended 空回滚之后才到达的 try 请求
	ErrTXSuspended = errors.New("try arrived after cancel")

	ErrInvalidOrder  = errors.New("invalid order")
	ErrInvalidScene  = errors.New("invalid scene")
	ErrOrderNotFound = errors.New("order not found")
	ErrGoodsNotFound = errors.New("goods not found")
)

// 订单存储，每次调用需要保证原子性
type OrderStore interface {
	// 插入一笔 pending 状态的订单
	InsertPending(ctx context.Context, order *Order) error
	// 订单置为 confirmed + paid
	MarkConfirmed(ctx context.Context, orderID string) error
	// 订单作废
	MarkDiscarded(ctx context.Context, orderID string) error
	// 查询订单，不存在时返回 ErrOrderNotFound
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// 查询创建时间早于 before 的 pending 订单
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}

// 商品查询，不存在时返回 ErrGoodsNotFound
type GoodsReader interface {
	GetGoods(ctx context.Context, goodsID uint64) (*Goods, error)
}

// 钱包结算服务. 同一个 referenceOrderNo 的重复入账/扣减由钱包侧保证幂等
type WalletSettler interface {
	CreditBalance(ctx context.Context, userID uint64, coins int64, referenceOrderNo, memo string) error
	DebitBalance(ctx context.Context, userID uint64, coins int64, referenceOrderNo, memo string) error
}
