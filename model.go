package ordertcc

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xiaoxuxiansheng/ordertcc/txlog"
)

// 商品类型
type GoodsType string

func (g GoodsType) String() string {
	return string(g)
}

const (
	GoodsNormal GoodsType = "normal"
	// 金币类商品，确认后需要给买家钱包入账金币
	GoodsCoin GoodsType = "coin"
)

type Goods struct {
	ID    uint64          `json:"id"`
	Name  string          `json:"name"`
	Type  GoodsType       `json:"type"`
	Price decimal.Decimal `json:"price"`
	// 每件商品对应的金币数量，仅金币类商品有效
	CoinAmount int64 `json:"coinAmount"`
	Stock      int64 `json:"stock"`
}

// 订单状态
type OrderStatus string

func (o OrderStatus) String() string {
	return string(o)
}

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

// 支付状态
type PayStatus string

func (p PayStatus) String() string {
	return string(p)
}

const (
	PayUnpaid PayStatus = "unpaid"
	PayPaid   PayStatus = "paid"
)

// 订单
type Order struct {
	// 调用方提供的订单 id，重试时保持不变
	OrderID string `json:"orderID"`
	// 系统生成的订单号
	OrderNo        string          `json:"orderNo"`
	Scene          string          `json:"scene"`
	UserID         uint64          `json:"userID"`
	GoodsID        uint64          `json:"goodsID"`
	GoodsType      GoodsType       `json:"goodsType"`
	CoinQuantity   int64           `json:"coinQuantity"`
	Quantity       int64           `json:"quantity"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
	Status         OrderStatus     `json:"status"`
	PayStatus      PayStatus       `json:"payStatus"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// CoinDenominated 是否为金币类订单
func (o *Order) CoinDenominated() bool {
	return o.GoodsType == GoodsCoin && o.CoinQuantity > 0
}

// Discarded 订单是否已被作废. 未支付的订单作废后为 cancelled，已支付的为 refunded
func (o *Order) Discarded() bool {
	return o.Status == OrderCancelled || o.Status == OrderRefunded
}

// try 请求参数
type TryOrderReq struct {
	OrderID        string          `json:"orderID"`
	Scene          string          `json:"scene"`
	UserID         uint64          `json:"userID"`
	GoodsID        uint64          `json:"goodsID"`
	Quantity       int64           `json:"quantity"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// FinalAmount 实付金额
func (t *TryOrderReq) FinalAmount() decimal.Decimal {
	return t.TotalAmount.Sub(t.DiscountAmount)
}

func (t *TryOrderReq) validate() error {
	switch {
	case strings.TrimSpace(t.OrderID) == "":
		return fmt.Errorf("%w: empty order id", ErrInvalidOrder)
	case t.UserID == 0:
		return fmt.Errorf("%w: empty user id", ErrInvalidOrder)
	case t.GoodsID == 0:
		return fmt.Errorf("%w: empty goods id", ErrInvalidOrder)
	case t.Quantity <= 0:
		return fmt.Errorf("%w: quantity: %d", ErrInvalidOrder, t.Quantity)
	case !t.TotalAmount.IsPositive():
		return fmt.Errorf("%w: total amount: %s", ErrInvalidOrder, t.TotalAmount)
	case t.DiscountAmount.IsNegative():
		return fmt.Errorf("%w: discount amount: %s", ErrInvalidOrder, t.DiscountAmount)
	case !t.FinalAmount().IsPositive():
		return fmt.Errorf("%w: final amount: %s", ErrInvalidOrder, t.FinalAmount())
	}
	return nil
}

// confirm/cancel 请求参数
type TCCReq struct {
	OrderID string `json:"orderID"`
	Scene   string `json:"scene"`
}

// tcc 响应结果
type TCCResp struct {
	OrderID string `json:"orderID"`
	Scene   string `json:"scene"`
	OrderNo string `json:"orderNo,omitempty"`
	ACK     bool   `json:"ack"`
	// 本次调用的分类：首次成功、幂等重放、空回滚等
	Outcome txlog.OutcomeType `json:"outcome"`
}

// Replay 是否为幂等重放
func (t *TCCResp) Replay() bool {
	return t.Outcome.Replay()
}

// EmptyRollback 是否为空回滚
func (t *TCCResp) EmptyRollback() bool {
	return t.Outcome == txlog.CancelOutcomeWithoutTry
}
