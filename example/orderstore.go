package example

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/xiaoxuxiansheng/ordertcc"
	expdao "github.com/xiaoxuxiansheng/ordertcc/example/dao"
)

type OrderStore struct {
	dao *expdao.OrderDAO
}

func NewOrderStore(dao *expdao.OrderDAO) *OrderStore {
	return &OrderStore{
		dao: dao,
	}
}

func (o *OrderStore) InsertPending(ctx context.Context, order *ordertcc.Order) error {
	po := toOrderPO(order)
	po.Status = ordertcc.OrderPending.String()
	po.PayStatus = ordertcc.PayUnpaid.String()
	if err := o.dao.CreateOrder(ctx, po); err != nil {
		return fmt.Errorf("create order: %s, err: %w", order.OrderID, err)
	}
	return nil
}

func (o *OrderStore) MarkConfirmed(ctx context.Context, orderID string) error {
	return o.update(ctx, orderID, func(order *expdao.OrderPO) {
		order.Status = ordertcc.OrderConfirmed.String()
		order.PayStatus = ordertcc.PayPaid.String()
	})
}

// MarkDiscarded 未支付的订单置为 cancelled，已支付的置为 refunded
func (o *OrderStore) MarkDiscarded(ctx context.Context, orderID string) error {
	return o.update(ctx, orderID, func(order *expdao.OrderPO) {
		if order.PayStatus == ordertcc.PayPaid.String() {
			order.Status = ordertcc.OrderRefunded.String()
			return
		}
		order.Status = ordertcc.OrderCancelled.String()
	})
}

func (o *OrderStore) update(ctx context.Context, orderID string, modify func(order *expdao.OrderPO)) error {
	err := o.dao.LockAndDo(ctx, orderID, func(ctx context.Context, dao *expdao.OrderDAO, order *expdao.OrderPO) error {
		modify(order)
		return dao.UpdateOrder(ctx, order)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ordertcc.ErrOrderNotFound, orderID)
	}
	return err
}

func (o *OrderStore) GetOrder(ctx context.Context, orderID string) (*ordertcc.Order, error) {
	orders, err := o.dao.GetOrders(ctx, expdao.WithOrderID(orderID))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: %s", ordertcc.ErrOrderNotFound, orderID)
	}
	return toOrder(orders[0]), nil
}

func (o *OrderStore) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*ordertcc.Order, error) {
	pos, err := o.dao.GetOrders(ctx,
		expdao.WithStatus(ordertcc.OrderPending.String()),
		expdao.WithCreatedBefore(before),
		expdao.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}

	orders := make([]*ordertcc.Order, 0, len(pos))
	for _, po := range pos {
		orders = append(orders, toOrder(po))
	}
	return orders, nil
}

func toOrderPO(order *ordertcc.Order) *expdao.OrderPO {
	return &expdao.OrderPO{
		OrderID:        order.OrderID,
		OrderNo:        order.OrderNo,
		Scene:          order.Scene,
		UserID:         order.UserID,
		GoodsID:        order.GoodsID,
		GoodsType:      order.GoodsType.String(),
		CoinQuantity:   order.CoinQuantity,
		Quantity:       order.Quantity,
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		FinalAmount:    order.FinalAmount,
		Status:         order.Status.String(),
		PayStatus:      order.PayStatus.String(),
	}
}

func toOrder(po *expdao.OrderPO) *ordertcc.Order {
	return &ordertcc.Order{
		OrderID:        po.OrderID,
		OrderNo:        po.OrderNo,
		Scene:          po.Scene,
		UserID:         po.UserID,
		GoodsID:        po.GoodsID,
		GoodsType:      ordertcc.GoodsType(po.GoodsType),
		CoinQuantity:   po.CoinQuantity,
		Quantity:       po.Quantity,
		TotalAmount:    po.TotalAmount,
		DiscountAmount: po.DiscountAmount,
		FinalAmount:    po.FinalAmount,
		Status:         ordertcc.OrderStatus(po.Status),
		PayStatus:      ordertcc.PayStatus(po.PayStatus),
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
	}
}
