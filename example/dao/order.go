package dao

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderPO struct {
	gorm.Model
	OrderID        string          `gorm:"column:order_id;type:varchar(64);uniqueIndex"`
	OrderNo        string          `gorm:"column:order_no;type:varchar(32);uniqueIndex"`
	Scene          string          `gorm:"column:scene"`
	UserID         uint64          `gorm:"column:user_id;index"`
	GoodsID        uint64          `gorm:"column:goods_id"`
	GoodsType      string          `gorm:"column:goods_type"`
	CoinQuantity   int64           `gorm:"column:coin_quantity"`
	Quantity       int64           `gorm:"column:quantity"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount;type:decimal(20,2)"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:decimal(20,2)"`
	FinalAmount    decimal.Decimal `gorm:"column:final_amount;type:decimal(20,2)"`
	Status         string          `gorm:"column:status;index"`
	PayStatus      string          `gorm:"column:pay_status"`
}

func (o OrderPO) TableName() string {
	return "orders"
}

type OrderDAO struct {
	db *gorm.DB
}

func NewOrderDAO(db *gorm.DB) *OrderDAO {
	return &OrderDAO{
		db: db,
	}
}

func (o *OrderDAO) GetOrders(ctx context.Context, opts ...QueryOption) ([]*OrderPO, error) {
	db := o.db.WithContext(ctx).Model(&OrderPO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var orders []*OrderPO
	return orders, db.Scan(&orders).Error
}

func (o *OrderDAO) CreateOrder(ctx context.Context, order *OrderPO) error {
	return o.db.WithContext(ctx).Model(&OrderPO{}).Create(order).Error
}

func (o *OrderDAO) UpdateOrder(ctx context.Context, order *OrderPO) error {
	return o.db.WithContext(ctx).Updates(order).Error
}

func (o *OrderDAO) LockAndDo(ctx context.Context, orderID string, do func(ctx context.Context, dao *OrderDAO, order *OrderPO) error) error {
	return o.db.Transaction(func(tx *gorm.DB) error {
		// 加写锁
		var order OrderPO
		if err := WithOrderID(orderID)(tx.WithContext(ctx)).
			Clauses(clause.Locking{Strength: "UPDATE"}).First(&order).Error; err != nil {
			return err
		}

		txDAO := NewOrderDAO(tx)
		return do(ctx, txDAO, &order)
	})
}
