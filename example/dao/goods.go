package dao

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GoodsPO struct {
	gorm.Model
	Name       string          `gorm:"column:name"`
	Type       string          `gorm:"column:type"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(20,2)"`
	CoinAmount int64           `gorm:"column:coin_amount"`
	Stock      int64           `gorm:"column:stock"`
}

func (g GoodsPO) TableName() string {
	return "goods"
}

type GoodsDAO struct {
	db *gorm.DB
}

func NewGoodsDAO(db *gorm.DB) *GoodsDAO {
	return &GoodsDAO{
		db: db,
	}
}

func (g *GoodsDAO) GetGoods(ctx context.Context, opts ...QueryOption) ([]*GoodsPO, error) {
	db := g.db.WithContext(ctx).Model(&GoodsPO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var goods []*GoodsPO
	return goods, db.Scan(&goods).Error
}

func (g *GoodsDAO) CreateGoods(ctx context.Context, goods *GoodsPO) (uint, error) {
	err := g.db.WithContext(ctx).Model(&GoodsPO{}).Create(goods).Error
	return goods.ID, err
}

// UpdateStock 库存可能归零，不能使用 Updates
func (g *GoodsDAO) UpdateStock(ctx context.Context, id uint, stock int64) error {
	return g.db.WithContext(ctx).Model(&GoodsPO{}).Where("id = ?", id).Update("stock", stock).Error
}

func (g *GoodsDAO) LockAndDo(ctx context.Context, id uint, do func(ctx context.Context, dao *GoodsDAO, goods *GoodsPO) error) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		// 加写锁
		var goods GoodsPO
		if err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&goods, id).Error; err != nil {
			return err
		}

		txDAO := NewGoodsDAO(tx)
		return do(ctx, txDAO, &goods)
	})
}
