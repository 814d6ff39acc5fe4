package dao

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrFlowExisted 同一订单号同一方向的流水已经存在
	ErrFlowExisted = errors.New("wallet flow existed")
)

type WalletPO struct {
	gorm.Model
	UserID  uint64 `gorm:"column:user_id;uniqueIndex"`
	Balance int64  `gorm:"column:balance"`
}

func (w WalletPO) TableName() string {
	return "wallet"
}

// WalletTransactionPO 钱包流水，同一订单号同一方向只允许一条
type WalletTransactionPO struct {
	gorm.Model
	UserID           uint64 `gorm:"column:user_id;index"`
	Direction        string `gorm:"column:direction;type:varchar(16);uniqueIndex:uk_wallet_reference"`
	Coins            int64  `gorm:"column:coins"`
	ReferenceOrderNo string `gorm:"column:reference_order_no;type:varchar(32);uniqueIndex:uk_wallet_reference"`
	Memo             string `gorm:"column:memo"`
}

func (w WalletTransactionPO) TableName() string {
	return "wallet_transaction"
}

type WalletDAO struct {
	db *gorm.DB
}

func NewWalletDAO(db *gorm.DB) *WalletDAO {
	return &WalletDAO{
		db: db,
	}
}

func (w *WalletDAO) GetWallets(ctx context.Context, opts ...QueryOption) ([]*WalletPO, error) {
	db := w.db.WithContext(ctx).Model(&WalletPO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var wallets []*WalletPO
	return wallets, db.Scan(&wallets).Error
}

// Apply 在同一个事务内写流水并变更余额，delta 为正表示入账，为负表示扣减.
// 流水唯一键冲突时返回 ErrFlowExisted
func (w *WalletDAO) Apply(ctx context.Context, flow *WalletTransactionPO, delta int64) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if delta > 0 {
			// 首次入账时创建钱包，并发创建时忽略 user_id 唯一键冲突
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&WalletPO{UserID: flow.UserID}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&WalletTransactionPO{}).Create(flow).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: direction: %s, reference order no: %s", ErrFlowExisted, flow.Direction, flow.ReferenceOrderNo)
			}
			return err
		}

		db := tx.Model(&WalletPO{}).Where("user_id = ?", flow.UserID)
		if delta < 0 {
			db = db.Where("balance >= ?", -delta)
		}
		res := db.Update("balance", gorm.Expr("balance + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		if delta < 0 {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("wallet not found, user id: %d", flow.UserID)
	})
}
