package dao

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TXLogPO struct {
	gorm.Model
	BizID           string `gorm:"column:biz_id;type:varchar(64);uniqueIndex:uk_tx_log"`
	Scene           string `gorm:"column:scene;type:varchar(64);uniqueIndex:uk_tx_log"`
	ParticipantType string `gorm:"column:participant_type;type:varchar(32);uniqueIndex:uk_tx_log"`
	Phase           string `gorm:"column:phase"`
	Tried           bool   `gorm:"column:tried"`
	Confirmed       bool   `gorm:"column:confirmed"`
	// 每次阶段调用的结果，json 数组
	Outcomes datatypes.JSON `gorm:"column:outcomes"`
}

func (t TXLogPO) TableName() string {
	return "tx_log"
}

type TXLogDAO struct {
	db *gorm.DB
}

func NewTXLogDAO(db *gorm.DB) *TXLogDAO {
	return &TXLogDAO{
		db: db,
	}
}

func (t *TXLogDAO) GetTXLogs(ctx context.Context, opts ...QueryOption) ([]*TXLogPO, error) {
	db := t.db.WithContext(ctx).Model(&TXLogPO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var logs []*TXLogPO
	return logs, db.Scan(&logs).Error
}

func (t *TXLogDAO) CreateTXLog(ctx context.Context, log *TXLogPO) error {
	return t.db.WithContext(ctx).Model(&TXLogPO{}).Create(log).Error
}

func (t *TXLogDAO) UpdateTXLog(ctx context.Context, log *TXLogPO) error {
	return t.db.WithContext(ctx).Updates(log).Error
}

// LockAndDo 对唯一键对应的事务日志加写锁后执行 do
func (t *TXLogDAO) LockAndDo(ctx context.Context, bizID, scene, participantType string, do func(ctx context.Context, dao *TXLogDAO, log *TXLogPO) error) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		// 加写锁
		var log TXLogPO
		if err := WithTXKey(bizID, scene, participantType)(tx.WithContext(ctx)).
			Clauses(clause.Locking{Strength: "UPDATE"}).First(&log).Error; err != nil {
			return err
		}

		txDAO := NewTXLogDAO(tx)
		return do(ctx, txDAO, &log)
	})
}
