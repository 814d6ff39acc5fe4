package dao

import (
	"time"

	"gorm.io/gorm"
)

type QueryOption func(db *gorm.DB) *gorm.DB

func WithID(id uint) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func WithStatus(status string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", status)
	}
}

func WithOrderID(orderID string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("order_id = ?", orderID)
	}
}

func WithUserID(userID uint64) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

// WithTXKey 事务日志的唯一键
func WithTXKey(bizID, scene, participantType string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("biz_id = ? AND scene = ? AND participant_type = ?", bizID, scene, participantType)
	}
}

func WithCreatedBefore(before time.Time) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at < ?", before)
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order("id").Limit(limit)
	}
}
