package dao

import "gorm.io/gorm"

// AutoMigrate 建表，仅用于单节点部署和测试，线上表结构由 dba 维护
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TXLogPO{}, &OrderPO{}, &WalletPO{}, &WalletTransactionPO{}, &GoodsPO{})
}
