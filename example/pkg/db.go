package pkg

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

func NewDB(dsn string, opts ...gorm.Option) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), opts...)
}

// NewSQLiteDB 单节点部署以及测试时使用
func NewSQLiteDB(dsn string, opts ...gorm.Option) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), opts...)
}

// OpenDB 根据驱动类型打开数据库，唯一键冲突统一翻译为 gorm.ErrDuplicatedKey
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	conf := gorm.Config{
		TranslateError: true,
	}
	switch driver {
	case DriverMySQL:
		return NewDB(dsn, &conf)
	case DriverSQLite:
		db, err := NewSQLiteDB(dsn, &conf)
		if err != nil {
			return nil, err
		}
		// sqlite 不支持并发写
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
}
