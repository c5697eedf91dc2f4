package db

import (
	"fmt"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect 负责建立数据库连接，并带有简单的重试来等待容器就绪。
// driver 为 "postgres"（默认）或 "sqlite"（本地开发与测试）。
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch driver {
	case "", "postgres":
		dial = postgres.Open(dsn)
	case "sqlite":
		return connectSQLite(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// SQLite allows one writer at a time; a single pooled connection also keeps
// ":memory:" databases shared across goroutines.
func connectSQLite(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate 自动迁移聊天核心涉及的全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.User{}, &models.Room{}, &models.Message{})
}
