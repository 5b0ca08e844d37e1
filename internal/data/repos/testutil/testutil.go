package testutil

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/upliftcs/upliftcs-backend/internal/data/db"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

var (
	sharedOnce sync.Once
	shared     *gorm.DB
	sharedErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	memSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}
}

// DB returns a shared, migrated database. TEST_POSTGRES_DSN selects postgres;
// otherwise an in-memory sqlite database is used. Pair with Tx for isolation.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	sharedOnce.Do(func() {
		if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
			shared, sharedErr = gorm.Open(postgres.Open(dsn), gormConfig())
		} else {
			shared, sharedErr = openMemory("shared")
		}
		if sharedErr == nil {
			sharedErr = db.AutoMigrateAll(shared)
		}
	})
	if sharedErr != nil {
		tb.Fatalf("failed to init test db: %v", sharedErr)
	}
	return shared
}

// FreshDB returns a private in-memory sqlite database, for tests that need
// real commits (the engine opens its own transactions).
func FreshDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	gdb, err := openMemory(fmt.Sprintf("fresh_%d", memSeq.Add(1)))
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func openMemory(name string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
