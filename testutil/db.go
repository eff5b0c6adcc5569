// Package testutil opens throwaway databases and Redis servers for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var dbSeq int64

// OpenDB returns a private in-memory SQLite database with the service gorm
// config, installs it as the global handle and runs migrate on it.
func OpenDB(t *testing.T, migrate func(*gorm.DB) error) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), config.InitGormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection serializes writers the way row locks would on MySQL.
	sqlDB.SetMaxOpenConns(1)
	if err := db.Use(config.NewCompanyScopePlugin()); err != nil {
		t.Fatalf("company scope plugin: %v", err)
	}
	if migrate != nil {
		if err := migrate(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})
	return db
}

// StartRedis runs miniredis and installs a client (and lock client) as the globals.
func StartRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.SetRedisClient(client)
	t.Cleanup(func() {
		config.SetRedisClient(nil)
		_ = client.Close()
	})
	return mr
}
