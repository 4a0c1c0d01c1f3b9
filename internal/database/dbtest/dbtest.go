// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gameshop/internal/config"
	"gameshop/internal/database"
	"gameshop/internal/model"
)

// Open returns a migrated SQLite database in t's temp dir
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     filepath.Join(t.TempDir(), "gameshop.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// User inserts a user with the given THB credit
func User(t testing.TB, db *gorm.DB, name string, credit string) *model.User {
	t.Helper()
	u := &model.User{
		Username:      name,
		Role:          model.RoleUser,
		CreditBalance: decimal.RequireFromString(credit),
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Product inserts an on-sale product
func Product(t testing.TB, db *gorm.DB, p *model.Product) *model.Product {
	t.Helper()
	if p.Kind == "" {
		p.Kind = model.ProductKindMulti
	}
	if p.Currency == "" {
		p.Currency = model.CurrencyTHB
	}
	if p.Status == 0 {
		p.Status = model.ProductStatusOnSale
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// Reload reads the current row for dest's primary key
func Reload(t testing.TB, db *gorm.DB, dest interface{}) {
	t.Helper()
	require.NoError(t, db.First(dest).Error)
}
