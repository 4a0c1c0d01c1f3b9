package database

import (
	"fmt"

	"gorm.io/gorm"

	"gameshop/internal/model"
	"gameshop/pkg/log"
)

// Models lists every table owned by the service, in creation order
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Product{},
		&model.StockRecord{},
		&model.PromoCode{},
		&model.Purchase{},
		&model.PurchaseLine{},
		&model.PromoRedemption{},
		&model.LedgerEntry{},
		&model.TopupRequest{},
		&model.AuditLog{},
	}
}

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Debugf("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}
