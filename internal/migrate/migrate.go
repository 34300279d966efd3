package migrate

import (
	"context"

	"checkout-saga/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions bool // pgcrypto
	CreateChecks     bool // CHECK-constraint'ы на счётчики
	CreateIndexes    bool // дополнительные индексы
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions: true,
		CreateChecks:     true,
		CreateIndexes:    true,
	}
}

func Run(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы checkout-saga")

	if opt.CreateExtensions {
		if err := db.WithContext(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц: orders, order_items, products, inventories, reservations, payments")
	if err := db.WithContext(ctx).AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.Product{},
		&models.Inventory{},
		&models.Reservation{},
		&models.Payment{},
	); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}

	if opt.CreateChecks {
		// счётчики склада и количества позиций не могут уходить в минус
		checks := []string{
			`ALTER TABLE inventories DROP CONSTRAINT IF EXISTS chk_inventories_available;
			 ALTER TABLE inventories ADD CONSTRAINT chk_inventories_available CHECK (available >= 0)`,
			`ALTER TABLE inventories DROP CONSTRAINT IF EXISTS chk_inventories_reserved;
			 ALTER TABLE inventories ADD CONSTRAINT chk_inventories_reserved CHECK (reserved >= 0)`,
			`ALTER TABLE order_items DROP CONSTRAINT IF EXISTS chk_order_items_quantity;
			 ALTER TABLE order_items ADD CONSTRAINT chk_order_items_quantity CHECK (quantity > 0)`,
			`ALTER TABLE reservations DROP CONSTRAINT IF EXISTS chk_reservations_quantity;
			 ALTER TABLE reservations ADD CONSTRAINT chk_reservations_quantity CHECK (quantity > 0)`,
		}
		for _, q := range checks {
			if err := db.WithContext(ctx).Exec(q).Error; err != nil {
				log.Error("CHECK constraint error", zap.Error(err))
				return err
			}
		}
	}

	if opt.CreateIndexes {
		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_orders_pending_created ON orders (created_at) WHERE status = 'ORDER_STATUS_PENDING'`,
			`CREATE INDEX IF NOT EXISTS idx_reservations_expires ON reservations (expires_at) WHERE status = 'RESERVED'`,
		}
		for _, q := range indexes {
			if err := db.WithContext(ctx).Exec(q).Error; err != nil {
				log.Error("index error", zap.Error(err))
				return err
			}
		}
	}

	log.Info("Миграция завершена")
	return nil
}
