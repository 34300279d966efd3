package main

import (
	"context"
	"flag"
	"os"

	"checkout-saga/config"
	"checkout-saga/internal/database"
	"checkout-saga/internal/logger"
	"checkout-saga/internal/migrate"
	"checkout-saga/internal/models"
	"checkout-saga/internal/repository"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	seed := flag.Bool("seed", false, "создать демо-товары со стоком")
	flag.Parse()

	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()
	cfg := config.Load(log)

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	ctx := context.Background()
	if err := migrate.Run(ctx, db, log, migrate.DefaultMigrateOptions()); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	if *seed {
		repos := repository.New(db)
		demo := []struct {
			name  string
			price int64
			stock int32
		}{
			{"Клавиатура", 450000, 25},
			{"Мышь", 150000, 40},
			{"Монитор", 2500000, 10},
		}
		for _, d := range demo {
			p := &models.Product{Name: d.name, PriceCents: d.price, CurrencyCode: "RUB", IsActive: true}
			if err := repos.Products.Create(ctx, p); err != nil {
				log.Fatal("seed product failed", zap.Error(err))
			}
			if err := repos.Products.EnsureInventoryRow(ctx, p.ID); err != nil {
				log.Fatal("seed inventory failed", zap.Error(err))
			}
			if err := repos.Inventories.SetAvailable(ctx, p.ID, d.stock); err != nil {
				log.Fatal("seed stock failed", zap.Error(err))
			}
			log.Info("seeded product", zap.String("id", p.ID.String()), zap.String("name", d.name))
		}
	}
}
