package service

import (
	"context"

	"checkout-saga/internal/repository"

	"github.com/google/uuid"
)

type Price struct {
	UnitPriceCents int64
	CurrencyCode   string
}

type PricingProvider interface {
	GetPrices(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Price, error)
}

// CatalogPricing отдаёт цену на момент заказа из таблицы products.
// Неактивные товары пропускаются — их отсутствие в ответе означает отказ.
type CatalogPricing struct {
	products repository.ProductRepo
}

func NewCatalogPricing(products repository.ProductRepo) *CatalogPricing {
	return &CatalogPricing{products: products}
}

func (p *CatalogPricing) GetPrices(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Price, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]Price{}, nil
	}
	list, err := p.products.BatchGetByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	prices := make(map[uuid.UUID]Price, len(list))
	for _, prod := range list {
		if !prod.IsActive {
			continue
		}
		prices[prod.ID] = Price{
			UnitPriceCents: prod.PriceCents,
			CurrencyCode:   prod.CurrencyCode,
		}
	}
	return prices, nil
}
