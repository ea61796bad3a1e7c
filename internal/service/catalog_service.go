package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/internal/model"
	"biliticket/possync/internal/repository"
)

// CatalogService keeps the product cache in step with the server.
type CatalogService struct {
	inventory InventoryAPI
	orders    *OrderService
	cache     repository.EntityCache
	mode      ModeReader
	logger    *zap.Logger
}

func NewCatalogService(inventory InventoryAPI, orders *OrderService, cache repository.EntityCache, mode ModeReader, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{inventory: inventory, orders: orders, cache: cache, mode: mode, logger: logger}
}

// Refresh loads the full inventory and replaces the cached catalogue.
func (s *CatalogService) Refresh(ctx context.Context) (int, error) {
	products, err := s.inventory.SearchInventory(ctx, apiclient.InventorySearch{})
	if err != nil {
		return 0, err
	}
	if err := s.cache.StoreProducts(ctx, products, repository.StoreModeReplace); err != nil {
		return 0, fmt.Errorf("cache products: %w", err)
	}
	s.logger.Info("catalogue refreshed", zap.Int("products", len(products)))
	return len(products), nil
}

// GetProduct fetches one product, caching it when online. Offline, or when
// the server cannot be reached, the cached row is returned.
func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	if !s.mode.EffectiveOffline() {
		product, err := s.inventory.GetProduct(ctx, productID)
		switch {
		case err == nil:
			if err := s.cache.StoreProducts(ctx, []model.Product{*product}, repository.StoreModeUpsert); err != nil {
				return nil, fmt.Errorf("cache product %s: %w", productID, err)
			}
			return product, nil
		case !apiclient.IsNetworkError(err):
			return nil, err
		}
	}
	product, err := s.cache.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	return product, err
}

// Search filters the cached catalogue by category and a case-insensitive
// name or SKU fragment.
func (s *CatalogService) Search(ctx context.Context, category, query string) ([]model.Product, error) {
	products, err := s.cache.QueryProducts(ctx, repository.ProductFilter{Category: category})
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return products, nil
	}
	out := products[:0]
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), query) || strings.Contains(strings.ToLower(p.SKU), query) {
			out = append(out, p)
		}
	}
	return out, nil
}

type WarmReport struct {
	Products int `json:"products"`
	Orders   int `json:"orders"`
}

// Warm refreshes products and orders in parallel, typically right after
// login so the till can go offline with a current replica.
func (s *CatalogService) Warm(ctx context.Context) (WarmReport, error) {
	var report WarmReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.Refresh(gctx)
		report.Products = n
		return err
	})
	g.Go(func() error {
		n, err := s.orders.RefreshOrders(gctx)
		report.Orders = n
		return err
	})
	return report, g.Wait()
}
