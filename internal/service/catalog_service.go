package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService serves product reads and admin product maintenance.
// Cart and checkout never go through the cache.
type CatalogService struct {
	store    *store.Store
	cache    ProductCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service; cache may be nil
func NewCatalogService(store *store.Store, cache ProductCache, cacheTTL time.Duration) *CatalogService {
	return &CatalogService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.ComponentLogger("catalog"),
	}
}

// ProductInput holds the admin-editable product fields
type ProductInput struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" binding:"min=0"`
	Active      *bool           `json:"active"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", models.ErrValidation)
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", models.ErrValidation)
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Title = strings.TrimSpace(in.Title)
	p.Description = in.Description
	p.Price = in.Price.Round(2)
	p.Stock = in.Stock
	p.Active = true
	if in.Active != nil {
		p.Active = *in.Active
	}
}

// GetProduct returns an active product, read through the cache when one is configured
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.GetProduct(ctx, id)
		if err != nil {
			s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
		} else if cached != nil {
			util.CatalogCacheLookupsTotal.WithLabelValues("hit").Inc()
			return cached, nil
		}
		util.CatalogCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.Purchasable() {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, product, s.cacheTTL); err != nil {
			s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return product, nil
}

// ListProducts returns the catalog, hiding inactive products unless includeInactive is set
func (s *CatalogService) ListProducts(ctx context.Context, includeInactive bool) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	products, err := s.store.GetProducts(ctx, !includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{}
	in.apply(product)
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID), zap.String("title", product.Title))
	return product, nil
}

// UpdateProduct overwrites a product. Existing order lines keep their captured price.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(product)
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}

	s.InvalidateProducts(ctx, id)
	s.logger.Info("Product updated", zap.Int64("product_id", id))
	return product, nil
}

// DeleteProduct removes a product that no order references
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.InvalidateProducts(ctx, id)
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

// RefreshProducts replaces cached copies of the given products with their current
// database state. Inactive or deleted products are only dropped.
func (s *CatalogService) RefreshProducts(ctx context.Context, ids ...int64) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	s.InvalidateProducts(ctx, ids...)

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Product cache refresh failed", zap.Int64s("product_ids", ids), zap.Error(err))
		return
	}
	for i := range products {
		if !products[i].Purchasable() {
			continue
		}
		if err := s.cache.SetProduct(ctx, &products[i], s.cacheTTL); err != nil {
			s.logger.Warn("Product cache write failed", zap.Int64("product_id", products[i].ID), zap.Error(err))
		}
	}
}

// InvalidateProducts drops cached copies of the given products
func (s *CatalogService) InvalidateProducts(ctx context.Context, ids ...int64) {
	if s.cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cache.InvalidateProducts(ctx, ids...); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64s("product_ids", ids), zap.Error(err))
	}
}
