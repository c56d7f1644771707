package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketbridge/internal/domain"
	"marketbridge/internal/marketplace"
	"marketbridge/internal/repository"

	"go.uber.org/zap"
)

// ProductService exposes the locally stored catalog and keeps it in sync with
// the marketplaces.
type ProductService interface {
	ListProducts(ctx context.Context, mp domain.Marketplace) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int) (*domain.Product, error)
	SearchProducts(ctx context.Context, query string, mp domain.Marketplace) ([]*domain.Product, error)
	SyncProducts(ctx context.Context, mp domain.Marketplace) (int, error)
	Stats(ctx context.Context) (*domain.DashboardStats, error)
}

type productService struct {
	products    repository.ProductRepository
	mappings    repository.MappingRepository
	migrations  repository.MigrationRepository
	credentials repository.CredentialRepository
	source      marketplace.Catalog
	target      marketplace.Catalog
	logger      *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	products repository.ProductRepository,
	mappings repository.MappingRepository,
	migrations repository.MigrationRepository,
	credentials repository.CredentialRepository,
	source marketplace.Catalog,
	target marketplace.Catalog,
	logger *zap.Logger,
) ProductService {
	return &productService{
		products:    products,
		mappings:    mappings,
		migrations:  migrations,
		credentials: credentials,
		source:      source,
		target:      target,
		logger:      logger,
	}
}

// ListProducts retrieves the stored products of one marketplace
func (s *productService) ListProducts(ctx context.Context, mp domain.Marketplace) ([]*domain.Product, error) {
	if !mp.Valid() {
		return nil, ErrUnknownMarketplace
	}
	return s.products.ListByMarketplace(ctx, mp)
}

// GetProduct retrieves one stored product by ID
func (s *productService) GetProduct(ctx context.Context, id int) (*domain.Product, error) {
	return s.products.FindByID(ctx, id)
}

// SearchProducts retrieves stored products matching the query by name or SKU
func (s *productService) SearchProducts(ctx context.Context, query string, mp domain.Marketplace) ([]*domain.Product, error) {
	if !mp.Valid() {
		return nil, ErrUnknownMarketplace
	}
	return s.products.Search(ctx, query, mp)
}

// SyncProducts downloads the marketplace's catalog and upserts every listing
// into the local store. Returns the number of products synced.
func (s *productService) SyncProducts(ctx context.Context, mp domain.Marketplace) (int, error) {
	if !mp.Valid() {
		return 0, ErrUnknownMarketplace
	}

	catalog := s.source
	if mp == domain.MarketplaceTarget {
		catalog = s.target
	}

	fetched, err := catalog.FetchProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s products: %w", mp, err)
	}

	synced := 0
	for _, product := range fetched {
		if err := s.products.Upsert(ctx, product); err != nil {
			s.logger.Warn("Failed to store synced product",
				zap.String("external_id", product.ExternalID),
				zap.String("marketplace", string(mp)),
				zap.Error(err),
			)
			continue
		}
		synced++
	}

	if err := s.credentials.TouchSync(ctx, mp, time.Now()); err != nil && !errors.Is(err, repository.ErrCredentialNotFound) {
		s.logger.Warn("Failed to stamp sync time",
			zap.String("marketplace", string(mp)),
			zap.Error(err),
		)
	}

	s.logger.Info("Product sync finished",
		zap.String("marketplace", string(mp)),
		zap.Int("synced", synced),
		zap.Int("fetched", len(fetched)),
	)

	return synced, nil
}

// Stats aggregates the dashboard numbers
func (s *productService) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	sourceCount, err := s.products.CountByMarketplace(ctx, domain.MarketplaceSource)
	if err != nil {
		return nil, fmt.Errorf("failed to count source products: %w", err)
	}

	targetCount, err := s.products.CountByMarketplace(ctx, domain.MarketplaceTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to count target products: %w", err)
	}

	mappingCount, err := s.mappings.CountCategoryMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count category mappings: %w", err)
	}

	byStatus, err := s.migrations.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count migrations: %w", err)
	}

	recent, err := s.migrations.Recent(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent migrations: %w", err)
	}

	return &domain.DashboardStats{
		SourceProducts:     sourceCount,
		TargetProducts:     targetCount,
		CategoryMappings:   mappingCount,
		MigrationsByStatus: byStatus,
		RecentMigrations:   recent,
	}, nil
}
