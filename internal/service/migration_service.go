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

var (
	ErrNoProducts         = errors.New("no products selected for migration")
	ErrUnknownMarketplace = errors.New("unknown marketplace")
)

// MigrationService runs product migrations between the two marketplaces.
// StartMigration records a batch and processes it in the background; callers
// poll GetMigration for progress. The MigrateBatch variants process inline and
// return a full report instead of recording a batch.
type MigrationService interface {
	StartMigration(ctx context.Context, productIDs []int, direction domain.Marketplace, options domain.MigrationOptions) (*domain.Migration, error)
	GetMigration(ctx context.Context, id int) (*domain.Migration, error)
	ListMigrations(ctx context.Context) ([]*domain.Migration, error)
	RecentMigrations(ctx context.Context, limit int) ([]*domain.Migration, error)
	MigrationProducts(ctx context.Context, id int) ([]*domain.MigrationProduct, error)
	MigrateBatchToTarget(ctx context.Context, productIDs []int, options domain.MigrationOptions) (*domain.BatchReport, error)
	MigrateBatchToSource(ctx context.Context, productIDs []int, options domain.MigrationOptions) (*domain.BatchReport, error)
	RecoverStuck(ctx context.Context) (int, error)
}

type migrationService struct {
	migrations repository.MigrationRepository
	products   repository.ProductRepository
	mapper     MappingService
	source     marketplace.Catalog
	target     marketplace.Catalog
	logger     *zap.Logger
}

// NewMigrationService creates a new instance of MigrationService
func NewMigrationService(
	migrations repository.MigrationRepository,
	products repository.ProductRepository,
	mapper MappingService,
	source marketplace.Catalog,
	target marketplace.Catalog,
	logger *zap.Logger,
) MigrationService {
	return &migrationService{
		migrations: migrations,
		products:   products,
		mapper:     mapper,
		source:     source,
		target:     target,
		logger:     logger,
	}
}

// StartMigration records a pending batch and launches its processing in the
// background. The returned migration carries the generated ID the caller
// polls with; processing errors surface through the migration's status, not
// through this call.
func (s *migrationService) StartMigration(ctx context.Context, productIDs []int, direction domain.Marketplace, options domain.MigrationOptions) (*domain.Migration, error) {
	if len(productIDs) == 0 {
		return nil, ErrNoProducts
	}
	if !direction.Valid() {
		return nil, ErrUnknownMarketplace
	}

	migration := &domain.Migration{
		Status:        domain.MigrationPending,
		TotalProducts: len(productIDs),
		Options:       options,
	}
	if err := s.migrations.Create(ctx, migration); err != nil {
		return nil, fmt.Errorf("failed to record migration: %w", err)
	}

	ids := make([]int, len(productIDs))
	copy(ids, productIDs)
	go s.run(migration.ID, ids, direction, options)

	return migration, nil
}

// run processes one batch to completion. It owns its own context: the batch
// must survive the HTTP request that started it.
func (s *migrationService) run(migrationID int, productIDs []int, direction domain.Marketplace, options domain.MigrationOptions) {
	ctx := context.Background()
	logger := s.logger.With(
		zap.Int("migration_id", migrationID),
		zap.String("direction", string(direction)),
	)
	start := time.Now()

	if err := s.migrations.SetStatus(ctx, migrationID, domain.MigrationInProgress); err != nil {
		logger.Error("Failed to mark migration in progress", zap.Error(err))
		s.abort(ctx, logger, migrationID)
		return
	}

	logger.Info("Migration started", zap.Int("total_products", len(productIDs)))

	successful, failed := 0, 0
	for _, productID := range productIDs {
		if s.runItem(ctx, logger, migrationID, productID, direction, options) {
			successful++
			if err := s.migrations.AddSuccess(ctx, migrationID); err != nil {
				logger.Error("Failed to increment success count", zap.Error(err))
			}
		} else {
			failed++
			if err := s.migrations.AddFailure(ctx, migrationID); err != nil {
				logger.Error("Failed to increment failure count", zap.Error(err))
			}
		}
	}

	status := domain.FinalStatus(successful, failed)
	duration := int(time.Since(start).Seconds())
	if err := s.migrations.Complete(ctx, migrationID, status, duration, time.Now()); err != nil {
		logger.Error("Failed to finalize migration", zap.Error(err))
		return
	}

	logger.Info("Migration finished",
		zap.String("status", string(status)),
		zap.Int("successful", successful),
		zap.Int("failed", failed),
		zap.Int("duration_seconds", duration),
	)
}

// abort marks a migration failed before any item was processed
func (s *migrationService) abort(ctx context.Context, logger *zap.Logger, migrationID int) {
	if err := s.migrations.Complete(ctx, migrationID, domain.MigrationFailed, 0, time.Now()); err != nil {
		logger.Error("Failed to mark migration failed", zap.Error(err))
	}
}

// runItem migrates one product of a recorded batch, writing the per-item row
// before processing and its terminal status after. Returns whether the item
// succeeded.
func (s *migrationService) runItem(ctx context.Context, logger *zap.Logger, migrationID, productID int, direction domain.Marketplace, options domain.MigrationOptions) bool {
	item := &domain.MigrationProduct{
		MigrationID: migrationID,
		ProductID:   productID,
		Status:      domain.MigrationProductPending,
	}
	if err := s.migrations.CreateProduct(ctx, item); err != nil {
		logger.Error("Failed to record migration item",
			zap.Int("product_id", productID),
			zap.Error(err),
		)
		return false
	}

	targetID, err := s.migrateProduct(ctx, productID, direction, options)
	if err != nil {
		logger.Warn("Product migration failed",
			zap.Int("product_id", productID),
			zap.Error(err),
		)
		if finishErr := s.migrations.FinishProduct(ctx, item.ID, domain.MigrationProductFailed, err.Error(), ""); finishErr != nil {
			logger.Error("Failed to record item failure", zap.Int("product_id", productID), zap.Error(finishErr))
		}
		return false
	}

	if finishErr := s.migrations.FinishProduct(ctx, item.ID, domain.MigrationProductSuccess, "", targetID); finishErr != nil {
		logger.Error("Failed to record item success", zap.Int("product_id", productID), zap.Error(finishErr))
	}
	return true
}

// migrateProduct moves one product to the given marketplace and returns the
// created listing's external ID. With SkipExisting set, products that already
// have an analog succeed immediately without any marketplace call and return
// an empty external ID.
func (s *migrationService) migrateProduct(ctx context.Context, productID int, direction domain.Marketplace, options domain.MigrationOptions) (string, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return "", domain.TerminalError("product %d not found", productID)
		}
		return "", domain.RetryableError(err, "failed to load product %d", productID)
	}

	if product.Marketplace == direction {
		return "", domain.TerminalError("product %d already belongs to the %s marketplace", productID, direction)
	}

	if options.SkipExisting && product.HasAnalog {
		return "", nil
	}

	listing, err := s.transform(ctx, product, direction)
	if err != nil {
		return "", domain.RetryableError(err, "failed to transform product %d", productID)
	}

	result, err := s.catalog(direction).CreateListing(ctx, listing)
	if err != nil {
		return "", domain.RetryableError(err, "failed to create listing for product %d", productID)
	}
	if !result.Success {
		return "", domain.TerminalError("marketplace rejected product %d: %s", productID, result.Error)
	}

	s.materialize(ctx, product, listing, result.ExternalID, direction)

	if options.UpdatePrices {
		if _, err := s.catalog(direction).UpdatePrice(ctx, result.ExternalID, listing.Price); err != nil {
			s.logger.Warn("Price update after migration failed",
				zap.Int("product_id", productID),
				zap.String("external_id", result.ExternalID),
				zap.Error(err),
			)
		}
	}

	return result.ExternalID, nil
}

// materialize records the migration outcome locally: the origin product gets
// its analog flag and the created listing is stored as a product of the other
// marketplace. Both writes are best effort; the listing already exists
// remotely, so a local store error must not fail the item.
func (s *migrationService) materialize(ctx context.Context, product *domain.Product, listing *marketplace.Listing, externalID string, direction domain.Marketplace) {
	if err := s.products.SetAnalogFlag(ctx, product.ID, true); err != nil {
		s.logger.Warn("Failed to flag origin product",
			zap.Int("product_id", product.ID),
			zap.Error(err),
		)
	}

	attributes := make(map[string]domain.AttributeValue, len(listing.Attributes))
	for id, value := range listing.Attributes {
		attributes[id] = domain.AttributeValue{Value: value}
	}

	counterpart := &domain.Product{
		ExternalID:   externalID,
		Marketplace:  direction,
		Name:         listing.Name,
		SKU:          listing.VendorCode,
		CategoryPath: listing.CategoryPath,
		Price:        listing.Price,
		ImageURLs:    listing.ImageURLs,
		Attributes:   attributes,
		HasAnalog:    true,
	}
	if err := s.products.Upsert(ctx, counterpart); err != nil {
		s.logger.Warn("Failed to store migrated listing locally",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
	}
}

func (s *migrationService) transform(ctx context.Context, product *domain.Product, direction domain.Marketplace) (*marketplace.Listing, error) {
	if direction == domain.MarketplaceTarget {
		return s.mapper.TransformToTarget(ctx, product)
	}
	return s.mapper.TransformToSource(ctx, product)
}

func (s *migrationService) catalog(direction domain.Marketplace) marketplace.Catalog {
	if direction == domain.MarketplaceTarget {
		return s.target
	}
	return s.source
}

// GetMigration retrieves one migration by ID
func (s *migrationService) GetMigration(ctx context.Context, id int) (*domain.Migration, error) {
	return s.migrations.FindByID(ctx, id)
}

// ListMigrations retrieves all migrations, newest first
func (s *migrationService) ListMigrations(ctx context.Context) ([]*domain.Migration, error) {
	return s.migrations.List(ctx)
}

// RecentMigrations retrieves the most recent migrations
func (s *migrationService) RecentMigrations(ctx context.Context, limit int) ([]*domain.Migration, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.migrations.Recent(ctx, limit)
}

// MigrationProducts retrieves the per-item rows of one migration
func (s *migrationService) MigrationProducts(ctx context.Context, id int) ([]*domain.MigrationProduct, error) {
	if _, err := s.migrations.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.migrations.ProductsByMigration(ctx, id)
}

// MigrateBatchToTarget migrates the given products to the target marketplace
// inline and reports per-item outcomes
func (s *migrationService) MigrateBatchToTarget(ctx context.Context, productIDs []int, options domain.MigrationOptions) (*domain.BatchReport, error) {
	return s.migrateBatch(ctx, productIDs, domain.MarketplaceTarget, options)
}

// MigrateBatchToSource migrates the given products to the source marketplace
// inline and reports per-item outcomes
func (s *migrationService) MigrateBatchToSource(ctx context.Context, productIDs []int, options domain.MigrationOptions) (*domain.BatchReport, error) {
	return s.migrateBatch(ctx, productIDs, domain.MarketplaceSource, options)
}

func (s *migrationService) migrateBatch(ctx context.Context, productIDs []int, direction domain.Marketplace, options domain.MigrationOptions) (*domain.BatchReport, error) {
	if len(productIDs) == 0 {
		return nil, ErrNoProducts
	}

	report := &domain.BatchReport{
		Total:   len(productIDs),
		Results: make([]domain.BatchItemResult, 0, len(productIDs)),
	}

	for _, productID := range productIDs {
		targetID, err := s.migrateProduct(ctx, productID, direction, options)
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, domain.BatchItemResult{
				ProductID:    productID,
				Status:       domain.MigrationProductFailed,
				ErrorMessage: err.Error(),
			})
			continue
		}

		report.Successful++
		report.Results = append(report.Results, domain.BatchItemResult{
			ProductID:       productID,
			Status:          domain.MigrationProductSuccess,
			TargetProductID: targetID,
		})
	}

	return report, nil
}

// RecoverStuck finalizes migrations left in_progress by a crash or restart.
// Items still pending are marked failed; already-terminal items keep their
// outcome and the batch gets its terminal status computed from the final
// counts. Returns the number of migrations recovered.
func (s *migrationService) RecoverStuck(ctx context.Context) (int, error) {
	stuck, err := s.migrations.ListStuck(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck migrations: %w", err)
	}

	recovered := 0
	for _, migration := range stuck {
		logger := s.logger.With(zap.Int("migration_id", migration.ID))

		items, err := s.migrations.ProductsByMigration(ctx, migration.ID)
		if err != nil {
			logger.Error("Failed to load items of stuck migration", zap.Error(err))
			continue
		}

		interrupted := 0
		for _, item := range items {
			if item.Status != domain.MigrationProductPending {
				continue
			}
			if err := s.migrations.FinishProduct(ctx, item.ID, domain.MigrationProductFailed, "interrupted by server restart", ""); err != nil {
				logger.Error("Failed to fail interrupted item", zap.Int("item_id", item.ID), zap.Error(err))
			}
			interrupted++
		}

		// Products the crashed run never got to recording count as failures too
		unrecorded := migration.TotalProducts - len(items)
		if unrecorded < 0 {
			unrecorded = 0
		}

		for i := 0; i < interrupted+unrecorded; i++ {
			if err := s.migrations.AddFailure(ctx, migration.ID); err != nil {
				logger.Error("Failed to increment failure count", zap.Error(err))
				break
			}
		}

		failed := migration.FailedProducts + interrupted + unrecorded
		status := domain.FinalStatus(migration.SuccessfulProducts, failed)
		duration := int(time.Since(migration.CreatedAt).Seconds())
		if err := s.migrations.Complete(ctx, migration.ID, status, duration, time.Now()); err != nil {
			logger.Error("Failed to finalize stuck migration", zap.Error(err))
			continue
		}

		logger.Info("Recovered stuck migration",
			zap.String("status", string(status)),
			zap.Int("interrupted_items", interrupted+unrecorded),
		)
		recovered++
	}

	return recovered, nil
}
