package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketbridge/internal/domain"
)

var (
	ErrMigrationNotFound        = errors.New("migration not found")
	ErrMigrationProductNotFound = errors.New("migration product not found")
)

// MigrationRepository defines the interface for migration batch data access
type MigrationRepository interface {
	Create(ctx context.Context, migration *domain.Migration) error
	FindByID(ctx context.Context, id int) (*domain.Migration, error)
	List(ctx context.Context) ([]*domain.Migration, error)
	Recent(ctx context.Context, limit int) ([]*domain.Migration, error)
	SetStatus(ctx context.Context, id int, status domain.MigrationStatus) error
	AddSuccess(ctx context.Context, id int) error
	AddFailure(ctx context.Context, id int) error
	Complete(ctx context.Context, id int, status domain.MigrationStatus, duration int, completedAt time.Time) error
	ListStuck(ctx context.Context) ([]*domain.Migration, error)
	CountByStatus(ctx context.Context) (map[domain.MigrationStatus]int, error)

	CreateProduct(ctx context.Context, item *domain.MigrationProduct) error
	FinishProduct(ctx context.Context, id int, status domain.MigrationProductStatus, errorMessage, targetProductID string) error
	ProductsByMigration(ctx context.Context, migrationID int) ([]*domain.MigrationProduct, error)
}

type migrationRepository struct {
	db *sql.DB
}

// NewMigrationRepository creates a new instance of MigrationRepository
func NewMigrationRepository(db *sql.DB) MigrationRepository {
	return &migrationRepository{db: db}
}

const migrationColumns = `id, created_at, completed_at, status, total_products, successful_products, failed_products, options, COALESCE(duration, 0)`

// Create inserts a new migration batch record and fills in its generated
// ID and creation timestamp
func (r *migrationRepository) Create(ctx context.Context, migration *domain.Migration) error {
	options, err := json.Marshal(migration.Options)
	if err != nil {
		return fmt.Errorf("failed to encode migration options: %w", err)
	}

	query := `
		INSERT INTO migrations (status, total_products, successful_products, failed_products, options)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		migration.Status,
		migration.TotalProducts,
		migration.SuccessfulProducts,
		migration.FailedProducts,
		options,
	).Scan(&migration.ID, &migration.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}

	return nil
}

// FindByID retrieves a migration by ID
func (r *migrationRepository) FindByID(ctx context.Context, id int) (*domain.Migration, error) {
	query := fmt.Sprintf(`SELECT %s FROM migrations WHERE id = $1`, migrationColumns)

	migration, err := scanMigration(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMigrationNotFound
		}
		return nil, fmt.Errorf("failed to find migration by ID: %w", err)
	}

	return migration, nil
}

// List retrieves all migrations, newest first
func (r *migrationRepository) List(ctx context.Context) ([]*domain.Migration, error) {
	query := fmt.Sprintf(`SELECT %s FROM migrations ORDER BY created_at DESC`, migrationColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	return collectMigrations(rows)
}

// Recent retrieves the most recent migrations
func (r *migrationRepository) Recent(ctx context.Context, limit int) ([]*domain.Migration, error) {
	query := fmt.Sprintf(`SELECT %s FROM migrations ORDER BY created_at DESC LIMIT $1`, migrationColumns)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent migrations: %w", err)
	}
	defer rows.Close()

	return collectMigrations(rows)
}

// SetStatus moves a migration to a new lifecycle status
func (r *migrationRepository) SetStatus(ctx context.Context, id int, status domain.MigrationStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE migrations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to set migration status: %w", err)
	}

	return requireRowAffected(result, ErrMigrationNotFound)
}

// AddSuccess increments the success counter in place, so concurrent item
// updates never lose counts to read-modify-write interleaving
func (r *migrationRepository) AddSuccess(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE migrations SET successful_products = successful_products + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment success count: %w", err)
	}

	return requireRowAffected(result, ErrMigrationNotFound)
}

// AddFailure increments the failure counter in place
func (r *migrationRepository) AddFailure(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE migrations SET failed_products = failed_products + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment failure count: %w", err)
	}

	return requireRowAffected(result, ErrMigrationNotFound)
}

// Complete stamps the terminal status, duration and completion time
func (r *migrationRepository) Complete(ctx context.Context, id int, status domain.MigrationStatus, duration int, completedAt time.Time) error {
	query := `UPDATE migrations SET status = $2, duration = $3, completed_at = $4 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, duration, completedAt)
	if err != nil {
		return fmt.Errorf("failed to complete migration: %w", err)
	}

	return requireRowAffected(result, ErrMigrationNotFound)
}

// ListStuck retrieves migrations left in_progress, e.g. after a crash
func (r *migrationRepository) ListStuck(ctx context.Context) ([]*domain.Migration, error) {
	query := fmt.Sprintf(`SELECT %s FROM migrations WHERE status = $1 ORDER BY created_at`, migrationColumns)

	rows, err := r.db.QueryContext(ctx, query, domain.MigrationInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck migrations: %w", err)
	}
	defer rows.Close()

	return collectMigrations(rows)
}

// CountByStatus returns migration counts grouped by status
func (r *migrationRepository) CountByStatus(ctx context.Context) (map[domain.MigrationStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM migrations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count migrations: %w", err)
	}
	defer rows.Close()

	counts := map[domain.MigrationStatus]int{}
	for rows.Next() {
		var status domain.MigrationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan migration count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration counts: %w", err)
	}

	return counts, nil
}

// CreateProduct inserts the per-item row for one product in a batch. On a
// re-run after a crash the existing row for (migration, product) is located
// and returned instead of inserting a duplicate.
func (r *migrationRepository) CreateProduct(ctx context.Context, item *domain.MigrationProduct) error {
	query := `
		INSERT INTO migration_products (migration_id, product_id, status, error_message, target_product_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (migration_id, product_id) DO UPDATE
		SET migration_id = EXCLUDED.migration_id
		RETURNING id, status, COALESCE(error_message, ''), COALESCE(target_product_id, '')
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		item.MigrationID,
		item.ProductID,
		item.Status,
		item.ErrorMessage,
		item.TargetProductID,
	).Scan(&item.ID, &item.Status, &item.ErrorMessage, &item.TargetProductID)

	if err != nil {
		return fmt.Errorf("failed to create migration product: %w", err)
	}

	return nil
}

// FinishProduct updates one item to its terminal status
func (r *migrationRepository) FinishProduct(ctx context.Context, id int, status domain.MigrationProductStatus, errorMessage, targetProductID string) error {
	query := `
		UPDATE migration_products
		SET status = $2, error_message = NULLIF($3, ''), target_product_id = NULLIF($4, '')
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, errorMessage, targetProductID)
	if err != nil {
		return fmt.Errorf("failed to finish migration product: %w", err)
	}

	return requireRowAffected(result, ErrMigrationProductNotFound)
}

// ProductsByMigration retrieves all items of one batch
func (r *migrationRepository) ProductsByMigration(ctx context.Context, migrationID int) ([]*domain.MigrationProduct, error) {
	query := `
		SELECT id, migration_id, product_id, status, COALESCE(error_message, ''), COALESCE(target_product_id, '')
		FROM migration_products
		WHERE migration_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, migrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration products: %w", err)
	}
	defer rows.Close()

	items := []*domain.MigrationProduct{}
	for rows.Next() {
		item := &domain.MigrationProduct{}
		if err := rows.Scan(&item.ID, &item.MigrationID, &item.ProductID, &item.Status, &item.ErrorMessage, &item.TargetProductID); err != nil {
			return nil, fmt.Errorf("failed to scan migration product: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration products: %w", err)
	}

	return items, nil
}

func scanMigration(row rowScanner) (*domain.Migration, error) {
	migration := &domain.Migration{}
	var (
		completedAt sql.NullTime
		options     []byte
	)

	err := row.Scan(
		&migration.ID,
		&migration.CreatedAt,
		&completedAt,
		&migration.Status,
		&migration.TotalProducts,
		&migration.SuccessfulProducts,
		&migration.FailedProducts,
		&options,
		&migration.Duration,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		migration.CompletedAt = &t
	}

	if err := json.Unmarshal(options, &migration.Options); err != nil {
		return nil, fmt.Errorf("failed to decode migration options: %w", err)
	}

	return migration, nil
}

func collectMigrations(rows *sql.Rows) ([]*domain.Migration, error) {
	migrations := []*domain.Migration{}
	for rows.Next() {
		migration, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migrations = append(migrations, migration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return migrations, nil
}
