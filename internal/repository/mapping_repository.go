package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketbridge/internal/domain"
)

var (
	ErrCategoryMappingNotFound  = errors.New("category mapping not found")
	ErrAttributeMappingNotFound = errors.New("attribute mapping not found")
)

// MappingRepository defines the interface for category and attribute mapping
// data access. Inserts use upsert semantics: racing writers for the same key
// converge on a single surviving row, which the call returns.
type MappingRepository interface {
	FindCategoryMapping(ctx context.Context, sourceCategory string) (*domain.CategoryMapping, error)
	FindCategoryMappingByTarget(ctx context.Context, targetCategory string) (*domain.CategoryMapping, error)
	ListCategoryMappings(ctx context.Context) ([]*domain.CategoryMapping, error)
	CreateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error
	UpdateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error
	DeleteCategoryMapping(ctx context.Context, id int) error
	CountCategoryMappings(ctx context.Context) (int, error)

	FindAttributeMapping(ctx context.Context, sourceAttributeID string, categoryID *int) (*domain.AttributeMapping, error)
	FindAttributeMappingByTarget(ctx context.Context, targetAttributeID string, categoryID *int) (*domain.AttributeMapping, error)
	ListAttributeMappings(ctx context.Context) ([]*domain.AttributeMapping, error)
	ListAttributeMappingsByCategory(ctx context.Context, categoryID int) ([]*domain.AttributeMapping, error)
	CreateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error
	UpdateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error
	UpdateAttributeMappingNames(ctx context.Context, id int, sourceName, targetName string) error
	DeleteAttributeMapping(ctx context.Context, id int) error
}

type mappingRepository struct {
	db *sql.DB
}

// NewMappingRepository creates a new instance of MappingRepository
func NewMappingRepository(db *sql.DB) MappingRepository {
	return &mappingRepository{db: db}
}

const categoryMappingColumns = `id, source_category, target_category, COALESCE(target_subject_id, 0), COALESCE(source_category_id, 0)`

// FindCategoryMapping retrieves the mapping for one source category label
func (r *mappingRepository) FindCategoryMapping(ctx context.Context, sourceCategory string) (*domain.CategoryMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM category_mappings WHERE source_category = $1`, categoryMappingColumns)
	return r.scanCategoryMapping(r.db.QueryRowContext(ctx, query, sourceCategory))
}

// FindCategoryMappingByTarget retrieves the first mapping pointing at one
// target category label; used for reverse (target-to-source) transforms
func (r *mappingRepository) FindCategoryMappingByTarget(ctx context.Context, targetCategory string) (*domain.CategoryMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM category_mappings WHERE target_category = $1 ORDER BY id LIMIT 1`, categoryMappingColumns)
	return r.scanCategoryMapping(r.db.QueryRowContext(ctx, query, targetCategory))
}

// ListCategoryMappings retrieves all category mappings
func (r *mappingRepository) ListCategoryMappings(ctx context.Context) ([]*domain.CategoryMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM category_mappings ORDER BY id`, categoryMappingColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list category mappings: %w", err)
	}
	defer rows.Close()

	mappings := []*domain.CategoryMapping{}
	for rows.Next() {
		mapping := &domain.CategoryMapping{}
		if err := rows.Scan(&mapping.ID, &mapping.SourceCategory, &mapping.TargetCategory, &mapping.TargetSubjectID, &mapping.SourceCategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan category mapping: %w", err)
		}
		mappings = append(mappings, mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category mappings: %w", err)
	}

	return mappings, nil
}

// CreateCategoryMapping inserts a mapping; if the source category is already
// mapped the existing row wins and is returned in place of the insert.
func (r *mappingRepository) CreateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error {
	query := fmt.Sprintf(`
		INSERT INTO category_mappings (source_category, target_category, target_subject_id, source_category_id)
		VALUES ($1, $2, NULLIF($3, 0), NULLIF($4, 0))
		ON CONFLICT (source_category) DO UPDATE
		SET source_category = EXCLUDED.source_category
		RETURNING %s
	`, categoryMappingColumns)

	row := r.db.QueryRowContext(ctx, query, mapping.SourceCategory, mapping.TargetCategory, mapping.TargetSubjectID, mapping.SourceCategoryID)
	existing, err := r.scanCategoryMapping(row)
	if err != nil {
		return fmt.Errorf("failed to create category mapping: %w", err)
	}

	*mapping = *existing
	return nil
}

// UpdateCategoryMapping rewrites an existing category mapping
func (r *mappingRepository) UpdateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error {
	query := `
		UPDATE category_mappings
		SET source_category = $2, target_category = $3,
		    target_subject_id = NULLIF($4, 0), source_category_id = NULLIF($5, 0)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, mapping.ID, mapping.SourceCategory, mapping.TargetCategory, mapping.TargetSubjectID, mapping.SourceCategoryID)
	if err != nil {
		return fmt.Errorf("failed to update category mapping: %w", err)
	}

	return requireRowAffected(result, ErrCategoryMappingNotFound)
}

// DeleteCategoryMapping removes a category mapping
func (r *mappingRepository) DeleteCategoryMapping(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM category_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category mapping: %w", err)
	}

	return requireRowAffected(result, ErrCategoryMappingNotFound)
}

// CountCategoryMappings returns the number of persisted category mappings
func (r *mappingRepository) CountCategoryMappings(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_mappings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count category mappings: %w", err)
	}
	return count, nil
}

func (r *mappingRepository) scanCategoryMapping(row rowScanner) (*domain.CategoryMapping, error) {
	mapping := &domain.CategoryMapping{}
	err := row.Scan(&mapping.ID, &mapping.SourceCategory, &mapping.TargetCategory, &mapping.TargetSubjectID, &mapping.SourceCategoryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCategoryMappingNotFound
		}
		return nil, fmt.Errorf("failed to scan category mapping: %w", err)
	}
	return mapping, nil
}

const attributeMappingColumns = `id, source_attribute_id, source_attribute_name, target_attribute_id, target_attribute_name, category_id`

// FindAttributeMapping retrieves the mapping for a source attribute within one
// scope: a concrete category when categoryID is non-nil, the global scope
// otherwise. Scopes are looked up separately so category-scoped rows never
// leak into global resolution.
func (r *mappingRepository) FindAttributeMapping(ctx context.Context, sourceAttributeID string, categoryID *int) (*domain.AttributeMapping, error) {
	var row *sql.Row
	if categoryID != nil {
		query := fmt.Sprintf(`SELECT %s FROM attribute_mappings WHERE source_attribute_id = $1 AND category_id = $2`, attributeMappingColumns)
		row = r.db.QueryRowContext(ctx, query, sourceAttributeID, *categoryID)
	} else {
		query := fmt.Sprintf(`SELECT %s FROM attribute_mappings WHERE source_attribute_id = $1 AND category_id IS NULL`, attributeMappingColumns)
		row = r.db.QueryRowContext(ctx, query, sourceAttributeID)
	}

	return r.scanAttributeMapping(row)
}

// FindAttributeMappingByTarget resolves the reverse direction: given a target
// attribute identifier, find the mapping that produced it, preferring the
// category scope over the global one.
func (r *mappingRepository) FindAttributeMappingByTarget(ctx context.Context, targetAttributeID string, categoryID *int) (*domain.AttributeMapping, error) {
	if categoryID != nil {
		query := fmt.Sprintf(`SELECT %s FROM attribute_mappings WHERE target_attribute_id = $1 AND category_id = $2`, attributeMappingColumns)
		mapping, err := r.scanAttributeMapping(r.db.QueryRowContext(ctx, query, targetAttributeID, *categoryID))
		if err == nil {
			return mapping, nil
		}
		if !errors.Is(err, ErrAttributeMappingNotFound) {
			return nil, err
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM attribute_mappings WHERE target_attribute_id = $1 AND category_id IS NULL`, attributeMappingColumns)
	return r.scanAttributeMapping(r.db.QueryRowContext(ctx, query, targetAttributeID))
}

// ListAttributeMappings retrieves all attribute mappings
func (r *mappingRepository) ListAttributeMappings(ctx context.Context) ([]*domain.AttributeMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM attribute_mappings ORDER BY id`, attributeMappingColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute mappings: %w", err)
	}
	defer rows.Close()

	return collectAttributeMappings(rows)
}

// ListAttributeMappingsByCategory retrieves the mappings scoped to one category mapping
func (r *mappingRepository) ListAttributeMappingsByCategory(ctx context.Context, categoryID int) ([]*domain.AttributeMapping, error) {
	query := fmt.Sprintf(`SELECT %s FROM attribute_mappings WHERE category_id = $1 ORDER BY id`, attributeMappingColumns)

	rows, err := r.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute mappings by category: %w", err)
	}
	defer rows.Close()

	return collectAttributeMappings(rows)
}

// CreateAttributeMapping inserts a mapping; a concurrent insert for the same
// (source attribute, scope) pair converges on the first surviving row, which
// is written back into the argument.
func (r *mappingRepository) CreateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error {
	query := fmt.Sprintf(`
		INSERT INTO attribute_mappings (source_attribute_id, source_attribute_name, target_attribute_id, target_attribute_name, category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_attribute_id, COALESCE(category_id, 0)) DO UPDATE
		SET source_attribute_id = EXCLUDED.source_attribute_id
		RETURNING %s
	`, attributeMappingColumns)

	row := r.db.QueryRowContext(ctx, query, mapping.SourceAttributeID, mapping.SourceAttributeName, mapping.TargetAttributeID, mapping.TargetAttributeName, mapping.CategoryID)
	existing, err := r.scanAttributeMapping(row)
	if err != nil {
		return fmt.Errorf("failed to create attribute mapping: %w", err)
	}

	*mapping = *existing
	return nil
}

// UpdateAttributeMapping rewrites an existing attribute mapping
func (r *mappingRepository) UpdateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error {
	query := `
		UPDATE attribute_mappings
		SET source_attribute_id = $2, source_attribute_name = $3,
		    target_attribute_id = $4, target_attribute_name = $5, category_id = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, mapping.ID, mapping.SourceAttributeID, mapping.SourceAttributeName, mapping.TargetAttributeID, mapping.TargetAttributeName, mapping.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to update attribute mapping: %w", err)
	}

	return requireRowAffected(result, ErrAttributeMappingNotFound)
}

// UpdateAttributeMappingNames backfills the human-readable names on a mapping
func (r *mappingRepository) UpdateAttributeMappingNames(ctx context.Context, id int, sourceName, targetName string) error {
	query := `
		UPDATE attribute_mappings
		SET source_attribute_name = $2, target_attribute_name = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, sourceName, targetName)
	if err != nil {
		return fmt.Errorf("failed to update attribute mapping names: %w", err)
	}

	return requireRowAffected(result, ErrAttributeMappingNotFound)
}

// DeleteAttributeMapping removes an attribute mapping
func (r *mappingRepository) DeleteAttributeMapping(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attribute_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attribute mapping: %w", err)
	}

	return requireRowAffected(result, ErrAttributeMappingNotFound)
}

func (r *mappingRepository) scanAttributeMapping(row rowScanner) (*domain.AttributeMapping, error) {
	mapping := &domain.AttributeMapping{}
	var categoryID sql.NullInt64

	err := row.Scan(&mapping.ID, &mapping.SourceAttributeID, &mapping.SourceAttributeName, &mapping.TargetAttributeID, &mapping.TargetAttributeName, &categoryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAttributeMappingNotFound
		}
		return nil, fmt.Errorf("failed to scan attribute mapping: %w", err)
	}

	if categoryID.Valid {
		id := int(categoryID.Int64)
		mapping.CategoryID = &id
	}

	return mapping, nil
}

func collectAttributeMappings(rows *sql.Rows) ([]*domain.AttributeMapping, error) {
	mappings := []*domain.AttributeMapping{}
	for rows.Next() {
		mapping := &domain.AttributeMapping{}
		var categoryID sql.NullInt64
		if err := rows.Scan(&mapping.ID, &mapping.SourceAttributeID, &mapping.SourceAttributeName, &mapping.TargetAttributeID, &mapping.TargetAttributeName, &categoryID); err != nil {
			return nil, fmt.Errorf("failed to scan attribute mapping: %w", err)
		}
		if categoryID.Valid {
			id := int(categoryID.Int64)
			mapping.CategoryID = &id
		}
		mappings = append(mappings, mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attribute mappings: %w", err)
	}

	return mappings, nil
}
