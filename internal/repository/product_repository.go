package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"marketbridge/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Upsert(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	SetAnalogFlag(ctx context.Context, id int, hasAnalog bool) error
	FindByID(ctx context.Context, id int) (*domain.Product, error)
	FindByExternalID(ctx context.Context, externalID string, marketplace domain.Marketplace) (*domain.Product, error)
	ListByMarketplace(ctx context.Context, marketplace domain.Marketplace) ([]*domain.Product, error)
	Search(ctx context.Context, query string, marketplace domain.Marketplace) ([]*domain.Product, error)
	CountByMarketplace(ctx context.Context, marketplace domain.Marketplace) (int, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, external_id, marketplace, name, sku, category_path, price, image_urls, attributes, has_analog`

// Create inserts a new product and fills in its generated ID
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	imageURLs, attributes, err := marshalProductJSON(product)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (external_id, marketplace, name, sku, category_path, price, image_urls, attributes, has_analog)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		product.ExternalID,
		product.Marketplace,
		product.Name,
		product.SKU,
		product.CategoryPath,
		product.Price,
		imageURLs,
		attributes,
		product.HasAnalog,
	).Scan(&product.ID)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Upsert inserts a product or refreshes the stored copy when a row with the
// same (external_id, marketplace) already exists. Used by sync jobs so that
// repeated syncs converge on one row per listing.
func (r *productRepository) Upsert(ctx context.Context, product *domain.Product) error {
	imageURLs, attributes, err := marshalProductJSON(product)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (external_id, marketplace, name, sku, category_path, price, image_urls, attributes, has_analog)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id, marketplace) DO UPDATE
		SET name = EXCLUDED.name,
		    sku = EXCLUDED.sku,
		    category_path = EXCLUDED.category_path,
		    price = EXCLUDED.price,
		    image_urls = EXCLUDED.image_urls,
		    attributes = EXCLUDED.attributes
		RETURNING id
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		product.ExternalID,
		product.Marketplace,
		product.Name,
		product.SKU,
		product.CategoryPath,
		product.Price,
		imageURLs,
		attributes,
		product.HasAnalog,
	).Scan(&product.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// Update rewrites an existing product row
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	imageURLs, attributes, err := marshalProductJSON(product)
	if err != nil {
		return err
	}

	query := `
		UPDATE products
		SET external_id = $2, marketplace = $3, name = $4, sku = $5, category_path = $6,
		    price = $7, image_urls = $8, attributes = $9, has_analog = $10
		WHERE id = $1
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.ExternalID,
		product.Marketplace,
		product.Name,
		product.SKU,
		product.CategoryPath,
		product.Price,
		imageURLs,
		attributes,
		product.HasAnalog,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	return requireRowAffected(result, ErrProductNotFound)
}

// SetAnalogFlag records whether an equivalent listing exists on the other marketplace
func (r *productRepository) SetAnalogFlag(ctx context.Context, id int, hasAnalog bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE products SET has_analog = $2 WHERE id = $1`, id, hasAnalog)
	if err != nil {
		return fmt.Errorf("failed to set analog flag: %w", err)
	}

	return requireRowAffected(result, ErrProductNotFound)
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id int) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByExternalID retrieves a product by its marketplace-assigned identifier
func (r *productRepository) FindByExternalID(ctx context.Context, externalID string, marketplace domain.Marketplace) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE external_id = $1 AND marketplace = $2`, productColumns)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, externalID, marketplace))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by external ID: %w", err)
	}

	return product, nil
}

// ListByMarketplace retrieves all products belonging to one marketplace
func (r *productRepository) ListByMarketplace(ctx context.Context, marketplace domain.Marketplace) ([]*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE marketplace = $1 ORDER BY id`, productColumns)

	rows, err := r.db.QueryContext(ctx, query, marketplace)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// Search performs a case-insensitive name/SKU search within one marketplace
func (r *productRepository) Search(ctx context.Context, query string, marketplace domain.Marketplace) ([]*domain.Product, error) {
	searchPattern := "%" + query + "%"

	sqlQuery := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE marketplace = $1 AND (name ILIKE $2 OR sku ILIKE $2)
		ORDER BY id
	`, productColumns)

	rows, err := r.db.QueryContext(ctx, sqlQuery, marketplace, searchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// CountByMarketplace returns the number of products stored for a marketplace
func (r *productRepository) CountByMarketplace(ctx context.Context, marketplace domain.Marketplace) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE marketplace = $1`, marketplace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var (
		sku          sql.NullString
		categoryPath sql.NullString
		price        sql.NullInt64
		imageURLs    []byte
		attributes   []byte
	)

	err := row.Scan(
		&product.ID,
		&product.ExternalID,
		&product.Marketplace,
		&product.Name,
		&sku,
		&categoryPath,
		&price,
		&imageURLs,
		&attributes,
		&product.HasAnalog,
	)
	if err != nil {
		return nil, err
	}

	product.SKU = sku.String
	product.CategoryPath = categoryPath.String
	product.Price = int(price.Int64)

	if err := json.Unmarshal(imageURLs, &product.ImageURLs); err != nil {
		return nil, fmt.Errorf("failed to decode image urls: %w", err)
	}
	if err := json.Unmarshal(attributes, &product.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}

	return product, nil
}

func collectProducts(rows *sql.Rows) ([]*domain.Product, error) {
	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

func marshalProductJSON(product *domain.Product) ([]byte, []byte, error) {
	if product.ImageURLs == nil {
		product.ImageURLs = []string{}
	}
	if product.Attributes == nil {
		product.Attributes = map[string]domain.AttributeValue{}
	}

	imageURLs, err := json.Marshal(product.ImageURLs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode image urls: %w", err)
	}

	attributes, err := json.Marshal(product.Attributes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode attributes: %w", err)
	}

	return imageURLs, attributes, nil
}

func requireRowAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
