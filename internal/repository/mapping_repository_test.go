package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"
	"time"

	"marketbridge/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var testDB *sql.DB

func setupTestDB() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:15",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	connStr := "postgres://" + dbUser + ":" + dbPwd + "@" + dbHost + ":" + dbPort.Port() + "/" + dbName + "?sslmode=disable"
	testDB, err = sql.Open("pgx", connStr)
	if err != nil {
		return dbContainer.Terminate, err
	}

	// Create the tables the mapping and migration repositories touch. The pgx
	// driver runs one statement per Exec.
	schema := []string{
		`CREATE TABLE IF NOT EXISTS category_mappings (
			id SERIAL PRIMARY KEY,
			source_category TEXT UNIQUE NOT NULL,
			target_category TEXT NOT NULL,
			target_subject_id INTEGER,
			source_category_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS attribute_mappings (
			id SERIAL PRIMARY KEY,
			source_attribute_id VARCHAR(255) NOT NULL,
			source_attribute_name TEXT,
			target_attribute_id VARCHAR(255) NOT NULL,
			target_attribute_name TEXT,
			category_id INTEGER REFERENCES category_mappings(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_attribute_mappings_scope
			ON attribute_mappings (source_attribute_id, COALESCE(category_id, 0))`,
		`CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP,
			status VARCHAR(20) NOT NULL,
			total_products INTEGER NOT NULL DEFAULT 0,
			successful_products INTEGER NOT NULL DEFAULT 0,
			failed_products INTEGER NOT NULL DEFAULT 0,
			options JSONB NOT NULL DEFAULT '{}',
			duration INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS migration_products (
			id SERIAL PRIMARY KEY,
			migration_id INTEGER NOT NULL REFERENCES migrations(id) ON DELETE CASCADE,
			product_id INTEGER NOT NULL,
			status VARCHAR(20) NOT NULL,
			error_message TEXT,
			target_product_id VARCHAR(255),
			UNIQUE (migration_id, product_id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := testDB.Exec(stmt); err != nil {
			return dbContainer.Terminate, err
		}
	}

	return dbContainer.Terminate, nil
}

func truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := testDB.Exec("DELETE FROM " + table); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMain(m *testing.M) {
	teardown, err := setupTestDB()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
}

// Feature: marketplace-bridge, Property 11: Racing category mapping writers
// converge on a single surviving row
func TestProperty_CategoryMappingUpsertConverges(t *testing.T) {
	repo := NewMappingRepository(testDB)
	ctx := context.Background()

	properties := gopter.NewProperties(nil)

	properties.Property("duplicate source categories converge on one row", prop.ForAll(
		func(source, firstTarget, secondTarget string) bool {
			_, _ = testDB.Exec("DELETE FROM category_mappings WHERE source_category = $1", source)

			first := &domain.CategoryMapping{SourceCategory: source, TargetCategory: firstTarget}
			if err := repo.CreateCategoryMapping(ctx, first); err != nil {
				t.Logf("first create failed: %v", err)
				return false
			}

			second := &domain.CategoryMapping{SourceCategory: source, TargetCategory: secondTarget}
			if err := repo.CreateCategoryMapping(ctx, second); err != nil {
				t.Logf("second create failed: %v", err)
				return false
			}

			// Same surviving row, refreshed target
			if first.ID != second.ID {
				return false
			}

			found, err := repo.FindCategoryMapping(ctx, source)
			if err != nil {
				return false
			}
			return found.ID == first.ID && found.TargetCategory == secondTarget
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestAttributeMappingScopes(t *testing.T) {
	repo := NewMappingRepository(testDB)
	ctx := context.Background()

	truncate(t, "attribute_mappings", "category_mappings")

	category := &domain.CategoryMapping{SourceCategory: "scope-test", TargetCategory: "Scoped"}
	if err := repo.CreateCategoryMapping(ctx, category); err != nil {
		t.Fatal(err)
	}

	global := &domain.AttributeMapping{SourceAttributeID: "8229", TargetAttributeID: "global_id"}
	if err := repo.CreateAttributeMapping(ctx, global); err != nil {
		t.Fatal(err)
	}

	scoped := &domain.AttributeMapping{SourceAttributeID: "8229", TargetAttributeID: "scoped_id", CategoryID: &category.ID}
	if err := repo.CreateAttributeMapping(ctx, scoped); err != nil {
		t.Fatal(err)
	}
	if scoped.ID == global.ID {
		t.Fatal("scoped and global mappings must be distinct rows")
	}

	found, err := repo.FindAttributeMapping(ctx, "8229", &category.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found.TargetAttributeID != "scoped_id" {
		t.Errorf("expected scoped mapping, got %q", found.TargetAttributeID)
	}

	found, err = repo.FindAttributeMapping(ctx, "8229", nil)
	if err != nil {
		t.Fatal(err)
	}
	if found.TargetAttributeID != "global_id" {
		t.Errorf("expected global mapping, got %q", found.TargetAttributeID)
	}

	// A second global insert for the same attribute converges on the survivor
	duplicate := &domain.AttributeMapping{SourceAttributeID: "8229", TargetAttributeID: "replacement_id"}
	if err := repo.CreateAttributeMapping(ctx, duplicate); err != nil {
		t.Fatal(err)
	}
	if duplicate.ID != global.ID {
		t.Errorf("expected upsert to return the surviving row, got %d and %d", duplicate.ID, global.ID)
	}

	if _, err := repo.FindAttributeMapping(ctx, "no-such-attribute", nil); !errors.Is(err, ErrAttributeMappingNotFound) {
		t.Errorf("expected ErrAttributeMappingNotFound, got %v", err)
	}
}

func TestAttributeMappingNameBackfill(t *testing.T) {
	repo := NewMappingRepository(testDB)
	ctx := context.Background()

	truncate(t, "attribute_mappings")

	mapping := &domain.AttributeMapping{SourceAttributeID: "1001", TargetAttributeID: "weight"}
	if err := repo.CreateAttributeMapping(ctx, mapping); err != nil {
		t.Fatal(err)
	}

	if err := repo.UpdateAttributeMappingNames(ctx, mapping.ID, "Weight", "weight"); err != nil {
		t.Fatal(err)
	}

	found, err := repo.FindAttributeMapping(ctx, "1001", nil)
	if err != nil {
		t.Fatal(err)
	}
	if found.SourceAttributeName != "Weight" {
		t.Errorf("expected backfilled source name, got %q", found.SourceAttributeName)
	}
}

func TestMigrationLifecycle(t *testing.T) {
	repo := NewMigrationRepository(testDB)
	ctx := context.Background()

	truncate(t, "migration_products", "migrations")

	migration := &domain.Migration{
		Status:        domain.MigrationPending,
		TotalProducts: 2,
		Options:       domain.MigrationOptions{SkipExisting: true},
	}
	if err := repo.Create(ctx, migration); err != nil {
		t.Fatal(err)
	}
	if migration.ID == 0 || migration.CreatedAt.IsZero() {
		t.Fatal("expected generated ID and created_at")
	}

	if err := repo.SetStatus(ctx, migration.ID, domain.MigrationInProgress); err != nil {
		t.Fatal(err)
	}

	stuck, err := repo.ListStuck(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stuck) != 1 || stuck[0].ID != migration.ID {
		t.Fatalf("expected the in_progress migration listed as stuck, got %v", stuck)
	}

	if err := repo.AddSuccess(ctx, migration.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.AddFailure(ctx, migration.ID); err != nil {
		t.Fatal(err)
	}

	if err := repo.Complete(ctx, migration.ID, domain.MigrationPartial, 4, time.Now()); err != nil {
		t.Fatal(err)
	}

	found, err := repo.FindByID(ctx, migration.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found.Status != domain.MigrationPartial {
		t.Errorf("expected partial, got %s", found.Status)
	}
	if found.SuccessfulProducts != 1 || found.FailedProducts != 1 {
		t.Errorf("expected counters 1/1, got %d/%d", found.SuccessfulProducts, found.FailedProducts)
	}
	if found.Duration != 4 || found.CompletedAt == nil {
		t.Errorf("expected stamped duration and completion, got %d, %v", found.Duration, found.CompletedAt)
	}
	if !found.Options.SkipExisting {
		t.Error("expected options to round-trip")
	}

	if _, err := repo.FindByID(ctx, migration.ID+1000); !errors.Is(err, ErrMigrationNotFound) {
		t.Errorf("expected ErrMigrationNotFound, got %v", err)
	}
}

func TestMigrationProductUpsert(t *testing.T) {
	repo := NewMigrationRepository(testDB)
	ctx := context.Background()

	truncate(t, "migration_products", "migrations")

	migration := &domain.Migration{Status: domain.MigrationPending, TotalProducts: 1}
	if err := repo.Create(ctx, migration); err != nil {
		t.Fatal(err)
	}

	item := &domain.MigrationProduct{MigrationID: migration.ID, ProductID: 42, Status: domain.MigrationProductPending}
	if err := repo.CreateProduct(ctx, item); err != nil {
		t.Fatal(err)
	}

	if err := repo.FinishProduct(ctx, item.ID, domain.MigrationProductFailed, "boom", ""); err != nil {
		t.Fatal(err)
	}

	// Re-creating the same (migration, product) returns the existing row
	// with its recorded outcome instead of inserting a duplicate
	again := &domain.MigrationProduct{MigrationID: migration.ID, ProductID: 42, Status: domain.MigrationProductPending}
	if err := repo.CreateProduct(ctx, again); err != nil {
		t.Fatal(err)
	}
	if again.ID != item.ID {
		t.Errorf("expected the surviving row, got IDs %d and %d", again.ID, item.ID)
	}
	if again.Status != domain.MigrationProductFailed || again.ErrorMessage != "boom" {
		t.Errorf("expected recorded outcome returned, got %+v", again)
	}

	items, err := repo.ProductsByMigration(ctx, migration.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected a single row, got %d", len(items))
	}
}
