package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMigrationFilesExist(t *testing.T) {
	migrationsDir := "../../migrations"

	// Check if migrations directory exists
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		t.Fatal("Migrations directory does not exist")
	}

	// Expected migration files
	expectedMigrations := []string{
		"00001_create_users_table.sql",
		"00002_create_refresh_tokens_table.sql",
		"00003_create_marketplace_credentials_table.sql",
		"00004_create_products_table.sql",
		"00005_create_category_mappings_table.sql",
		"00006_create_attribute_mappings_table.sql",
		"00007_create_migrations_table.sql",
		"00008_create_migration_products_table.sql",
	}

	for _, migration := range expectedMigrations {
		path := filepath.Join(migrationsDir, migration)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Errorf("Migration file %s does not exist", migration)
		}
	}
}

func TestMigrationFilesHaveUpAndDown(t *testing.T) {
	migrationsDir := "../../migrations"

	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("Failed to read migrations directory: %v", err)
	}

	sqlFileCount := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		sqlFileCount++
		content, err := os.ReadFile(filepath.Join(migrationsDir, file.Name()))
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", file.Name(), err)
			continue
		}

		contentStr := string(content)

		// Check for goose Up directive
		if !strings.Contains(contentStr, "-- +goose Up") {
			t.Errorf("Migration file %s missing '-- +goose Up' directive", file.Name())
		}

		// Check for goose Down directive
		if !strings.Contains(contentStr, "-- +goose Down") {
			t.Errorf("Migration file %s missing '-- +goose Down' directive", file.Name())
		}

		// Check for StatementBegin/End
		if !strings.Contains(contentStr, "-- +goose StatementBegin") {
			t.Errorf("Migration file %s missing '-- +goose StatementBegin' directive", file.Name())
		}

		if !strings.Contains(contentStr, "-- +goose StatementEnd") {
			t.Errorf("Migration file %s missing '-- +goose StatementEnd' directive", file.Name())
		}
	}

	if sqlFileCount == 0 {
		t.Error("No SQL migration files found")
	}
}

func TestMigrationFilesCreateExpectedTables(t *testing.T) {
	migrationsDir := "../../migrations"

	expectedTables := map[string]string{
		"users":                   "00001_create_users_table.sql",
		"refresh_tokens":          "00002_create_refresh_tokens_table.sql",
		"marketplace_credentials": "00003_create_marketplace_credentials_table.sql",
		"products":                "00004_create_products_table.sql",
		"category_mappings":       "00005_create_category_mappings_table.sql",
		"attribute_mappings":      "00006_create_attribute_mappings_table.sql",
		"migrations":              "00007_create_migrations_table.sql",
		"migration_products":      "00008_create_migration_products_table.sql",
	}

	for tableName, migrationFile := range expectedTables {
		path := filepath.Join(migrationsDir, migrationFile)
		content, err := os.ReadFile(path)
		if err != nil {
			t.Errorf("Failed to read migration file %s: %v", migrationFile, err)
			continue
		}

		contentStr := string(content)

		// Check if migration creates the table
		createTableStmt := "CREATE TABLE IF NOT EXISTS " + tableName
		if !strings.Contains(contentStr, createTableStmt) {
			t.Errorf("Migration file %s does not create table %s", migrationFile, tableName)
		}

		// Check if migration has drop table in down section
		dropTableStmt := "DROP TABLE IF EXISTS " + tableName
		if !strings.Contains(contentStr, dropTableStmt) {
			t.Errorf("Migration file %s does not drop table %s in down section", migrationFile, tableName)
		}
	}
}

func TestProductsTableHasRequiredColumns(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00004_create_products_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read products migration: %v", err)
	}

	contentStr := string(content)
	requiredColumns := []string{
		"id SERIAL PRIMARY KEY",
		"external_id TEXT",
		"marketplace VARCHAR",
		"name TEXT",
		"sku TEXT",
		"category_path TEXT",
		"price INTEGER",
		"image_urls JSONB",
		"attributes JSONB",
		"has_analog BOOLEAN",
	}

	for _, column := range requiredColumns {
		if !strings.Contains(contentStr, column) {
			t.Errorf("Products table missing required column definition: %s", column)
		}
	}

	// One local row per remote listing
	if !strings.Contains(contentStr, "UNIQUE (external_id, marketplace)") {
		t.Error("Products table missing unique constraint on (external_id, marketplace)")
	}
}

func TestCategoryMappingsHaveUniqueSource(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00005_create_category_mappings_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read category_mappings migration: %v", err)
	}

	if !strings.Contains(string(content), "source_category TEXT UNIQUE") {
		t.Error("Category mappings table missing unique constraint on source_category")
	}
}

func TestAttributeMappingsHaveScopedUniqueIndex(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00006_create_attribute_mappings_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read attribute_mappings migration: %v", err)
	}

	contentStr := string(content)

	// The scope index treats NULL category_id as the global scope, so the
	// upsert in the repository has a single conflict target
	if !strings.Contains(contentStr, "CREATE UNIQUE INDEX") {
		t.Error("Attribute mappings migration missing the unique scope index")
	}
	if !strings.Contains(contentStr, "COALESCE(category_id, 0)") {
		t.Error("Attribute mappings scope index must coalesce NULL category_id")
	}
}

func TestMigrationProductsHaveUniqueConstraint(t *testing.T) {
	migrationsDir := "../../migrations"
	path := filepath.Join(migrationsDir, "00008_create_migration_products_table.sql")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read migration_products migration: %v", err)
	}

	if !strings.Contains(string(content), "UNIQUE (migration_id, product_id)") {
		t.Error("Migration products table missing unique constraint on (migration_id, product_id)")
	}
}
