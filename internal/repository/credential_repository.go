package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketbridge/internal/domain"
)

var (
	ErrCredentialNotFound = errors.New("marketplace credential not found")
)

// CredentialRepository defines the interface for marketplace credential data access
type CredentialRepository interface {
	Find(ctx context.Context, marketplace domain.Marketplace) (*domain.MarketplaceCredential, error)
	Upsert(ctx context.Context, credential *domain.MarketplaceCredential) error
	SetConnected(ctx context.Context, marketplace domain.Marketplace, connected bool) error
	TouchSync(ctx context.Context, marketplace domain.Marketplace, at time.Time) error
}

type credentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new instance of CredentialRepository
func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

// Find retrieves the stored credentials for one marketplace
func (r *credentialRepository) Find(ctx context.Context, marketplace domain.Marketplace) (*domain.MarketplaceCredential, error) {
	query := `
		SELECT id, marketplace, COALESCE(client_id, ''), api_key, is_connected, last_sync_at
		FROM marketplace_credentials
		WHERE marketplace = $1
	`

	credential := &domain.MarketplaceCredential{}
	var lastSyncAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, marketplace).Scan(
		&credential.ID,
		&credential.Marketplace,
		&credential.ClientID,
		&credential.APIKey,
		&credential.IsConnected,
		&lastSyncAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to find marketplace credential: %w", err)
	}

	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		credential.LastSyncAt = &t
	}

	return credential, nil
}

// Upsert inserts or replaces the credentials for one marketplace
func (r *credentialRepository) Upsert(ctx context.Context, credential *domain.MarketplaceCredential) error {
	query := `
		INSERT INTO marketplace_credentials (marketplace, client_id, api_key, is_connected)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (marketplace) DO UPDATE
		SET client_id = EXCLUDED.client_id,
		    api_key = EXCLUDED.api_key,
		    is_connected = EXCLUDED.is_connected
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		credential.Marketplace,
		credential.ClientID,
		credential.APIKey,
		credential.IsConnected,
	).Scan(&credential.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert marketplace credential: %w", err)
	}

	return nil
}

// SetConnected records the result of the last connection test
func (r *credentialRepository) SetConnected(ctx context.Context, marketplace domain.Marketplace, connected bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE marketplace_credentials SET is_connected = $2 WHERE marketplace = $1`, marketplace, connected)
	if err != nil {
		return fmt.Errorf("failed to set connection state: %w", err)
	}

	return requireRowAffected(result, ErrCredentialNotFound)
}

// TouchSync stamps the time of the last successful product sync
func (r *credentialRepository) TouchSync(ctx context.Context, marketplace domain.Marketplace, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE marketplace_credentials SET last_sync_at = $2 WHERE marketplace = $1`, marketplace, at)
	if err != nil {
		return fmt.Errorf("failed to stamp sync time: %w", err)
	}

	return requireRowAffected(result, ErrCredentialNotFound)
}
