package service

import (
	"context"
	"errors"
	"fmt"

	"marketbridge/internal/domain"
	"marketbridge/internal/marketplace"
	"marketbridge/internal/repository"

	"go.uber.org/zap"
)

// MarketplaceService manages the stored API credentials and connection state
// of the two marketplace integrations.
type MarketplaceService interface {
	SaveCredentials(ctx context.Context, mp domain.Marketplace, clientID, apiKey string) (*domain.MarketplaceCredential, error)
	TestConnection(ctx context.Context, mp domain.Marketplace) (bool, error)
	ConnectionStatus(ctx context.Context, mp domain.Marketplace) (*domain.ConnectionStatus, error)
}

type marketplaceService struct {
	credentials repository.CredentialRepository
	source      marketplace.Catalog
	target      marketplace.Catalog
	logger      *zap.Logger
}

// NewMarketplaceService creates a new instance of MarketplaceService
func NewMarketplaceService(
	credentials repository.CredentialRepository,
	source marketplace.Catalog,
	target marketplace.Catalog,
	logger *zap.Logger,
) MarketplaceService {
	return &marketplaceService{
		credentials: credentials,
		source:      source,
		target:      target,
		logger:      logger,
	}
}

// SaveCredentials stores new credentials for one marketplace and immediately
// tests them; the stored row records the test outcome
func (s *marketplaceService) SaveCredentials(ctx context.Context, mp domain.Marketplace, clientID, apiKey string) (*domain.MarketplaceCredential, error) {
	if !mp.Valid() {
		return nil, ErrUnknownMarketplace
	}

	credential := &domain.MarketplaceCredential{
		Marketplace: mp,
		ClientID:    clientID,
		APIKey:      apiKey,
	}
	if err := s.credentials.Upsert(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	connected, err := s.TestConnection(ctx, mp)
	if err != nil {
		s.logger.Warn("Connection test after saving credentials failed",
			zap.String("marketplace", string(mp)),
			zap.Error(err),
		)
	}
	credential.IsConnected = connected

	return credential, nil
}

// TestConnection pings the marketplace API and records the outcome
func (s *marketplaceService) TestConnection(ctx context.Context, mp domain.Marketplace) (bool, error) {
	if !mp.Valid() {
		return false, ErrUnknownMarketplace
	}

	catalog := s.source
	if mp == domain.MarketplaceTarget {
		catalog = s.target
	}

	pingErr := catalog.Ping(ctx)
	connected := pingErr == nil

	if err := s.credentials.SetConnected(ctx, mp, connected); err != nil && !errors.Is(err, repository.ErrCredentialNotFound) {
		s.logger.Warn("Failed to record connection state",
			zap.String("marketplace", string(mp)),
			zap.Error(err),
		)
	}

	if pingErr != nil {
		return false, fmt.Errorf("connection test for %s failed: %w", mp, pingErr)
	}
	return true, nil
}

// ConnectionStatus reports whether credentials exist and whether the last
// connection test succeeded
func (s *marketplaceService) ConnectionStatus(ctx context.Context, mp domain.Marketplace) (*domain.ConnectionStatus, error) {
	if !mp.Valid() {
		return nil, ErrUnknownMarketplace
	}

	status := &domain.ConnectionStatus{Marketplace: mp}

	credential, err := s.credentials.Find(ctx, mp)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	status.Configured = credential.APIKey != ""
	status.Connected = credential.IsConnected
	status.LastSyncAt = credential.LastSyncAt

	return status, nil
}
