package domain

import "time"

// MarketplaceCredential holds the API credentials for one marketplace.
// Environment variables take precedence over the persisted row; the row keeps
// the last values entered through the settings API and the connection state.
type MarketplaceCredential struct {
	ID          int         `json:"id" db:"id"`
	Marketplace Marketplace `json:"marketplace" db:"marketplace"`
	ClientID    string      `json:"client_id" db:"client_id"`
	APIKey      string      `json:"-" db:"api_key"`
	IsConnected bool        `json:"is_connected" db:"is_connected"`
	LastSyncAt  *time.Time  `json:"last_sync_at,omitempty" db:"last_sync_at"`
}
