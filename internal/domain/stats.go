package domain

import "time"

// DashboardStats is the aggregate view shown on the dashboard.
type DashboardStats struct {
	SourceProducts     int                     `json:"source_products"`
	TargetProducts     int                     `json:"target_products"`
	CategoryMappings   int                     `json:"category_mappings"`
	MigrationsByStatus map[MigrationStatus]int `json:"migrations_by_status"`
	RecentMigrations   []*Migration            `json:"recent_migrations"`
}

// ConnectionStatus reports the state of one marketplace integration.
type ConnectionStatus struct {
	Marketplace Marketplace `json:"marketplace"`
	Configured  bool        `json:"configured"`
	Connected   bool        `json:"connected"`
	LastSyncAt  *time.Time  `json:"last_sync_at,omitempty"`
}
