package domain

import "time"

// MigrationStatus is the lifecycle state of a migration batch.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationPartial    MigrationStatus = "partial"
)

// MigrationProductStatus is the terminal state of one product within a batch.
type MigrationProductStatus string

const (
	MigrationProductPending MigrationProductStatus = "pending"
	MigrationProductSuccess MigrationProductStatus = "success"
	MigrationProductFailed  MigrationProductStatus = "failed"
)

// MigrationOptions control how a batch is processed.
type MigrationOptions struct {
	UpdatePrices bool `json:"update_prices"`
	UpdateStocks bool `json:"update_stocks"`
	SkipExisting bool `json:"skip_existing"`
}

// Migration is one batch operation moving a set of products from one
// marketplace to the other. It starts pending, moves to in_progress when the
// orchestrator picks it up, and terminates in exactly one of completed (all
// items succeeded), failed (zero successes) or partial (mixed). Duration is
// fixed in whole seconds at the moment the batch terminates.
type Migration struct {
	ID                 int              `json:"id" db:"id"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	Status             MigrationStatus  `json:"status" db:"status"`
	TotalProducts      int              `json:"total_products" db:"total_products"`
	SuccessfulProducts int              `json:"successful_products" db:"successful_products"`
	FailedProducts     int              `json:"failed_products" db:"failed_products"`
	Options            MigrationOptions `json:"options" db:"options"`
	Duration           int              `json:"duration" db:"duration"`
}

// MigrationProduct is the per-item row of a migration batch. It is created in
// pending before processing and updated exactly once to its terminal status.
type MigrationProduct struct {
	ID              int                    `json:"id" db:"id"`
	MigrationID     int                    `json:"migration_id" db:"migration_id"`
	ProductID       int                    `json:"product_id" db:"product_id"`
	Status          MigrationProductStatus `json:"status" db:"status"`
	ErrorMessage    string                 `json:"error_message,omitempty" db:"error_message"`
	TargetProductID string                 `json:"target_product_id,omitempty" db:"target_product_id"`
}

// BatchItemResult is the outcome of one product in an inline batch migration.
type BatchItemResult struct {
	ProductID       int                    `json:"product_id"`
	Status          MigrationProductStatus `json:"status"`
	TargetProductID string                 `json:"target_product_id,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
}

// BatchReport summarizes an inline batch migration.
type BatchReport struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Results    []BatchItemResult `json:"results"`
}

// FinalStatus computes the terminal status for a batch with the given
// success and failure counts.
func FinalStatus(successful, failed int) MigrationStatus {
	switch {
	case failed > 0 && successful == 0:
		return MigrationFailed
	case failed > 0:
		return MigrationPartial
	default:
		return MigrationCompleted
	}
}
