package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"marketbridge/internal/domain"
	"marketbridge/internal/middleware"
	"marketbridge/internal/repository"
	"marketbridge/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// StartMigrationRequest represents the payload starting a background migration
type StartMigrationRequest struct {
	ProductIDs []int                   `json:"product_ids" validate:"required,min=1,dive,gt=0"`
	Direction  string                  `json:"direction" validate:"required,oneof=source target"`
	Options    domain.MigrationOptions `json:"options"`
}

// BatchMigrationRequest represents the payload of an inline batch migration
type BatchMigrationRequest struct {
	ProductIDs []int                   `json:"product_ids" validate:"required,min=1,dive,gt=0"`
	Options    domain.MigrationOptions `json:"options"`
}

// MigrationHandler handles HTTP requests for migrations
type MigrationHandler struct {
	migrationService service.MigrationService
	logger           *zap.Logger
}

// NewMigrationHandler creates a new MigrationHandler
func NewMigrationHandler(migrationService service.MigrationService, logger *zap.Logger) *MigrationHandler {
	return &MigrationHandler{
		migrationService: migrationService,
		logger:           logger,
	}
}

// RegisterRoutes registers all migration routes. The endpoints that hit the
// marketplace APIs carry the rate limiter on top of auth.
func (h *MigrationHandler) RegisterRoutes(r chi.Router, authMiddleware, rateLimitMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/migrations", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Get("/recent", h.Recent)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/products", h.Products)

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware)
			r.Post("/", h.Start)
		})
	})

	r.Route("/api/migrate", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(rateLimitMiddleware)
		r.Post("/to-target", h.BatchToTarget)
		r.Post("/to-source", h.BatchToSource)
	})
}

// Start handles launching a background migration. Responds 202 with the
// recorded migration; clients poll its ID for progress.
func (h *MigrationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartMigrationRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	migration, err := h.migrationService.StartMigration(r.Context(), req.ProductIDs, domain.Marketplace(req.Direction), req.Options)
	if err != nil {
		if errors.Is(err, service.ErrNoProducts) || errors.Is(err, service.ErrUnknownMarketplace) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to start migration", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to start migration")
		return
	}

	h.logger.Info("Migration accepted",
		zap.Int("migration_id", migration.ID),
		zap.Int("total_products", migration.TotalProducts),
		zap.String("direction", req.Direction),
	)
	middleware.RespondWithJSON(w, http.StatusAccepted, migration)
}

// List handles listing all migrations
func (h *MigrationHandler) List(w http.ResponseWriter, r *http.Request) {
	migrations, err := h.migrationService.ListMigrations(r.Context())
	if err != nil {
		h.logger.Error("Failed to list migrations", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list migrations")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, migrations)
}

// Recent handles listing the most recent migrations
func (h *MigrationHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	migrations, err := h.migrationService.RecentMigrations(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list recent migrations", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list recent migrations")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, migrations)
}

// Get handles polling one migration's status
func (h *MigrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid migration ID")
		return
	}

	migration, err := h.migrationService.GetMigration(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMigrationNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "migration not found")
			return
		}
		h.logger.Error("Failed to get migration", zap.Int("migration_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get migration")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, migration)
}

// Products handles listing the per-item outcomes of one migration
func (h *MigrationHandler) Products(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid migration ID")
		return
	}

	items, err := h.migrationService.MigrationProducts(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMigrationNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "migration not found")
			return
		}
		h.logger.Error("Failed to list migration products", zap.Int("migration_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list migration products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, items)
}

// BatchToTarget handles an inline migration to the target marketplace
func (h *MigrationHandler) BatchToTarget(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.migrationService.MigrateBatchToTarget)
}

// BatchToSource handles an inline migration to the source marketplace
func (h *MigrationHandler) BatchToSource(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.migrationService.MigrateBatchToSource)
}

func (h *MigrationHandler) batch(w http.ResponseWriter, r *http.Request, migrate func(ctx context.Context, productIDs []int, options domain.MigrationOptions) (*domain.BatchReport, error)) {
	var req BatchMigrationRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := migrate(r.Context(), req.ProductIDs, req.Options)
	if err != nil {
		if errors.Is(err, service.ErrNoProducts) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Batch migration failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to migrate products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, report)
}
