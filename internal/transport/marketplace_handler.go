package transport

import (
	"errors"
	"net/http"

	"marketbridge/internal/domain"
	"marketbridge/internal/middleware"
	"marketbridge/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CredentialsRequest represents the payload storing marketplace API credentials
type CredentialsRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key" validate:"required"`
}

// ConnectionTestResponse reports the outcome of a connection test
type ConnectionTestResponse struct {
	Marketplace string `json:"marketplace"`
	Connected   bool   `json:"connected"`
	Error       string `json:"error,omitempty"`
}

// MarketplaceHandler handles HTTP requests for marketplace integrations
type MarketplaceHandler struct {
	marketplaceService service.MarketplaceService
	logger             *zap.Logger
}

// NewMarketplaceHandler creates a new MarketplaceHandler
func NewMarketplaceHandler(marketplaceService service.MarketplaceService, logger *zap.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		marketplaceService: marketplaceService,
		logger:             logger,
	}
}

// RegisterRoutes registers all marketplace integration routes; storing
// credentials requires the admin role
func (h *MarketplaceHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/marketplaces/{marketplace}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/status", h.Status)
		r.Post("/test", h.Test)

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Put("/credentials", h.SaveCredentials)
		})
	})
}

func urlMarketplace(r *http.Request) domain.Marketplace {
	return domain.Marketplace(chi.URLParam(r, "marketplace"))
}

// SaveCredentials handles storing API credentials for one marketplace
func (h *MarketplaceHandler) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mp := urlMarketplace(r)
	credential, err := h.marketplaceService.SaveCredentials(r.Context(), mp, req.ClientID, req.APIKey)
	if err != nil {
		if errors.Is(err, service.ErrUnknownMarketplace) {
			middleware.RespondWithError(w, http.StatusBadRequest, "unknown marketplace")
			return
		}
		h.logger.Error("Failed to save credentials", zap.String("marketplace", string(mp)), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to save credentials")
		return
	}

	h.logger.Info("Marketplace credentials updated",
		zap.String("marketplace", string(mp)),
		zap.Bool("connected", credential.IsConnected),
	)
	middleware.RespondWithJSON(w, http.StatusOK, credential)
}

// Test handles running a connection test against one marketplace
func (h *MarketplaceHandler) Test(w http.ResponseWriter, r *http.Request) {
	mp := urlMarketplace(r)

	connected, err := h.marketplaceService.TestConnection(r.Context(), mp)
	if err != nil && errors.Is(err, service.ErrUnknownMarketplace) {
		middleware.RespondWithError(w, http.StatusBadRequest, "unknown marketplace")
		return
	}

	response := ConnectionTestResponse{
		Marketplace: string(mp),
		Connected:   connected,
	}
	if err != nil {
		response.Error = err.Error()
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Status handles reporting the stored integration state
func (h *MarketplaceHandler) Status(w http.ResponseWriter, r *http.Request) {
	mp := urlMarketplace(r)

	status, err := h.marketplaceService.ConnectionStatus(r.Context(), mp)
	if err != nil {
		if errors.Is(err, service.ErrUnknownMarketplace) {
			middleware.RespondWithError(w, http.StatusBadRequest, "unknown marketplace")
			return
		}
		h.logger.Error("Failed to load integration status", zap.String("marketplace", string(mp)), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load integration status")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, status)
}
