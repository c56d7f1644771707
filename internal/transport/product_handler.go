package transport

import (
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

// SyncResponse reports the outcome of a catalog sync
type SyncResponse struct {
	Marketplace string `json:"marketplace"`
	Synced      int    `json:"synced"`
}

// ProductHandler handles HTTP requests for the local product catalog
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes; everything requires auth
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/{id}", h.Get)
		r.Post("/sync/{marketplace}", h.Sync)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/api/dashboard/stats", h.Stats)
	})
}

// queryMarketplace reads the marketplace query parameter, defaulting to source
func queryMarketplace(r *http.Request) domain.Marketplace {
	mp := domain.Marketplace(r.URL.Query().Get("marketplace"))
	if mp == "" {
		return domain.MarketplaceSource
	}
	return mp
}

// List handles listing stored products of one marketplace
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.ListProducts(r.Context(), queryMarketplace(r))
	if err != nil {
		if errors.Is(err, service.ErrUnknownMarketplace) {
			middleware.RespondWithError(w, http.StatusBadRequest, "unknown marketplace")
			return
		}
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Search handles product search by name or SKU
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "missing search query")
		return
	}

	products, err := h.productService.SearchProducts(r.Context(), query, queryMarketplace(r))
	if err != nil {
		if errors.Is(err, service.ErrUnknownMarketplace) {
			middleware.RespondWithError(w, http.StatusBadRequest, "unknown marketplace")
			return
		}
		h.logger.Error("Failed to search products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to search products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Get handles fetching one product by ID
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.productService.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to get product", zap.Int("product_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Sync handles pulling one marketplace's catalog into the local store
func (h *ProductHandler) Sync(w http.ResponseWriter, r *http.Request) {
	mp := domain.Marketplace(chi.URLParam(r, "marketplace"))

	synced, err := h.productService.SyncProducts(r.Context(), mp)
	if err != nil {
		if errors.Is(err, service.ErrUnknownMarketplace) {
			middleware.RespondWithError(w, http.StatusBadRequest, "unknown marketplace")
			return
		}
		h.logger.Error("Product sync failed", zap.String("marketplace", string(mp)), zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, "failed to sync products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, SyncResponse{Marketplace: string(mp), Synced: synced})
}

// Stats handles the dashboard aggregate view
func (h *ProductHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.productService.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate dashboard stats", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load dashboard stats")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, stats)
}
