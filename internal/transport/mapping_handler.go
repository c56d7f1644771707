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

// CategoryMappingRequest represents the create/update payload for a category mapping
type CategoryMappingRequest struct {
	SourceCategory   string `json:"source_category" validate:"required"`
	TargetCategory   string `json:"target_category" validate:"required"`
	TargetSubjectID  int    `json:"target_subject_id"`
	SourceCategoryID int    `json:"source_category_id"`
}

// AttributeMappingRequest represents the create/update payload for an attribute mapping
type AttributeMappingRequest struct {
	SourceAttributeID   string `json:"source_attribute_id" validate:"required"`
	SourceAttributeName string `json:"source_attribute_name"`
	TargetAttributeID   string `json:"target_attribute_id" validate:"required"`
	TargetAttributeName string `json:"target_attribute_name"`
	CategoryID          *int   `json:"category_id"`
}

// MappingHandler handles HTTP requests for category and attribute mappings
type MappingHandler struct {
	mappingService service.MappingService
	logger         *zap.Logger
}

// NewMappingHandler creates a new MappingHandler
func NewMappingHandler(mappingService service.MappingService, logger *zap.Logger) *MappingHandler {
	return &MappingHandler{
		mappingService: mappingService,
		logger:         logger,
	}
}

// RegisterRoutes registers all mapping routes; reads need auth, writes need
// the admin role
func (h *MappingHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/mappings", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/categories", h.ListCategories)
		r.Get("/attributes", h.ListAttributes)

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Post("/categories", h.CreateCategory)
			r.Put("/categories/{id}", h.UpdateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
			r.Post("/attributes", h.CreateAttribute)
			r.Put("/attributes/{id}", h.UpdateAttribute)
			r.Delete("/attributes/{id}", h.DeleteAttribute)
		})
	})
}

// ListCategories handles listing all category mappings
func (h *MappingHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.mappingService.ListCategoryMappings(r.Context())
	if err != nil {
		h.logger.Error("Failed to list category mappings", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list category mappings")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, mappings)
}

// CreateCategory handles creating a category mapping
func (h *MappingHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryMappingRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mapping := &domain.CategoryMapping{
		SourceCategory:   req.SourceCategory,
		TargetCategory:   req.TargetCategory,
		TargetSubjectID:  req.TargetSubjectID,
		SourceCategoryID: req.SourceCategoryID,
	}
	if err := h.mappingService.CreateCategoryMapping(r.Context(), mapping); err != nil {
		h.logger.Error("Failed to create category mapping", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create category mapping")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, mapping)
}

// UpdateCategory handles replacing a category mapping
func (h *MappingHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid mapping ID")
		return
	}

	var req CategoryMappingRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mapping := &domain.CategoryMapping{
		ID:               id,
		SourceCategory:   req.SourceCategory,
		TargetCategory:   req.TargetCategory,
		TargetSubjectID:  req.TargetSubjectID,
		SourceCategoryID: req.SourceCategoryID,
	}
	if err := h.mappingService.UpdateCategoryMapping(r.Context(), mapping); err != nil {
		if errors.Is(err, repository.ErrCategoryMappingNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "category mapping not found")
			return
		}
		h.logger.Error("Failed to update category mapping", zap.Int("mapping_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update category mapping")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, mapping)
}

// DeleteCategory handles deleting a category mapping
func (h *MappingHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid mapping ID")
		return
	}

	if err := h.mappingService.DeleteCategoryMapping(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrCategoryMappingNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "category mapping not found")
			return
		}
		h.logger.Error("Failed to delete category mapping", zap.Int("mapping_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete category mapping")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "category mapping deleted"})
}

// ListAttributes handles listing attribute mappings, optionally filtered by
// the category_id query parameter
func (h *MappingHandler) ListAttributes(w http.ResponseWriter, r *http.Request) {
	var categoryID *int
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		categoryID = &id
	}

	mappings, err := h.mappingService.ListAttributeMappings(r.Context(), categoryID)
	if err != nil {
		h.logger.Error("Failed to list attribute mappings", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list attribute mappings")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, mappings)
}

// CreateAttribute handles creating an attribute mapping
func (h *MappingHandler) CreateAttribute(w http.ResponseWriter, r *http.Request) {
	var req AttributeMappingRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mapping := &domain.AttributeMapping{
		SourceAttributeID:   req.SourceAttributeID,
		SourceAttributeName: req.SourceAttributeName,
		TargetAttributeID:   req.TargetAttributeID,
		TargetAttributeName: req.TargetAttributeName,
		CategoryID:          req.CategoryID,
	}
	if err := h.mappingService.CreateAttributeMapping(r.Context(), mapping); err != nil {
		h.logger.Error("Failed to create attribute mapping", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create attribute mapping")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, mapping)
}

// UpdateAttribute handles replacing an attribute mapping
func (h *MappingHandler) UpdateAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid mapping ID")
		return
	}

	var req AttributeMappingRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mapping := &domain.AttributeMapping{
		ID:                  id,
		SourceAttributeID:   req.SourceAttributeID,
		SourceAttributeName: req.SourceAttributeName,
		TargetAttributeID:   req.TargetAttributeID,
		TargetAttributeName: req.TargetAttributeName,
		CategoryID:          req.CategoryID,
	}
	if err := h.mappingService.UpdateAttributeMapping(r.Context(), mapping); err != nil {
		if errors.Is(err, repository.ErrAttributeMappingNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "attribute mapping not found")
			return
		}
		h.logger.Error("Failed to update attribute mapping", zap.Int("mapping_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update attribute mapping")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, mapping)
}

// DeleteAttribute handles deleting an attribute mapping
func (h *MappingHandler) DeleteAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid mapping ID")
		return
	}

	if err := h.mappingService.DeleteAttributeMapping(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrAttributeMappingNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "attribute mapping not found")
			return
		}
		h.logger.Error("Failed to delete attribute mapping", zap.Int("mapping_id", id), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete attribute mapping")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "attribute mapping deleted"})
}
