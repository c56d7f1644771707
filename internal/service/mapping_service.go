package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"marketbridge/internal/domain"
	"marketbridge/internal/marketplace"
	"marketbridge/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MappingService translates categories, attribute sets and whole products
// between the two marketplace data models. Resolution never fails hard: store
// errors degrade to the identity category or to omitting the attribute, so a
// flaky mapping store cannot take down a running batch.
type MappingService interface {
	ResolveCategory(ctx context.Context, sourceCategory string) string
	ResolveAttributes(ctx context.Context, attributes map[string]domain.AttributeValue, sourceCategoryPath string) map[string]string
	TransformToTarget(ctx context.Context, product *domain.Product) (*marketplace.Listing, error)
	TransformToSource(ctx context.Context, product *domain.Product) (*marketplace.Listing, error)

	ListCategoryMappings(ctx context.Context) ([]*domain.CategoryMapping, error)
	CreateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error
	UpdateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error
	DeleteCategoryMapping(ctx context.Context, id int) error

	ListAttributeMappings(ctx context.Context, categoryID *int) ([]*domain.AttributeMapping, error)
	CreateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error
	UpdateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error
	DeleteAttributeMapping(ctx context.Context, id int) error
}

type mappingService struct {
	mappings repository.MappingRepository
	logger   *zap.Logger
}

// NewMappingService creates a new instance of MappingService
func NewMappingService(mappings repository.MappingRepository, logger *zap.Logger) MappingService {
	return &mappingService{
		mappings: mappings,
		logger:   logger,
	}
}

// ResolveCategory maps a source category label to a target category label.
// Exact mappings win; otherwise a keyword scan over the known target
// categories picks a candidate, which is persisted so the next call hits the
// exact-match path. With no candidate the label passes through unchanged and
// nothing is persisted.
func (s *mappingService) ResolveCategory(ctx context.Context, sourceCategory string) string {
	if mapping := s.resolveCategoryMapping(ctx, sourceCategory); mapping != nil {
		return mapping.TargetCategory
	}
	return sourceCategory
}

// resolveCategoryMapping returns the CategoryMapping matched for a source
// category, or nil when the label falls through to identity. A keyword hit is
// persisted before being returned, so the caller sees the stored row.
func (s *mappingService) resolveCategoryMapping(ctx context.Context, sourceCategory string) *domain.CategoryMapping {
	mapping, err := s.mappings.FindCategoryMapping(ctx, sourceCategory)
	if err == nil {
		return mapping
	}
	if !errors.Is(err, repository.ErrCategoryMappingNotFound) {
		s.logger.Error("Category mapping lookup failed",
			zap.String("source_category", sourceCategory),
			zap.Error(err),
		)
		return nil
	}

	similar, err := s.findSimilarCategory(ctx, sourceCategory)
	if err != nil {
		s.logger.Error("Category keyword scan failed",
			zap.String("source_category", sourceCategory),
			zap.Error(err),
		)
		return nil
	}
	if similar == "" {
		return nil
	}

	// Cache the heuristic hit as an exact mapping for future lookups
	created := &domain.CategoryMapping{
		SourceCategory: sourceCategory,
		TargetCategory: similar,
	}
	if err := s.mappings.CreateCategoryMapping(ctx, created); err != nil {
		s.logger.Error("Failed to persist heuristic category mapping",
			zap.String("source_category", sourceCategory),
			zap.String("target_category", similar),
			zap.Error(err),
		)
	}

	return created
}

// findSimilarCategory scans all existing mappings for a target category
// containing any keyword of the source category path
func (s *mappingService) findSimilarCategory(ctx context.Context, sourceCategory string) (string, error) {
	keywords := categoryKeywords(sourceCategory)
	if len(keywords) == 0 {
		return "", nil
	}

	mappings, err := s.mappings.ListCategoryMappings(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load category mappings: %w", err)
	}

	for _, mapping := range mappings {
		target := strings.ToLower(mapping.TargetCategory)
		for _, keyword := range keywords {
			if strings.Contains(target, keyword) {
				return mapping.TargetCategory, nil
			}
		}
	}

	return "", nil
}

// categoryKeywords splits a category path on "/" and whitespace into a
// lowercase keyword list
func categoryKeywords(categoryPath string) []string {
	var keywords []string
	for _, part := range strings.Split(strings.ToLower(categoryPath), "/") {
		keywords = append(keywords, strings.Fields(part)...)
	}
	return keywords
}

// ResolveAttributes maps a source attribute bag onto target attribute
// identifiers. Category-scoped mappings win over global ones; attributes
// never seen before get a mapping auto-created with a derived target
// identifier, so the store grows with use. A failing attribute is logged and
// omitted, never aborting the rest of the bag.
func (s *mappingService) ResolveAttributes(ctx context.Context, attributes map[string]domain.AttributeValue, sourceCategoryPath string) map[string]string {
	resolved := make(map[string]string, len(attributes))
	if len(attributes) == 0 {
		return resolved
	}

	categoryID := s.categoryScope(ctx, sourceCategoryPath)

	for _, attrID := range sortedAttributeIDs(attributes) {
		attr := attributes[attrID]

		targetID, err := s.resolveAttribute(ctx, attrID, attr, categoryID)
		if err != nil {
			s.logger.Warn("Skipping attribute that failed to resolve",
				zap.String("attribute_id", attrID),
				zap.Error(err),
			)
			continue
		}

		resolved[targetID] = attr.Value
	}

	return resolved
}

func (s *mappingService) resolveAttribute(ctx context.Context, attrID string, attr domain.AttributeValue, categoryID *int) (string, error) {
	if categoryID != nil {
		mapping, err := s.mappings.FindAttributeMapping(ctx, attrID, categoryID)
		if err == nil {
			s.backfillNames(ctx, mapping, attr)
			return mapping.TargetAttributeID, nil
		}
		if !errors.Is(err, repository.ErrAttributeMappingNotFound) {
			return "", err
		}
	}

	mapping, err := s.mappings.FindAttributeMapping(ctx, attrID, nil)
	if err == nil {
		s.backfillNames(ctx, mapping, attr)
		return mapping.TargetAttributeID, nil
	}
	if !errors.Is(err, repository.ErrAttributeMappingNotFound) {
		return "", err
	}

	created := &domain.AttributeMapping{
		SourceAttributeID:   attrID,
		SourceAttributeName: attr.Name,
		TargetAttributeID:   deriveAttributeID(attr.Name, attrID),
		TargetAttributeName: attr.Name,
		CategoryID:          categoryID,
	}
	if err := s.mappings.CreateAttributeMapping(ctx, created); err != nil {
		return "", err
	}

	return created.TargetAttributeID, nil
}

// backfillNames fills in human-readable names on mappings created before the
// names were known. Failures only cost us the nicer name, so they are logged
// and ignored.
func (s *mappingService) backfillNames(ctx context.Context, mapping *domain.AttributeMapping, attr domain.AttributeValue) {
	if mapping.SourceAttributeName != "" && mapping.TargetAttributeName != "" {
		return
	}

	sourceName := mapping.SourceAttributeName
	if sourceName == "" {
		sourceName = attr.Name
	}
	targetName := mapping.TargetAttributeName
	if targetName == "" {
		targetName = mapping.TargetAttributeID
	}

	if err := s.mappings.UpdateAttributeMappingNames(ctx, mapping.ID, sourceName, targetName); err != nil {
		s.logger.Warn("Failed to backfill attribute mapping names",
			zap.Int("mapping_id", mapping.ID),
			zap.Error(err),
		)
	}
}

// categoryScope resolves the CategoryMapping ID for a source category path,
// or nil when only the global scope applies
func (s *mappingService) categoryScope(ctx context.Context, sourceCategoryPath string) *int {
	if sourceCategoryPath == "" {
		return nil
	}

	mapping, err := s.mappings.FindCategoryMapping(ctx, sourceCategoryPath)
	if err != nil {
		if !errors.Is(err, repository.ErrCategoryMappingNotFound) {
			s.logger.Warn("Category scope lookup failed",
				zap.String("source_category", sourceCategoryPath),
				zap.Error(err),
			)
		}
		return nil
	}

	return &mapping.ID
}

// TransformToTarget converts a source-marketplace product into the target
// marketplace's creation payload. The subject identifier comes from the
// CategoryMapping matched for the product's own source category; a product
// that falls through to the identity category carries no subject.
func (s *mappingService) TransformToTarget(ctx context.Context, product *domain.Product) (*marketplace.Listing, error) {
	targetCategory := product.CategoryPath
	subjectID := 0
	if mapping := s.resolveCategoryMapping(ctx, product.CategoryPath); mapping != nil {
		targetCategory = mapping.TargetCategory
		subjectID = mapping.TargetSubjectID
	}

	attributes := s.ResolveAttributes(ctx, product.Attributes, product.CategoryPath)

	return &marketplace.Listing{
		Name:                product.Name,
		VendorCode:          vendorCode(product),
		CategoryPath:        targetCategory,
		SubjectID:           subjectID,
		Price:               product.Price,
		Description:         buildDescription(product),
		ImageURLs:           product.ImageURLs,
		Attributes:          attributes,
		OriginalExternalID:  product.ExternalID,
		OriginalMarketplace: string(product.Marketplace),
	}, nil
}

// TransformToSource converts a target-marketplace product into the source
// marketplace's creation payload, using the category mapping's reverse field
// and reverse attribute lookups keyed by the target attribute identifier
func (s *mappingService) TransformToSource(ctx context.Context, product *domain.Product) (*marketplace.Listing, error) {
	sourceCategory := product.CategoryPath
	var categoryID *int

	mapping, err := s.mappings.FindCategoryMappingByTarget(ctx, product.CategoryPath)
	if err == nil {
		sourceCategory = mapping.SourceCategory
		categoryID = &mapping.ID
	} else if !errors.Is(err, repository.ErrCategoryMappingNotFound) {
		return nil, fmt.Errorf("failed to look up reverse category mapping for %q: %w", product.CategoryPath, err)
	}

	attributes := make(map[string]string, len(product.Attributes))
	for _, attrID := range sortedAttributeIDs(product.Attributes) {
		attr := product.Attributes[attrID]

		sourceID, err := s.reverseAttribute(ctx, attrID, categoryID)
		if err != nil {
			s.logger.Warn("Skipping attribute that failed reverse resolution",
				zap.String("attribute_id", attrID),
				zap.Error(err),
			)
			continue
		}

		attributes[sourceID] = attr.Value
	}

	return &marketplace.Listing{
		Name:                product.Name,
		VendorCode:          vendorCode(product),
		CategoryPath:        sourceCategory,
		Price:               product.Price,
		Description:         buildDescription(product),
		ImageURLs:           product.ImageURLs,
		Attributes:          attributes,
		OriginalExternalID:  product.ExternalID,
		OriginalMarketplace: string(product.Marketplace),
	}, nil
}

func (s *mappingService) reverseAttribute(ctx context.Context, targetAttrID string, categoryID *int) (string, error) {
	mapping, err := s.mappings.FindAttributeMappingByTarget(ctx, targetAttrID, categoryID)
	if err == nil {
		return mapping.SourceAttributeID, nil
	}
	if !errors.Is(err, repository.ErrAttributeMappingNotFound) {
		return "", err
	}

	name := humanizeAttributeID(targetAttrID)
	created := &domain.AttributeMapping{
		SourceAttributeID:   targetAttrID,
		SourceAttributeName: name,
		TargetAttributeID:   targetAttrID,
		TargetAttributeName: name,
		CategoryID:          categoryID,
	}
	if err := s.mappings.CreateAttributeMapping(ctx, created); err != nil {
		return "", err
	}

	return created.SourceAttributeID, nil
}

// ListCategoryMappings retrieves all category mappings
func (s *mappingService) ListCategoryMappings(ctx context.Context) ([]*domain.CategoryMapping, error) {
	return s.mappings.ListCategoryMappings(ctx)
}

// CreateCategoryMapping stores a manual category mapping
func (s *mappingService) CreateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error {
	return s.mappings.CreateCategoryMapping(ctx, mapping)
}

// UpdateCategoryMapping replaces an existing category mapping
func (s *mappingService) UpdateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error {
	return s.mappings.UpdateCategoryMapping(ctx, mapping)
}

// DeleteCategoryMapping removes a category mapping
func (s *mappingService) DeleteCategoryMapping(ctx context.Context, id int) error {
	return s.mappings.DeleteCategoryMapping(ctx, id)
}

// ListAttributeMappings retrieves attribute mappings, optionally scoped to a
// category mapping
func (s *mappingService) ListAttributeMappings(ctx context.Context, categoryID *int) ([]*domain.AttributeMapping, error) {
	if categoryID != nil {
		return s.mappings.ListAttributeMappingsByCategory(ctx, *categoryID)
	}
	return s.mappings.ListAttributeMappings(ctx)
}

// CreateAttributeMapping stores a manual attribute mapping
func (s *mappingService) CreateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error {
	return s.mappings.CreateAttributeMapping(ctx, mapping)
}

// UpdateAttributeMapping replaces an existing attribute mapping
func (s *mappingService) UpdateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error {
	return s.mappings.UpdateAttributeMapping(ctx, mapping)
}

// DeleteAttributeMapping removes an attribute mapping
func (s *mappingService) DeleteAttributeMapping(ctx context.Context, id int) error {
	return s.mappings.DeleteAttributeMapping(ctx, id)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// deriveAttributeID derives a stable target attribute identifier from the
// source attribute's name: lowercase with non-alphanumeric runs collapsed to
// underscores. Falls back to the source identifier for nameless attributes.
func deriveAttributeID(name, fallback string) string {
	slug := strings.Trim(nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		slug = strings.Trim(nonAlphanumeric.ReplaceAllString(strings.ToLower(fallback), "_"), "_")
	}
	if slug == "" {
		return fallback
	}
	return slug
}

var attributeTitler = cases.Title(language.English)

// humanizeAttributeID turns a derived identifier back into a display name
func humanizeAttributeID(id string) string {
	return attributeTitler.String(strings.ReplaceAll(id, "_", " "))
}

// vendorCode picks the product's SKU, or derives an offer code from the
// marketplace prefix and external identifier
func vendorCode(product *domain.Product) string {
	if product.SKU != "" {
		return product.SKU
	}
	return fmt.Sprintf("%s-%s", product.Marketplace.Prefix(), product.ExternalID)
}

// buildDescription synthesizes a listing description from the product name
// and its named attribute values
func buildDescription(product *domain.Product) string {
	var b strings.Builder
	b.WriteString(product.Name)
	b.WriteString("\n\n")

	if len(product.Attributes) > 0 {
		b.WriteString("Characteristics:\n")
		for _, attrID := range sortedAttributeIDs(product.Attributes) {
			attr := product.Attributes[attrID]
			if attr.Name != "" && attr.Value != "" {
				fmt.Fprintf(&b, "- %s: %s\n", attr.Name, attr.Value)
			}
		}
	}

	return b.String()
}

// sortedAttributeIDs returns the bag's keys in a stable order so resolution
// and description output are deterministic
func sortedAttributeIDs(attributes map[string]domain.AttributeValue) []string {
	ids := make([]string, 0, len(attributes))
	for id := range attributes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
