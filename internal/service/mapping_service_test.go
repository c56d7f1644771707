package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"marketbridge/internal/domain"
	"marketbridge/internal/repository"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// Mock mapping repository for testing
type mockMappingRepository struct {
	categories []*domain.CategoryMapping
	attributes []*domain.AttributeMapping
	nextID     int
	failAll    bool
}

func newMockMappingRepository() *mockMappingRepository {
	return &mockMappingRepository{}
}

var errMockStore = errors.New("store unavailable")

func (m *mockMappingRepository) FindCategoryMapping(ctx context.Context, sourceCategory string) (*domain.CategoryMapping, error) {
	if m.failAll {
		return nil, errMockStore
	}
	for _, mapping := range m.categories {
		if mapping.SourceCategory == sourceCategory {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, repository.ErrCategoryMappingNotFound
}

func (m *mockMappingRepository) FindCategoryMappingByTarget(ctx context.Context, targetCategory string) (*domain.CategoryMapping, error) {
	if m.failAll {
		return nil, errMockStore
	}
	for _, mapping := range m.categories {
		if mapping.TargetCategory == targetCategory {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, repository.ErrCategoryMappingNotFound
}

func (m *mockMappingRepository) ListCategoryMappings(ctx context.Context) ([]*domain.CategoryMapping, error) {
	if m.failAll {
		return nil, errMockStore
	}
	return m.categories, nil
}

func (m *mockMappingRepository) CreateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error {
	if m.failAll {
		return errMockStore
	}
	for _, existing := range m.categories {
		if existing.SourceCategory == mapping.SourceCategory {
			existing.TargetCategory = mapping.TargetCategory
			*mapping = *existing
			return nil
		}
	}
	m.nextID++
	mapping.ID = m.nextID
	copied := *mapping
	m.categories = append(m.categories, &copied)
	return nil
}

func (m *mockMappingRepository) UpdateCategoryMapping(ctx context.Context, mapping *domain.CategoryMapping) error {
	for _, existing := range m.categories {
		if existing.ID == mapping.ID {
			*existing = *mapping
			return nil
		}
	}
	return repository.ErrCategoryMappingNotFound
}

func (m *mockMappingRepository) DeleteCategoryMapping(ctx context.Context, id int) error {
	for i, existing := range m.categories {
		if existing.ID == id {
			m.categories = append(m.categories[:i], m.categories[i+1:]...)
			return nil
		}
	}
	return repository.ErrCategoryMappingNotFound
}

func (m *mockMappingRepository) CountCategoryMappings(ctx context.Context) (int, error) {
	return len(m.categories), nil
}

func sameScope(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *mockMappingRepository) FindAttributeMapping(ctx context.Context, sourceAttributeID string, categoryID *int) (*domain.AttributeMapping, error) {
	if m.failAll {
		return nil, errMockStore
	}
	for _, mapping := range m.attributes {
		if mapping.SourceAttributeID == sourceAttributeID && sameScope(mapping.CategoryID, categoryID) {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, repository.ErrAttributeMappingNotFound
}

func (m *mockMappingRepository) FindAttributeMappingByTarget(ctx context.Context, targetAttributeID string, categoryID *int) (*domain.AttributeMapping, error) {
	if m.failAll {
		return nil, errMockStore
	}
	for _, mapping := range m.attributes {
		if mapping.TargetAttributeID == targetAttributeID && sameScope(mapping.CategoryID, categoryID) {
			copied := *mapping
			return &copied, nil
		}
	}
	for _, mapping := range m.attributes {
		if mapping.TargetAttributeID == targetAttributeID && mapping.CategoryID == nil {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, repository.ErrAttributeMappingNotFound
}

func (m *mockMappingRepository) ListAttributeMappings(ctx context.Context) ([]*domain.AttributeMapping, error) {
	return m.attributes, nil
}

func (m *mockMappingRepository) ListAttributeMappingsByCategory(ctx context.Context, categoryID int) ([]*domain.AttributeMapping, error) {
	var scoped []*domain.AttributeMapping
	for _, mapping := range m.attributes {
		if mapping.CategoryID != nil && *mapping.CategoryID == categoryID {
			scoped = append(scoped, mapping)
		}
	}
	return scoped, nil
}

func (m *mockMappingRepository) CreateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error {
	if m.failAll {
		return errMockStore
	}
	for _, existing := range m.attributes {
		if existing.SourceAttributeID == mapping.SourceAttributeID && sameScope(existing.CategoryID, mapping.CategoryID) {
			*mapping = *existing
			return nil
		}
	}
	m.nextID++
	mapping.ID = m.nextID
	copied := *mapping
	m.attributes = append(m.attributes, &copied)
	return nil
}

func (m *mockMappingRepository) UpdateAttributeMapping(ctx context.Context, mapping *domain.AttributeMapping) error {
	for _, existing := range m.attributes {
		if existing.ID == mapping.ID {
			*existing = *mapping
			return nil
		}
	}
	return repository.ErrAttributeMappingNotFound
}

func (m *mockMappingRepository) UpdateAttributeMappingNames(ctx context.Context, id int, sourceName, targetName string) error {
	for _, existing := range m.attributes {
		if existing.ID == id {
			existing.SourceAttributeName = sourceName
			existing.TargetAttributeName = targetName
			return nil
		}
	}
	return repository.ErrAttributeMappingNotFound
}

func (m *mockMappingRepository) DeleteAttributeMapping(ctx context.Context, id int) error {
	for i, existing := range m.attributes {
		if existing.ID == id {
			m.attributes = append(m.attributes[:i], m.attributes[i+1:]...)
			return nil
		}
	}
	return repository.ErrAttributeMappingNotFound
}

func newTestMappingService(repo repository.MappingRepository) MappingService {
	logger, _ := zap.NewDevelopment()
	return NewMappingService(repo, logger)
}

// Feature: marketplace-bridge, Property 1: An exact category mapping always wins
func TestProperty_ExactCategoryMappingWins(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("stored mappings resolve to their target", prop.ForAll(
		func(source, target string) bool {
			repo := newMockMappingRepository()
			repo.categories = append(repo.categories, &domain.CategoryMapping{
				ID:             1,
				SourceCategory: source,
				TargetCategory: target,
			})
			svc := newTestMappingService(repo)

			return svc.ResolveCategory(context.Background(), source) == target
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Feature: marketplace-bridge, Property 2: A keyword hit is persisted so the
// next resolve takes the exact-match path
func TestResolveCategory_HeuristicHitIsPersisted(t *testing.T) {
	repo := newMockMappingRepository()
	repo.categories = append(repo.categories, &domain.CategoryMapping{
		ID:             1,
		SourceCategory: "Electronics/Smartphones",
		TargetCategory: "Phones and accessories",
	})
	svc := newTestMappingService(repo)

	resolved := svc.ResolveCategory(context.Background(), "Gadgets/Phones")
	if resolved != "Phones and accessories" {
		t.Fatalf("expected keyword match, got %q", resolved)
	}

	if len(repo.categories) != 2 {
		t.Fatalf("expected the heuristic hit to be persisted, have %d mappings", len(repo.categories))
	}

	// Second resolve must hit the exact path and agree
	if again := svc.ResolveCategory(context.Background(), "Gadgets/Phones"); again != resolved {
		t.Fatalf("expected stable resolution, got %q then %q", resolved, again)
	}
	if len(repo.categories) != 2 {
		t.Fatalf("expected no extra mapping on the second resolve, have %d", len(repo.categories))
	}
}

// Feature: marketplace-bridge, Property 3: An unmapped category passes through
// unchanged and is never persisted
func TestResolveCategory_IdentityFallbackIsNotPersisted(t *testing.T) {
	repo := newMockMappingRepository()
	svc := newTestMappingService(repo)

	resolved := svc.ResolveCategory(context.Background(), "Completely/Unknown")
	if resolved != "Completely/Unknown" {
		t.Fatalf("expected identity fallback, got %q", resolved)
	}
	if len(repo.categories) != 0 {
		t.Fatalf("identity fallback must not be persisted, have %d mappings", len(repo.categories))
	}
}

// Feature: marketplace-bridge, Property 4: Resolution degrades to identity
// when the store is unavailable, it never errors
func TestResolveCategory_StoreFailureDegradesToIdentity(t *testing.T) {
	repo := newMockMappingRepository()
	repo.failAll = true
	svc := newTestMappingService(repo)

	if resolved := svc.ResolveCategory(context.Background(), "Shoes"); resolved != "Shoes" {
		t.Fatalf("expected identity on store failure, got %q", resolved)
	}
}

// Feature: marketplace-bridge, Property 5: Unknown attributes are auto-created
// exactly once, with a derived target identifier
func TestResolveAttributes_AutoCreateOnce(t *testing.T) {
	repo := newMockMappingRepository()
	svc := newTestMappingService(repo)

	attributes := map[string]domain.AttributeValue{
		"8229": {Name: "Screen Size", Value: "6.1"},
		"9001": {Name: "Color", Value: "Black"},
	}

	first := svc.ResolveAttributes(context.Background(), attributes, "")
	if len(first) != 2 {
		t.Fatalf("expected 2 resolved attributes, got %d", len(first))
	}
	if _, ok := first["screen_size"]; !ok {
		t.Fatalf("expected derived identifier screen_size, got %v", first)
	}
	if first["color"] != "Black" {
		t.Fatalf("expected value carried over, got %v", first)
	}
	if len(repo.attributes) != 2 {
		t.Fatalf("expected 2 auto-created mappings, have %d", len(repo.attributes))
	}

	second := svc.ResolveAttributes(context.Background(), attributes, "")
	if len(repo.attributes) != 2 {
		t.Fatalf("second resolve must reuse the mappings, have %d", len(repo.attributes))
	}
	if second["screen_size"] != "6.1" {
		t.Fatalf("expected stable resolution, got %v", second)
	}
}

// Feature: marketplace-bridge, Property 6: A category-scoped mapping shadows
// the global one for that category only
func TestResolveAttributes_CategoryScopeShadowsGlobal(t *testing.T) {
	repo := newMockMappingRepository()
	repo.categories = append(repo.categories, &domain.CategoryMapping{
		ID:             7,
		SourceCategory: "Electronics/Phones",
		TargetCategory: "Smartphones",
	})
	scope := 7
	repo.attributes = append(repo.attributes,
		&domain.AttributeMapping{ID: 1, SourceAttributeID: "8229", TargetAttributeID: "global_id", TargetAttributeName: "Global"},
		&domain.AttributeMapping{ID: 2, SourceAttributeID: "8229", TargetAttributeID: "scoped_id", TargetAttributeName: "Scoped", CategoryID: &scope},
	)
	svc := newTestMappingService(repo)

	attributes := map[string]domain.AttributeValue{"8229": {Name: "Size", Value: "XL"}}

	scoped := svc.ResolveAttributes(context.Background(), attributes, "Electronics/Phones")
	if _, ok := scoped["scoped_id"]; !ok {
		t.Fatalf("expected scoped mapping to win, got %v", scoped)
	}

	global := svc.ResolveAttributes(context.Background(), attributes, "Another/Category")
	if _, ok := global["global_id"]; !ok {
		t.Fatalf("expected global mapping outside the scope, got %v", global)
	}
}

// Feature: marketplace-bridge, Property 7: Empty mapping names are backfilled
// on the next resolve that knows the name
func TestResolveAttributes_BackfillsMissingNames(t *testing.T) {
	repo := newMockMappingRepository()
	repo.attributes = append(repo.attributes, &domain.AttributeMapping{
		ID:                1,
		SourceAttributeID: "8229",
		TargetAttributeID: "screen_size",
	})
	svc := newTestMappingService(repo)

	svc.ResolveAttributes(context.Background(), map[string]domain.AttributeValue{
		"8229": {Name: "Screen Size", Value: "6.1"},
	}, "")

	if repo.attributes[0].SourceAttributeName != "Screen Size" {
		t.Fatalf("expected source name backfilled, got %q", repo.attributes[0].SourceAttributeName)
	}
	if repo.attributes[0].TargetAttributeName != "screen_size" {
		t.Fatalf("expected target name backfilled from identifier, got %q", repo.attributes[0].TargetAttributeName)
	}
}

// Feature: marketplace-bridge, Property 8: A failing attribute is omitted, the
// rest of the bag still resolves
func TestResolveAttributes_FailingAttributeIsIsolated(t *testing.T) {
	repo := newMockMappingRepository()
	svc := newTestMappingService(repo)

	resolved := svc.ResolveAttributes(context.Background(), map[string]domain.AttributeValue{
		"100": {Name: "Brand", Value: "Acme"},
	}, "")
	if len(resolved) != 1 {
		t.Fatalf("expected one resolved attribute, got %v", resolved)
	}

	// Now break the store: nothing resolves, but the call still returns
	repo.failAll = true
	degraded := svc.ResolveAttributes(context.Background(), map[string]domain.AttributeValue{
		"100": {Name: "Brand", Value: "Acme"},
		"200": {Name: "Material", Value: "Steel"},
	}, "")
	if len(degraded) != 0 {
		t.Fatalf("expected all attributes omitted on store failure, got %v", degraded)
	}
}

func TestDeriveAttributeID(t *testing.T) {
	tests := []struct {
		name     string
		fallback string
		want     string
	}{
		{"Screen Size", "8229", "screen_size"},
		{"Color (Main)", "9001", "color_main"},
		{"  Weight, kg  ", "42", "weight_kg"},
		{"", "8229", "8229"},
		{"???", "8229", "8229"},
		{"Already_slugged", "1", "already_slugged"},
	}

	for _, tt := range tests {
		if got := deriveAttributeID(tt.name, tt.fallback); got != tt.want {
			t.Errorf("deriveAttributeID(%q, %q) = %q, want %q", tt.name, tt.fallback, got, tt.want)
		}
	}
}

func TestCategoryKeywords(t *testing.T) {
	keywords := categoryKeywords("Electronics/Mobile Phones")
	want := []string{"electronics", "mobile", "phones"}
	if len(keywords) != len(want) {
		t.Fatalf("got %v, want %v", keywords, want)
	}
	for i := range want {
		if keywords[i] != want[i] {
			t.Fatalf("got %v, want %v", keywords, want)
		}
	}

	if kw := categoryKeywords(""); len(kw) != 0 {
		t.Fatalf("expected no keywords for empty path, got %v", kw)
	}
}

// Feature: marketplace-bridge, Property 9: The synthesized description is
// deterministic regardless of attribute map iteration order
func TestProperty_DescriptionIsDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same product yields the same description", prop.ForAll(
		func(name string, count int) bool {
			attributes := make(map[string]domain.AttributeValue)
			for i := 0; i < count%10; i++ {
				key := fmt.Sprintf("%d", i)
				attributes[key] = domain.AttributeValue{Name: "Attr " + key, Value: "v" + key}
			}
			product := &domain.Product{Name: name, Attributes: attributes}

			first := buildDescription(product)
			second := buildDescription(product)
			if first != second {
				return false
			}
			return strings.HasPrefix(first, name+"\n\n")
		},
		gen.AlphaString(),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestBuildDescription_SkipsNamelessAttributes(t *testing.T) {
	product := &domain.Product{
		Name: "Widget",
		Attributes: map[string]domain.AttributeValue{
			"1": {Name: "Color", Value: "Red"},
			"2": {Value: "orphan value"},
			"3": {Name: "Size"},
		},
	}

	description := buildDescription(product)
	if !strings.Contains(description, "- Color: Red\n") {
		t.Fatalf("expected named attribute in description, got %q", description)
	}
	if strings.Contains(description, "orphan") {
		t.Fatalf("nameless attribute must be skipped, got %q", description)
	}
	if strings.Contains(description, "Size") {
		t.Fatalf("valueless attribute must be skipped, got %q", description)
	}
}

func TestTransformToTarget(t *testing.T) {
	repo := newMockMappingRepository()
	repo.categories = append(repo.categories, &domain.CategoryMapping{
		ID:              1,
		SourceCategory:  "Electronics/Phones",
		TargetCategory:  "Smartphones",
		TargetSubjectID: 515,
	})
	svc := newTestMappingService(repo)

	product := &domain.Product{
		ID:           42,
		ExternalID:   "998877",
		Marketplace:  domain.MarketplaceSource,
		Name:         "Phone X",
		CategoryPath: "Electronics/Phones",
		Price:        49990,
		ImageURLs:    []string{"https://img.example/1.jpg"},
		Attributes: map[string]domain.AttributeValue{
			"8229": {Name: "Screen Size", Value: "6.1"},
		},
	}

	listing, err := svc.TransformToTarget(context.Background(), product)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if listing.CategoryPath != "Smartphones" {
		t.Errorf("expected mapped category, got %q", listing.CategoryPath)
	}
	if listing.SubjectID != 515 {
		t.Errorf("expected subject from mapping, got %d", listing.SubjectID)
	}
	if listing.VendorCode != "SRC-998877" {
		t.Errorf("expected derived vendor code, got %q", listing.VendorCode)
	}
	if listing.Attributes["screen_size"] != "6.1" {
		t.Errorf("expected resolved attribute, got %v", listing.Attributes)
	}
	if !strings.Contains(listing.Description, "- Screen Size: 6.1") {
		t.Errorf("expected characteristics in description, got %q", listing.Description)
	}
}

// Feature: marketplace-bridge, Property 10: The payload subject comes from the
// CategoryMapping matched for the product's source category, not from any
// other mapping that shares the target label
func TestTransformToTarget_SubjectFollowsMatchedMapping(t *testing.T) {
	repo := newMockMappingRepository()
	repo.categories = append(repo.categories,
		&domain.CategoryMapping{
			ID:              1,
			SourceCategory:  "Electronics/Phones",
			TargetCategory:  "Smartphones",
			TargetSubjectID: 10,
		},
		&domain.CategoryMapping{
			ID:              2,
			SourceCategory:  "Refurbished/Phones",
			TargetCategory:  "Smartphones",
			TargetSubjectID: 20,
		},
	)
	svc := newTestMappingService(repo)

	listing, err := svc.TransformToTarget(context.Background(), &domain.Product{
		ExternalID:   "1",
		Marketplace:  domain.MarketplaceSource,
		Name:         "Phone Z",
		CategoryPath: "Refurbished/Phones",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing.CategoryPath != "Smartphones" {
		t.Errorf("expected mapped category, got %q", listing.CategoryPath)
	}
	if listing.SubjectID != 20 {
		t.Errorf("expected the matched mapping's subject 20, got %d", listing.SubjectID)
	}
}

func TestTransformToTarget_IdentityFallbackCarriesNoSubject(t *testing.T) {
	repo := newMockMappingRepository()
	// A mapping whose target label happens to equal the unmapped product's
	// category must not leak its subject into the payload
	repo.categories = append(repo.categories, &domain.CategoryMapping{
		ID:              1,
		SourceCategory:  "Warehouse/Overstock",
		TargetCategory:  "Collectibles",
		TargetSubjectID: 777,
	})
	svc := newTestMappingService(repo)

	listing, err := svc.TransformToTarget(context.Background(), &domain.Product{
		ExternalID:   "2",
		Marketplace:  domain.MarketplaceSource,
		Name:         "Mystery Box",
		CategoryPath: "Collectibles",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing.CategoryPath != "Collectibles" {
		t.Errorf("expected identity category, got %q", listing.CategoryPath)
	}
	if listing.SubjectID != 0 {
		t.Errorf("identity fallback must carry subject 0, got %d", listing.SubjectID)
	}
}

func TestTransformToSource_ReversesCategoryMapping(t *testing.T) {
	repo := newMockMappingRepository()
	repo.categories = append(repo.categories, &domain.CategoryMapping{
		ID:             1,
		SourceCategory: "Electronics/Phones",
		TargetCategory: "Smartphones",
	})
	svc := newTestMappingService(repo)

	product := &domain.Product{
		ID:           7,
		ExternalID:   "12345",
		Marketplace:  domain.MarketplaceTarget,
		Name:         "Phone Y",
		SKU:          "PY-1",
		CategoryPath: "Smartphones",
		Price:        30000,
		Attributes: map[string]domain.AttributeValue{
			"screen_size": {Name: "Screen Size", Value: "6.7"},
		},
	}

	listing, err := svc.TransformToSource(context.Background(), product)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if listing.CategoryPath != "Electronics/Phones" {
		t.Errorf("expected reverse-mapped category, got %q", listing.CategoryPath)
	}
	if listing.VendorCode != "PY-1" {
		t.Errorf("expected SKU as vendor code, got %q", listing.VendorCode)
	}
	if len(repo.attributes) != 1 {
		t.Fatalf("expected a reverse attribute mapping to be created, have %d", len(repo.attributes))
	}
	if repo.attributes[0].SourceAttributeName != "Screen Size" {
		t.Errorf("expected humanized name, got %q", repo.attributes[0].SourceAttributeName)
	}
}
