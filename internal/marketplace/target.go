package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"marketbridge/internal/config"
	"marketbridge/internal/domain"

	"go.uber.org/zap"
)

// TargetClient talks to the target marketplace's content API. Authentication
// uses a single Authorization token.
type TargetClient struct {
	*client
}

// NewTargetClient creates a client for the target marketplace
func NewTargetClient(cfg config.MarketplaceConfig, creds CredentialsFunc, logger *zap.Logger) *TargetClient {
	return &TargetClient{client: newClient(cfg, creds, logger.With(zap.String("marketplace", "target")))}
}

func (c *TargetClient) headers(ctx context.Context) (map[string]string, error) {
	creds, err := c.creds(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": creds.APIKey}, nil
}

// Ping checks the API token against the service's health endpoint
func (c *TargetClient) Ping(ctx context.Context) error {
	headers, err := c.headers(ctx)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodGet, "/ping", headers, nil, nil)
}

type targetCardList struct {
	Cards []targetCard `json:"cards"`
}

type targetCard struct {
	NmID            int64    `json:"nm_id"`
	VendorCode      string   `json:"vendor_code"`
	Title           string   `json:"title"`
	SubjectName     string   `json:"subject_name"`
	Price           int      `json:"price"`
	Photos          []string `json:"photos"`
	Characteristics []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"characteristics"`
}

// FetchProducts downloads the seller's card list
func (c *TargetClient) FetchProducts(ctx context.Context) ([]*domain.Product, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"settings": map[string]interface{}{
			"cursor": map[string]int{"limit": 1000},
		},
	}

	var list targetCardList
	if err := c.doJSON(ctx, http.MethodPost, "/content/v1/cards/list", headers, body, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch target products: %w", err)
	}

	products := make([]*domain.Product, 0, len(list.Cards))
	for _, card := range list.Cards {
		attributes := make(map[string]domain.AttributeValue, len(card.Characteristics))
		for _, ch := range card.Characteristics {
			attributes[strconv.FormatInt(ch.ID, 10)] = domain.AttributeValue{
				Name:  ch.Name,
				Value: ch.Value,
			}
		}

		products = append(products, &domain.Product{
			ExternalID:   strconv.FormatInt(card.NmID, 10),
			Marketplace:  domain.MarketplaceTarget,
			Name:         card.Title,
			SKU:          card.VendorCode,
			CategoryPath: card.SubjectName,
			Price:        card.Price,
			ImageURLs:    card.Photos,
			Attributes:   attributes,
		})
	}

	return products, nil
}

// GetCategories downloads the subject list
func (c *TargetClient) GetCategories(ctx context.Context) ([]Category, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data []struct {
			SubjectID   int    `json:"subject_id"`
			SubjectName string `json:"subject_name"`
			ParentID    int    `json:"parent_id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/content/v1/subjects", headers, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch target categories: %w", err)
	}

	categories := make([]Category, 0, len(response.Data))
	for _, item := range response.Data {
		categories = append(categories, Category{ID: item.SubjectID, Name: item.SubjectName, ParentID: item.ParentID})
	}
	return categories, nil
}

// GetCategoryAttributes downloads the characteristics of one subject
func (c *TargetClient) GetCategoryAttributes(ctx context.Context, categoryID int) ([]CategoryAttribute, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	var response struct {
		Data []struct {
			CharcID  int64  `json:"charc_id"`
			Name     string `json:"name"`
			Required bool   `json:"required"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/content/v1/subjects/%d/characteristics", categoryID)
	if err := c.doJSON(ctx, http.MethodGet, path, headers, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch target category attributes: %w", err)
	}

	attributes := make([]CategoryAttribute, 0, len(response.Data))
	for _, item := range response.Data {
		attributes = append(attributes, CategoryAttribute{
			ID:       strconv.FormatInt(item.CharcID, 10),
			Name:     item.Name,
			Required: item.Required,
		})
	}
	return attributes, nil
}

// CreateListing uploads one card to the target marketplace
func (c *TargetClient) CreateListing(ctx context.Context, listing *Listing) (*CreateResult, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	var response struct {
		NmID  int64  `json:"nm_id"`
		Error string `json:"error"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/content/v1/cards/upload", headers, listing, &response); err != nil {
		return nil, fmt.Errorf("failed to create target listing: %w", err)
	}

	if response.Error != "" {
		return &CreateResult{Success: false, Error: response.Error}, nil
	}

	return &CreateResult{
		Success:    true,
		ExternalID: strconv.FormatInt(response.NmID, 10),
	}, nil
}

// UpdatePrice pushes a new price for one card
func (c *TargetClient) UpdatePrice(ctx context.Context, externalID string, price int) (bool, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return false, err
	}

	nmID, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid target product id %q: %w", externalID, err)
	}

	body := []map[string]interface{}{
		{"nm_id": nmID, "price": price},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/content/v1/prices", headers, body, nil); err != nil {
		return false, fmt.Errorf("failed to update target price: %w", err)
	}

	return true, nil
}
