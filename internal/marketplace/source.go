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

// SourceClient talks to the source marketplace's seller API. Authentication
// uses the Client-Id/Api-Key header pair.
type SourceClient struct {
	*client
}

// NewSourceClient creates a client for the source marketplace
func NewSourceClient(cfg config.MarketplaceConfig, creds CredentialsFunc, logger *zap.Logger) *SourceClient {
	return &SourceClient{client: newClient(cfg, creds, logger.With(zap.String("marketplace", "source")))}
}

func (c *SourceClient) headers(ctx context.Context) (map[string]string, error) {
	creds, err := c.creds(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Client-Id": creds.ClientID,
		"Api-Key":   creds.APIKey,
	}, nil
}

type sourceProductList struct {
	Result struct {
		Items []sourceProduct `json:"items"`
	} `json:"result"`
}

type sourceProduct struct {
	ProductID    int64             `json:"product_id"`
	OfferID      string            `json:"offer_id"`
	Name         string            `json:"name"`
	CategoryPath string            `json:"category_path"`
	Price        string            `json:"price"`
	Images       []string          `json:"images"`
	Attributes   []sourceAttribute `json:"attributes"`
}

type sourceAttribute struct {
	ID    int64  `json:"attribute_id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Ping verifies the credentials by requesting a single product
func (c *SourceClient) Ping(ctx context.Context) error {
	headers, err := c.headers(ctx)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"filter": map[string]string{"visibility": "ALL"},
		"limit":  1,
	}
	return c.doJSON(ctx, http.MethodPost, "/v2/product/list", headers, body, nil)
}

// FetchProducts downloads the seller's product list
func (c *SourceClient) FetchProducts(ctx context.Context) ([]*domain.Product, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"filter": map[string]string{"visibility": "ALL"},
		"limit":  1000,
	}

	var list sourceProductList
	if err := c.doJSON(ctx, http.MethodPost, "/v2/product/list", headers, body, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch source products: %w", err)
	}

	products := make([]*domain.Product, 0, len(list.Result.Items))
	for _, item := range list.Result.Items {
		price, _ := strconv.Atoi(item.Price)

		attributes := make(map[string]domain.AttributeValue, len(item.Attributes))
		for _, attr := range item.Attributes {
			attributes[strconv.FormatInt(attr.ID, 10)] = domain.AttributeValue{
				Name:  attr.Name,
				Value: attr.Value,
			}
		}

		products = append(products, &domain.Product{
			ExternalID:   strconv.FormatInt(item.ProductID, 10),
			Marketplace:  domain.MarketplaceSource,
			Name:         item.Name,
			SKU:          item.OfferID,
			CategoryPath: item.CategoryPath,
			Price:        price,
			ImageURLs:    item.Images,
			Attributes:   attributes,
		})
	}

	return products, nil
}

// GetCategories downloads the category tree, flattened
func (c *SourceClient) GetCategories(ctx context.Context) ([]Category, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	var response struct {
		Result []struct {
			CategoryID int    `json:"category_id"`
			Title      string `json:"title"`
			ParentID   int    `json:"parent_id"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/categories/tree", headers, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch source categories: %w", err)
	}

	categories := make([]Category, 0, len(response.Result))
	for _, item := range response.Result {
		categories = append(categories, Category{ID: item.CategoryID, Name: item.Title, ParentID: item.ParentID})
	}
	return categories, nil
}

// GetCategoryAttributes downloads the attribute schema of one category
func (c *SourceClient) GetCategoryAttributes(ctx context.Context, categoryID int) ([]CategoryAttribute, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	var response struct {
		Result []struct {
			ID         int64  `json:"id"`
			Name       string `json:"name"`
			IsRequired bool   `json:"is_required"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/v1/categories/%d/attributes", categoryID)
	if err := c.doJSON(ctx, http.MethodGet, path, headers, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch source category attributes: %w", err)
	}

	attributes := make([]CategoryAttribute, 0, len(response.Result))
	for _, item := range response.Result {
		attributes = append(attributes, CategoryAttribute{
			ID:       strconv.FormatInt(item.ID, 10),
			Name:     item.Name,
			Required: item.IsRequired,
		})
	}
	return attributes, nil
}

// CreateListing imports one product into the source marketplace
func (c *SourceClient) CreateListing(ctx context.Context, listing *Listing) (*CreateResult, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	var response struct {
		Result struct {
			ProductID int64  `json:"product_id"`
			Status    string `json:"status"`
			Error     string `json:"error"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/product/import", headers, listing, &response); err != nil {
		return nil, fmt.Errorf("failed to create source listing: %w", err)
	}

	if response.Result.Error != "" {
		return &CreateResult{Success: false, Error: response.Result.Error}, nil
	}

	return &CreateResult{
		Success:    true,
		ExternalID: strconv.FormatInt(response.Result.ProductID, 10),
	}, nil
}

// UpdatePrice pushes a new price for one listing
func (c *SourceClient) UpdatePrice(ctx context.Context, externalID string, price int) (bool, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return false, err
	}

	body := map[string]interface{}{
		"prices": []map[string]interface{}{
			{"product_id": externalID, "price": strconv.Itoa(price)},
		},
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/product/prices", headers, body, nil); err != nil {
		return false, fmt.Errorf("failed to update source price: %w", err)
	}

	return true, nil
}
