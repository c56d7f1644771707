package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketbridge/internal/config"
	"marketbridge/internal/domain"
	"marketbridge/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Category is one node of a marketplace category tree.
type Category struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ParentID int    `json:"parent_id,omitempty"`
}

// CategoryAttribute describes one attribute of a marketplace category schema.
type CategoryAttribute struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Listing is the creation payload sent to a marketplace. The same shape is
// used in both directions; VendorCode carries the offer code on the source
// side.
type Listing struct {
	Name                string            `json:"name"`
	VendorCode          string            `json:"vendor_code"`
	CategoryPath        string            `json:"category_path"`
	SubjectID           int               `json:"subject_id,omitempty"`
	Price               int               `json:"price"`
	Description         string            `json:"description"`
	ImageURLs           []string          `json:"image_urls"`
	Attributes          map[string]string `json:"attributes"`
	OriginalExternalID  string            `json:"original_external_id"`
	OriginalMarketplace string            `json:"original_marketplace"`
}

// CreateResult is the outcome of a listing creation call.
type CreateResult struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Catalog is the contract both marketplace clients implement.
type Catalog interface {
	Ping(ctx context.Context) error
	FetchProducts(ctx context.Context) ([]*domain.Product, error)
	GetCategories(ctx context.Context) ([]Category, error)
	GetCategoryAttributes(ctx context.Context, categoryID int) ([]CategoryAttribute, error)
	CreateListing(ctx context.Context, listing *Listing) (*CreateResult, error)
	UpdatePrice(ctx context.Context, externalID string, price int) (bool, error)
}

// Credentials carries the API credentials for one request.
type Credentials struct {
	ClientID string
	APIKey   string
}

// CredentialsFunc resolves the credentials to use for the next request.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// ResolveCredentials builds a CredentialsFunc that prefers environment
// configuration and falls back to the persisted settings row.
func ResolveCredentials(cfg config.MarketplaceConfig, repo repository.CredentialRepository, marketplace domain.Marketplace) CredentialsFunc {
	return func(ctx context.Context) (Credentials, error) {
		if cfg.APIKey != "" {
			return Credentials{ClientID: cfg.ClientID, APIKey: cfg.APIKey}, nil
		}

		stored, err := repo.Find(ctx, marketplace)
		if err != nil {
			return Credentials{}, fmt.Errorf("credentials for %s not configured: %w", marketplace, err)
		}
		if stored.APIKey == "" {
			return Credentials{}, fmt.Errorf("credentials for %s not configured", marketplace)
		}

		return Credentials{ClientID: stored.ClientID, APIKey: stored.APIKey}, nil
	}
}

// client is the shared JSON transport for both marketplace APIs. All calls go
// through the rate limiter so a batch migration cannot exceed the partner's
// request quota.
type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	creds      CredentialsFunc
	logger     *zap.Logger
}

func newClient(cfg config.MarketplaceConfig, creds CredentialsFunc, logger *zap.Logger) *client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	return &client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		creds:      creds,
		logger:     logger,
	}
}

func (c *client) doJSON(ctx context.Context, method, path string, headers map[string]string, requestBody, response interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter interrupted: %w", err)
	}

	var bodyBytes []byte
	if requestBody != nil {
		var err error
		bodyBytes, err = json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request cancelled: %w", ctx.Err())
		default:
			return fmt.Errorf("failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("Marketplace API returned an error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("marketplace API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
