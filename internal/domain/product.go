package domain

// Marketplace identifies which of the two catalogs a product belongs to.
type Marketplace string

const (
	MarketplaceSource Marketplace = "source"
	MarketplaceTarget Marketplace = "target"
)

// Valid reports whether m is one of the two known marketplaces.
func (m Marketplace) Valid() bool {
	return m == MarketplaceSource || m == MarketplaceTarget
}

// Other returns the opposite marketplace.
func (m Marketplace) Other() Marketplace {
	if m == MarketplaceSource {
		return MarketplaceTarget
	}
	return MarketplaceSource
}

// Prefix is used when deriving vendor codes for products without a SKU.
func (m Marketplace) Prefix() string {
	if m == MarketplaceSource {
		return "SRC"
	}
	return "TGT"
}

// AttributeValue is one entry of a product's attribute bag, keyed by the
// marketplace attribute identifier.
type AttributeValue struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	ValueID *int   `json:"value_id,omitempty"`
}

// Product represents a catalog listing pulled from (or pushed to) one of the
// marketplaces
type Product struct {
	ID           int                       `json:"id" db:"id"`
	ExternalID   string                    `json:"external_id" db:"external_id"`
	Marketplace  Marketplace               `json:"marketplace" db:"marketplace"`
	Name         string                    `json:"name" db:"name"`
	SKU          string                    `json:"sku" db:"sku"`
	CategoryPath string                    `json:"category_path" db:"category_path"`
	Price        int                       `json:"price" db:"price"`
	ImageURLs    []string                  `json:"image_urls" db:"image_urls"`
	Attributes   map[string]AttributeValue `json:"attributes" db:"attributes"`
	HasAnalog    bool                      `json:"has_analog" db:"has_analog"`
}
