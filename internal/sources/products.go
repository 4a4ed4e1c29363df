package sources

import (
	"context"
	"net/http"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/models"
)

// Product is the raw ERP API representation of a product.
type Product struct {
	ID          string  `json:"id"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	Warehouse   string  `json:"warehouse"`
}

// ERPClient fetches products from the ERP source API.
type ERPClient struct {
	client *Client
}

// NewERPClient creates an ERP client from the source configuration.
func NewERPClient(cfg config.SourceConfig, httpClient *http.Client) *ERPClient {
	return &ERPClient{client: newClient(models.SourceERP, cfg, httpClient)}
}

// FetchProducts fetches a single page of products.
func (c *ERPClient) FetchProducts(ctx context.Context, page int) (*Page[Product], error) {
	return fetchPageWithRetry[Product](ctx, c.client, "products", page)
}

// FetchAllProducts fetches every page of products from the ERP API.
func (c *ERPClient) FetchAllProducts(ctx context.Context) ([]Product, error) {
	return fetchAll[Product](ctx, c.client, "products")
}
