package sources

import (
	"context"
	"net/http"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/models"
)

// Customer is the raw CRM API representation of a customer.
type Customer struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	Address     *CustomerAddress `json:"address"`
	LastUpdated string           `json:"lastUpdated"`
}

// CustomerAddress is the structured address nested in a CRM customer.
type CustomerAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
}

// CRMClient fetches customers from the CRM source API.
type CRMClient struct {
	client *Client
}

// NewCRMClient creates a CRM client from the source configuration. A nil
// httpClient gets a default with a request timeout.
func NewCRMClient(cfg config.SourceConfig, httpClient *http.Client) *CRMClient {
	return &CRMClient{client: newClient(models.SourceCRM, cfg, httpClient)}
}

// FetchCustomers fetches a single page of customers.
func (c *CRMClient) FetchCustomers(ctx context.Context, page int) (*Page[Customer], error) {
	return fetchPageWithRetry[Customer](ctx, c.client, "customers", page)
}

// FetchAllCustomers fetches every page of customers from the CRM API.
func (c *CRMClient) FetchAllCustomers(ctx context.Context) ([]Customer, error) {
	return fetchAll[Customer](ctx, c.client, "customers")
}
