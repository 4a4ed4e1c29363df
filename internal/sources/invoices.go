package sources

import (
	"context"
	"net/http"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/models"
)

// Invoice is the raw accounting API representation of an invoice.
type Invoice struct {
	ID            string           `json:"id"`
	InvoiceNumber string           `json:"invoiceNumber"`
	CustomerName  string           `json:"customerName"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	Status        string           `json:"status"`
	DueDate       string           `json:"dueDate"`
	LineItems     []map[string]any `json:"lineItems"`
}

// AccountingClient fetches invoices from the accounting source API.
type AccountingClient struct {
	client *Client
}

// NewAccountingClient creates an accounting client from the source
// configuration.
func NewAccountingClient(cfg config.SourceConfig, httpClient *http.Client) *AccountingClient {
	return &AccountingClient{client: newClient(models.SourceAccounting, cfg, httpClient)}
}

// FetchInvoices fetches a single page of invoices.
func (c *AccountingClient) FetchInvoices(ctx context.Context, page int) (*Page[Invoice], error) {
	return fetchPageWithRetry[Invoice](ctx, c.client, "invoices", page)
}

// FetchAllInvoices fetches every page of invoices from the accounting API.
func (c *AccountingClient) FetchAllInvoices(ctx context.Context) ([]Invoice, error) {
	return fetchAll[Invoice](ctx, c.client, "invoices")
}
