package pipeline

import (
	"context"
	"fmt"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/sources"
	"github.com/smill0791/data-integration-platform/internal/store"
)

// invoiceFetcher is the slice of the accounting client the orchestrator needs.
type invoiceFetcher interface {
	FetchAllInvoices(ctx context.Context) ([]sources.Invoice, error)
}

// NewInvoiceOrchestrator wires the accounting invoice pipeline.
func NewInvoiceOrchestrator(registry *jobs.Registry, staging store.StagingStore, invoices store.InvoiceStore, client invoiceFetcher) Orchestrator {
	return &engine[sources.Invoice]{
		source:     models.SourceAccounting,
		registry:   registry,
		staging:    staging,
		fetchAll:   client.FetchAllInvoices,
		externalID: func(i sources.Invoice) string { return i.ID },
		process: func(ctx context.Context, raw string) error {
			rec, err := TransformInvoice(raw)
			if err != nil {
				return failItem(models.ErrorKindPipeline, fmt.Sprintf("transform failed: %v", err))
			}
			if res := ValidateInvoice(rec); !res.Valid {
				return failItem(models.ErrorKindValidation, res.Message())
			}
			if err := invoices.UpsertInvoice(ctx, rec, models.SourceAccounting); err != nil {
				return failItem(models.ErrorKindPipeline, fmt.Sprintf("load failed: %v", err))
			}
			return nil
		},
	}
}
