package pipeline

import (
	"context"
	"fmt"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/sources"
	"github.com/smill0791/data-integration-platform/internal/store"
)

// customerFetcher is the slice of the CRM client the orchestrator needs.
type customerFetcher interface {
	FetchAllCustomers(ctx context.Context) ([]sources.Customer, error)
}

// NewCustomerOrchestrator wires the CRM customer pipeline.
func NewCustomerOrchestrator(registry *jobs.Registry, staging store.StagingStore, customers store.CustomerStore, client customerFetcher) Orchestrator {
	return &engine[sources.Customer]{
		source:     models.SourceCRM,
		registry:   registry,
		staging:    staging,
		fetchAll:   client.FetchAllCustomers,
		externalID: func(c sources.Customer) string { return c.ID },
		process: func(ctx context.Context, raw string) error {
			rec, err := TransformCustomer(raw)
			if err != nil {
				return failItem(models.ErrorKindPipeline, fmt.Sprintf("transform failed: %v", err))
			}
			if res := ValidateCustomer(rec); !res.Valid {
				return failItem(models.ErrorKindValidation, res.Message())
			}
			if err := customers.UpsertCustomer(ctx, rec, models.SourceCRM); err != nil {
				return failItem(models.ErrorKindPipeline, fmt.Sprintf("load failed: %v", err))
			}
			return nil
		},
	}
}
