package pipeline

import (
	"context"
	"fmt"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/sources"
	"github.com/smill0791/data-integration-platform/internal/store"
)

// productFetcher is the slice of the ERP client the orchestrator needs.
type productFetcher interface {
	FetchAllProducts(ctx context.Context) ([]sources.Product, error)
}

// NewProductOrchestrator wires the ERP product pipeline.
func NewProductOrchestrator(registry *jobs.Registry, staging store.StagingStore, products store.ProductStore, client productFetcher) Orchestrator {
	return &engine[sources.Product]{
		source:     models.SourceERP,
		registry:   registry,
		staging:    staging,
		fetchAll:   client.FetchAllProducts,
		externalID: func(p sources.Product) string { return p.ID },
		process: func(ctx context.Context, raw string) error {
			rec, err := TransformProduct(raw)
			if err != nil {
				return failItem(models.ErrorKindPipeline, fmt.Sprintf("transform failed: %v", err))
			}
			if res := ValidateProduct(rec); !res.Valid {
				return failItem(models.ErrorKindValidation, res.Message())
			}
			if err := products.UpsertProduct(ctx, rec, models.SourceERP); err != nil {
				return failItem(models.ErrorKindPipeline, fmt.Sprintf("load failed: %v", err))
			}
			return nil
		},
	}
}
