package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/store"
)

// The loader performs two writes per record in one transaction: the
// validated row (audit copy, refreshed on every successful validation)
// and the current row (merge by external id, preserving first_synced_at).

const upsertValidatedCustomerSQL = `
INSERT INTO validated_customers (external_id, name, email, phone, address, validated_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), now())
ON CONFLICT (external_id) DO UPDATE
SET name = EXCLUDED.name,
    email = EXCLUDED.email,
    phone = EXCLUDED.phone,
    address = EXCLUDED.address,
    validated_at = now()`

const upsertCurrentCustomerSQL = `
INSERT INTO current_customers (external_id, name, email, phone, address, source_system, first_synced_at, last_synced_at, is_active)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, now(), now(), TRUE)
ON CONFLICT (external_id) DO UPDATE
SET name = EXCLUDED.name,
    email = EXCLUDED.email,
    phone = EXCLUDED.phone,
    address = EXCLUDED.address,
    source_system = EXCLUDED.source_system,
    last_synced_at = now(),
    is_active = TRUE`

// UpsertCustomer upserts the validated and current customer rows in one
// transaction, keyed by external id.
func (s *Store) UpsertCustomer(ctx context.Context, rec *models.CustomerRecord, sourceSystem string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, upsertValidatedCustomerSQL,
		rec.ExternalID, rec.Name, rec.Email, rec.Phone, rec.Address); err != nil {
		return fmt.Errorf("failed to upsert validated customer %s: %w", rec.ExternalID, err)
	}
	if _, err := tx.Exec(ctx, upsertCurrentCustomerSQL,
		rec.ExternalID, rec.Name, rec.Email, rec.Phone, rec.Address, sourceSystem); err != nil {
		return fmt.Errorf("failed to upsert current customer %s: %w", rec.ExternalID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit customer upsert %s: %w", rec.ExternalID, err)
	}
	return nil
}

const selectCurrentCustomerSQL = `
SELECT c.external_id, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.address, ''),
       c.source_system, c.first_synced_at, c.last_synced_at, c.is_active, v.validated_at
FROM current_customers c
LEFT JOIN validated_customers v USING (external_id)
WHERE c.external_id = $1`

// GetCurrentCustomer returns the current state for one customer external id.
func (s *Store) GetCurrentCustomer(ctx context.Context, externalID string) (*models.CurrentCustomer, error) {
	var cur models.CurrentCustomer
	err := s.pool.QueryRow(ctx, selectCurrentCustomerSQL, externalID).Scan(
		&cur.ExternalID, &cur.Name, &cur.Email, &cur.Phone, &cur.Address,
		&cur.SourceSystem, &cur.FirstSyncedAt, &cur.LastSyncedAt, &cur.Active, &cur.ValidatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current customer %s: %w", externalID, err)
	}
	return &cur, nil
}

const upsertValidatedProductSQL = `
INSERT INTO validated_products (external_id, sku, name, description, category, unit_price, quantity, warehouse, validated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''), now())
ON CONFLICT (external_id) DO UPDATE
SET sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    category = EXCLUDED.category,
    unit_price = EXCLUDED.unit_price,
    quantity = EXCLUDED.quantity,
    warehouse = EXCLUDED.warehouse,
    validated_at = now()`

const upsertCurrentProductSQL = `
INSERT INTO current_products (external_id, sku, name, description, category, unit_price, quantity, warehouse, source_system, first_synced_at, last_synced_at, is_active)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, now(), now(), TRUE)
ON CONFLICT (external_id) DO UPDATE
SET sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    category = EXCLUDED.category,
    unit_price = EXCLUDED.unit_price,
    quantity = EXCLUDED.quantity,
    warehouse = EXCLUDED.warehouse,
    source_system = EXCLUDED.source_system,
    last_synced_at = now(),
    is_active = TRUE`

// UpsertProduct upserts the validated and current product rows in one
// transaction, keyed by external id.
func (s *Store) UpsertProduct(ctx context.Context, rec *models.ProductRecord, sourceSystem string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, upsertValidatedProductSQL,
		rec.ExternalID, rec.SKU, rec.Name, rec.Description, rec.Category,
		rec.UnitPrice.String(), rec.Quantity, rec.Warehouse); err != nil {
		return fmt.Errorf("failed to upsert validated product %s: %w", rec.ExternalID, err)
	}
	if _, err := tx.Exec(ctx, upsertCurrentProductSQL,
		rec.ExternalID, rec.SKU, rec.Name, rec.Description, rec.Category,
		rec.UnitPrice.String(), rec.Quantity, rec.Warehouse, sourceSystem); err != nil {
		return fmt.Errorf("failed to upsert current product %s: %w", rec.ExternalID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit product upsert %s: %w", rec.ExternalID, err)
	}
	return nil
}

const selectCurrentProductSQL = `
SELECT c.external_id, c.sku, c.name, COALESCE(c.description, ''), COALESCE(c.category, ''),
       c.unit_price::text, c.quantity, COALESCE(c.warehouse, ''),
       c.source_system, c.first_synced_at, c.last_synced_at, c.is_active, v.validated_at
FROM current_products c
LEFT JOIN validated_products v USING (external_id)
WHERE c.external_id = $1`

// GetCurrentProduct returns the current state for one product external id.
func (s *Store) GetCurrentProduct(ctx context.Context, externalID string) (*models.CurrentProduct, error) {
	var (
		cur   models.CurrentProduct
		price string
	)
	err := s.pool.QueryRow(ctx, selectCurrentProductSQL, externalID).Scan(
		&cur.ExternalID, &cur.SKU, &cur.Name, &cur.Description, &cur.Category,
		&price, &cur.Quantity, &cur.Warehouse,
		&cur.SourceSystem, &cur.FirstSyncedAt, &cur.LastSyncedAt, &cur.Active, &cur.ValidatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current product %s: %w", externalID, err)
	}
	cur.UnitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit price for product %s: %w", externalID, err)
	}
	return &cur, nil
}

const upsertValidatedInvoiceSQL = `
INSERT INTO validated_invoices (external_id, invoice_number, customer_name, amount, currency, status, due_date, validated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, now())
ON CONFLICT (external_id) DO UPDATE
SET invoice_number = EXCLUDED.invoice_number,
    customer_name = EXCLUDED.customer_name,
    amount = EXCLUDED.amount,
    currency = EXCLUDED.currency,
    status = EXCLUDED.status,
    due_date = EXCLUDED.due_date,
    validated_at = now()`

const upsertCurrentInvoiceSQL = `
INSERT INTO current_invoices (external_id, invoice_number, customer_name, amount, currency, status, due_date, source_system, first_synced_at, last_synced_at, is_active)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, now(), now(), TRUE)
ON CONFLICT (external_id) DO UPDATE
SET invoice_number = EXCLUDED.invoice_number,
    customer_name = EXCLUDED.customer_name,
    amount = EXCLUDED.amount,
    currency = EXCLUDED.currency,
    status = EXCLUDED.status,
    due_date = EXCLUDED.due_date,
    source_system = EXCLUDED.source_system,
    last_synced_at = now(),
    is_active = TRUE`

// UpsertInvoice upserts the validated and current invoice rows in one
// transaction, keyed by external id.
func (s *Store) UpsertInvoice(ctx context.Context, rec *models.InvoiceRecord, sourceSystem string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, upsertValidatedInvoiceSQL,
		rec.ExternalID, rec.InvoiceNumber, rec.CustomerName,
		rec.Amount.String(), rec.Currency, rec.Status, rec.DueDate); err != nil {
		return fmt.Errorf("failed to upsert validated invoice %s: %w", rec.ExternalID, err)
	}
	if _, err := tx.Exec(ctx, upsertCurrentInvoiceSQL,
		rec.ExternalID, rec.InvoiceNumber, rec.CustomerName,
		rec.Amount.String(), rec.Currency, rec.Status, rec.DueDate, sourceSystem); err != nil {
		return fmt.Errorf("failed to upsert current invoice %s: %w", rec.ExternalID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice upsert %s: %w", rec.ExternalID, err)
	}
	return nil
}

const selectCurrentInvoiceSQL = `
SELECT c.external_id, c.invoice_number, c.customer_name, c.amount::text, c.currency,
       COALESCE(c.status, ''), c.due_date,
       c.source_system, c.first_synced_at, c.last_synced_at, c.is_active, v.validated_at
FROM current_invoices c
LEFT JOIN validated_invoices v USING (external_id)
WHERE c.external_id = $1`

// GetCurrentInvoice returns the current state for one invoice external id.
func (s *Store) GetCurrentInvoice(ctx context.Context, externalID string) (*models.CurrentInvoice, error) {
	var (
		cur    models.CurrentInvoice
		amount string
	)
	err := s.pool.QueryRow(ctx, selectCurrentInvoiceSQL, externalID).Scan(
		&cur.ExternalID, &cur.InvoiceNumber, &cur.CustomerName, &amount, &cur.Currency,
		&cur.Status, &cur.DueDate,
		&cur.SourceSystem, &cur.FirstSyncedAt, &cur.LastSyncedAt, &cur.Active, &cur.ValidatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current invoice %s: %w", externalID, err)
	}
	cur.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount for invoice %s: %w", externalID, err)
	}
	return &cur, nil
}
