package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/sources"
)

// dueDateLayout is the wire format of invoice due dates.
const dueDateLayout = "2006-01-02"

// TransformCustomer normalizes one raw CRM customer payload: trimmed
// name, lowercased email, digits-only phone, and a flattened single-line
// address.
func TransformCustomer(raw string) (*models.CustomerRecord, error) {
	var src sources.Customer
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return nil, fmt.Errorf("failed to parse customer payload: %w", err)
	}
	return &models.CustomerRecord{
		ExternalID: strings.TrimSpace(src.ID),
		Name:       strings.TrimSpace(src.Name),
		Email:      strings.ToLower(strings.TrimSpace(src.Email)),
		Phone:      digitsOnly(src.Phone),
		Address:    flattenAddress(src.Address),
	}, nil
}

// TransformProduct normalizes one raw ERP product payload: uppercased
// SKU, trimmed text fields, decimal unit price, quantity clamped at zero.
func TransformProduct(raw string) (*models.ProductRecord, error) {
	var src sources.Product
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return nil, fmt.Errorf("failed to parse product payload: %w", err)
	}
	qty := src.Quantity
	if qty < 0 {
		qty = 0
	}
	return &models.ProductRecord{
		ExternalID:  strings.TrimSpace(src.ID),
		SKU:         strings.ToUpper(strings.TrimSpace(src.SKU)),
		Name:        strings.TrimSpace(src.Name),
		Description: strings.TrimSpace(src.Description),
		Category:    strings.TrimSpace(src.Category),
		UnitPrice:   decimal.NewFromFloat(src.UnitPrice),
		Quantity:    qty,
		Warehouse:   strings.TrimSpace(src.Warehouse),
	}, nil
}

// TransformInvoice normalizes one raw accounting invoice payload:
// uppercased currency, lowercased status, decimal amount, and a parsed
// due date left unset when absent or malformed.
func TransformInvoice(raw string) (*models.InvoiceRecord, error) {
	var src sources.Invoice
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return nil, fmt.Errorf("failed to parse invoice payload: %w", err)
	}
	rec := &models.InvoiceRecord{
		ExternalID:    strings.TrimSpace(src.ID),
		InvoiceNumber: strings.TrimSpace(src.InvoiceNumber),
		CustomerName:  strings.TrimSpace(src.CustomerName),
		Amount:        decimal.NewFromFloat(src.Amount),
		Currency:      strings.ToUpper(strings.TrimSpace(src.Currency)),
		Status:        strings.ToLower(strings.TrimSpace(src.Status)),
	}
	if due := strings.TrimSpace(src.DueDate); due != "" {
		if t, err := time.Parse(dueDateLayout, due); err == nil {
			rec.DueDate = &t
		}
	}
	return rec, nil
}

// digitsOnly strips everything but digits from a phone number.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// flattenAddress renders a structured address as "street, city, state zip",
// skipping absent parts.
func flattenAddress(a *sources.CustomerAddress) string {
	if a == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(a.Street); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(a.City); c != "" {
		parts = append(parts, c)
	}
	region := strings.TrimSpace(strings.TrimSpace(a.State) + " " + strings.TrimSpace(a.ZipCode))
	if region != "" {
		parts = append(parts, region)
	}
	return strings.Join(parts, ", ")
}
