package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smill0791/data-integration-platform/internal/models"
)

func TestValidateCustomer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rec        models.CustomerRecord
		wantValid  bool
		wantErrors []string
	}{
		{
			name:      "valid",
			rec:       models.CustomerRecord{ExternalID: "C-1", Name: "Ada", Email: "ada@example.com"},
			wantValid: true,
		},
		{
			name:      "email optional",
			rec:       models.CustomerRecord{ExternalID: "C-1", Name: "Ada"},
			wantValid: true,
		},
		{
			name:       "missing required fields",
			rec:        models.CustomerRecord{},
			wantValid:  false,
			wantErrors: []string{"external id is required", "name is required"},
		},
		{
			name:       "bad email",
			rec:        models.CustomerRecord{ExternalID: "C-1", Name: "Ada", Email: "not-an-email"},
			wantValid:  false,
			wantErrors: []string{"invalid email format: not-an-email"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := ValidateCustomer(&tt.rec)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantErrors, res.Errors)
		})
	}
}

func TestValidateProduct(t *testing.T) {
	t.Parallel()

	valid := models.ProductRecord{
		ExternalID: "P-1", SKU: "SKU-1", Name: "Widget",
		UnitPrice: decimal.NewFromInt(10),
	}
	res := ValidateProduct(&valid)
	assert.True(t, res.Valid)

	negative := valid
	negative.UnitPrice = decimal.NewFromFloat(-0.01)
	res = ValidateProduct(&negative)
	require.False(t, res.Valid)
	assert.Contains(t, res.Message(), "unit price must not be negative")

	empty := models.ProductRecord{}
	res = ValidateProduct(&empty)
	require.False(t, res.Valid)
	assert.Equal(t, "external id is required; sku is required; name is required", res.Message())
}

func TestValidateInvoice(t *testing.T) {
	t.Parallel()

	valid := models.InvoiceRecord{
		ExternalID: "I-1", InvoiceNumber: "INV-1", CustomerName: "Acme",
		Currency: "USD", Amount: decimal.NewFromInt(100), Status: "pending",
	}
	res := ValidateInvoice(&valid)
	assert.True(t, res.Valid)

	noStatus := valid
	noStatus.Status = ""
	assert.True(t, ValidateInvoice(&noStatus).Valid, "status is optional")

	badStatus := valid
	badStatus.Status = "cancelled"
	res = ValidateInvoice(&badStatus)
	require.False(t, res.Valid)
	assert.Contains(t, res.Message(), "unknown invoice status: cancelled")

	negative := valid
	negative.Amount = decimal.NewFromInt(-5)
	res = ValidateInvoice(&negative)
	require.False(t, res.Valid)
	assert.Contains(t, res.Message(), "amount must not be negative")

	missing := models.InvoiceRecord{}
	res = ValidateInvoice(&missing)
	require.False(t, res.Valid)
	assert.Len(t, res.Errors, 4)
}
