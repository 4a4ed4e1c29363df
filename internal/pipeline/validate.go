package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/smill0791/data-integration-platform/internal/models"
)

// emailPattern is deliberately loose: one local part, one @, one domain
// with a dot.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// invoiceStatuses are the accepted normalized invoice statuses.
var invoiceStatuses = map[string]bool{
	"paid":    true,
	"pending": true,
	"overdue": true,
}

// Result is the outcome of validating one transformed record.
type Result struct {
	Valid  bool
	Errors []string
}

// Message joins the individual validation failures into the single
// error-ledger message.
func (r Result) Message() string {
	return strings.Join(r.Errors, "; ")
}

func newResult(errs []string) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateCustomer checks business rules for a normalized customer.
func ValidateCustomer(rec *models.CustomerRecord) Result {
	var errs []string
	if rec.ExternalID == "" {
		errs = append(errs, "external id is required")
	}
	if rec.Name == "" {
		errs = append(errs, "name is required")
	}
	if rec.Email != "" && !emailPattern.MatchString(rec.Email) {
		errs = append(errs, fmt.Sprintf("invalid email format: %s", rec.Email))
	}
	return newResult(errs)
}

// ValidateProduct checks business rules for a normalized product.
func ValidateProduct(rec *models.ProductRecord) Result {
	var errs []string
	if rec.ExternalID == "" {
		errs = append(errs, "external id is required")
	}
	if rec.SKU == "" {
		errs = append(errs, "sku is required")
	}
	if rec.Name == "" {
		errs = append(errs, "name is required")
	}
	if rec.UnitPrice.IsNegative() {
		errs = append(errs, fmt.Sprintf("unit price must not be negative: %s", rec.UnitPrice))
	}
	return newResult(errs)
}

// ValidateInvoice checks business rules for a normalized invoice.
func ValidateInvoice(rec *models.InvoiceRecord) Result {
	var errs []string
	if rec.ExternalID == "" {
		errs = append(errs, "external id is required")
	}
	if rec.InvoiceNumber == "" {
		errs = append(errs, "invoice number is required")
	}
	if rec.CustomerName == "" {
		errs = append(errs, "customer name is required")
	}
	if rec.Currency == "" {
		errs = append(errs, "currency is required")
	}
	if rec.Amount.IsNegative() {
		errs = append(errs, fmt.Sprintf("amount must not be negative: %s", rec.Amount))
	}
	if rec.Status != "" && !invoiceStatuses[rec.Status] {
		errs = append(errs, fmt.Sprintf("unknown invoice status: %s", rec.Status))
	}
	return newResult(errs)
}
