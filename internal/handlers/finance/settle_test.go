package finance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
)

func TestSettledStatus(t *testing.T) {
	due := "2026-07-16"
	tests := []struct {
		name   string
		status string
		paid   int64
		today  string
		want   string
	}{
		{"unpaid before due", lifecycle.InvoiceIssued, 0, "2026-07-01", lifecycle.InvoiceIssued},
		{"part paid", lifecycle.InvoiceIssued, 400, "2026-07-01", lifecycle.InvoicePartiallyPaid},
		{"paid in full", lifecycle.InvoicePartiallyPaid, 1000, "2026-07-01", lifecycle.InvoicePaid},
		{"paid late", lifecycle.InvoiceOverdue, 1000, "2026-08-01", lifecycle.InvoicePaid},
		{"part paid late stays overdue", lifecycle.InvoiceOverdue, 400, "2026-08-01", lifecycle.InvoiceOverdue},
		{"due date itself is not late", lifecycle.InvoiceIssued, 0, due, lifecycle.InvoiceIssued},
		{"unpaid after due", lifecycle.InvoiceIssued, 0, "2026-07-17", lifecycle.InvoiceOverdue},
		{"void after full payment", lifecycle.InvoicePaid, 400, "2026-07-01", lifecycle.InvoicePartiallyPaid},
		{"void of only payment", lifecycle.InvoicePaid, 0, "2026-07-01", lifecycle.InvoiceIssued},
		{"void of only payment when late", lifecycle.InvoicePaid, 0, "2026-08-01", lifecycle.InvoiceOverdue},
		{"void of last instalment when late", lifecycle.InvoicePaid, 400, "2026-08-01", lifecycle.InvoiceOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &models.Invoice{
				Status:     tt.status,
				Total:      decimal.NewFromInt(1000),
				AmountPaid: decimal.NewFromInt(tt.paid),
				DueDate:    &due,
			}
			assert.Equal(t, tt.want, settledStatus(inv, tt.today))
		})
	}
}

func TestSettlePathHopsWhenNoDirectEdge(t *testing.T) {
	due := "2026-07-16"
	inv := &models.Invoice{
		Status:     lifecycle.InvoicePaid,
		Total:      decimal.NewFromInt(1000),
		AmountPaid: decimal.NewFromInt(400),
		DueDate:    &due,
	}
	assert.Equal(t, []string{lifecycle.InvoicePartiallyPaid, lifecycle.InvoiceOverdue}, settlePath(inv, "2026-08-01"))

	inv.AmountPaid = decimal.Zero
	assert.Equal(t, []string{lifecycle.InvoiceIssued, lifecycle.InvoiceOverdue}, settlePath(inv, "2026-08-01"))
	assert.Equal(t, []string{lifecycle.InvoiceIssued}, settlePath(inv, "2026-07-01"))

	inv.Status = lifecycle.InvoiceIssued
	assert.Empty(t, settlePath(inv, "2026-07-01"))
}
