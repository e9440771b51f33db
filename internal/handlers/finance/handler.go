// Package finance serves customer invoices and the payments booked against
// them.
package finance

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
)

type Handler struct {
	*common.Deps
	Now func() time.Time
}

func New(d *common.Deps) *Handler {
	return &Handler{Deps: d, Now: time.Now}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *Handler) today() string {
	return h.now().Format(database.DateLayout)
}

// settlePath is the chain of statuses an issued invoice passes through to
// reach where it belongs given what has been paid and the date. A move the
// invoice table has no edge for goes through ISSUED or PARTIALLY_PAID first.
func settlePath(inv *models.Invoice, today string) []string {
	var target string
	pastDue := inv.DueDate != nil && *inv.DueDate < today
	switch {
	case inv.AmountPaid.GreaterThanOrEqual(inv.Total):
		target = lifecycle.InvoicePaid
	case pastDue:
		target = lifecycle.InvoiceOverdue
	case inv.AmountPaid.IsPositive():
		target = lifecycle.InvoicePartiallyPaid
	default:
		target = lifecycle.InvoiceIssued
	}
	if target == inv.Status {
		return nil
	}
	if lifecycle.Invoice.Can(inv.Status, target) {
		return []string{target}
	}
	hop := lifecycle.InvoiceIssued
	if inv.AmountPaid.IsPositive() {
		hop = lifecycle.InvoicePartiallyPaid
	}
	if !lifecycle.Invoice.Can(inv.Status, hop) {
		return nil
	}
	if lifecycle.Invoice.Can(hop, target) {
		return []string{hop, target}
	}
	return []string{hop}
}

// settledStatus is the status settlePath ends on.
func settledStatus(inv *models.Invoice, today string) string {
	path := settlePath(inv, today)
	if len(path) == 0 {
		return inv.Status
	}
	return path[len(path)-1]
}

// applyPaid stores a new paid amount and walks the invoice to its settled
// status inside tx.
func applyPaid(ctx context.Context, tx *sqlx.Tx, inv *models.Invoice, paid decimal.Decimal, today string) error {
	inv.AmountPaid = paid
	if _, err := tx.ExecContext(ctx, "UPDATE invoices SET amount_paid = ?, updated_at = ? WHERE id = ?", paid, database.Now(), inv.ID); err != nil {
		return err
	}
	for _, to := range settlePath(inv, today) {
		if err := common.SetStatus(ctx, tx, "invoices", inv.ID, lifecycle.Invoice, inv.Status, to, nil); err != nil {
			return err
		}
		inv.Status = to
	}
	return nil
}
