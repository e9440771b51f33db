package finance

import (
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Eq("invoice_id", r.URL.Query().Get("invoice_id"))
	q.Status(lifecycle.Payment, r.URL.Query().Get("status"))
	q.Eq("mode", r.URL.Query().Get("mode"))
	common.List[models.Payment](h.Deps, w, r, "payments", "created_at DESC, id DESC", q)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request, id string) {
	p, err := common.Get[models.Payment](r.Context(), h.DB, "payment", "SELECT * FROM payments WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, p)
}

// RecordPayment books money received against an issued invoice.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		InvoiceID   string          `json:"invoice_id"`
		Amount      decimal.Decimal `json:"amount"`
		PaymentDate string          `json:"payment_date"`
		Mode        string          `json:"mode"`
		Reference   string          `json:"reference"`
		Notes       string          `json:"notes"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if in.PaymentDate == "" {
		in.PaymentDate = h.today()
	}
	if in.Mode == "" {
		in.Mode = "BANK_TRANSFER"
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "invoice_id", in.InvoiceID)
	if !in.Amount.IsPositive() {
		ve.Add("amount", "must be a positive number")
	}
	if in.Amount.Exponent() < -2 {
		ve.Add("amount", "must have at most 2 decimal places")
	}
	validation.ValidateDate(ve, "payment_date", in.PaymentDate)
	validation.ValidateEnum(ve, "mode", in.Mode, validation.ValidPaymentModes)
	validation.ValidateMaxLength(ve, "reference", in.Reference, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, 1000)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var p *models.Payment
	var inv *models.Invoice
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		var err error
		if inv, err = loadInvoice(ctx, tx, in.InvoiceID); err != nil {
			return err
		}
		switch inv.Status {
		case lifecycle.InvoiceIssued, lifecycle.InvoicePartiallyPaid, lifecycle.InvoiceOverdue:
		default:
			return response.Conflict("invoice %s is %s; payments need an issued, unpaid invoice", inv.ID, inv.Status)
		}
		if out := inv.Outstanding(); in.Amount.GreaterThan(out) {
			return response.Conflict("invoice %s has %s outstanding, cannot record %s", inv.ID, out.StringFixed(2), in.Amount.StringFixed(2))
		}

		id, err := h.Numbers.Next(ctx, tx, database.PrefixPayment)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO payments (id, invoice_id, amount, payment_date, mode, reference, status, notes, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, inv.ID, in.Amount, in.PaymentDate, in.Mode, in.Reference, lifecycle.PaymentRecorded, in.Notes, audit.Username(r), database.Now())
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if err := applyPaid(ctx, tx, inv, inv.AmountPaid.Add(in.Amount), h.today()); err != nil {
			return err
		}
		p, err = common.Get[models.Payment](ctx, tx, "payment", "SELECT * FROM payments WHERE id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionPayment, auth.ModulePayments, p.ID, p.Status, fmt.Sprintf("%s against %s", p.Amount.StringFixed(2), p.InvoiceID))
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleInvoices, inv.ID, inv.Status, "paid "+inv.AmountPaid.StringFixed(2))
	response.Created(w, p)
}

// VoidPayment reverses a recorded payment and re-settles its invoice.
func (h *Handler) VoidPayment(w http.ResponseWriter, r *http.Request, id string) {
	var p *models.Payment
	var inv *models.Invoice
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		cur, err := common.Get[models.Payment](ctx, tx, "payment", "SELECT * FROM payments WHERE id = ?", id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(ctx, tx, "payments", id, lifecycle.Payment, cur.Status, lifecycle.PaymentVoided,
			common.Fields{"voided_at": database.Now()}); err != nil {
			return err
		}
		if inv, err = loadInvoice(ctx, tx, cur.InvoiceID); err != nil {
			return err
		}
		paid := inv.AmountPaid.Sub(cur.Amount)
		if paid.IsNegative() {
			paid = decimal.Zero
		}
		if err := applyPaid(ctx, tx, inv, paid, h.today()); err != nil {
			return err
		}
		p, err = common.Get[models.Payment](ctx, tx, "payment", "SELECT * FROM payments WHERE id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModulePayments, id, p.Status, "voided")
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleInvoices, inv.ID, inv.Status, "payment "+id+" voided")
	response.JSON(w, p)
}
