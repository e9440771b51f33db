package finance

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/database"
	"pipeerp/internal/export"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

func loadInvoice(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Invoice, error) {
	inv, err := common.Get[models.Invoice](ctx, q, "invoice", "SELECT * FROM invoices WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	inv.Lines = []models.InvoiceLine{}
	if err := sqlx.SelectContext(ctx, q, &inv.Lines, "SELECT * FROM invoice_lines WHERE invoice_id = ? ORDER BY id", id); err != nil {
		return nil, err
	}
	inv.Payments = []models.Payment{}
	err = sqlx.SelectContext(ctx, q, &inv.Payments, "SELECT * FROM payments WHERE invoice_id = ? ORDER BY created_at, id", id)
	return inv, err
}

func invoiceFilter(r *http.Request) *common.Query {
	v := r.URL.Query()
	q := &common.Query{}
	q.Status(lifecycle.Invoice, v.Get("status"))
	q.Eq("customer_id", v.Get("customer_id"))
	q.Eq("sales_order_id", v.Get("sales_order_id"))
	q.Eq("dispatch_id", v.Get("dispatch_id"))
	return q
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	common.List[models.Invoice](h.Deps, w, r, "invoices", "created_at DESC, id DESC", invoiceFilter(r))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := loadInvoice(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, inv)
}

// CreateInvoice drafts an invoice for a shipped dispatch. Dispatched quantity
// is summed per order line and billed at the order price and discount.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DispatchID string `json:"dispatch_id"`
		Notes      string `json:"notes"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "dispatch_id", in.DispatchID)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var inv *models.Invoice
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		d, err := common.Get[models.Dispatch](ctx, tx, "dispatch", "SELECT * FROM dispatches WHERE id = ?", in.DispatchID)
		if err != nil {
			return err
		}
		if d.Status != lifecycle.DispatchDispatched && d.Status != lifecycle.DispatchDelivered {
			return response.Conflict("dispatch %s is %s; only shipped dispatches can be invoiced", d.ID, d.Status)
		}
		var live []string
		err = tx.SelectContext(ctx, &live, "SELECT id FROM invoices WHERE dispatch_id = ? AND status != ? LIMIT 1", d.ID, lifecycle.InvoiceCancelled)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return response.Conflict("dispatch %s is already invoiced on %s", d.ID, live[0])
		}
		so, err := common.Get[models.SalesOrder](ctx, tx, "sales order", "SELECT * FROM sales_orders WHERE id = ?", d.SalesOrderID)
		if err != nil {
			return err
		}

		var lines []models.InvoiceLine
		err = tx.SelectContext(ctx, &lines, `SELECT sol.id AS sales_order_line_id, sol.product_id, sol.unit_price, sol.discount_pct, dl.qty
			FROM dispatch_lines dl JOIN sales_order_lines sol ON sol.id = dl.sales_order_line_id
			WHERE dl.dispatch_id = ? ORDER BY sol.id, dl.id`, d.ID)
		if err != nil {
			return fmt.Errorf("load dispatch lines: %w", err)
		}
		merged := make([]models.InvoiceLine, 0, len(lines))
		for _, ln := range lines {
			if n := len(merged); n > 0 && merged[n-1].SalesOrderLineID == ln.SalesOrderLineID {
				merged[n-1].Qty = merged[n-1].Qty.Add(ln.Qty)
				continue
			}
			merged = append(merged, ln)
		}
		if len(merged) == 0 {
			return response.Conflict("dispatch %s has no lines", d.ID)
		}

		id, err := h.Numbers.Next(ctx, tx, database.PrefixInvoice)
		if err != nil {
			return err
		}
		rate := h.Business.TaxRate()
		now := database.Now()
		_, err = tx.ExecContext(ctx, `INSERT INTO invoices (id, dispatch_id, sales_order_id, customer_id, status, tax_rate, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, id, d.ID, so.ID, so.CustomerID, lifecycle.InvoiceDraft, rate, in.Notes, audit.Username(r), now, now)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		totals := make([]decimal.Decimal, 0, len(merged))
		for _, ln := range merged {
			ln.LineTotal = models.LineTotal(ln.Qty, ln.UnitPrice, ln.DiscountPct)
			totals = append(totals, ln.LineTotal)
			_, err := tx.ExecContext(ctx, `INSERT INTO invoice_lines (invoice_id, sales_order_line_id, product_id, qty, unit_price, discount_pct, line_total)
				VALUES (?, ?, ?, ?, ?, ?, ?)`, id, ln.SalesOrderLineID, ln.ProductID, ln.Qty, ln.UnitPrice, ln.DiscountPct, ln.LineTotal)
			if err != nil {
				return fmt.Errorf("insert invoice line: %w", err)
			}
		}
		sub, tax, total := models.Totals(totals, rate)
		if _, err := tx.ExecContext(ctx, "UPDATE invoices SET subtotal = ?, tax_amount = ?, total = ? WHERE id = ?", sub, tax, total, id); err != nil {
			return err
		}
		inv, err = loadInvoice(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleInvoices, inv.ID, inv.Status, "invoice for dispatch "+inv.DispatchID)
	response.Created(w, inv)
}

// refreshInvoiced brings qty_invoiced of every order line on inv up to date.
func refreshInvoiced(r *http.Request, tx *sqlx.Tx, inv *models.Invoice) error {
	ids := make([]int, 0, len(inv.Lines))
	for _, ln := range inv.Lines {
		ids = append(ids, ln.SalesOrderLineID)
	}
	return common.Ledger(r, tx).RefreshLines(ids...)
}

// IssueInvoice dates a draft invoice and sets its due date from the
// customer's payment terms.
func (h *Handler) IssueInvoice(w http.ResponseWriter, r *http.Request, id string) {
	var inv *models.Invoice
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		cur, err := loadInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		var terms int
		if err := tx.GetContext(ctx, &terms, "SELECT payment_terms_days FROM customers WHERE id = ?", cur.CustomerID); err != nil {
			return fmt.Errorf("load payment terms of %s: %w", cur.CustomerID, err)
		}
		if terms <= 0 {
			terms = h.Business.DefaultPaymentTermDays
		}
		now := h.now()
		err = common.SetStatus(ctx, tx, "invoices", id, lifecycle.Invoice, cur.Status, lifecycle.InvoiceIssued, common.Fields{
			"issue_date": now.Format(database.DateLayout),
			"due_date":   now.AddDate(0, 0, terms).Format(database.DateLayout),
		})
		if err != nil {
			return err
		}
		if err := refreshInvoiced(r, tx, cur); err != nil {
			return err
		}
		inv, err = loadInvoice(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleInvoices, id, inv.Status, "issued, due "+*inv.DueDate)
	response.JSON(w, inv)
}

// CancelInvoice cancels an invoice that has no recorded payments.
func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request, id string) {
	var inv *models.Invoice
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		cur, err := loadInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, p := range cur.Payments {
			if p.Status == lifecycle.PaymentRecorded {
				return response.Conflict("invoice %s has recorded payment %s; void it first", id, p.ID)
			}
		}
		if err := common.SetStatus(ctx, tx, "invoices", id, lifecycle.Invoice, cur.Status, lifecycle.InvoiceCancelled, nil); err != nil {
			return err
		}
		if err := refreshInvoiced(r, tx, cur); err != nil {
			return err
		}
		inv, err = loadInvoice(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleInvoices, id, inv.Status, "invoice cancelled")
	response.JSON(w, inv)
}

// MarkOverdue moves issued and part-paid invoices past their due date to
// OVERDUE and returns their ids.
func (h *Handler) MarkOverdue(ctx context.Context) ([]string, error) {
	today := h.today()
	var ids []string
	err := database.WithTx(ctx, h.DB, func(tx *sqlx.Tx) error {
		var due []struct {
			ID     string `db:"id"`
			Status string `db:"status"`
		}
		ids = nil
		err := tx.SelectContext(ctx, &due, "SELECT id, status FROM invoices WHERE status IN (?, ?) AND due_date < ? ORDER BY id",
			lifecycle.InvoiceIssued, lifecycle.InvoicePartiallyPaid, today)
		if err != nil {
			return err
		}
		for _, inv := range due {
			if err := common.SetStatus(ctx, tx, "invoices", inv.ID, lifecycle.Invoice, inv.Status, lifecycle.InvoiceOverdue, nil); err != nil {
				return err
			}
			ids = append(ids, inv.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark overdue invoices: %w", err)
	}
	for _, id := range ids {
		h.Audit.Record(ctx, audit.Entry{Action: audit.ActionSweep, Module: auth.ModuleInvoices, RecordID: id,
			Status: lifecycle.InvoiceOverdue, Summary: "past due date"})
	}
	if len(ids) > 0 && h.Log != nil {
		h.Log.Info("invoices overdue", zap.Int("count", len(ids)))
	}
	return ids, nil
}

var invoiceHeaders = []string{"Invoice", "Dispatch", "Sales Order", "Customer", "Status", "Issue Date", "Due Date", "Subtotal", "Tax", "Total", "Paid", "Outstanding"}

// ExportInvoices handles GET /api/v1/invoices/export?format=csv|xlsx.
func (h *Handler) ExportInvoices(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if !export.ValidFormat(format) {
		response.Err(w, "format must be csv or xlsx", http.StatusBadRequest)
		return
	}
	q := invoiceFilter(r)
	if err := q.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}
	where, args := q.Where()
	items := []models.Invoice{}
	if err := h.DB.SelectContext(r.Context(), &items, "SELECT * FROM invoices"+where+" ORDER BY created_at, id", args...); err != nil {
		h.Fail(w, r, err)
		return
	}
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	t := export.Table{Name: "Invoices", Headers: invoiceHeaders}
	for _, inv := range items {
		t.Rows = append(t.Rows, []string{
			inv.ID, inv.DispatchID, inv.SalesOrderID, inv.CustomerID, inv.Status,
			deref(inv.IssueDate), deref(inv.DueDate),
			inv.Subtotal.StringFixed(2), inv.TaxAmount.StringFixed(2), inv.Total.StringFixed(2),
			inv.AmountPaid.StringFixed(2), inv.Outstanding().StringFixed(2),
		})
	}
	h.Audit.Log(r, audit.ActionExport, auth.ModuleInvoices, "", "", "exported invoice register")
	if err := export.Serve(w, format, "invoice-register", t); err != nil && h.Log != nil {
		h.Log.Warn("invoice export failed", zap.Error(err))
	}
}
