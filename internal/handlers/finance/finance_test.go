package finance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/handlers/finance"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(y int, mo time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, mo, d, 12, 0, 0, 0, time.Local) }
}

func newTestHandler(t *testing.T) (*finance.Handler, *sqlx.DB, testutil.Masters) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	m := testutil.SeedMasters(t, db)
	h := finance.New(testutil.NewDeps(db))
	h.Now = at(2026, time.June, 1)
	return h, db, m
}

// shippedDispatch seeds a 10 m order line at 1200 shipped as two stock rows
// on one dispatch in the given status.
func shippedDispatch(t *testing.T, db *sqlx.DB, m testutil.Masters, id, status string) (string, int) {
	t.Helper()
	so, line := testutil.SeedOrder(t, db, "SO-"+id, m.Customer, m.Pipe, "10", "1200")
	_, err := db.Exec("INSERT INTO dispatches (id, sales_order_id, status, created_at) VALUES (?, ?, ?, '2026-05-30 10:00:00')", id, so, status)
	require.NoError(t, err)
	for _, qty := range []string{"6", "4"} {
		sid := testutil.SeedStock(t, db, m.Pipe, qty, lifecycle.StockAccepted, "2026-05-01 08:00:00")
		testutil.LinkStock(t, db, sid, lifecycle.StockDispatched, so, line)
		_, err := db.Exec("INSERT INTO dispatch_lines (dispatch_id, stock_id, sales_order_line_id, qty) VALUES (?, ?, ?, ?)", id, sid, line, qty)
		require.NoError(t, err)
	}
	return so, line
}

func createInvoice(t *testing.T, h *finance.Handler, dispatch string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateInvoice(w, testutil.AuthedJSONRequest("POST", "/api/v1/invoices", map[string]any{"dispatch_id": dispatch}, "accounts"))
	return w
}

func pay(t *testing.T, h *finance.Handler, invoice, amount string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.RecordPayment(w, testutil.AuthedJSONRequest("POST", "/api/v1/payments", map[string]any{
		"invoice_id": invoice, "amount": amount, "reference": "UTR-778812",
	}, "accounts"))
	return w
}

func invoiceState(t *testing.T, h *finance.Handler, id string) models.Invoice {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetInvoice(w, testutil.AuthedRequest("GET", "/", nil, "viewer"), id)
	testutil.AssertStatus(t, w, http.StatusOK)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)
	return inv
}

func TestInvoiceAndPayments(t *testing.T) {
	h, db, m := newTestHandler(t)
	_, line := shippedDispatch(t, db, m, "DC-T1", lifecycle.DispatchDispatched)

	w := createInvoice(t, h, "DC-T1")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)
	assert.Equal(t, lifecycle.InvoiceDraft, inv.Status)
	assert.Equal(t, m.Customer, inv.CustomerID)
	require.Len(t, inv.Lines, 1)
	assert.True(t, dec("10").Equal(inv.Lines[0].Qty))
	assert.True(t, dec("12000").Equal(inv.Subtotal), inv.Subtotal.String())
	assert.True(t, dec("2160").Equal(inv.TaxAmount), inv.TaxAmount.String())
	assert.True(t, dec("14160").Equal(inv.Total), inv.Total.String())

	testutil.AssertStatus(t, createInvoice(t, h, "DC-T1"), http.StatusConflict)
	testutil.AssertStatus(t, pay(t, h, inv.ID, "100"), http.StatusConflict)

	w = httptest.NewRecorder()
	h.IssueInvoice(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), inv.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &inv)
	assert.Equal(t, lifecycle.InvoiceIssued, inv.Status)
	require.NotNil(t, inv.IssueDate)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, "2026-06-01", *inv.IssueDate)
	assert.Equal(t, "2026-07-16", *inv.DueDate)

	var invoiced decimal.Decimal
	require.NoError(t, db.Get(&invoiced, "SELECT qty_invoiced FROM sales_order_lines WHERE id = ?", line))
	assert.True(t, dec("10").Equal(invoiced))

	w = pay(t, h, inv.ID, "5000")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var first models.Payment
	testutil.DecodeEnvelope(t, w, &first)
	assert.Equal(t, "BANK_TRANSFER", first.Mode)
	assert.Equal(t, "2026-06-01", first.PaymentDate)
	assert.Equal(t, lifecycle.InvoicePartiallyPaid, testutil.Status(t, db, "invoices", inv.ID))

	testutil.AssertStatus(t, pay(t, h, inv.ID, "9160.01"), http.StatusConflict)
	testutil.AssertStatus(t, pay(t, h, inv.ID, "0.001"), http.StatusBadRequest)
	testutil.AssertStatus(t, pay(t, h, inv.ID, "-5"), http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.CancelInvoice(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), inv.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	testutil.AssertStatus(t, pay(t, h, inv.ID, "9160"), http.StatusCreated)
	inv = invoiceState(t, h, inv.ID)
	assert.Equal(t, lifecycle.InvoicePaid, inv.Status)
	assert.True(t, inv.Outstanding().IsZero())
	assert.Len(t, inv.Payments, 2)

	testutil.AssertStatus(t, pay(t, h, inv.ID, "1"), http.StatusConflict)

	w = httptest.NewRecorder()
	h.VoidPayment(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), first.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &first)
	assert.Equal(t, lifecycle.PaymentVoided, first.Status)
	assert.NotNil(t, first.VoidedAt)

	inv = invoiceState(t, h, inv.ID)
	assert.Equal(t, lifecycle.InvoicePartiallyPaid, inv.Status)
	assert.True(t, dec("9160").Equal(inv.AmountPaid), inv.AmountPaid.String())

	w = httptest.NewRecorder()
	h.VoidPayment(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), first.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	// past the due date the sweep picks it up
	h.Now = at(2026, time.August, 1)
	ids, err := h.MarkOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{inv.ID}, ids)
	assert.Equal(t, lifecycle.InvoiceOverdue, testutil.Status(t, db, "invoices", inv.ID))

	ids, err = h.MarkOverdue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	var swept int
	require.NoError(t, db.Get(&swept, "SELECT COUNT(*) FROM audit_log WHERE action = 'SWEEP' AND record_id = ?", inv.ID))
	assert.Equal(t, 1, swept)

	testutil.AssertStatus(t, pay(t, h, inv.ID, "5000"), http.StatusCreated)
	assert.Equal(t, lifecycle.InvoicePaid, testutil.Status(t, db, "invoices", inv.ID))
}

func TestVoidOnLateInvoiceGoesOverdue(t *testing.T) {
	h, db, m := newTestHandler(t)
	shippedDispatch(t, db, m, "DC-T3", lifecycle.DispatchDispatched)

	w := createInvoice(t, h, "DC-T3")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)
	w = httptest.NewRecorder()
	h.IssueInvoice(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), inv.ID)
	testutil.AssertStatus(t, w, http.StatusOK)

	w = pay(t, h, inv.ID, "10000")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var big models.Payment
	testutil.DecodeEnvelope(t, w, &big)
	testutil.AssertStatus(t, pay(t, h, inv.ID, "4160"), http.StatusCreated)
	assert.Equal(t, lifecycle.InvoicePaid, testutil.Status(t, db, "invoices", inv.ID))

	// due 2026-07-16
	h.Now = at(2026, time.August, 1)
	w = httptest.NewRecorder()
	h.VoidPayment(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), big.ID)
	testutil.AssertStatus(t, w, http.StatusOK)

	inv = invoiceState(t, h, inv.ID)
	assert.Equal(t, lifecycle.InvoiceOverdue, inv.Status)
	assert.True(t, dec("4160").Equal(inv.AmountPaid), inv.AmountPaid.String())

	ids, err := h.MarkOverdue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.ListInvoices(w, testutil.AuthedRequest("GET", "/api/v1/invoices?status=REFUNDED", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "unknown invoice status")

	w = httptest.NewRecorder()
	h.ExportInvoices(w, testutil.AuthedRequest("GET", "/api/v1/invoices/export?format=csv&status=paid", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.ListPayments(w, testutil.AuthedRequest("GET", "/api/v1/payments?status=VOIDED", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestCancelFreesDispatchForReinvoice(t *testing.T) {
	h, db, m := newTestHandler(t)
	_, line := shippedDispatch(t, db, m, "DC-T2", lifecycle.DispatchDelivered)
	shippedDispatch(t, db, m, "DC-T3", lifecycle.DispatchDraft)

	testutil.AssertStatus(t, createInvoice(t, h, "DC-T3"), http.StatusConflict)
	testutil.AssertStatus(t, createInvoice(t, h, "DC-NONE"), http.StatusNotFound)

	w := createInvoice(t, h, "DC-T2")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)

	w = httptest.NewRecorder()
	h.IssueInvoice(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), inv.ID)
	testutil.AssertStatus(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	h.CancelInvoice(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), inv.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &inv)
	assert.Equal(t, lifecycle.InvoiceCancelled, inv.Status)

	var invoiced decimal.Decimal
	require.NoError(t, db.Get(&invoiced, "SELECT qty_invoiced FROM sales_order_lines WHERE id = ?", line))
	assert.True(t, invoiced.IsZero())

	testutil.AssertStatus(t, createInvoice(t, h, "DC-T2"), http.StatusCreated)

	w = httptest.NewRecorder()
	h.ListInvoices(w, testutil.AuthedRequest("GET", "/api/v1/invoices?dispatch_id=DC-T2&status=DRAFT", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusOK)
	var list []models.Invoice
	testutil.DecodeEnvelope(t, w, &list)
	require.Len(t, list, 1)
	assert.NotEqual(t, inv.ID, list[0].ID)
}

func TestCustomerWithoutTermsUsesDefault(t *testing.T) {
	h, db, m := newTestHandler(t)
	_, err := db.Exec("UPDATE customers SET payment_terms_days = 0 WHERE id = ?", m.Customer)
	require.NoError(t, err)
	shippedDispatch(t, db, m, "DC-T4", lifecycle.DispatchDispatched)

	w := createInvoice(t, h, "DC-T4")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var inv models.Invoice
	testutil.DecodeEnvelope(t, w, &inv)

	w = httptest.NewRecorder()
	h.IssueInvoice(w, testutil.AuthedRequest("POST", "/", nil, "accounts"), inv.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &inv)
	assert.Equal(t, "2026-07-01", *inv.DueDate)
}
