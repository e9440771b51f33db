package inventory_test

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/handlers/inventory"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/testutil"
)

func newTestHandler(t *testing.T) (*inventory.Handler, *sqlx.DB, testutil.Masters) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	m := testutil.SeedMasters(t, db)
	return inventory.New(testutil.NewDeps(db)), db, m
}

func lineQty(t *testing.T, db *sqlx.DB, col string, line int) decimal.Decimal {
	t.Helper()
	var v decimal.Decimal
	require.NoError(t, db.Get(&v, "SELECT "+col+" FROM sales_order_lines WHERE id = ?", line))
	return v
}

func TestListStockFilters(t *testing.T) {
	h, db, m := newTestHandler(t)
	testutil.SeedStock(t, db, m.Pipe, "12", lifecycle.StockAccepted, "2026-05-01 08:00:00")
	testutil.SeedStock(t, db, m.Pipe, "6", lifecycle.StockUnderInspection, "2026-05-02 08:00:00")
	testutil.SeedStock(t, db, m.Flange, "20", lifecycle.StockAccepted, "2026-05-03 08:00:00")

	w := httptest.NewRecorder()
	h.ListStock(w, testutil.AuthedRequest("GET", "/api/v1/inventory?status=ACCEPTED", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusOK)
	var items []models.StockItem
	testutil.DecodeEnvelope(t, w, &items)
	require.Len(t, items, 2)
	assert.Equal(t, m.Pipe, items[0].ProductID)
	assert.Equal(t, m.Flange, items[1].ProductID)

	w = httptest.NewRecorder()
	h.ListStock(w, testutil.AuthedRequest("GET", "/api/v1/inventory?product_id="+m.Pipe+"&heat_number=1001", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &items)
	assert.Len(t, items, 2)

	w = httptest.NewRecorder()
	h.ListStock(w, testutil.AuthedRequest("GET", "/api/v1/inventory?status=LOST", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestRelocateAndHistory(t *testing.T) {
	h, db, m := newTestHandler(t)
	free := testutil.SeedStock(t, db, m.Pipe, "12", lifecycle.StockAccepted, "2026-05-01 08:00:00")
	pending := testutil.SeedStock(t, db, m.Pipe, "6", lifecycle.StockUnderInspection, "2026-05-01 08:00:00")

	w := httptest.NewRecorder()
	h.RelocateStock(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"location": "RACK-3"}, "stores"), free)
	testutil.AssertStatus(t, w, http.StatusOK)
	var item models.StockItem
	testutil.DecodeEnvelope(t, w, &item)
	assert.Equal(t, "RACK-3", item.Location)

	w = httptest.NewRecorder()
	h.RelocateStock(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"location": "RACK-3"}, "stores"), free)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.RelocateStock(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"location": "RACK-3"}, "stores"), pending)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = httptest.NewRecorder()
	h.RelocateStock(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{}, "stores"), free)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.GetStock(w, testutil.AuthedRequest("GET", "/", nil, "viewer"), free)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &item)
	require.Len(t, item.Movements, 1)
	assert.Equal(t, "RACK-3", item.Movements[0].ReferenceID)
	assert.Equal(t, "stores", item.Movements[0].Username)

	w = httptest.NewRecorder()
	h.GetStock(w, testutil.AuthedRequest("GET", "/", nil, "viewer"), 9999)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestExportStockCSV(t *testing.T) {
	h, db, m := newTestHandler(t)
	id := testutil.SeedStock(t, db, m.Pipe, "12.5", lifecycle.StockAccepted, "2026-05-01 08:00:00")

	w := httptest.NewRecorder()
	h.ExportStock(w, testutil.AuthedRequest("GET", "/api/v1/inventory/export?format=csv", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusOK)
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Stock ID", rows[0][0])
	assert.Equal(t, []string{strconv.FormatInt(id, 10), m.Pipe, "12.5", "MTR", "H-1001", "YARD-A", lifecycle.StockAccepted, "", "100.00", "2026-05-01 08:00:00"}, rows[1])

	w = httptest.NewRecorder()
	h.ExportStock(w, testutil.AuthedRequest("GET", "/api/v1/inventory/export?format=pdf", nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestStockIssueRoundTrip(t *testing.T) {
	h, db, m := newTestHandler(t)
	so, line := testutil.SeedOrder(t, db, "SO-ISS-1", m.Customer, m.Pipe, "20", "1000")
	a := testutil.SeedStock(t, db, m.Pipe, "12", lifecycle.StockAccepted, "2026-05-01 08:00:00")
	b := testutil.SeedStock(t, db, m.Pipe, "8", lifecycle.StockAccepted, "2026-05-01 08:00:00")
	testutil.LinkStock(t, db, a, lifecycle.StockReserved, so, line)

	// b is free, not reserved
	w := httptest.NewRecorder()
	h.CreateStockIssue(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"sales_order_id": so, "stock_ids": []int64{a, b}}, "stores"))
	testutil.AssertStatus(t, w, http.StatusConflict)
	assert.Equal(t, lifecycle.StockReserved, testutil.StockStatus(t, db, a))

	testutil.LinkStock(t, db, b, lifecycle.StockReserved, so, line)
	w = httptest.NewRecorder()
	h.CreateStockIssue(w, testutil.AuthedJSONRequest("POST", "/api/v1/stock-issues", map[string]any{"sales_order_id": so, "stock_ids": []int64{a, b}}, "stores"))
	testutil.AssertStatus(t, w, http.StatusCreated)
	var iss models.StockIssue
	testutil.DecodeEnvelope(t, w, &iss)
	assert.Equal(t, lifecycle.IssueIssued, iss.Status)
	assert.Equal(t, "stores", iss.IssuedBy)
	require.Len(t, iss.Lines, 2)

	assert.Equal(t, lifecycle.StockIssued, testutil.StockStatus(t, db, a))
	assert.True(t, decimal.NewFromInt(20).Equal(lineQty(t, db, "qty_issued", line)))
	assert.True(t, lineQty(t, db, "qty_reserved", line).IsZero())

	// a pending QC release holds the issue in place
	_, err := db.Exec("INSERT INTO qc_releases (id, sales_order_id, status, created_at) VALUES ('QCR-T', ?, 'PENDING', '2026-05-02 09:00:00')", so)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO qc_release_lines (qc_release_id, stock_id) VALUES ('QCR-T', ?)", a)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	h.CancelStockIssue(w, testutil.AuthedRequest("POST", "/", nil, "stores"), iss.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	_, err = db.Exec("UPDATE qc_releases SET status = 'CANCELLED' WHERE id = 'QCR-T'")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	h.CancelStockIssue(w, testutil.AuthedRequest("POST", "/", nil, "stores"), iss.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &iss)
	assert.Equal(t, lifecycle.IssueCancelled, iss.Status)
	assert.NotNil(t, iss.CancelledAt)

	assert.Equal(t, lifecycle.StockReserved, testutil.StockStatus(t, db, a))
	assert.Equal(t, lifecycle.StockReserved, testutil.StockStatus(t, db, b))
	assert.True(t, lineQty(t, db, "qty_issued", line).IsZero())
	assert.True(t, decimal.NewFromInt(20).Equal(lineQty(t, db, "qty_reserved", line)))

	w = httptest.NewRecorder()
	h.CancelStockIssue(w, testutil.AuthedRequest("POST", "/", nil, "stores"), iss.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestStockIssueNeedsOpenOrder(t *testing.T) {
	h, db, m := newTestHandler(t)
	so, line := testutil.SeedOrder(t, db, "SO-ISS-2", m.Customer, m.Pipe, "5", "1000")
	a := testutil.SeedStock(t, db, m.Pipe, "5", lifecycle.StockAccepted, "2026-05-01 08:00:00")
	testutil.LinkStock(t, db, a, lifecycle.StockReserved, so, line)
	_, err := db.Exec("UPDATE sales_orders SET status = 'SHORT_CLOSED' WHERE id = ?", so)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.CreateStockIssue(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"sales_order_id": so, "stock_ids": []int64{a}}, "stores"))
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = httptest.NewRecorder()
	h.CreateStockIssue(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"sales_order_id": so}, "stores"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.CreateStockIssue(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{"sales_order_id": "SO-NONE", "stock_ids": []int64{a}}, "stores"))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}
