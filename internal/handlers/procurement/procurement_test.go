package procurement_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/handlers/procurement"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/testutil"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestHandler(t *testing.T) (*procurement.Handler, *sqlx.DB, testutil.Masters) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	m := testutil.SeedMasters(t, db)
	return procurement.New(testutil.NewDeps(db)), db, m
}

func createPO(t *testing.T, h *procurement.Handler, body map[string]any) models.PurchaseOrder {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreatePurchaseOrder(w, testutil.AuthedJSONRequest("POST", "/api/v1/purchase-orders", body, "purchase"))
	testutil.AssertStatus(t, w, http.StatusCreated)
	var po models.PurchaseOrder
	testutil.DecodeEnvelope(t, w, &po)
	return po
}

// sentPO creates, approves and sends a purchase order for 100 m of pipe.
func sentPO(t *testing.T, h *procurement.Handler, m testutil.Masters) models.PurchaseOrder {
	t.Helper()
	po := createPO(t, h, map[string]any{
		"vendor_id": m.Vendor,
		"lines":     []map[string]any{{"product_id": m.Pipe, "qty": "100", "unit_price": "450"}},
	})
	for _, step := range []func(http.ResponseWriter, *http.Request, string){h.ApprovePurchaseOrder, h.SendPurchaseOrder} {
		w := httptest.NewRecorder()
		step(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
		testutil.AssertStatus(t, w, http.StatusOK)
		testutil.DecodeEnvelope(t, w, &po)
	}
	require.Equal(t, lifecycle.POSent, po.Status)
	return po
}

func receive(t *testing.T, h *procurement.Handler, po models.PurchaseOrder, qty, heat string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateGoodsReceipt(w, testutil.AuthedJSONRequest("POST", "/api/v1/goods-receipts", map[string]any{
		"purchase_order_id": po.ID,
		"vendor_challan":    "WTM/DC/5521",
		"lines":             []map[string]any{{"po_line_id": po.Lines[0].ID, "qty": qty, "heat_number": heat, "location": "YARD-B"}},
	}, "stores"))
	return w
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	h, _, m := newTestHandler(t)

	po := createPO(t, h, map[string]any{
		"vendor_id": m.Vendor,
		"lines":     []map[string]any{{"product_id": m.Pipe, "qty": "100", "unit_price": "450"}},
	})
	assert.Equal(t, lifecycle.PODraft, po.Status)
	require.Len(t, po.Lines, 1)
	assert.Equal(t, "MTR", po.Lines[0].UOM)
	assert.True(t, dec("45000").Equal(po.Subtotal), po.Subtotal.String())
	assert.True(t, dec("53100").Equal(po.Total), po.Total.String())

	w := httptest.NewRecorder()
	h.UpdatePurchaseOrder(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{
		"expected_date": "2099-01-31",
		"lines":         []map[string]any{{"product_id": m.Pipe, "qty": "120", "unit_price": "450"}},
	}, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &po)
	assert.True(t, dec("54000").Equal(po.Subtotal), po.Subtotal.String())
	assert.Equal(t, "2099-01-31", po.ExpectedDate)

	w = httptest.NewRecorder()
	h.SendPurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = httptest.NewRecorder()
	h.ApprovePurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &po)
	require.NotNil(t, po.ApprovedBy)
	assert.Equal(t, "purchase", *po.ApprovedBy)
	assert.NotNil(t, po.ApprovedAt)

	w = httptest.NewRecorder()
	h.UpdatePurchaseOrder(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{"notes": "late"}, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = httptest.NewRecorder()
	h.CancelPurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &po)
	assert.Equal(t, lifecycle.POCancelled, po.Status)
}

func TestPurchaseOrderVendorChecks(t *testing.T) {
	h, db, m := newTestHandler(t)
	_, err := db.Exec("UPDATE vendors SET status = 'blocked' WHERE id = ?", m.Vendor)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	h.CreatePurchaseOrder(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{
		"vendor_id": m.Vendor,
		"lines":     []map[string]any{{"product_id": m.Pipe, "qty": "1", "unit_price": "450"}},
	}, "purchase"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "blocked")

	_, err = db.Exec("UPDATE vendors SET status = 'preferred' WHERE id = ?", m.Vendor)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	h.CreatePurchaseOrder(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{
		"vendor_id":      m.Vendor,
		"sales_order_id": "SO-NOPE",
		"lines":          []map[string]any{{"product_id": m.Pipe, "qty": "1", "unit_price": "450"}},
	}, "purchase"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "unknown sales order")
}

func TestGoodsReceiptCreatesStockAndInspection(t *testing.T) {
	h, db, m := newTestHandler(t)
	po := sentPO(t, h, m)

	w := receive(t, h, po, "101", "H-77")
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = receive(t, h, po, "60", "H-77")
	testutil.AssertStatus(t, w, http.StatusCreated)
	var g models.GoodsReceipt
	testutil.DecodeEnvelope(t, w, &g)
	require.Len(t, g.Lines, 1)
	require.NotNil(t, g.Lines[0].StockID)
	require.NotEmpty(t, g.InspectionID)

	stockID := *g.Lines[0].StockID
	assert.Equal(t, lifecycle.StockUnderInspection, testutil.StockStatus(t, db, stockID))
	var item models.StockItem
	require.NoError(t, db.Get(&item, "SELECT * FROM inventory_stock WHERE id = ?", stockID))
	assert.True(t, dec("450").Equal(item.UnitCost))
	assert.Equal(t, "H-77", item.HeatNumber)
	assert.Equal(t, "GRN", item.SourceType)
	assert.Equal(t, g.ID, item.SourceID)

	assert.Equal(t, lifecycle.POPartiallyReceived, testutil.Status(t, db, "purchase_orders", po.ID))
	assert.Equal(t, lifecycle.CheckPending, testutil.Status(t, db, "inspections", g.InspectionID))
	var covered int64
	require.NoError(t, db.Get(&covered, "SELECT stock_id FROM inspection_lines WHERE inspection_id = ?", g.InspectionID))
	assert.Equal(t, stockID, covered)

	// received goods block cancellation
	w = httptest.NewRecorder()
	h.CancelPurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = receive(t, h, po, "41", "H-78")
	testutil.AssertStatus(t, w, http.StatusConflict)
	w = receive(t, h, po, "40", "H-78")
	testutil.AssertStatus(t, w, http.StatusCreated)
	assert.Equal(t, lifecycle.POReceived, testutil.Status(t, db, "purchase_orders", po.ID))

	w = receive(t, h, po, "1", "H-79")
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = httptest.NewRecorder()
	h.GetPurchaseOrder(w, testutil.AuthedRequest("GET", "/", nil, "viewer"), po.ID)
	testutil.DecodeEnvelope(t, w, &po)
	assert.True(t, dec("100").Equal(po.Lines[0].QtyReceived))

	w = httptest.NewRecorder()
	h.ClosePurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestShortCloseAfterPartialReceipt(t *testing.T) {
	h, db, m := newTestHandler(t)
	po := sentPO(t, h, m)

	w := httptest.NewRecorder()
	h.ShortClosePurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusConflict)

	testutil.AssertStatus(t, receive(t, h, po, "25", "H-90"), http.StatusCreated)
	w = httptest.NewRecorder()
	h.ShortClosePurchaseOrder(w, testutil.AuthedRequest("POST", "/", nil, "purchase"), po.ID)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, lifecycle.POShortClosed, testutil.Status(t, db, "purchase_orders", po.ID))

	w = receive(t, h, po, "5", "H-91")
	testutil.AssertStatus(t, w, http.StatusConflict)
}

func TestReceiptValidation(t *testing.T) {
	h, _, m := newTestHandler(t)
	po := sentPO(t, h, m)

	w := httptest.NewRecorder()
	h.CreateGoodsReceipt(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{
		"purchase_order_id": po.ID,
		"lines":             []map[string]any{{"po_line_id": po.Lines[0].ID, "qty": "5"}},
	}, "stores"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "heat_number")

	w = httptest.NewRecorder()
	h.CreateGoodsReceipt(w, testutil.AuthedJSONRequest("POST", "/", map[string]any{
		"purchase_order_id": po.ID,
		"lines":             []map[string]any{{"po_line_id": 9999, "qty": "5", "heat_number": "H", "location": "Y"}},
	}, "stores"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.ListGoodsReceipts(w, testutil.AuthedRequest("GET", "/api/v1/goods-receipts?purchase_order_id="+po.ID, nil, "viewer"))
	testutil.AssertStatus(t, w, http.StatusOK)
	var list []models.GoodsReceipt
	testutil.DecodeEnvelope(t, w, &list)
	assert.Empty(t, list)
}
