package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/config"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/models"
)

// TestPassword satisfies the password policy and is used for every test user.
const TestPassword = "Pipes-and-Flanges1"

// SetupTestDB opens an in-memory database with the full schema, the default
// permission matrix and an admin user. It is closed when the test ends.
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := auth.SeedDefaultPermissions(db); err != nil {
		t.Fatalf("Failed to seed permissions: %v", err)
	}
	CreateTestUser(t, db, "admin", auth.RoleAdmin)
	return db
}

// CreateTestUser inserts an active user with TestPassword and returns its id.
func CreateTestUser(t *testing.T, db *sqlx.DB, username, role string) int {
	t.Helper()
	id, err := auth.CreateUser(db, username, username, TestPassword, role)
	if err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}
	return id
}

// NewDeps returns handler dependencies over db with a fixed April fiscal year.
func NewDeps(db *sqlx.DB) *common.Deps {
	log := zap.NewNop()
	return &common.Deps{
		DB:       db,
		Audit:    &audit.Logger{DB: db, Zap: log},
		Numbers:  database.NewNumberer(4, 4),
		Log:      log,
		Business: config.Default().Business,
	}
}

// AuthedRequest builds a request whose context carries a user named after role.
func AuthedRequest(method, path string, body []byte, role string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role == "" {
		return req
	}
	u := &auth.User{ID: 1, Username: role, DisplayName: role, Role: role}
	return req.WithContext(auth.WithUser(req.Context(), u))
}

// AuthedJSONRequest marshals body and builds an authenticated JSON request.
func AuthedJSONRequest(method, path string, body interface{}, role string) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := AuthedRequest(method, path, bodyBytes, role)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// DecodeAPIResponse decodes an APIResponse from a ResponseRecorder.
func DecodeAPIResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API response: %v", err)
	}
	return resp
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}

// Masters are the fixture records created by SeedMasters.
type Masters struct {
	Customer string
	Vendor   string
	Pipe     string
	Flange   string
}

// SeedMasters inserts one customer, one vendor and two products.
func SeedMasters(t *testing.T, db *sqlx.DB) Masters {
	t.Helper()
	m := Masters{Customer: "CUS-0001", Vendor: "VEN-0001", Pipe: "SMLS-4NB-40", Flange: "FLG-4NB-150"}
	stmts := []struct {
		q    string
		args []any
	}{
		{"INSERT INTO customers (id, name, payment_terms_days) VALUES (?, ?, ?)", []any{m.Customer, "Deccan Fabricators", 45}},
		{"INSERT INTO vendors (id, name) VALUES (?, ?)", []any{m.Vendor, "Western Tube Mills"}},
		{"INSERT INTO products (id, description, material, grade, size, schedule, uom) VALUES (?, ?, ?, ?, ?, ?, ?)",
			[]any{m.Pipe, "Seamless pipe 4in SCH40", "CS", "A106-B", "4NB", "40", "MTR"}},
		{"INSERT INTO products (id, description, material, grade, size, uom) VALUES (?, ?, ?, ?, ?, ?)",
			[]any{m.Flange, "Weld neck flange 4in 150#", "CS", "A105", "4NB", "NOS"}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.q, s.args...); err != nil {
			t.Fatalf("Failed to seed masters: %v", err)
		}
	}
	return m
}

// SeedStock inserts a stock row directly and returns its id. receivedAt
// orders FIFO selection.
func SeedStock(t *testing.T, db *sqlx.DB, productID, qty, status, receivedAt string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO inventory_stock (product_id, qty, uom, heat_number, location, status, source_type, unit_cost, received_at)
		VALUES (?, ?, 'MTR', 'H-1001', 'YARD-A', ?, 'OPENING', '100', ?)`,
		productID, decimal.RequireFromString(qty), status, receivedAt)
	if err != nil {
		t.Fatalf("Failed to seed stock: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// StockStatus returns the current status of a stock row.
func StockStatus(t *testing.T, db *sqlx.DB, id int64) string {
	t.Helper()
	var status string
	if err := db.GetContext(context.Background(), &status, "SELECT status FROM inventory_stock WHERE id = ?", id); err != nil {
		t.Fatalf("Failed to read stock %d: %v", id, err)
	}
	return status
}

// Status returns the status column of row id in table.
func Status(t *testing.T, db *sqlx.DB, table, id string) string {
	t.Helper()
	var status string
	if err := db.Get(&status, "SELECT status FROM "+table+" WHERE id = ?", id); err != nil {
		t.Fatalf("Failed to read %s %s: %v", table, id, err)
	}
	return status
}

// SeedOrder inserts a CONFIRMED sales order with one line of qty at price
// and returns the order and line ids.
func SeedOrder(t *testing.T, db *sqlx.DB, id, customer, product, qty, price string) (string, int) {
	t.Helper()
	q, p := decimal.RequireFromString(qty), decimal.RequireFromString(price)
	total := models.LineTotal(q, p, decimal.Zero)
	if _, err := db.Exec(`INSERT INTO sales_orders (id, customer_id, order_date, status, tax_rate, subtotal, total)
		VALUES (?, ?, '2026-04-01', 'CONFIRMED', '0', ?, ?)`, id, customer, total, total); err != nil {
		t.Fatalf("Failed to seed sales order: %v", err)
	}
	res, err := db.Exec(`INSERT INTO sales_order_lines (sales_order_id, product_id, qty, uom, unit_price, line_total)
		VALUES (?, ?, ?, 'MTR', ?, ?)`, id, product, q, p, total)
	if err != nil {
		t.Fatalf("Failed to seed sales order line: %v", err)
	}
	line, _ := res.LastInsertId()
	return id, int(line)
}

// LinkStock sets a stock row's status and ties it to a sales order line.
func LinkStock(t *testing.T, db *sqlx.DB, stockID int64, status, orderID string, lineID int) {
	t.Helper()
	if _, err := db.Exec("UPDATE inventory_stock SET status = ?, sales_order_id = ?, sales_order_line_id = ? WHERE id = ?",
		status, orderID, lineID, stockID); err != nil {
		t.Fatalf("Failed to link stock %d: %v", stockID, err)
	}
}
