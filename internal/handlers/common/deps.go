package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"pipeerp/internal/audit"
	"pipeerp/internal/config"
	"pipeerp/internal/database"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/response"
	"pipeerp/internal/stock"
)

// Deps holds what every domain handler needs.
type Deps struct {
	DB       *sqlx.DB
	Audit    *audit.Logger
	Numbers  *database.Numberer
	Log      *zap.Logger
	Business config.BusinessConfig
}

// Tx runs fn in a transaction bound to the request context.
func (d *Deps) Tx(r *http.Request, fn func(tx *sqlx.Tx) error) error {
	return database.WithTx(r.Context(), d.DB, fn)
}

// Fail answers with err, logging anything that maps to a 500.
func (d *Deps) Fail(w http.ResponseWriter, r *http.Request, err error) {
	if response.Status(err) == http.StatusInternalServerError && d.Log != nil {
		d.Log.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
	}
	response.Fail(w, err)
}

// Ledger returns a stock ledger for tx that records the request's user.
func Ledger(r *http.Request, tx *sqlx.Tx) *stock.Ledger {
	return stock.New(r.Context(), tx, audit.Username(r))
}

// Decode reads a JSON body into v, answering 400 on malformed input.
func Decode(r *http.Request, v any) error {
	if err := response.DecodeBody(r, v); err != nil {
		return response.BadRequest("invalid body: %v", err)
	}
	return nil
}

// DecodeOptional is Decode that accepts an empty body.
func DecodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := response.DecodeBody(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return response.BadRequest("invalid body: %v", err)
	}
	return nil
}

// Get loads one row into T or returns a 404 naming what was missing.
func Get[T any](ctx context.Context, q sqlx.QueryerContext, what, query string, id any) (*T, error) {
	var v T
	err := sqlx.GetContext(ctx, q, &v, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, response.NotFound(what, fmt.Sprint(id))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %v: %w", what, id, err)
	}
	return &v, nil
}

// Fields are extra column assignments applied with a status change.
type Fields map[string]any

// tables that carry an updated_at column
var touchTables = map[string]bool{
	"customers": true, "vendors": true, "products": true, "enquiries": true,
	"quotations": true, "sales_orders": true, "purchase_orders": true,
	"ncrs": true, "invoices": true,
}

// SetStatus checks from → to against m and writes the new status with any
// extra fields. table and the field names are code constants.
func SetStatus(ctx context.Context, tx *sqlx.Tx, table, id string, m lifecycle.Machine, from, to string, extra Fields) error {
	if err := m.Check(from, to); err != nil {
		return fmt.Errorf("%s: %w", id, err)
	}
	set := "status = ?"
	args := []any{to}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set += ", " + k + " = ?"
		args = append(args, extra[k])
	}
	if touchTables[table] {
		set += ", updated_at = ?"
		args = append(args, database.Now())
	}
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, "UPDATE "+table+" SET "+set+" WHERE id = ?", args...); err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	return nil
}

// Paging reads ?page= and ?limit= with defaults 1 and 50 (max 500).
func Paging(r *http.Request) (page, limit, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return page, limit, (page - 1) * limit
}

// Query accumulates WHERE conditions for list endpoints.
type Query struct {
	conds []string
	args  []any
	err   error
}

// Eq adds "col = ?" when value is non-empty.
func (q *Query) Eq(col, value string) {
	if value == "" {
		return
	}
	q.conds = append(q.conds, col+" = ?")
	q.args = append(q.args, value)
}

// Status adds "status = ?" when value is non-empty. A status that m never
// uses makes the query fail with a 400.
func (q *Query) Status(m lifecycle.Machine, value string) {
	if value != "" && !m.Valid(value) {
		q.err = response.BadRequest("unknown %s status %q", m.Name, value)
		return
	}
	q.Eq("status", value)
}

// Err reports a rejected filter.
func (q *Query) Err() error {
	return q.err
}

// Like adds "col LIKE %value%" when value is non-empty.
func (q *Query) Like(col, value string) {
	if value == "" {
		return
	}
	q.conds = append(q.conds, col+" LIKE ?")
	q.args = append(q.args, "%"+value+"%")
}

// Where returns the WHERE clause (possibly empty) and its arguments.
func (q *Query) Where() (string, []any) {
	if len(q.conds) == 0 {
		return "", nil
	}
	clause := " WHERE " + q.conds[0]
	for _, c := range q.conds[1:] {
		clause += " AND " + c
	}
	return clause, q.args
}

// List runs a paged SELECT of cols from table and answers with JSONMeta.
func List[T any](d *Deps, w http.ResponseWriter, r *http.Request, table, order string, q *Query) {
	if err := q.Err(); err != nil {
		d.Fail(w, r, err)
		return
	}
	page, limit, offset := Paging(r)
	where, args := q.Where()

	var total int
	if err := d.DB.GetContext(r.Context(), &total, "SELECT COUNT(*) FROM "+table+where, args...); err != nil {
		d.Fail(w, r, err)
		return
	}
	items := []T{}
	err := d.DB.SelectContext(r.Context(), &items,
		"SELECT * FROM "+table+where+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		d.Fail(w, r, err)
		return
	}
	response.JSONMeta(w, items, total, page, limit)
}
