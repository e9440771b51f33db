package inventory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/stock"
	"pipeerp/internal/validation"
)

func loadIssue(ctx context.Context, q sqlx.QueryerContext, id string) (*models.StockIssue, error) {
	iss, err := common.Get[models.StockIssue](ctx, q, "stock issue", "SELECT * FROM stock_issues WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	iss.Lines = []models.StockIssueLine{}
	err = sqlx.SelectContext(ctx, q, &iss.Lines, "SELECT * FROM stock_issue_lines WHERE stock_issue_id = ? ORDER BY id", id)
	return iss, err
}

func (h *Handler) ListStockIssues(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.StockIssue, r.URL.Query().Get("status"))
	q.Eq("sales_order_id", r.URL.Query().Get("sales_order_id"))
	common.List[models.StockIssue](h.Deps, w, r, "stock_issues", "created_at DESC, id DESC", q)
}

func (h *Handler) GetStockIssue(w http.ResponseWriter, r *http.Request, id string) {
	iss, err := loadIssue(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, iss)
}

// CreateStockIssue hands RESERVED stock of an order to the shop floor.
func (h *Handler) CreateStockIssue(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SalesOrderID string  `json:"sales_order_id"`
		StockIDs     []int64 `json:"stock_ids"`
		Notes        string  `json:"notes"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "sales_order_id", in.SalesOrderID)
	if len(in.StockIDs) == 0 {
		ve.Add("stock_ids", "at least one stock id is required")
	}
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var iss *models.StockIssue
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		so, err := common.Get[models.SalesOrder](ctx, tx, "sales order", "SELECT * FROM sales_orders WHERE id = ?", in.SalesOrderID)
		if err != nil {
			return err
		}
		if so.Status != lifecycle.SOConfirmed && so.Status != lifecycle.SOPartiallyDispatched {
			return response.Conflict("sales order %s is %s; stock can only be issued to open orders", so.ID, so.Status)
		}
		l := common.Ledger(r, tx)
		items, err := l.GetMany(in.StockIDs)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !allocatedTo(item, lifecycle.StockReserved, so.ID) {
				return response.Conflict("stock %d is %s and not reserved for sales order %s", item.ID, item.Status, so.ID)
			}
		}

		id, err := h.Numbers.Next(ctx, tx, database.PrefixStockIssue)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO stock_issues (id, sales_order_id, status, notes, issued_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, id, so.ID, lifecycle.IssueIssued, in.Notes, audit.Username(r), database.Now())
		if err != nil {
			return fmt.Errorf("insert stock issue: %w", err)
		}
		ref := stock.Ref{Type: stock.RefIssue, ID: id}
		var lines []int
		for _, item := range items {
			if err := l.Move(item, lifecycle.StockIssued, ref); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO stock_issue_lines (stock_issue_id, stock_id, qty) VALUES (?, ?, ?)", id, item.ID, item.Qty); err != nil {
				return fmt.Errorf("insert stock issue line: %w", err)
			}
			lines = append(lines, *item.SalesOrderLineID)
		}
		if err := l.RefreshLines(lines...); err != nil {
			return err
		}
		iss, err = loadIssue(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleInventory, iss.ID, iss.Status, fmt.Sprintf("issued %d stock rows to %s", len(iss.Lines), iss.SalesOrderID))
	response.Created(w, iss)
}

// CancelStockIssue returns stock that is still ISSUED to RESERVED. Stock that
// has since been released or rejected stays where it is.
func (h *Handler) CancelStockIssue(w http.ResponseWriter, r *http.Request, id string) {
	var iss *models.StockIssue
	var returned int
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		cur, err := loadIssue(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.StockIssue.Check(cur.Status, lifecycle.IssueCancelled); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefIssue, ID: id}
		var lines []int
		for _, ln := range cur.Lines {
			item, err := l.Get(ln.StockID)
			if err != nil {
				return err
			}
			if !allocatedTo(item, lifecycle.StockIssued, cur.SalesOrderID) {
				continue
			}
			var pending int
			err = tx.GetContext(ctx, &pending, `SELECT COUNT(*) FROM qc_release_lines l JOIN qc_releases q ON q.id = l.qc_release_id
				WHERE l.stock_id = ? AND q.status = ?`, item.ID, lifecycle.CheckPending)
			if err != nil {
				return err
			}
			if pending > 0 {
				return response.Conflict("stock %d is on a pending QC release", item.ID)
			}
			lines = append(lines, *item.SalesOrderLineID)
			if err := l.Move(item, lifecycle.StockReserved, ref); err != nil {
				return err
			}
			returned++
		}
		if err := l.RefreshLines(lines...); err != nil {
			return err
		}
		if err := common.SetStatus(ctx, tx, "stock_issues", id, lifecycle.StockIssue, cur.Status, lifecycle.IssueCancelled,
			common.Fields{"cancelled_at": database.Now()}); err != nil {
			return err
		}
		iss, err = loadIssue(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleInventory, id, iss.Status, fmt.Sprintf("cancelled, %d stock rows back to RESERVED", returned))
	response.JSON(w, iss)
}
