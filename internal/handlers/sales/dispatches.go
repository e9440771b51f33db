package sales

import (
	"context"
	"database/sql"
	"errors"
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

func loadDispatch(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Dispatch, error) {
	d, err := common.Get[models.Dispatch](ctx, q, "dispatch", "SELECT * FROM dispatches WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	d.Lines = []models.DispatchLine{}
	err = sqlx.SelectContext(ctx, q, &d.Lines, "SELECT * FROM dispatch_lines WHERE dispatch_id = ? ORDER BY id", id)
	return d, err
}

func (h *Handler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.Dispatch, r.URL.Query().Get("status"))
	q.Eq("sales_order_id", r.URL.Query().Get("sales_order_id"))
	common.List[models.Dispatch](h.Deps, w, r, "dispatches", "created_at DESC, id DESC", q)
}

func (h *Handler) GetDispatch(w http.ResponseWriter, r *http.Request, id string) {
	d, err := loadDispatch(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, d)
}

// CreateDispatch drafts a delivery challan over RELEASED stock of one order.
func (h *Handler) CreateDispatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SalesOrderID string  `json:"sales_order_id"`
		StockIDs     []int64 `json:"stock_ids"`
		Transporter  string  `json:"transporter"`
		VehicleNo    string  `json:"vehicle_no"`
		LRNumber     string  `json:"lr_number"`
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
	validation.ValidateMaxLength(ve, "transporter", in.Transporter, 255)
	validation.ValidateMaxLength(ve, "vehicle_no", in.VehicleNo, 32)
	validation.ValidateMaxLength(ve, "lr_number", in.LRNumber, 64)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var d *models.Dispatch
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		so, err := loadOrder(r.Context(), tx, in.SalesOrderID)
		if err != nil {
			return err
		}
		if err := requireStatus("sales order", so.ID, so.Status, lifecycle.SOConfirmed, lifecycle.SOPartiallyDispatched); err != nil {
			return err
		}
		items, err := common.Ledger(r, tx).GetMany(in.StockIDs)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Status != lifecycle.StockReleased || item.SalesOrderID == nil || *item.SalesOrderID != so.ID {
				return response.Conflict("stock %d is %s and not released for sales order %s", item.ID, item.Status, so.ID)
			}
			var other string
			err := tx.GetContext(r.Context(), &other, `SELECT d.id FROM dispatch_lines dl JOIN dispatches d ON d.id = dl.dispatch_id
				WHERE dl.stock_id = ? AND d.status = ? LIMIT 1`, item.ID, lifecycle.DispatchDraft)
			if err == nil {
				return response.Conflict("stock %d is already on dispatch %s", item.ID, other)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		id, err := h.Numbers.Next(r.Context(), tx, database.PrefixDispatch)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), `INSERT INTO dispatches (id, sales_order_id, status, transporter, vehicle_no, lr_number, notes, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, id, so.ID, lifecycle.DispatchDraft, in.Transporter, in.VehicleNo, in.LRNumber, in.Notes, audit.Username(r), database.Now())
		if err != nil {
			return fmt.Errorf("insert dispatch: %w", err)
		}
		for _, item := range items {
			_, err := tx.ExecContext(r.Context(), "INSERT INTO dispatch_lines (dispatch_id, stock_id, sales_order_line_id, qty) VALUES (?, ?, ?, ?)",
				id, item.ID, *item.SalesOrderLineID, item.Qty)
			if err != nil {
				return fmt.Errorf("insert dispatch line: %w", err)
			}
		}
		d, err = loadDispatch(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleDispatch, d.ID, d.Status, fmt.Sprintf("%d stock rows for %s", len(d.Lines), d.SalesOrderID))
	response.Created(w, d)
}

// ShipDispatch moves a DRAFT dispatch and its stock to DISPATCHED and brings
// the order status up to date.
func (h *Handler) ShipDispatch(w http.ResponseWriter, r *http.Request, id string) {
	var d *models.Dispatch
	var orderStatus string
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadDispatch(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "dispatches", id, lifecycle.Dispatch, cur.Status, lifecycle.DispatchDispatched,
			common.Fields{"dispatched_at": database.Now()}); err != nil {
			return err
		}
		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefDispatch, ID: id}
		var lines []int
		for _, dl := range cur.Lines {
			item, err := l.Get(dl.StockID)
			if err != nil {
				return err
			}
			if err := l.Move(item, lifecycle.StockDispatched, ref); err != nil {
				return err
			}
			lines = append(lines, dl.SalesOrderLineID)
		}
		if err := l.RefreshLines(lines...); err != nil {
			return err
		}
		if orderStatus, err = syncOrderStatus(r.Context(), tx, l, cur.SalesOrderID); err != nil {
			return err
		}
		d, err = loadDispatch(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleDispatch, id, d.Status, "dispatched")
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleSalesOrders, d.SalesOrderID, orderStatus, "dispatch "+id)
	response.JSON(w, d)
}

func (h *Handler) moveDispatch(w http.ResponseWriter, r *http.Request, id, to string, extra common.Fields) {
	var d *models.Dispatch
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadDispatch(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "dispatches", id, lifecycle.Dispatch, cur.Status, to, extra); err != nil {
			return err
		}
		d, err = loadDispatch(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleDispatch, id, d.Status, "dispatch "+d.Status)
	response.JSON(w, d)
}

func (h *Handler) DeliverDispatch(w http.ResponseWriter, r *http.Request, id string) {
	h.moveDispatch(w, r, id, lifecycle.DispatchDelivered, common.Fields{"delivered_at": database.Now()})
}

func (h *Handler) CancelDispatch(w http.ResponseWriter, r *http.Request, id string) {
	h.moveDispatch(w, r, id, lifecycle.DispatchCancelled, nil)
}
