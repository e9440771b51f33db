package sales

import (
	"context"
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
	"pipeerp/internal/stock"
	"pipeerp/internal/validation"
)

type orderInput struct {
	CustomerID   string           `json:"customer_id"`
	CustomerPO   string           `json:"customer_po"`
	OrderDate    string           `json:"order_date"`
	DeliveryDate string           `json:"delivery_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        string           `json:"notes"`
	Lines        []lineInput      `json:"lines"`
}

func loadOrder(ctx context.Context, q sqlx.QueryerContext, id string) (*models.SalesOrder, error) {
	so, err := common.Get[models.SalesOrder](ctx, q, "sales order", "SELECT * FROM sales_orders WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	so.Lines = []models.SalesOrderLine{}
	err = sqlx.SelectContext(ctx, q, &so.Lines, "SELECT * FROM sales_order_lines WHERE sales_order_id = ? ORDER BY id", id)
	return so, err
}

func (h *Handler) checkOrder(ctx context.Context, q sqlx.QueryerContext, in *orderInput) (decimal.Decimal, error) {
	ve := &validation.ValidationErrors{}
	checkCustomer(ctx, q, ve, in.CustomerID)
	validation.ValidateDate(ve, "order_date", in.OrderDate)
	validation.ValidateDate(ve, "delivery_date", in.DeliveryDate)
	if in.DeliveryDate != "" && in.OrderDate != "" && in.DeliveryDate < in.OrderDate {
		ve.Add("delivery_date", "must not be before order_date")
	}
	validation.ValidateMaxLength(ve, "customer_po", in.CustomerPO, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	rate := h.taxRate(ve, in.TaxRate)
	checkLines(ctx, q, ve, in.Lines)
	return rate, ve.Err()
}

func writeOrderLines(ctx context.Context, tx *sqlx.Tx, id string, rate decimal.Decimal, lines []lineInput) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM sales_order_lines WHERE sales_order_id = ?", id); err != nil {
		return err
	}
	totals := make([]decimal.Decimal, 0, len(lines))
	for _, ln := range lines {
		t := ln.total()
		totals = append(totals, t)
		_, err := tx.ExecContext(ctx, `INSERT INTO sales_order_lines (sales_order_id, product_id, qty, uom, unit_price, discount_pct, line_total, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, id, ln.ProductID, ln.Qty, ln.UOM, ln.UnitPrice, ln.DiscountPct, t, ln.Notes)
		if err != nil {
			return fmt.Errorf("insert sales order line: %w", err)
		}
	}
	sub, tax, total := models.Totals(totals, rate)
	_, err := tx.ExecContext(ctx, "UPDATE sales_orders SET tax_rate = ?, subtotal = ?, tax_amount = ?, total = ? WHERE id = ?",
		rate, sub, tax, total, id)
	return err
}

// createOrder inserts a DRAFT sales order, optionally linked to a quotation.
func (h *Handler) createOrder(r *http.Request, tx *sqlx.Tx, in *orderInput, quotationID *string) (*models.SalesOrder, error) {
	ctx := r.Context()
	if in.OrderDate == "" {
		in.OrderDate = h.today()
	}
	rate, err := h.checkOrder(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	id, err := h.Numbers.Next(ctx, tx, database.PrefixSalesOrder)
	if err != nil {
		return nil, err
	}
	now := database.Now()
	_, err = tx.ExecContext(ctx, `INSERT INTO sales_orders (id, customer_id, quotation_id, customer_po, order_date, delivery_date, status, notes, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.CustomerID, quotationID, in.CustomerPO, in.OrderDate, in.DeliveryDate, lifecycle.SODraft, in.Notes, audit.Username(r), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert sales order: %w", err)
	}
	if err := writeOrderLines(ctx, tx, id, rate, in.Lines); err != nil {
		return nil, err
	}
	return loadOrder(ctx, tx, id)
}

func (h *Handler) ListSalesOrders(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.SalesOrder, r.URL.Query().Get("status"))
	q.Eq("customer_id", r.URL.Query().Get("customer_id"))
	q.Eq("quotation_id", r.URL.Query().Get("quotation_id"))
	common.List[models.SalesOrder](h.Deps, w, r, "sales_orders", "created_at DESC, id DESC", q)
}

func (h *Handler) GetSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	so, err := loadOrder(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, so)
}

func (h *Handler) CreateSalesOrder(w http.ResponseWriter, r *http.Request) {
	var in orderInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	var so *models.SalesOrder
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		var err error
		so, err = h.createOrder(r, tx, &in, nil)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleSalesOrders, so.ID, so.Status, fmt.Sprintf("created sales order total %s", so.Total))
	response.Created(w, so)
}

func (h *Handler) UpdateSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	var in orderInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	var so *models.SalesOrder
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadOrder(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if cur.Status != lifecycle.SODraft {
			return response.Conflict("sales order %s is %s; only DRAFT orders can be edited", id, cur.Status)
		}
		in.CustomerID = cur.CustomerID
		if in.OrderDate == "" {
			in.OrderDate = cur.OrderDate
		}
		if in.TaxRate == nil {
			in.TaxRate = &cur.TaxRate
		}
		if in.Lines == nil {
			for _, ln := range cur.Lines {
				in.Lines = append(in.Lines, lineInput{ProductID: ln.ProductID, Qty: ln.Qty, UOM: ln.UOM,
					UnitPrice: ln.UnitPrice, DiscountPct: ln.DiscountPct, Notes: ln.Notes})
			}
		}
		rate, err := h.checkOrder(r.Context(), tx, &in)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), `UPDATE sales_orders SET customer_po = ?, order_date = ?, delivery_date = ?, notes = ?, updated_at = ?
			WHERE id = ?`, in.CustomerPO, in.OrderDate, in.DeliveryDate, in.Notes, database.Now(), id)
		if err != nil {
			return err
		}
		if err := writeOrderLines(r.Context(), tx, id, rate, in.Lines); err != nil {
			return err
		}
		so, err = loadOrder(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleSalesOrders, id, so.Status, "updated sales order")
	response.JSON(w, so)
}

// orderAction runs fn on the order inside a transaction, then answers with
// the reloaded order and an audit entry.
func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, id, action, summary string, fn func(tx *sqlx.Tx, so *models.SalesOrder) error) {
	var so *models.SalesOrder
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadOrder(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := fn(tx, cur); err != nil {
			return err
		}
		so, err = loadOrder(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, action, auth.ModuleSalesOrders, id, so.Status, summary)
	response.JSON(w, so)
}

func (h *Handler) ConfirmSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.orderAction(w, r, id, audit.ActionStatus, "confirmed", func(tx *sqlx.Tx, so *models.SalesOrder) error {
		if len(so.Lines) == 0 {
			return response.Conflict("sales order %s has no lines", id)
		}
		ve := &validation.ValidationErrors{}
		checkCustomer(r.Context(), tx, ve, so.CustomerID)
		if err := ve.Err(); err != nil {
			return err
		}
		return common.SetStatus(r.Context(), tx, "sales_orders", id, lifecycle.SalesOrder, so.Status, lifecycle.SOConfirmed,
			common.Fields{"confirmed_at": database.Now()})
	})
}

// releaseOrder refuses while stock is issued or released and otherwise drops
// every reservation of the order.
func releaseOrder(r *http.Request, tx *sqlx.Tx, so *models.SalesOrder) error {
	l := common.Ledger(r, tx)
	p, err := l.OrderProgress(so.ID)
	if err != nil {
		return err
	}
	if p.Busy {
		return response.Conflict("sales order %s has issued or released stock; cancel the stock issue or finish dispatch first", so.ID)
	}
	lines, err := l.UnreserveOrder(so.ID, stock.Ref{Type: stock.RefSalesOrder, ID: so.ID})
	if err != nil {
		return err
	}
	return l.RefreshLines(lines...)
}

func (h *Handler) CancelSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.orderAction(w, r, id, audit.ActionStatus, "cancelled", func(tx *sqlx.Tx, so *models.SalesOrder) error {
		if err := lifecycle.SalesOrder.Check(so.Status, lifecycle.SOCancelled); err != nil {
			return err
		}
		for _, ln := range so.Lines {
			if ln.QtyDispatched.IsPositive() {
				return response.Conflict("sales order %s has dispatched stock", id)
			}
		}
		if err := releaseOrder(r, tx, so); err != nil {
			return err
		}
		return common.SetStatus(r.Context(), tx, "sales_orders", id, lifecycle.SalesOrder, so.Status, lifecycle.SOCancelled, nil)
	})
}

func (h *Handler) ShortCloseSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.orderAction(w, r, id, audit.ActionStatus, "short-closed", func(tx *sqlx.Tx, so *models.SalesOrder) error {
		if err := lifecycle.SalesOrder.Check(so.Status, lifecycle.SOShortClosed); err != nil {
			return err
		}
		if err := releaseOrder(r, tx, so); err != nil {
			return err
		}
		return common.SetStatus(r.Context(), tx, "sales_orders", id, lifecycle.SalesOrder, so.Status, lifecycle.SOShortClosed, nil)
	})
}

func (h *Handler) CloseSalesOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.orderAction(w, r, id, audit.ActionStatus, "closed", func(tx *sqlx.Tx, so *models.SalesOrder) error {
		if err := lifecycle.SalesOrder.Check(so.Status, lifecycle.SOClosed); err != nil {
			return err
		}
		p, err := common.Ledger(r, tx).OrderProgress(id)
		if err != nil {
			return err
		}
		if p.FullyInvoiced < p.Lines {
			return response.Conflict("sales order %s has %d of %d lines fully invoiced", id, p.FullyInvoiced, p.Lines)
		}
		return common.SetStatus(r.Context(), tx, "sales_orders", id, lifecycle.SalesOrder, so.Status, lifecycle.SOClosed, nil)
	})
}

type allocation struct {
	LineID  int             `json:"line_id"`
	StockID int64           `json:"stock_id"`
	Qty     decimal.Decimal `json:"qty"`
}

// ReserveStock reserves the listed stock against order lines, or reserves
// FIFO for every open line when no allocations are posted.
func (h *Handler) ReserveStock(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Allocations []allocation `json:"allocations"`
	}
	if err := common.DecodeOptional(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	var reserved decimal.Decimal
	summary := "reserved stock"
	h.orderAction(w, r, id, audit.ActionReserve, summary, func(tx *sqlx.Tx, so *models.SalesOrder) error {
		if err := requireStatus("sales order", id, so.Status, lifecycle.SOConfirmed, lifecycle.SOPartiallyDispatched); err != nil {
			return err
		}
		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefReserve, ID: id}
		lines := map[int]*models.SalesOrderLine{}
		for i := range so.Lines {
			lines[so.Lines[i].ID] = &so.Lines[i]
		}

		var touched []int
		if len(in.Allocations) == 0 {
			for i := range so.Lines {
				q, err := l.AutoReserve(&so.Lines[i], ref)
				if err != nil {
					return err
				}
				reserved = reserved.Add(q)
				touched = append(touched, so.Lines[i].ID)
			}
			if reserved.IsZero() {
				return response.Conflict("no ACCEPTED stock available for sales order %s", id)
			}
		} else {
			for i, a := range in.Allocations {
				line, ok := lines[a.LineID]
				if !ok {
					return response.BadRequest("allocations[%d]: line %d is not on sales order %s", i, a.LineID, id)
				}
				if a.Qty.IsNegative() {
					return response.BadRequest("allocations[%d]: qty must not be negative", i)
				}
				item, err := l.Reserve(line, a.StockID, a.Qty, ref)
				if err != nil {
					return err
				}
				reserved = reserved.Add(item.Qty)
				touched = append(touched, line.ID)
			}
		}
		return l.RefreshLines(touched...)
	})
}

// UnreserveStock releases the listed RESERVED stock, or every reservation of
// the order when no ids are posted.
func (h *Handler) UnreserveStock(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		StockIDs []int64 `json:"stock_ids"`
	}
	if err := common.DecodeOptional(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.orderAction(w, r, id, audit.ActionRelease, "released reservations", func(tx *sqlx.Tx, so *models.SalesOrder) error {
		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefUnreserve, ID: id}
		if len(in.StockIDs) == 0 {
			lines, err := l.UnreserveOrder(id, ref)
			if err != nil {
				return err
			}
			return l.RefreshLines(lines...)
		}
		items, err := l.GetMany(in.StockIDs)
		if err != nil {
			return err
		}
		var lines []int
		for _, item := range items {
			if item.SalesOrderID == nil || *item.SalesOrderID != id {
				return response.Conflict("stock %d is not allocated to sales order %s", item.ID, id)
			}
			lineID := *item.SalesOrderLineID
			if err := l.Unreserve(item, ref); err != nil {
				return err
			}
			lines = append(lines, lineID)
		}
		return l.RefreshLines(lines...)
	})
}

// OrderStock lists the stock currently linked to a sales order.
func (h *Handler) OrderStock(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := common.Get[models.SalesOrder](r.Context(), h.DB, "sales order", "SELECT * FROM sales_orders WHERE id = ?", id); err != nil {
		h.Fail(w, r, err)
		return
	}
	items := []models.StockItem{}
	err := h.DB.SelectContext(r.Context(), &items, "SELECT * FROM inventory_stock WHERE sales_order_id = ? ORDER BY sales_order_line_id, id", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, items)
}

// syncOrderStatus moves an open order to DISPATCHED or PARTIALLY_DISPATCHED
// from its line counters.
func syncOrderStatus(ctx context.Context, tx *sqlx.Tx, l *stock.Ledger, id string) (string, error) {
	so, err := common.Get[models.SalesOrder](ctx, tx, "sales order", "SELECT * FROM sales_orders WHERE id = ?", id)
	if err != nil {
		return "", err
	}
	p, err := l.OrderProgress(id)
	if err != nil {
		return "", err
	}
	target := so.Status
	switch {
	case p.Lines > 0 && p.FullyDispatched == p.Lines:
		target = lifecycle.SODispatched
	case p.AnyDispatched:
		target = lifecycle.SOPartiallyDispatched
	}
	if target == so.Status {
		return so.Status, nil
	}
	return target, common.SetStatus(ctx, tx, "sales_orders", id, lifecycle.SalesOrder, so.Status, target, nil)
}
