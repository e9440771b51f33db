package procurement

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
	"pipeerp/internal/validation"
)

type orderInput struct {
	VendorID     string           `json:"vendor_id"`
	SalesOrderID *string          `json:"sales_order_id"`
	OrderDate    string           `json:"order_date"`
	ExpectedDate string           `json:"expected_date"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Notes        string           `json:"notes"`
	Lines        []lineInput      `json:"lines"`
}

func loadOrder(ctx context.Context, q sqlx.QueryerContext, id string) (*models.PurchaseOrder, error) {
	po, err := common.Get[models.PurchaseOrder](ctx, q, "purchase order", "SELECT * FROM purchase_orders WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	po.Lines = []models.PurchaseOrderLine{}
	err = sqlx.SelectContext(ctx, q, &po.Lines, "SELECT * FROM purchase_order_lines WHERE purchase_order_id = ? ORDER BY id", id)
	return po, err
}

func (h *Handler) checkOrder(ctx context.Context, q sqlx.QueryerContext, in *orderInput) (decimal.Decimal, error) {
	ve := &validation.ValidationErrors{}
	checkVendor(ctx, q, ve, in.VendorID)
	if in.SalesOrderID != nil && *in.SalesOrderID == "" {
		in.SalesOrderID = nil
	}
	if in.SalesOrderID != nil {
		var status string
		err := sqlx.GetContext(ctx, q, &status, "SELECT status FROM sales_orders WHERE id = ?", *in.SalesOrderID)
		switch {
		case err != nil:
			ve.Add("sales_order_id", "unknown sales order "+*in.SalesOrderID)
		case lifecycle.SalesOrder.Terminal(status):
			ve.Add("sales_order_id", "sales order "+*in.SalesOrderID+" is "+status)
		}
	}
	validation.ValidateDate(ve, "order_date", in.OrderDate)
	validation.ValidateDate(ve, "expected_date", in.ExpectedDate)
	if in.ExpectedDate != "" && in.OrderDate != "" && in.ExpectedDate < in.OrderDate {
		ve.Add("expected_date", "must not be before the order date")
	}
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	rate := h.Business.TaxRate()
	if in.TaxRate != nil {
		rate = *in.TaxRate
		validation.ValidateRate(ve, "tax_rate", rate)
	}
	checkLines(ctx, q, ve, in.Lines)
	return rate, ve.Err()
}

func writeOrderLines(ctx context.Context, tx *sqlx.Tx, id string, rate decimal.Decimal, lines []lineInput) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM purchase_order_lines WHERE purchase_order_id = ?", id); err != nil {
		return err
	}
	totals := make([]decimal.Decimal, 0, len(lines))
	for _, ln := range lines {
		t := models.LineTotal(ln.Qty, ln.UnitPrice, decimal.Zero)
		totals = append(totals, t)
		_, err := tx.ExecContext(ctx, `INSERT INTO purchase_order_lines (purchase_order_id, product_id, qty, uom, unit_price, line_total, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, id, ln.ProductID, ln.Qty, ln.UOM, ln.UnitPrice, t, ln.Notes)
		if err != nil {
			return fmt.Errorf("insert purchase order line: %w", err)
		}
	}
	sub, tax, total := models.Totals(totals, rate)
	_, err := tx.ExecContext(ctx, "UPDATE purchase_orders SET tax_rate = ?, subtotal = ?, tax_amount = ?, total = ? WHERE id = ?",
		rate, sub, tax, total, id)
	return err
}

func (h *Handler) ListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.PurchaseOrder, r.URL.Query().Get("status"))
	q.Eq("vendor_id", r.URL.Query().Get("vendor_id"))
	q.Eq("sales_order_id", r.URL.Query().Get("sales_order_id"))
	common.List[models.PurchaseOrder](h.Deps, w, r, "purchase_orders", "created_at DESC, id DESC", q)
}

func (h *Handler) GetPurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	po, err := loadOrder(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, po)
}

func (h *Handler) CreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var in orderInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if in.OrderDate == "" {
		in.OrderDate = h.today()
	}

	var po *models.PurchaseOrder
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		rate, err := h.checkOrder(r.Context(), tx, &in)
		if err != nil {
			return err
		}
		id, err := h.Numbers.Next(r.Context(), tx, database.PrefixPurchaseOrder)
		if err != nil {
			return err
		}
		now := database.Now()
		_, err = tx.ExecContext(r.Context(), `INSERT INTO purchase_orders (id, vendor_id, sales_order_id, status, order_date, expected_date, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.VendorID, in.SalesOrderID, lifecycle.PODraft, in.OrderDate, in.ExpectedDate, in.Notes, audit.Username(r), now, now)
		if err != nil {
			return fmt.Errorf("insert purchase order: %w", err)
		}
		if err := writeOrderLines(r.Context(), tx, id, rate, in.Lines); err != nil {
			return err
		}
		po, err = loadOrder(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModulePurchaseOrders, po.ID, po.Status, "created purchase order on "+po.VendorID)
	response.Created(w, po)
}

func (h *Handler) UpdatePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	var in orderInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}

	var po *models.PurchaseOrder
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadOrder(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if cur.Status != lifecycle.PODraft {
			return response.Conflict("purchase order %s is %s; only DRAFT orders can be edited", id, cur.Status)
		}
		if in.VendorID == "" {
			in.VendorID = cur.VendorID
		}
		if in.SalesOrderID == nil {
			in.SalesOrderID = cur.SalesOrderID
		}
		if in.OrderDate == "" {
			in.OrderDate = cur.OrderDate
		}
		if in.TaxRate == nil {
			in.TaxRate = &cur.TaxRate
		}
		if in.Lines == nil {
			for _, ln := range cur.Lines {
				in.Lines = append(in.Lines, lineInput{ProductID: ln.ProductID, Qty: ln.Qty, UOM: ln.UOM, UnitPrice: ln.UnitPrice, Notes: ln.Notes})
			}
		}
		rate, err := h.checkOrder(r.Context(), tx, &in)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), `UPDATE purchase_orders SET vendor_id = ?, sales_order_id = ?, order_date = ?, expected_date = ?, notes = ?, updated_at = ?
			WHERE id = ?`, in.VendorID, in.SalesOrderID, in.OrderDate, in.ExpectedDate, in.Notes, database.Now(), id)
		if err != nil {
			return err
		}
		if err := writeOrderLines(r.Context(), tx, id, rate, in.Lines); err != nil {
			return err
		}
		po, err = loadOrder(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModulePurchaseOrders, id, po.Status, "updated purchase order")
	response.JSON(w, po)
}

// moveOrder runs check against the loaded order and applies the transition.
func (h *Handler) moveOrder(w http.ResponseWriter, r *http.Request, id, to string, extra common.Fields, check func(*models.PurchaseOrder) error) {
	var po *models.PurchaseOrder
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadOrder(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(cur); err != nil {
				return err
			}
		}
		if err := common.SetStatus(r.Context(), tx, "purchase_orders", id, lifecycle.PurchaseOrder, cur.Status, to, extra); err != nil {
			return err
		}
		po, err = loadOrder(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModulePurchaseOrders, id, po.Status, "purchase order "+po.Status)
	response.JSON(w, po)
}

func (h *Handler) ApprovePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.moveOrder(w, r, id, lifecycle.POApproved, common.Fields{
		"approved_by": audit.Username(r),
		"approved_at": database.Now(),
	}, func(po *models.PurchaseOrder) error {
		if len(po.Lines) == 0 {
			return response.Conflict("purchase order %s has no lines", id)
		}
		return nil
	})
}

func (h *Handler) SendPurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.moveOrder(w, r, id, lifecycle.POSent, nil, nil)
}

func (h *Handler) CancelPurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.moveOrder(w, r, id, lifecycle.POCancelled, nil, func(po *models.PurchaseOrder) error {
		for _, ln := range po.Lines {
			if ln.QtyReceived.IsPositive() {
				return response.Conflict("purchase order %s has received goods; short-close it instead", id)
			}
		}
		return nil
	})
}

func (h *Handler) ShortClosePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.moveOrder(w, r, id, lifecycle.POShortClosed, nil, nil)
}

func (h *Handler) ClosePurchaseOrder(w http.ResponseWriter, r *http.Request, id string) {
	h.moveOrder(w, r, id, lifecycle.POClosed, nil, nil)
}

// receiptStatus is RECEIVED when every line is covered, else PARTIALLY_RECEIVED.
func receiptStatus(lines []models.PurchaseOrderLine) string {
	for _, ln := range lines {
		if ln.Remaining().IsPositive() {
			return lifecycle.POPartiallyReceived
		}
	}
	return lifecycle.POReceived
}
