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
	"pipeerp/internal/handlers/quality"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/stock"
	"pipeerp/internal/validation"
)

type receiptLine struct {
	POLineID   int             `json:"po_line_id"`
	Qty        decimal.Decimal `json:"qty"`
	HeatNumber string          `json:"heat_number"`
	Location   string          `json:"location"`
}

type receiptInput struct {
	PurchaseOrderID string        `json:"purchase_order_id"`
	ReceivedDate    string        `json:"received_date"`
	VendorChallan   string        `json:"vendor_challan"`
	Notes           string        `json:"notes"`
	Lines           []receiptLine `json:"lines"`
}

func loadReceipt(ctx context.Context, q sqlx.QueryerContext, id string) (*models.GoodsReceipt, error) {
	g, err := common.Get[models.GoodsReceipt](ctx, q, "goods receipt", "SELECT * FROM goods_receipts WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	g.Lines = []models.GoodsReceiptLine{}
	if err := sqlx.SelectContext(ctx, q, &g.Lines, "SELECT * FROM goods_receipt_lines WHERE goods_receipt_id = ? ORDER BY id", id); err != nil {
		return nil, err
	}
	var ins []string
	if err := sqlx.SelectContext(ctx, q, &ins, "SELECT id FROM inspections WHERE goods_receipt_id = ? ORDER BY created_at DESC LIMIT 1", id); err != nil {
		return nil, err
	}
	if len(ins) > 0 {
		g.InspectionID = ins[0]
	}
	return g, nil
}

func (h *Handler) ListGoodsReceipts(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Eq("purchase_order_id", r.URL.Query().Get("purchase_order_id"))
	common.List[models.GoodsReceipt](h.Deps, w, r, "goods_receipts", "created_at DESC, id DESC", q)
}

func (h *Handler) GetGoodsReceipt(w http.ResponseWriter, r *http.Request, id string) {
	g, err := loadReceipt(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, g)
}

// CreateGoodsReceipt books material against a sent purchase order. Every line
// becomes one UNDER_INSPECTION stock row and a PENDING inspection covers them
// all.
func (h *Handler) CreateGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var in receiptInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if in.ReceivedDate == "" {
		in.ReceivedDate = h.today()
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "purchase_order_id", in.PurchaseOrderID)
	validation.ValidateDate(ve, "received_date", in.ReceivedDate)
	validation.ValidateMaxLength(ve, "vendor_challan", in.VendorChallan, 64)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	if len(in.Lines) == 0 {
		ve.Add("lines", "at least one line is required")
	}
	for i, ln := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		validation.ValidatePositiveQty(ve, field+".qty", ln.Qty)
		validation.RequireField(ve, field+".heat_number", ln.HeatNumber)
		validation.RequireField(ve, field+".location", ln.Location)
		validation.ValidateMaxLength(ve, field+".heat_number", ln.HeatNumber, 64)
		validation.ValidateMaxLength(ve, field+".location", ln.Location, 64)
	}
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var g *models.GoodsReceipt
	var poStatus string
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		po, err := loadOrder(ctx, tx, in.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status != lifecycle.POSent && po.Status != lifecycle.POPartiallyReceived {
			return response.Conflict("purchase order %s is %s; goods can only be received against SENT or PARTIALLY_RECEIVED orders", po.ID, po.Status)
		}
		lines := map[int]*models.PurchaseOrderLine{}
		for i := range po.Lines {
			lines[po.Lines[i].ID] = &po.Lines[i]
		}
		for i, ln := range in.Lines {
			pl, ok := lines[ln.POLineID]
			if !ok {
				return response.BadRequest("lines[%d]: line %d is not on purchase order %s", i, ln.POLineID, po.ID)
			}
			if ln.Qty.GreaterThan(pl.Remaining()) {
				return response.Conflict("lines[%d]: line %d has %s remaining, cannot receive %s", i, pl.ID, pl.Remaining(), ln.Qty)
			}
			// later lines for the same PO line see the reduced remainder
			pl.QtyReceived = pl.QtyReceived.Add(ln.Qty)
		}

		id, err := h.Numbers.Next(ctx, tx, database.PrefixGoodsReceipt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO goods_receipts (id, purchase_order_id, received_date, vendor_challan, notes, received_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, id, po.ID, in.ReceivedDate, in.VendorChallan, in.Notes, audit.Username(r), database.Now())
		if err != nil {
			return fmt.Errorf("insert goods receipt: %w", err)
		}

		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefGRN, ID: id}
		stockIDs := make([]int64, 0, len(in.Lines))
		for _, ln := range in.Lines {
			pl := lines[ln.POLineID]
			item, err := l.Receive(pl.ProductID, ln.Qty, pl.UOM, ln.HeatNumber, ln.Location, pl.UnitPrice, ref)
			if err != nil {
				return err
			}
			stockIDs = append(stockIDs, item.ID)
			_, err = tx.ExecContext(ctx, `INSERT INTO goods_receipt_lines (goods_receipt_id, po_line_id, product_id, qty, heat_number, location, stock_id)
				VALUES (?, ?, ?, ?, ?, ?, ?)`, id, pl.ID, pl.ProductID, ln.Qty, ln.HeatNumber, ln.Location, item.ID)
			if err != nil {
				return fmt.Errorf("insert goods receipt line: %w", err)
			}
		}
		for _, pl := range lines {
			if _, err := tx.ExecContext(ctx, "UPDATE purchase_order_lines SET qty_received = ? WHERE id = ?", pl.QtyReceived, pl.ID); err != nil {
				return fmt.Errorf("update purchase order line %d: %w", pl.ID, err)
			}
		}

		poStatus = receiptStatus(po.Lines)
		if poStatus != po.Status {
			if err := common.SetStatus(ctx, tx, "purchase_orders", po.ID, lifecycle.PurchaseOrder, po.Status, poStatus, nil); err != nil {
				return err
			}
		}
		if _, err := quality.OpenInspection(ctx, tx, h.Numbers, &id, stockIDs, audit.Username(r)); err != nil {
			return err
		}
		g, err = loadReceipt(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionReceive, auth.ModuleReceiving, g.ID, "", fmt.Sprintf("%d lines against %s", len(g.Lines), g.PurchaseOrderID))
	h.Audit.Log(r, audit.ActionStatus, auth.ModulePurchaseOrders, g.PurchaseOrderID, poStatus, "received on "+g.ID)
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuality, g.InspectionID, lifecycle.CheckPending, "inspection for "+g.ID)
	response.Created(w, g)
}
