package inventory

import (
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/export"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/stock"
	"pipeerp/internal/validation"
)

// Handler serves the stock register and stock issues.
type Handler struct {
	*common.Deps
}

func New(d *common.Deps) *Handler {
	return &Handler{Deps: d}
}

func stockFilter(r *http.Request) (*common.Query, error) {
	v := r.URL.Query()
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "status", v.Get("status"), validation.ValidStockStatuses)
	if err := ve.Err(); err != nil {
		return nil, err
	}
	q := &common.Query{}
	q.Eq("product_id", v.Get("product_id"))
	q.Eq("status", v.Get("status"))
	q.Like("heat_number", v.Get("heat_number"))
	q.Eq("location", v.Get("location"))
	q.Eq("sales_order_id", v.Get("sales_order_id"))
	return q, nil
}

// ListStock handles GET /api/v1/inventory.
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	q, err := stockFilter(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	common.List[models.StockItem](h.Deps, w, r, "inventory_stock", "received_at, id", q)
}

// GetStock returns one stock row with its movement history.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request, id int64) {
	var item *models.StockItem
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		l := common.Ledger(r, tx)
		var err error
		if item, err = l.Get(id); err != nil {
			return err
		}
		item.Movements, err = l.Movements(id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, item)
}

// RelocateStock moves free stock to another yard location.
func (h *Handler) RelocateStock(w http.ResponseWriter, r *http.Request, id int64) {
	var in struct {
		Location string `json:"location"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "location", in.Location)
	validation.ValidateMaxLength(ve, "location", in.Location, 64)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var item *models.StockItem
	var from string
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		l := common.Ledger(r, tx)
		var err error
		if item, err = l.Get(id); err != nil {
			return err
		}
		from = item.Location
		return l.Relocate(item, in.Location, stock.Ref{Type: stock.RefRelocate, ID: in.Location})
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionRelocate, auth.ModuleInventory, strconv.FormatInt(item.ID, 10), item.Status, from+" -> "+item.Location)
	response.JSON(w, item)
}

var stockHeaders = []string{"Stock ID", "Product", "Qty", "UOM", "Heat Number", "Location", "Status", "Sales Order", "Unit Cost", "Received At"}

// ExportStock handles GET /api/v1/inventory/export?format=csv|xlsx.
func (h *Handler) ExportStock(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if !export.ValidFormat(format) {
		response.Err(w, "format must be csv or xlsx", http.StatusBadRequest)
		return
	}
	q, err := stockFilter(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	where, args := q.Where()
	items := []models.StockItem{}
	if err := h.DB.SelectContext(r.Context(), &items, "SELECT * FROM inventory_stock"+where+" ORDER BY received_at, id", args...); err != nil {
		h.Fail(w, r, err)
		return
	}

	t := export.Table{Name: "Stock", Headers: stockHeaders}
	for _, it := range items {
		so := ""
		if it.SalesOrderID != nil {
			so = *it.SalesOrderID
		}
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(it.ID, 10), it.ProductID, it.Qty.String(), it.UOM, it.HeatNumber, it.Location,
			it.Status, so, it.UnitCost.StringFixed(2), it.ReceivedAt,
		})
	}
	h.Audit.Log(r, audit.ActionExport, auth.ModuleInventory, "", "", "exported stock register")
	if err := export.Serve(w, format, "stock-register", t); err != nil && h.Log != nil {
		h.Log.Warn("stock export failed", zap.Error(err))
	}
}

// allocatedTo reports whether item is held in status for order.
func allocatedTo(item *models.StockItem, status, order string) bool {
	return item.Status == status && item.SalesOrderID != nil && *item.SalesOrderID == order && item.SalesOrderLineID != nil
}
