package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/validation"
)

// Handler serves purchase orders and goods receipts.
type Handler struct {
	*common.Deps
	Now func() time.Time
}

func New(d *common.Deps) *Handler {
	return &Handler{Deps: d, Now: time.Now}
}

func (h *Handler) today() string {
	if h.Now == nil {
		return database.Today()
	}
	return h.Now().Format(database.DateLayout)
}

type lineInput struct {
	ProductID string          `json:"product_id"`
	Qty       decimal.Decimal `json:"qty"`
	UOM       string          `json:"uom"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notes     string          `json:"notes"`
}

func checkLines(ctx context.Context, q sqlx.QueryerContext, ve *validation.ValidationErrors, lines []lineInput) {
	if len(lines) == 0 {
		ve.Add("lines", "at least one line is required")
		return
	}
	for i := range lines {
		ln := &lines[i]
		field := fmt.Sprintf("lines[%d]", i)
		validation.RequireField(ve, field+".product_id", ln.ProductID)
		validation.ValidatePositiveQty(ve, field+".qty", ln.Qty)
		validation.ValidatePrice(ve, field+".unit_price", ln.UnitPrice)
		validation.ValidateMaxLength(ve, field+".notes", ln.Notes, 1000)
		if ln.ProductID == "" {
			continue
		}
		var p struct {
			UOM    string `db:"uom"`
			Active bool   `db:"active"`
		}
		if err := sqlx.GetContext(ctx, q, &p, "SELECT uom, active FROM products WHERE id = ?", ln.ProductID); err != nil {
			ve.Add(field+".product_id", "unknown product "+ln.ProductID)
			continue
		}
		if !p.Active {
			ve.Add(field+".product_id", "product "+ln.ProductID+" is inactive")
		}
		if ln.UOM == "" {
			ln.UOM = p.UOM
		}
		validation.ValidateEnum(ve, field+".uom", ln.UOM, validation.ValidUOMs)
	}
}

// checkVendor requires a vendor that is neither inactive nor blocked.
func checkVendor(ctx context.Context, q sqlx.QueryerContext, ve *validation.ValidationErrors, id string) {
	validation.RequireField(ve, "vendor_id", id)
	if id == "" {
		return
	}
	var status string
	if err := sqlx.GetContext(ctx, q, &status, "SELECT status FROM vendors WHERE id = ?", id); err != nil {
		ve.Add("vendor_id", "unknown vendor "+id)
		return
	}
	if status == "inactive" || status == "blocked" {
		ve.Add("vendor_id", "vendor "+id+" is "+status)
	}
}
