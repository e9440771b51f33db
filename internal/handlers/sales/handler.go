// Package sales serves enquiries, quotations, sales orders and dispatches.
package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

// Handler holds dependencies for sales handlers.
type Handler struct {
	*common.Deps
	Now func() time.Time
}

// New returns a sales handler.
func New(d *common.Deps) *Handler {
	return &Handler{Deps: d, Now: time.Now}
}

func (h *Handler) today() string {
	if h.Now == nil {
		return database.Today()
	}
	return h.Now().Format(database.DateLayout)
}

// lineInput is a priced document line as posted by clients.
type lineInput struct {
	ProductID   string          `json:"product_id"`
	Qty         decimal.Decimal `json:"qty"`
	UOM         string          `json:"uom"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
	Notes       string          `json:"notes"`
}

func (l lineInput) total() decimal.Decimal {
	return models.LineTotal(l.Qty, l.UnitPrice, l.DiscountPct)
}

// checkLines validates lines and fills each missing UOM from its product.
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
		validation.ValidatePercentage(ve, field+".discount_pct", ln.DiscountPct)
		validation.ValidateEnum(ve, field+".uom", ln.UOM, validation.ValidUOMs)
		if ln.ProductID == "" {
			continue
		}
		var p struct {
			UOM    string `db:"uom"`
			Active bool   `db:"active"`
		}
		err := sqlx.GetContext(ctx, q, &p, "SELECT uom, active FROM products WHERE id = ?", ln.ProductID)
		if err != nil {
			ve.Add(field+".product_id", "unknown product "+ln.ProductID)
			continue
		}
		if !p.Active {
			ve.Add(field+".product_id", "product "+ln.ProductID+" is inactive")
		}
		if ln.UOM == "" {
			ln.UOM = p.UOM
		}
	}
}

// checkCustomer requires an existing, active customer.
func checkCustomer(ctx context.Context, q sqlx.QueryerContext, ve *validation.ValidationErrors, id string) {
	validation.RequireField(ve, "customer_id", id)
	if id == "" {
		return
	}
	var active bool
	if err := sqlx.GetContext(ctx, q, &active, "SELECT active FROM customers WHERE id = ?", id); err != nil {
		ve.Add("customer_id", "unknown customer "+id)
		return
	}
	if !active {
		ve.Add("customer_id", "customer "+id+" is inactive")
	}
}

// taxRate returns rate, or the configured default when rate is nil.
func (h *Handler) taxRate(ve *validation.ValidationErrors, rate *decimal.Decimal) decimal.Decimal {
	if rate == nil {
		return h.Business.TaxRate()
	}
	validation.ValidateRate(ve, "tax_rate", *rate)
	return *rate
}

// requireStatus refuses the request unless status is one of allowed.
func requireStatus(what, id, status string, allowed ...string) error {
	for _, a := range allowed {
		if status == a {
			return nil
		}
	}
	return response.Conflict("%s %s is %s", what, id, status)
}
