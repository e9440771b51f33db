package sales

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

type quotationInput struct {
	CustomerID string           `json:"customer_id"`
	EnquiryID  *string          `json:"enquiry_id"`
	ValidUntil string           `json:"valid_until"`
	TaxRate    *decimal.Decimal `json:"tax_rate"`
	Terms      string           `json:"terms"`
	Notes      string           `json:"notes"`
	Lines      []lineInput      `json:"lines"`
}

// linePrice prices one enquiry line when quoting it.
type linePrice struct {
	LineID      int             `json:"line_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct"`
}

func loadQuotation(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Quotation, error) {
	qt, err := common.Get[models.Quotation](ctx, q, "quotation", "SELECT * FROM quotations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	qt.Lines = []models.QuotationLine{}
	err = sqlx.SelectContext(ctx, q, &qt.Lines, "SELECT * FROM quotation_lines WHERE quotation_id = ? ORDER BY id", id)
	return qt, err
}

// validUntil defaults an empty date to today plus the configured validity.
func (h *Handler) validUntil(date string) string {
	if date != "" {
		return date
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	return now.AddDate(0, 0, h.Business.QuotationValidityDays).Format(database.DateLayout)
}

func (h *Handler) checkQuotation(ctx context.Context, q sqlx.QueryerContext, in *quotationInput) (decimal.Decimal, error) {
	ve := &validation.ValidationErrors{}
	checkCustomer(ctx, q, ve, in.CustomerID)
	validation.ValidateDate(ve, "valid_until", in.ValidUntil)
	validation.ValidateMaxLength(ve, "terms", in.Terms, validation.MaxStringLength)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	rate := h.taxRate(ve, in.TaxRate)
	checkLines(ctx, q, ve, in.Lines)
	return rate, ve.Err()
}

// writeQuotationLines replaces the lines of id and stores the new totals.
func writeQuotationLines(ctx context.Context, tx *sqlx.Tx, id string, rate decimal.Decimal, lines []lineInput) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM quotation_lines WHERE quotation_id = ?", id); err != nil {
		return err
	}
	totals := make([]decimal.Decimal, 0, len(lines))
	for _, ln := range lines {
		t := ln.total()
		totals = append(totals, t)
		_, err := tx.ExecContext(ctx, `INSERT INTO quotation_lines (quotation_id, product_id, qty, uom, unit_price, discount_pct, line_total, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, id, ln.ProductID, ln.Qty, ln.UOM, ln.UnitPrice, ln.DiscountPct, t, ln.Notes)
		if err != nil {
			return fmt.Errorf("insert quotation line: %w", err)
		}
	}
	sub, tax, total := models.Totals(totals, rate)
	_, err := tx.ExecContext(ctx, "UPDATE quotations SET tax_rate = ?, subtotal = ?, tax_amount = ?, total = ? WHERE id = ?",
		rate, sub, tax, total, id)
	return err
}

// createQuotation inserts a DRAFT quotation numbered from the sequence.
func (h *Handler) createQuotation(r *http.Request, tx *sqlx.Tx, in *quotationInput) (*models.Quotation, error) {
	ctx := r.Context()
	in.ValidUntil = h.validUntil(in.ValidUntil)
	rate, err := h.checkQuotation(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	id, err := h.Numbers.Next(ctx, tx, database.PrefixQuotation)
	if err != nil {
		return nil, err
	}
	now := database.Now()
	_, err = tx.ExecContext(ctx, `INSERT INTO quotations (id, root_id, revision, enquiry_id, customer_id, status, valid_until, terms, notes, created_by, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, id, in.EnquiryID, in.CustomerID, lifecycle.QuotationDraft, in.ValidUntil, in.Terms, in.Notes, audit.Username(r), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert quotation: %w", err)
	}
	if err := writeQuotationLines(ctx, tx, id, rate, in.Lines); err != nil {
		return nil, err
	}
	return loadQuotation(ctx, tx, id)
}

func (h *Handler) ListQuotations(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.Quotation, r.URL.Query().Get("status"))
	q.Eq("customer_id", r.URL.Query().Get("customer_id"))
	q.Eq("enquiry_id", r.URL.Query().Get("enquiry_id"))
	q.Eq("root_id", r.URL.Query().Get("root_id"))
	common.List[models.Quotation](h.Deps, w, r, "quotations", "created_at DESC, id DESC", q)
}

func (h *Handler) GetQuotation(w http.ResponseWriter, r *http.Request, id string) {
	qt, err := loadQuotation(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, qt)
}

func (h *Handler) CreateQuotation(w http.ResponseWriter, r *http.Request) {
	var in quotationInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	var qt *models.Quotation
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		if in.EnquiryID != nil && *in.EnquiryID == "" {
			in.EnquiryID = nil
		}
		if in.EnquiryID != nil {
			if _, err := loadEnquiry(r.Context(), tx, *in.EnquiryID); err != nil {
				return err
			}
		}
		var err error
		qt, err = h.createQuotation(r, tx, &in)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuotations, qt.ID, qt.Status, fmt.Sprintf("created quotation total %s", qt.Total))
	response.Created(w, qt)
}

func (h *Handler) UpdateQuotation(w http.ResponseWriter, r *http.Request, id string) {
	var in quotationInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	var qt *models.Quotation
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadQuotation(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if cur.Status != lifecycle.QuotationDraft {
			return response.Conflict("quotation %s is %s; only DRAFT quotations can be edited", id, cur.Status)
		}
		in.CustomerID = cur.CustomerID
		if in.ValidUntil == "" {
			in.ValidUntil = cur.ValidUntil
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
		rate, err := h.checkQuotation(r.Context(), tx, &in)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), "UPDATE quotations SET valid_until = ?, terms = ?, notes = ?, updated_at = ? WHERE id = ?",
			in.ValidUntil, in.Terms, in.Notes, database.Now(), id)
		if err != nil {
			return err
		}
		if err := writeQuotationLines(r.Context(), tx, id, rate, in.Lines); err != nil {
			return err
		}
		qt, err = loadQuotation(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleQuotations, id, qt.Status, "updated quotation")
	response.JSON(w, qt)
}

// moveQuotation runs check against the current quotation and then applies to.
func (h *Handler) moveQuotation(w http.ResponseWriter, r *http.Request, id, to string, extra common.Fields, check func(*models.Quotation) error) {
	var qt *models.Quotation
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadQuotation(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(cur); err != nil {
				return err
			}
		}
		if err := common.SetStatus(r.Context(), tx, "quotations", id, lifecycle.Quotation, cur.Status, to, extra); err != nil {
			return err
		}
		qt, err = loadQuotation(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuotations, id, qt.Status, "quotation "+qt.Status)
	response.JSON(w, qt)
}

func (h *Handler) SendQuotation(w http.ResponseWriter, r *http.Request, id string) {
	today := h.today()
	h.moveQuotation(w, r, id, lifecycle.QuotationSent, common.Fields{"sent_at": database.Now()}, func(q *models.Quotation) error {
		if len(q.Lines) == 0 {
			return response.Conflict("quotation %s has no lines", id)
		}
		if q.ValidUntil < today {
			return response.Conflict("quotation %s validity ended on %s", id, q.ValidUntil)
		}
		return nil
	})
}

func (h *Handler) AcceptQuotation(w http.ResponseWriter, r *http.Request, id string) {
	today := h.today()
	h.moveQuotation(w, r, id, lifecycle.QuotationAccepted, nil, func(q *models.Quotation) error {
		if q.Status == lifecycle.QuotationSent && q.ValidUntil < today {
			return response.Conflict("quotation %s expired on %s; revise it", id, q.ValidUntil)
		}
		return nil
	})
}

func (h *Handler) RejectQuotation(w http.ResponseWriter, r *http.Request, id string) {
	h.moveQuotation(w, r, id, lifecycle.QuotationRejected, nil, nil)
}

func (h *Handler) CancelQuotation(w http.ResponseWriter, r *http.Request, id string) {
	h.moveQuotation(w, r, id, lifecycle.QuotationCancelled, nil, nil)
}

// ReviseQuotation supersedes a SENT, REJECTED or EXPIRED quotation with a new
// DRAFT revision numbered {root}-R{n}.
func (h *Handler) ReviseQuotation(w http.ResponseWriter, r *http.Request, id string) {
	var rev *models.Quotation
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadQuotation(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "quotations", id, lifecycle.Quotation, cur.Status, lifecycle.QuotationRevised, nil); err != nil {
			return err
		}

		n := cur.Revision + 1
		newID := fmt.Sprintf("%s-R%d", cur.RootID, n)
		now := database.Now()
		_, err = tx.ExecContext(r.Context(), `INSERT INTO quotations (id, root_id, revision, parent_id, enquiry_id, customer_id, status, valid_until, terms, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			newID, cur.RootID, n, cur.ID, cur.EnquiryID, cur.CustomerID, lifecycle.QuotationDraft, h.validUntil(""), cur.Terms, cur.Notes, audit.Username(r), now, now)
		if err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		lines := make([]lineInput, 0, len(cur.Lines))
		for _, ln := range cur.Lines {
			lines = append(lines, lineInput{ProductID: ln.ProductID, Qty: ln.Qty, UOM: ln.UOM,
				UnitPrice: ln.UnitPrice, DiscountPct: ln.DiscountPct, Notes: ln.Notes})
		}
		if err := writeQuotationLines(r.Context(), tx, newID, cur.TaxRate, lines); err != nil {
			return err
		}
		rev, err = loadQuotation(r.Context(), tx, newID)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuotations, id, lifecycle.QuotationRevised, "revised as "+rev.ID)
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuotations, rev.ID, rev.Status, "revision of "+id)
	response.Created(w, rev)
}

// ConvertQuotation turns an ACCEPTED quotation into a DRAFT sales order and
// marks its enquiry WON.
func (h *Handler) ConvertQuotation(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		CustomerPO   string `json:"customer_po"`
		DeliveryDate string `json:"delivery_date"`
	}
	if err := common.DecodeOptional(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateDate(ve, "delivery_date", in.DeliveryDate)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var so *models.SalesOrder
	var wonEnquiry string
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		qt, err := loadQuotation(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "quotations", id, lifecycle.Quotation, qt.Status, lifecycle.QuotationConverted, nil); err != nil {
			return err
		}
		order := orderInput{
			CustomerID:   qt.CustomerID,
			CustomerPO:   in.CustomerPO,
			DeliveryDate: in.DeliveryDate,
			TaxRate:      &qt.TaxRate,
			Notes:        qt.Notes,
		}
		for _, ln := range qt.Lines {
			order.Lines = append(order.Lines, lineInput{ProductID: ln.ProductID, Qty: ln.Qty, UOM: ln.UOM,
				UnitPrice: ln.UnitPrice, DiscountPct: ln.DiscountPct, Notes: ln.Notes})
		}
		if so, err = h.createOrder(r, tx, &order, &qt.ID); err != nil {
			return err
		}

		if qt.EnquiryID != nil {
			e, err := loadEnquiry(r.Context(), tx, *qt.EnquiryID)
			if err != nil {
				return err
			}
			if lifecycle.Enquiry.Can(e.Status, lifecycle.EnquiryWon) {
				if err := common.SetStatus(r.Context(), tx, "enquiries", e.ID, lifecycle.Enquiry, e.Status, lifecycle.EnquiryWon, nil); err != nil {
					return err
				}
				wonEnquiry = e.ID
			}
		}
		return nil
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuotations, id, lifecycle.QuotationConverted, "converted to "+so.ID)
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleSalesOrders, so.ID, so.Status, "created from quotation "+id)
	if wonEnquiry != "" {
		h.Audit.Log(r, audit.ActionStatus, auth.ModuleEnquiries, wonEnquiry, lifecycle.EnquiryWon, "won by "+so.ID)
	}
	response.Created(w, so)
}

// ExpireQuotations moves SENT quotations whose validity ended before today to
// EXPIRED and returns their ids.
func (h *Handler) ExpireQuotations(ctx context.Context) ([]string, error) {
	today := h.today()
	var ids []string
	err := database.WithTx(ctx, h.DB, func(tx *sqlx.Tx) error {
		ids = nil
		if err := tx.SelectContext(ctx, &ids, "SELECT id FROM quotations WHERE status = ? AND valid_until < ? ORDER BY id",
			lifecycle.QuotationSent, today); err != nil {
			return err
		}
		for _, id := range ids {
			err := common.SetStatus(ctx, tx, "quotations", id, lifecycle.Quotation, lifecycle.QuotationSent, lifecycle.QuotationExpired, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expire quotations: %w", err)
	}
	for _, id := range ids {
		h.Audit.Record(ctx, audit.Entry{Action: audit.ActionSweep, Module: auth.ModuleQuotations, RecordID: id,
			Status: lifecycle.QuotationExpired, Summary: "validity ended"})
	}
	if len(ids) > 0 && h.Log != nil {
		h.Log.Info("quotations expired", zap.Int("count", len(ids)))
	}
	return ids, nil
}
