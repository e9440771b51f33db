package sales

import (
	"context"
	"net/http"

	"github.com/jmoiron/sqlx"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

type enquiryInput struct {
	CustomerID   string      `json:"customer_id"`
	Reference    string      `json:"reference"`
	ReceivedDate string      `json:"received_date"`
	Notes        string      `json:"notes"`
	Lines        []lineInput `json:"lines"`
}

func checkEnquiry(ctx context.Context, q sqlx.QueryerContext, in *enquiryInput) error {
	ve := &validation.ValidationErrors{}
	checkCustomer(ctx, q, ve, in.CustomerID)
	validation.ValidateDate(ve, "received_date", in.ReceivedDate)
	validation.ValidateMaxLength(ve, "reference", in.Reference, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	checkLines(ctx, q, ve, in.Lines)
	return ve.Err()
}

func loadEnquiry(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Enquiry, error) {
	e, err := common.Get[models.Enquiry](ctx, q, "enquiry", "SELECT * FROM enquiries WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	e.Lines = []models.EnquiryLine{}
	err = sqlx.SelectContext(ctx, q, &e.Lines, "SELECT * FROM enquiry_lines WHERE enquiry_id = ? ORDER BY id", id)
	return e, err
}

func insertEnquiryLines(ctx context.Context, tx *sqlx.Tx, id string, lines []lineInput) error {
	for _, ln := range lines {
		_, err := tx.ExecContext(ctx, "INSERT INTO enquiry_lines (enquiry_id, product_id, qty, uom, notes) VALUES (?, ?, ?, ?, ?)",
			id, ln.ProductID, ln.Qty, ln.UOM, ln.Notes)
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) ListEnquiries(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.Enquiry, r.URL.Query().Get("status"))
	q.Eq("customer_id", r.URL.Query().Get("customer_id"))
	common.List[models.Enquiry](h.Deps, w, r, "enquiries", "created_at DESC, id DESC", q)
}

func (h *Handler) GetEnquiry(w http.ResponseWriter, r *http.Request, id string) {
	e, err := loadEnquiry(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, e)
}

func (h *Handler) CreateEnquiry(w http.ResponseWriter, r *http.Request) {
	var in enquiryInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if in.ReceivedDate == "" {
		in.ReceivedDate = h.today()
	}
	if err := checkEnquiry(r.Context(), h.DB, &in); err != nil {
		h.Fail(w, r, err)
		return
	}

	var e *models.Enquiry
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		id, err := h.Numbers.Next(r.Context(), tx, database.PrefixEnquiry)
		if err != nil {
			return err
		}
		now := database.Now()
		_, err = tx.ExecContext(r.Context(), `INSERT INTO enquiries (id, customer_id, reference, received_date, status, notes, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, id, in.CustomerID, in.Reference, in.ReceivedDate, lifecycle.EnquiryOpen, in.Notes, audit.Username(r), now, now)
		if err != nil {
			return err
		}
		if err := insertEnquiryLines(r.Context(), tx, id, in.Lines); err != nil {
			return err
		}
		e, err = loadEnquiry(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleEnquiries, e.ID, e.Status, "created enquiry for "+e.CustomerID)
	response.Created(w, e)
}

func (h *Handler) UpdateEnquiry(w http.ResponseWriter, r *http.Request, id string) {
	var in enquiryInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}

	var e *models.Enquiry
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadEnquiry(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if cur.Status != lifecycle.EnquiryOpen {
			return response.Conflict("enquiry %s is %s; only OPEN enquiries can be edited", id, cur.Status)
		}
		if in.CustomerID == "" {
			in.CustomerID = cur.CustomerID
		}
		if in.ReceivedDate == "" {
			in.ReceivedDate = cur.ReceivedDate
		}
		if in.Lines == nil {
			for _, ln := range cur.Lines {
				in.Lines = append(in.Lines, lineInput{ProductID: ln.ProductID, Qty: ln.Qty, UOM: ln.UOM, Notes: ln.Notes})
			}
		}
		if err := checkEnquiry(r.Context(), tx, &in); err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), `UPDATE enquiries SET customer_id = ?, reference = ?, received_date = ?, notes = ?, updated_at = ?
			WHERE id = ?`, in.CustomerID, in.Reference, in.ReceivedDate, in.Notes, database.Now(), id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(r.Context(), "DELETE FROM enquiry_lines WHERE enquiry_id = ?", id); err != nil {
			return err
		}
		if err := insertEnquiryLines(r.Context(), tx, id, in.Lines); err != nil {
			return err
		}
		e, err = loadEnquiry(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleEnquiries, id, e.Status, "updated enquiry")
	response.JSON(w, e)
}

// moveEnquiry applies a status change that carries no side effects.
func (h *Handler) moveEnquiry(w http.ResponseWriter, r *http.Request, id, to string, extra common.Fields) {
	var e *models.Enquiry
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadEnquiry(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "enquiries", id, lifecycle.Enquiry, cur.Status, to, extra); err != nil {
			return err
		}
		e, err = loadEnquiry(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleEnquiries, id, e.Status, "enquiry "+e.Status)
	response.JSON(w, e)
}

func (h *Handler) CancelEnquiry(w http.ResponseWriter, r *http.Request, id string) {
	h.moveEnquiry(w, r, id, lifecycle.EnquiryCancelled, nil)
}

func (h *Handler) ReopenEnquiry(w http.ResponseWriter, r *http.Request, id string) {
	h.moveEnquiry(w, r, id, lifecycle.EnquiryOpen, nil)
}

func (h *Handler) LoseEnquiry(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := common.Decode(r, &body); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "reason", body.Reason)
	validation.ValidateMaxLength(ve, "reason", body.Reason, 1000)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.moveEnquiry(w, r, id, lifecycle.EnquiryLost, common.Fields{"lost_reason": body.Reason})
}

// QuoteEnquiry drafts a quotation from an OPEN enquiry. Prices come from the
// body keyed by enquiry line id; unpriced lines start at zero.
func (h *Handler) QuoteEnquiry(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		ValidUntil string      `json:"valid_until"`
		Terms      string      `json:"terms"`
		Notes      string      `json:"notes"`
		Prices     []linePrice `json:"prices"`
	}
	if err := common.DecodeOptional(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}

	var q *models.Quotation
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		e, err := loadEnquiry(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.Enquiry.Check(e.Status, lifecycle.EnquiryQuoted); err != nil {
			return err
		}
		prices := map[int]linePrice{}
		for _, p := range in.Prices {
			prices[p.LineID] = p
		}
		qi := quotationInput{
			CustomerID: e.CustomerID,
			EnquiryID:  &e.ID,
			ValidUntil: in.ValidUntil,
			Terms:      in.Terms,
			Notes:      in.Notes,
		}
		for _, ln := range e.Lines {
			p := prices[ln.ID]
			qi.Lines = append(qi.Lines, lineInput{
				ProductID:   ln.ProductID,
				Qty:         ln.Qty,
				UOM:         ln.UOM,
				UnitPrice:   p.UnitPrice,
				DiscountPct: p.DiscountPct,
				Notes:       ln.Notes,
			})
		}
		if q, err = h.createQuotation(r, tx, &qi); err != nil {
			return err
		}
		return common.SetStatus(r.Context(), tx, "enquiries", id, lifecycle.Enquiry, e.Status, lifecycle.EnquiryQuoted, nil)
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleEnquiries, id, lifecycle.EnquiryQuoted, "quoted as "+q.ID)
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuotations, q.ID, q.Status, "created from enquiry "+id)
	response.Created(w, q)
}
