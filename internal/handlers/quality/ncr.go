package quality

import (
	"context"
	"net/http"
	"strings"

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

func loadNCR(ctx context.Context, q sqlx.QueryerContext, id string) (*models.NCR, error) {
	return common.Get[models.NCR](ctx, q, "ncr", "SELECT * FROM ncrs WHERE id = ?", id)
}

// ListNCRs handles GET /api/v1/ncrs.
func (h *Handler) ListNCRs(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.NCR, r.URL.Query().Get("status"))
	q.Eq("severity", r.URL.Query().Get("severity"))
	q.Eq("source_type", r.URL.Query().Get("source_type"))
	q.Eq("product_id", r.URL.Query().Get("product_id"))
	common.List[models.NCR](h.Deps, w, r, "ncrs", "created_at DESC, id DESC", q)
}

// GetNCR handles GET /api/v1/ncrs/{id}.
func (h *Handler) GetNCR(w http.ResponseWriter, r *http.Request, id string) {
	n, err := loadNCR(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, n)
}

type ncrInput struct {
	StockID          *int64          `json:"stock_id"`
	ProductID        string          `json:"product_id"`
	Qty              decimal.Decimal `json:"qty"`
	Description      string          `json:"description"`
	Severity         string          `json:"severity"`
	RootCause        string          `json:"root_cause"`
	CorrectiveAction string          `json:"corrective_action"`
}

func (in *ncrInput) validate(ve *validation.ValidationErrors) {
	validation.RequireField(ve, "description", in.Description)
	validation.ValidateMaxLength(ve, "description", in.Description, 1000)
	validation.ValidateEnum(ve, "severity", in.Severity, validation.ValidNCRSeverities)
	validation.ValidateMaxLength(ve, "root_cause", in.RootCause, 1000)
	validation.ValidateMaxLength(ve, "corrective_action", in.CorrectiveAction, 1000)
}

// CreateNCR handles POST /api/v1/ncrs. A stock id fills product and quantity.
func (h *Handler) CreateNCR(w http.ResponseWriter, r *http.Request) {
	var in ncrInput
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	if in.Severity == "" {
		in.Severity = "minor"
	}

	var n *models.NCR
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		ve := &validation.ValidationErrors{}
		in.validate(ve)
		if in.StockID != nil {
			item, err := common.Ledger(r, tx).Get(*in.StockID)
			if err != nil {
				return err
			}
			in.ProductID = item.ProductID
			if in.Qty.IsZero() {
				in.Qty = item.Qty
			}
		}
		validation.RequireField(ve, "product_id", in.ProductID)
		validation.ValidatePositiveQty(ve, "qty", in.Qty)
		if in.ProductID != "" {
			if _, err := common.Get[models.Product](ctx, tx, "product", "SELECT * FROM products WHERE id = ?", in.ProductID); err != nil {
				ve.Add("product_id", "unknown product "+in.ProductID)
			}
		}
		if err := ve.Err(); err != nil {
			return err
		}

		id, err := h.Numbers.Next(ctx, tx, database.PrefixNCR)
		if err != nil {
			return err
		}
		now := database.Now()
		_, err = tx.ExecContext(ctx, `INSERT INTO ncrs (id, source_type, stock_id, product_id, qty, description, severity, status, root_cause, corrective_action, created_by, created_at, updated_at)
			VALUES (?, 'MANUAL', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.StockID, in.ProductID, in.Qty, in.Description, in.Severity, lifecycle.NCROpen, in.RootCause, in.CorrectiveAction, audit.Username(r), now, now)
		if err != nil {
			return err
		}
		n, err = loadNCR(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuality, n.ID, n.Status, "created NCR: "+n.Description)
	response.Created(w, n)
}

// UpdateNCR edits the narrative fields of an NCR that is not yet closed.
func (h *Handler) UpdateNCR(w http.ResponseWriter, r *http.Request, id string) {
	var n *models.NCR
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadNCR(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if cur.Status == lifecycle.NCRClosed {
			return response.Conflict("ncr %s is CLOSED", id)
		}
		in := ncrInput{Description: cur.Description, Severity: cur.Severity, RootCause: cur.RootCause, CorrectiveAction: cur.CorrectiveAction}
		if err := common.Decode(r, &in); err != nil {
			return err
		}
		ve := &validation.ValidationErrors{}
		in.validate(ve)
		if err := ve.Err(); err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), `UPDATE ncrs SET description = ?, severity = ?, root_cause = ?, corrective_action = ?, updated_at = ?
			WHERE id = ?`, in.Description, in.Severity, in.RootCause, in.CorrectiveAction, database.Now(), id)
		if err != nil {
			return err
		}
		n, err = loadNCR(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleQuality, id, n.Status, "updated NCR")
	response.JSON(w, n)
}

func (h *Handler) moveNCR(w http.ResponseWriter, r *http.Request, id, to string, fn func(tx *sqlx.Tx, n *models.NCR) (common.Fields, error)) {
	var n *models.NCR
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadNCR(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.NCR.Check(cur.Status, to); err != nil {
			return err
		}
		var extra common.Fields
		if fn != nil {
			if extra, err = fn(tx, cur); err != nil {
				return err
			}
		}
		if err := common.SetStatus(r.Context(), tx, "ncrs", id, lifecycle.NCR, cur.Status, to, extra); err != nil {
			return err
		}
		n, err = loadNCR(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuality, id, n.Status, "NCR "+n.Status)
	response.JSON(w, n)
}

func (h *Handler) ReviewNCR(w http.ResponseWriter, r *http.Request, id string) {
	h.moveNCR(w, r, id, lifecycle.NCRUnderReview, nil)
}

// DispositionNCR records the decision and applies it to linked REJECTED stock.
func (h *Handler) DispositionNCR(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Disposition      string `json:"disposition"`
		RootCause        string `json:"root_cause"`
		CorrectiveAction string `json:"corrective_action"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "disposition", in.Disposition)
	validation.ValidateEnum(ve, "disposition", in.Disposition, validation.ValidDispositions)
	validation.ValidateMaxLength(ve, "root_cause", in.RootCause, 1000)
	validation.ValidateMaxLength(ve, "corrective_action", in.CorrectiveAction, 1000)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	h.moveNCR(w, r, id, lifecycle.NCRDispositioned, func(tx *sqlx.Tx, n *models.NCR) (common.Fields, error) {
		if n.StockID != nil {
			l := common.Ledger(r, tx)
			item, err := l.Get(*n.StockID)
			if err != nil {
				return nil, err
			}
			if item.Status == lifecycle.StockRejected {
				if err := l.Move(item, lifecycle.DispositionStock[in.Disposition], stock.Ref{Type: stock.RefNCR, ID: id}); err != nil {
					return nil, err
				}
			}
		}
		extra := common.Fields{
			"disposition":      in.Disposition,
			"dispositioned_by": audit.Username(r),
			"dispositioned_at": database.Now(),
		}
		if in.RootCause != "" {
			extra["root_cause"] = in.RootCause
		}
		if in.CorrectiveAction != "" {
			extra["corrective_action"] = in.CorrectiveAction
		}
		return extra, nil
	})
}

// CloseNCR closes a dispositioned NCR once a root cause is on record.
func (h *Handler) CloseNCR(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		RootCause        string `json:"root_cause"`
		CorrectiveAction string `json:"corrective_action"`
	}
	if err := common.DecodeOptional(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.moveNCR(w, r, id, lifecycle.NCRClosed, func(tx *sqlx.Tx, n *models.NCR) (common.Fields, error) {
		extra := common.Fields{"closed_at": database.Now()}
		if rc := strings.TrimSpace(in.RootCause); rc != "" {
			extra["root_cause"] = rc
		} else if strings.TrimSpace(n.RootCause) == "" {
			return nil, response.BadRequest("ncr %s needs a root cause before it can be closed", id)
		}
		if in.CorrectiveAction != "" {
			extra["corrective_action"] = in.CorrectiveAction
		}
		return extra, nil
	})
}
