package quality

import (
	"context"
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

func loadInspection(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Inspection, error) {
	ins, err := common.Get[models.Inspection](ctx, q, "inspection", "SELECT * FROM inspections WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	ins.Lines = []models.InspectionLine{}
	err = sqlx.SelectContext(ctx, q, &ins.Lines, `SELECT id, inspection_id AS parent_id, stock_id, result, remarks
		FROM inspection_lines WHERE inspection_id = ? ORDER BY id`, id)
	return ins, err
}

func (h *Handler) ListInspections(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.Inspection, r.URL.Query().Get("status"))
	q.Eq("source", r.URL.Query().Get("source"))
	q.Eq("goods_receipt_id", r.URL.Query().Get("goods_receipt_id"))
	common.List[models.Inspection](h.Deps, w, r, "inspections", "created_at DESC, id DESC", q)
}

func (h *Handler) GetInspection(w http.ResponseWriter, r *http.Request, id string) {
	ins, err := loadInspection(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, ins)
}

// CreateInspection opens a manual inspection over stock awaiting a decision.
func (h *Handler) CreateInspection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		StockIDs  []int64 `json:"stock_ids"`
		Inspector string  `json:"inspector"`
		Notes     string  `json:"notes"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	if len(in.StockIDs) == 0 {
		ve.Add("stock_ids", "at least one stock id is required")
	}
	validation.ValidateMaxLength(ve, "inspector", in.Inspector, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var ins *models.Inspection
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		items, err := common.Ledger(r, tx).GetMany(in.StockIDs)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Status != lifecycle.StockUnderInspection && item.Status != lifecycle.StockOnHold {
				return response.Conflict("stock %d is %s; only UNDER_INSPECTION or ON_HOLD stock can be inspected", item.ID, item.Status)
			}
			other, err := pendingOn(ctx, tx, "inspections", "inspection_lines", "inspection_id", item.ID)
			if err != nil {
				return err
			}
			if other != "" {
				return response.Conflict("stock %d is already on pending inspection %s", item.ID, other)
			}
		}
		id, err := OpenInspection(ctx, tx, h.Numbers, nil, in.StockIDs, audit.Username(r))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE inspections SET inspector = ?, notes = ? WHERE id = ?", in.Inspector, in.Notes, id); err != nil {
			return err
		}
		ins, err = loadInspection(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuality, ins.ID, ins.Status, fmt.Sprintf("inspection of %d stock rows", len(ins.Lines)))
	response.Created(w, ins)
}

// CompleteInspection records a result for every line and moves the stock:
// PASS to ACCEPTED, FAIL to REJECTED with an NCR, HOLD to ON_HOLD.
func (h *Handler) CompleteInspection(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Inspector string   `json:"inspector"`
		Notes     string   `json:"notes"`
		Results   []result `json:"results"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}

	var ins *models.Inspection
	var ncrs []string
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		cur, err := loadInspection(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.Inspection.Check(cur.Status, lifecycle.CheckCompleted); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		results, err := checkResults(cur.Lines, in.Results, validation.ValidInspectionResults)
		if err != nil {
			return err
		}

		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefInspection, ID: id}
		for _, ln := range cur.Lines {
			res := results[ln.StockID]
			item, err := l.Get(ln.StockID)
			if err != nil {
				return err
			}
			switch res.Result {
			case lifecycle.ResultPass:
				err = l.Move(item, lifecycle.StockAccepted, ref)
			case lifecycle.ResultFail:
				if err = l.Move(item, lifecycle.StockRejected, ref); err == nil {
					var ncr string
					ncr, err = raiseNCR(ctx, tx, h.Numbers, "INSPECTION", id, item, res.Remarks, audit.Username(r))
					ncrs = append(ncrs, ncr)
				}
			case lifecycle.ResultHold:
				if item.Status == lifecycle.StockUnderInspection {
					err = l.Move(item, lifecycle.StockOnHold, ref)
				}
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE inspection_lines SET result = ?, remarks = ? WHERE id = ?", res.Result, res.Remarks, ln.ID); err != nil {
				return err
			}
		}

		extra := common.Fields{"completed_at": database.Now()}
		if in.Inspector != "" {
			extra["inspector"] = in.Inspector
		}
		if in.Notes != "" {
			extra["notes"] = in.Notes
		}
		if err := common.SetStatus(ctx, tx, "inspections", id, lifecycle.Inspection, cur.Status, lifecycle.CheckCompleted, extra); err != nil {
			return err
		}
		ins, err = loadInspection(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuality, id, ins.Status, fmt.Sprintf("inspection completed, %d NCRs raised", len(ncrs)))
	for _, ncr := range ncrs {
		h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuality, ncr, lifecycle.NCROpen, "raised by inspection "+id)
	}
	response.JSON(w, ins)
}

func (h *Handler) CancelInspection(w http.ResponseWriter, r *http.Request, id string) {
	var ins *models.Inspection
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadInspection(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "inspections", id, lifecycle.Inspection, cur.Status, lifecycle.CheckCancelled, nil); err != nil {
			return err
		}
		ins, err = loadInspection(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuality, id, ins.Status, "inspection cancelled")
	response.JSON(w, ins)
}
