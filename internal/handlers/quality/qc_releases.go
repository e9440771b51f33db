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

func loadRelease(ctx context.Context, q sqlx.QueryerContext, id string) (*models.QCRelease, error) {
	rel, err := common.Get[models.QCRelease](ctx, q, "qc release", "SELECT * FROM qc_releases WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	rel.Lines = []models.InspectionLine{}
	err = sqlx.SelectContext(ctx, q, &rel.Lines, `SELECT id, qc_release_id AS parent_id, stock_id, result, remarks
		FROM qc_release_lines WHERE qc_release_id = ? ORDER BY id`, id)
	return rel, err
}

func (h *Handler) ListQCReleases(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Status(lifecycle.QCRelease, r.URL.Query().Get("status"))
	q.Eq("sales_order_id", r.URL.Query().Get("sales_order_id"))
	common.List[models.QCRelease](h.Deps, w, r, "qc_releases", "created_at DESC, id DESC", q)
}

func (h *Handler) GetQCRelease(w http.ResponseWriter, r *http.Request, id string) {
	rel, err := loadRelease(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, rel)
}

// CreateQCRelease opens a pre-dispatch check over ISSUED stock of one order.
func (h *Handler) CreateQCRelease(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SalesOrderID string  `json:"sales_order_id"`
		StockIDs     []int64 `json:"stock_ids"`
		Inspector    string  `json:"inspector"`
		Notes        string  `json:"notes"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "sales_order_id", in.SalesOrderID)
	if len(in.StockIDs) == 0 {
		ve.Add("stock_ids", "at least one stock id is required")
	}
	validation.ValidateMaxLength(ve, "inspector", in.Inspector, 255)
	validation.ValidateMaxLength(ve, "notes", in.Notes, validation.MaxStringLength)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var rel *models.QCRelease
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		if _, err := common.Get[models.SalesOrder](ctx, tx, "sales order", "SELECT * FROM sales_orders WHERE id = ?", in.SalesOrderID); err != nil {
			return err
		}
		items, err := common.Ledger(r, tx).GetMany(in.StockIDs)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Status != lifecycle.StockIssued || item.SalesOrderID == nil || *item.SalesOrderID != in.SalesOrderID {
				return response.Conflict("stock %d is %s and not issued to sales order %s", item.ID, item.Status, in.SalesOrderID)
			}
			other, err := pendingOn(ctx, tx, "qc_releases", "qc_release_lines", "qc_release_id", item.ID)
			if err != nil {
				return err
			}
			if other != "" {
				return response.Conflict("stock %d is already on pending QC release %s", item.ID, other)
			}
		}

		id, err := h.Numbers.Next(ctx, tx, database.PrefixQCRelease)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO qc_releases (id, sales_order_id, status, inspector, notes, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, id, in.SalesOrderID, lifecycle.CheckPending, in.Inspector, in.Notes, audit.Username(r), database.Now())
		if err != nil {
			return fmt.Errorf("insert qc release: %w", err)
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, "INSERT INTO qc_release_lines (qc_release_id, stock_id) VALUES (?, ?)", id, item.ID); err != nil {
				return fmt.Errorf("insert qc release line: %w", err)
			}
		}
		rel, err = loadRelease(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuality, rel.ID, rel.Status, fmt.Sprintf("QC release of %d stock rows for %s", len(rel.Lines), rel.SalesOrderID))
	response.Created(w, rel)
}

// CompleteQCRelease releases passed stock for dispatch. Failed stock is
// rejected, drops its order link and gets an NCR.
func (h *Handler) CompleteQCRelease(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		Inspector string   `json:"inspector"`
		Notes     string   `json:"notes"`
		Results   []result `json:"results"`
	}
	if err := common.Decode(r, &in); err != nil {
		h.Fail(w, r, err)
		return
	}

	var rel *models.QCRelease
	var ncrs []string
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		ctx := r.Context()
		cur, err := loadRelease(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.QCRelease.Check(cur.Status, lifecycle.CheckCompleted); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		results, err := checkResults(cur.Lines, in.Results, validation.ValidQCResults)
		if err != nil {
			return err
		}

		l := common.Ledger(r, tx)
		ref := stock.Ref{Type: stock.RefQCRelease, ID: id}
		var touched []int
		for _, ln := range cur.Lines {
			res := results[ln.StockID]
			item, err := l.Get(ln.StockID)
			if err != nil {
				return err
			}
			if item.SalesOrderLineID != nil {
				touched = append(touched, *item.SalesOrderLineID)
			}
			if res.Result == lifecycle.ResultPass {
				err = l.Move(item, lifecycle.StockReleased, ref)
			} else if err = l.Move(item, lifecycle.StockRejected, ref); err == nil {
				var ncr string
				ncr, err = raiseNCR(ctx, tx, h.Numbers, "QC_RELEASE", id, item, res.Remarks, audit.Username(r))
				ncrs = append(ncrs, ncr)
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "UPDATE qc_release_lines SET result = ?, remarks = ? WHERE id = ?", res.Result, res.Remarks, ln.ID); err != nil {
				return err
			}
		}
		if err := l.RefreshLines(touched...); err != nil {
			return err
		}

		extra := common.Fields{"completed_at": database.Now()}
		if in.Inspector != "" {
			extra["inspector"] = in.Inspector
		}
		if in.Notes != "" {
			extra["notes"] = in.Notes
		}
		if err := common.SetStatus(ctx, tx, "qc_releases", id, lifecycle.QCRelease, cur.Status, lifecycle.CheckCompleted, extra); err != nil {
			return err
		}
		rel, err = loadRelease(ctx, tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuality, id, rel.Status, fmt.Sprintf("QC release completed, %d NCRs raised", len(ncrs)))
	for _, ncr := range ncrs {
		h.Audit.Log(r, audit.ActionCreate, auth.ModuleQuality, ncr, lifecycle.NCROpen, "raised by QC release "+id)
	}
	response.JSON(w, rel)
}

func (h *Handler) CancelQCRelease(w http.ResponseWriter, r *http.Request, id string) {
	var rel *models.QCRelease
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadRelease(r.Context(), tx, id)
		if err != nil {
			return err
		}
		if err := common.SetStatus(r.Context(), tx, "qc_releases", id, lifecycle.QCRelease, cur.Status, lifecycle.CheckCancelled, nil); err != nil {
			return err
		}
		rel, err = loadRelease(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionStatus, auth.ModuleQuality, id, rel.Status, "QC release cancelled")
	response.JSON(w, rel)
}
