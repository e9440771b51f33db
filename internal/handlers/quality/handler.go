package quality

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

// Handler serves inspections, QC releases and NCRs.
type Handler struct {
	*common.Deps
}

func New(d *common.Deps) *Handler {
	return &Handler{Deps: d}
}

// result is one posted check outcome, keyed by stock id.
type result struct {
	StockID int64  `json:"stock_id"`
	Result  string `json:"result"`
	Remarks string `json:"remarks"`
}

// checkResults requires exactly one valid result for every line.
func checkResults(lines []models.InspectionLine, results []result, allowed []string) (map[int64]result, error) {
	ve := &validation.ValidationErrors{}
	onDoc := map[int64]bool{}
	for _, ln := range lines {
		onDoc[ln.StockID] = true
	}
	byStock := map[int64]result{}
	for i, res := range results {
		field := fmt.Sprintf("results[%d]", i)
		validation.RequireField(ve, field+".result", res.Result)
		validation.ValidateEnum(ve, field+".result", res.Result, allowed)
		validation.ValidateMaxLength(ve, field+".remarks", res.Remarks, 1000)
		if !onDoc[res.StockID] {
			ve.Add(field+".stock_id", fmt.Sprintf("stock %d is not on this document", res.StockID))
			continue
		}
		if _, dup := byStock[res.StockID]; dup {
			ve.Add(field+".stock_id", fmt.Sprintf("stock %d has more than one result", res.StockID))
		}
		byStock[res.StockID] = res
	}
	for _, ln := range lines {
		if _, ok := byStock[ln.StockID]; !ok {
			ve.Add("results", fmt.Sprintf("stock %d needs a result", ln.StockID))
		}
	}
	return byStock, ve.Err()
}

// pendingOn returns the id of a PENDING document in table that already covers
// stockID, or "".
func pendingOn(ctx context.Context, tx *sqlx.Tx, table, lineTable, fk string, stockID int64) (string, error) {
	var ids []string
	err := tx.SelectContext(ctx, &ids, "SELECT d.id FROM "+lineTable+" l JOIN "+table+" d ON d.id = l."+fk+
		" WHERE l.stock_id = ? AND d.status = ? LIMIT 1", stockID, lifecycle.CheckPending)
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

// OpenInspection creates a PENDING inspection over stockIDs. A non-nil grnID
// marks it as raised by that goods receipt.
func OpenInspection(ctx context.Context, tx *sqlx.Tx, numbers *database.Numberer, grnID *string, stockIDs []int64, user string) (string, error) {
	if len(stockIDs) == 0 {
		return "", response.BadRequest("an inspection needs at least one stock row")
	}
	id, err := numbers.Next(ctx, tx, database.PrefixInspection)
	if err != nil {
		return "", err
	}
	source := "MANUAL"
	if grnID != nil {
		source = "GRN"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO inspections (id, goods_receipt_id, source, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, id, grnID, source, lifecycle.CheckPending, user, database.Now())
	if err != nil {
		return "", fmt.Errorf("insert inspection: %w", err)
	}
	for _, sid := range stockIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO inspection_lines (inspection_id, stock_id) VALUES (?, ?)", id, sid); err != nil {
			return "", fmt.Errorf("insert inspection line: %w", err)
		}
	}
	return id, nil
}

// raiseNCR opens an NCR against a rejected stock row.
func raiseNCR(ctx context.Context, tx *sqlx.Tx, numbers *database.Numberer, source, sourceID string, item *models.StockItem, description, user string) (string, error) {
	id, err := numbers.Next(ctx, tx, database.PrefixNCR)
	if err != nil {
		return "", err
	}
	if description == "" {
		description = fmt.Sprintf("%s failed on %s %s", item.ProductID, source, sourceID)
	}
	now := database.Now()
	_, err = tx.ExecContext(ctx, `INSERT INTO ncrs (id, source_type, source_id, stock_id, product_id, qty, description, severity, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, source, sourceID, item.ID, item.ProductID, item.Qty, description, "major", lifecycle.NCROpen, user, now, now)
	if err != nil {
		return "", fmt.Errorf("insert ncr: %w", err)
	}
	return id, nil
}
