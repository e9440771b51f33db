// Package stock moves inventory rows through their lifecycle and keeps the
// sales order line counters in step with them. Every function runs inside the
// caller's transaction.
package stock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pipeerp/internal/database"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
)

// Reference types recorded on stock movements.
const (
	RefGRN        = "GRN"
	RefSplit      = "SPLIT"
	RefReserve    = "RESERVE"
	RefUnreserve  = "UNRESERVE"
	RefIssue      = "ISSUE"
	RefInspection = "INSPECTION"
	RefQCRelease  = "QC_RELEASE"
	RefNCR        = "NCR"
	RefDispatch   = "DISPATCH"
	RefRelocate   = "RELOCATE"
	RefSalesOrder = "SALES_ORDER"
)

// Ref names the document that caused a movement.
type Ref struct {
	Type string
	ID   string
}

// Ledger applies stock changes inside one transaction.
type Ledger struct {
	ctx  context.Context
	tx   *sqlx.Tx
	user string
}

// New returns a Ledger bound to tx. user is recorded on every movement.
func New(ctx context.Context, tx *sqlx.Tx, user string) *Ledger {
	return &Ledger{ctx: ctx, tx: tx, user: user}
}

const stockColumns = `id, product_id, qty, uom, heat_number, location, status, source_type, source_id,
	parent_id, sales_order_id, sales_order_line_id, unit_cost, received_at, created_at, updated_at`

// Get loads one stock row.
func (l *Ledger) Get(id int64) (*models.StockItem, error) {
	var item models.StockItem
	err := l.tx.GetContext(l.ctx, &item, "SELECT "+stockColumns+" FROM inventory_stock WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, response.NotFound("stock", fmt.Sprint(id))
	}
	if err != nil {
		return nil, fmt.Errorf("load stock %d: %w", id, err)
	}
	return &item, nil
}

// GetMany loads stock rows in the given order, failing on the first missing id.
func (l *Ledger) GetMany(ids []int64) ([]*models.StockItem, error) {
	seen := map[int64]bool{}
	items := make([]*models.StockItem, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, response.BadRequest("stock %d listed twice", id)
		}
		seen[id] = true
		item, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Receive inserts a new UNDER_INSPECTION row for goods received against a PO.
func (l *Ledger) Receive(productID string, qty decimal.Decimal, uom, heat, location string, unitCost decimal.Decimal, ref Ref) (*models.StockItem, error) {
	now := database.Now()
	item := &models.StockItem{
		ProductID:  productID,
		Qty:        qty,
		UOM:        uom,
		HeatNumber: heat,
		Location:   location,
		Status:     lifecycle.StockUnderInspection,
		SourceType: ref.Type,
		SourceID:   ref.ID,
		UnitCost:   unitCost,
		ReceivedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.insert(item); err != nil {
		return nil, err
	}
	return item, l.record(item.ID, "", item.Status, item.Qty, ref)
}

func (l *Ledger) insert(item *models.StockItem) error {
	res, err := l.tx.NamedExecContext(l.ctx, `INSERT INTO inventory_stock
		(product_id, qty, uom, heat_number, location, status, source_type, source_id, parent_id,
		 sales_order_id, sales_order_line_id, unit_cost, received_at, created_at, updated_at)
		VALUES (:product_id, :qty, :uom, :heat_number, :location, :status, :source_type, :source_id, :parent_id,
		 :sales_order_id, :sales_order_line_id, :unit_cost, :received_at, :created_at, :updated_at)`, item)
	if err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	item.ID, err = res.LastInsertId()
	return err
}

func (l *Ledger) record(stockID int64, from, to string, qty decimal.Decimal, ref Ref) error {
	_, err := l.tx.ExecContext(l.ctx, `INSERT INTO stock_movements
		(stock_id, from_status, to_status, qty, reference_type, reference_id, username, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, stockID, from, to, qty, ref.Type, ref.ID, l.user, database.Now())
	if err != nil {
		return fmt.Errorf("record movement for stock %d: %w", stockID, err)
	}
	return nil
}

// Move changes item's status after checking the stock table. Leaving the
// allocated statuses clears the sales order link.
func (l *Ledger) Move(item *models.StockItem, to string, ref Ref) error {
	if err := lifecycle.Stock.Check(item.Status, to); err != nil {
		return fmt.Errorf("stock %d: %w", item.ID, err)
	}
	if !allocated(to) {
		item.SalesOrderID = nil
		item.SalesOrderLineID = nil
	}
	from := item.Status
	item.Status = to
	item.UpdatedAt = database.Now()
	_, err := l.tx.ExecContext(l.ctx, `UPDATE inventory_stock
		SET status = ?, sales_order_id = ?, sales_order_line_id = ?, updated_at = ? WHERE id = ?`,
		item.Status, item.SalesOrderID, item.SalesOrderLineID, item.UpdatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("update stock %d: %w", item.ID, err)
	}
	return l.record(item.ID, from, to, item.Qty, ref)
}

// Split carves qty off item into a new row with the same attributes and
// status. item keeps the remainder.
func (l *Ledger) Split(item *models.StockItem, qty decimal.Decimal, ref Ref) (*models.StockItem, error) {
	if !qty.IsPositive() || !qty.LessThan(item.Qty) {
		return nil, response.BadRequest("split quantity %s must be between 0 and %s", qty, item.Qty)
	}
	now := database.Now()
	item.Qty = item.Qty.Sub(qty)
	item.UpdatedAt = now
	if _, err := l.tx.ExecContext(l.ctx, "UPDATE inventory_stock SET qty = ?, updated_at = ? WHERE id = ?", item.Qty, now, item.ID); err != nil {
		return nil, fmt.Errorf("shrink stock %d: %w", item.ID, err)
	}

	parent := item.ID
	piece := *item
	piece.ID = 0
	piece.Qty = qty
	piece.ParentID = &parent
	piece.SourceType = RefSplit
	piece.SourceID = fmt.Sprint(parent)
	piece.CreatedAt = now
	piece.Movements = nil
	if err := l.insert(&piece); err != nil {
		return nil, err
	}
	if err := l.record(piece.ID, "", piece.Status, qty, ref); err != nil {
		return nil, err
	}
	return &piece, nil
}

// Relocate moves free stock to another location.
func (l *Ledger) Relocate(item *models.StockItem, location string, ref Ref) error {
	if item.Status != lifecycle.StockAccepted && item.Status != lifecycle.StockOnHold {
		return response.Conflict("stock %d is %s; only ACCEPTED or ON_HOLD stock can be relocated", item.ID, item.Status)
	}
	if location == item.Location {
		return response.BadRequest("stock %d is already at %s", item.ID, location)
	}
	item.Location = location
	item.UpdatedAt = database.Now()
	if _, err := l.tx.ExecContext(l.ctx, "UPDATE inventory_stock SET location = ?, updated_at = ? WHERE id = ?", location, item.UpdatedAt, item.ID); err != nil {
		return fmt.Errorf("relocate stock %d: %w", item.ID, err)
	}
	return l.record(item.ID, item.Status, item.Status, item.Qty, ref)
}

// Movements returns the history of one stock row, oldest first.
func (l *Ledger) Movements(id int64) ([]models.StockMovement, error) {
	out := []models.StockMovement{}
	err := l.tx.SelectContext(l.ctx, &out, `SELECT id, stock_id, from_status, to_status, qty, reference_type, reference_id, username, created_at
		FROM stock_movements WHERE stock_id = ? ORDER BY id`, id)
	return out, err
}

func allocated(status string) bool {
	for _, s := range lifecycle.Allocated {
		if s == status {
			return true
		}
	}
	return false
}
