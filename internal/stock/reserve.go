package stock

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
)

// LoadLine loads a sales order line.
func (l *Ledger) LoadLine(lineID int) (*models.SalesOrderLine, error) {
	var line models.SalesOrderLine
	err := l.tx.GetContext(l.ctx, &line, "SELECT * FROM sales_order_lines WHERE id = ?", lineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, response.NotFound("sales order line", fmt.Sprint(lineID))
	}
	if err != nil {
		return nil, fmt.Errorf("load sales order line %d: %w", lineID, err)
	}
	return &line, nil
}

// Reserve allocates qty of stock row stockID to line. A row larger than qty
// is split and only the carved piece is reserved.
func (l *Ledger) Reserve(line *models.SalesOrderLine, stockID int64, qty decimal.Decimal, ref Ref) (*models.StockItem, error) {
	item, err := l.Get(stockID)
	if err != nil {
		return nil, err
	}
	if item.Status != lifecycle.StockAccepted {
		return nil, response.Conflict("stock %d is %s; only ACCEPTED stock can be reserved", item.ID, item.Status)
	}
	if item.ProductID != line.ProductID {
		return nil, response.BadRequest("stock %d is %s but line %d needs %s", item.ID, item.ProductID, line.ID, line.ProductID)
	}
	if qty.IsZero() {
		qty = decimal.Min(item.Qty, line.Open())
	}
	if !qty.IsPositive() {
		return nil, response.Conflict("line %d has nothing left to reserve", line.ID)
	}
	if qty.GreaterThan(item.Qty) {
		return nil, response.BadRequest("stock %d holds %s, cannot reserve %s", item.ID, item.Qty, qty)
	}
	if open := line.Open(); qty.GreaterThan(open) {
		return nil, response.Conflict("line %d has %s open, cannot reserve %s", line.ID, open, qty)
	}

	if qty.LessThan(item.Qty) {
		if item, err = l.Split(item, qty, ref); err != nil {
			return nil, err
		}
	}

	lineID := line.ID
	orderID := line.SalesOrderID
	item.SalesOrderID = &orderID
	item.SalesOrderLineID = &lineID
	if err := l.Move(item, lifecycle.StockReserved, ref); err != nil {
		return nil, err
	}
	line.QtyReserved = line.QtyReserved.Add(qty)
	return item, nil
}

// AutoReserve reserves the oldest ACCEPTED stock of the line's product until
// the line is covered or stock runs out. It returns the quantity reserved.
func (l *Ledger) AutoReserve(line *models.SalesOrderLine, ref Ref) (decimal.Decimal, error) {
	reserved := decimal.Zero
	if !line.Open().IsPositive() {
		return reserved, nil
	}

	var candidates []int64
	err := l.tx.SelectContext(l.ctx, &candidates, `SELECT id FROM inventory_stock
		WHERE product_id = ? AND status = ? ORDER BY received_at, id`, line.ProductID, lifecycle.StockAccepted)
	if err != nil {
		return reserved, fmt.Errorf("find stock for %s: %w", line.ProductID, err)
	}

	for _, id := range candidates {
		open := line.Open()
		if !open.IsPositive() {
			break
		}
		item, err := l.Get(id)
		if err != nil {
			return reserved, err
		}
		take := decimal.Min(open, item.Qty)
		if _, err := l.Reserve(line, id, take, ref); err != nil {
			return reserved, err
		}
		reserved = reserved.Add(take)
	}
	return reserved, nil
}

// Unreserve returns RESERVED stock to ACCEPTED and drops its order link.
func (l *Ledger) Unreserve(item *models.StockItem, ref Ref) error {
	if item.Status != lifecycle.StockReserved {
		return response.Conflict("stock %d is %s, not RESERVED", item.ID, item.Status)
	}
	return l.Move(item, lifecycle.StockAccepted, ref)
}

// UnreserveOrder releases every RESERVED row of a sales order and returns
// the touched line ids.
func (l *Ledger) UnreserveOrder(orderID string, ref Ref) ([]int, error) {
	var ids []int64
	err := l.tx.SelectContext(l.ctx, &ids, "SELECT id FROM inventory_stock WHERE sales_order_id = ? AND status = ? ORDER BY id",
		orderID, lifecycle.StockReserved)
	if err != nil {
		return nil, fmt.Errorf("find reservations of %s: %w", orderID, err)
	}
	lines := map[int]bool{}
	var touched []int
	for _, id := range ids {
		item, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		if item.SalesOrderLineID != nil && !lines[*item.SalesOrderLineID] {
			lines[*item.SalesOrderLineID] = true
			touched = append(touched, *item.SalesOrderLineID)
		}
		if err := l.Unreserve(item, ref); err != nil {
			return nil, err
		}
	}
	return touched, nil
}

// RefreshLine recomputes a line's counters from its stock rows and live
// invoices and stores them.
func (l *Ledger) RefreshLine(lineID int) (*models.SalesOrderLine, error) {
	line, err := l.LoadLine(lineID)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Status string          `db:"status"`
		Qty    decimal.Decimal `db:"qty"`
	}
	if err := l.tx.SelectContext(l.ctx, &rows, "SELECT status, qty FROM inventory_stock WHERE sales_order_line_id = ?", lineID); err != nil {
		return nil, fmt.Errorf("sum stock for line %d: %w", lineID, err)
	}
	line.QtyReserved, line.QtyIssued, line.QtyDispatched = decimal.Zero, decimal.Zero, decimal.Zero
	for _, r := range rows {
		switch r.Status {
		case lifecycle.StockReserved:
			line.QtyReserved = line.QtyReserved.Add(r.Qty)
		case lifecycle.StockIssued, lifecycle.StockReleased:
			line.QtyIssued = line.QtyIssued.Add(r.Qty)
		case lifecycle.StockDispatched:
			line.QtyDispatched = line.QtyDispatched.Add(r.Qty)
		}
	}

	var invoiced []decimal.Decimal
	err = l.tx.SelectContext(l.ctx, &invoiced, `SELECT il.qty FROM invoice_lines il JOIN invoices i ON i.id = il.invoice_id
		WHERE il.sales_order_line_id = ? AND i.status NOT IN (?, ?)`, lineID, lifecycle.InvoiceDraft, lifecycle.InvoiceCancelled)
	if err != nil {
		return nil, fmt.Errorf("sum invoiced for line %d: %w", lineID, err)
	}
	line.QtyInvoiced = decimal.Sum(decimal.Zero, invoiced...)

	_, err = l.tx.ExecContext(l.ctx, `UPDATE sales_order_lines
		SET qty_reserved = ?, qty_issued = ?, qty_dispatched = ?, qty_invoiced = ? WHERE id = ?`,
		line.QtyReserved, line.QtyIssued, line.QtyDispatched, line.QtyInvoiced, lineID)
	if err != nil {
		return nil, fmt.Errorf("update line %d: %w", lineID, err)
	}
	return line, nil
}

// RefreshLines refreshes each distinct line id once.
func (l *Ledger) RefreshLines(ids ...int) error {
	seen := map[int]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := l.RefreshLine(id); err != nil {
			return err
		}
	}
	return nil
}

// Progress reports the dispatch state of a sales order's lines.
type Progress struct {
	Lines           int
	FullyDispatched int
	AnyDispatched   bool
	FullyInvoiced   int
	Busy            bool // stock ISSUED or RELEASED
}

// OrderProgress summarises the lines and stock of a sales order.
func (l *Ledger) OrderProgress(orderID string) (Progress, error) {
	var p Progress
	var lines []models.SalesOrderLine
	if err := l.tx.SelectContext(l.ctx, &lines, "SELECT * FROM sales_order_lines WHERE sales_order_id = ?", orderID); err != nil {
		return p, fmt.Errorf("load lines of %s: %w", orderID, err)
	}
	p.Lines = len(lines)
	for _, ln := range lines {
		if ln.QtyDispatched.IsPositive() {
			p.AnyDispatched = true
		}
		if ln.QtyDispatched.GreaterThanOrEqual(ln.Qty) {
			p.FullyDispatched++
		}
		if ln.QtyInvoiced.GreaterThanOrEqual(ln.Qty) {
			p.FullyInvoiced++
		}
	}
	var busy int
	err := l.tx.GetContext(l.ctx, &busy, "SELECT COUNT(*) FROM inventory_stock WHERE sales_order_id = ? AND status IN (?, ?)",
		orderID, lifecycle.StockIssued, lifecycle.StockReleased)
	if err != nil {
		return p, fmt.Errorf("count issued stock of %s: %w", orderID, err)
	}
	p.Busy = busy > 0
	return p, nil
}
