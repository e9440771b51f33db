package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/database"
	"pipeerp/internal/lifecycle"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db   *sqlx.DB
	tx   *sqlx.Tx
	l    *Ledger
	line *models.SalesOrderLine
}

func setup(t *testing.T, lineQty string) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.MustExec("INSERT INTO customers (id, name) VALUES ('CUS-0001', 'Acme Process')")
	db.MustExec("INSERT INTO products (id, description) VALUES ('SMLS-4NB-40', 'Seamless pipe 4in sch40')")
	db.MustExec("INSERT INTO products (id, description) VALUES ('ERW-2NB-10', 'ERW pipe 2in sch10')")
	db.MustExec("INSERT INTO sales_orders (id, customer_id, status) VALUES ('SO-2026-0001', 'CUS-0001', 'CONFIRMED')")
	res := db.MustExec("INSERT INTO sales_order_lines (sales_order_id, product_id, qty) VALUES ('SO-2026-0001', 'SMLS-4NB-40', ?)", lineQty)
	lineID, _ := res.LastInsertId()

	tx, err := db.Beginx()
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })

	l := New(context.Background(), tx, "tester")
	line, err := l.LoadLine(int(lineID))
	require.NoError(t, err)
	return &fixture{db: db, tx: tx, l: l, line: line}
}

// accepted receives a row and passes it through inspection.
func (f *fixture) accepted(t *testing.T, product, qty, receivedAt string) *models.StockItem {
	t.Helper()
	item, err := f.l.Receive(product, d(qty), "MTR", "H-100", "RACK-A", d("950"), Ref{Type: RefGRN, ID: "GRN-2026-0001"})
	require.NoError(t, err)
	require.NoError(t, f.l.Move(item, lifecycle.StockAccepted, Ref{Type: RefInspection, ID: "INS-2026-0001"}))
	if receivedAt != "" {
		_, err = f.tx.Exec("UPDATE inventory_stock SET received_at = ? WHERE id = ?", receivedAt, item.ID)
		require.NoError(t, err)
	}
	return item
}

func TestReceiveRecordsMovement(t *testing.T) {
	f := setup(t, "10")
	item := f.accepted(t, "SMLS-4NB-40", "6", "")

	moves, err := f.l.Movements(item.ID)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, "", moves[0].FromStatus)
	assert.Equal(t, lifecycle.StockUnderInspection, moves[0].ToStatus)
	assert.Equal(t, lifecycle.StockAccepted, moves[1].ToStatus)
	assert.Equal(t, "tester", moves[1].Username)
}

func TestMoveRejectsIllegalTransition(t *testing.T) {
	f := setup(t, "10")
	item := f.accepted(t, "SMLS-4NB-40", "6", "")

	err := f.l.Move(item, lifecycle.StockDispatched, Ref{Type: RefDispatch, ID: "DC-2026-0001"})
	var te *lifecycle.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, lifecycle.StockAccepted, item.Status)
}

func TestReserveWholeRow(t *testing.T) {
	f := setup(t, "10")
	item := f.accepted(t, "SMLS-4NB-40", "6", "")

	got, err := f.l.Reserve(f.line, item.ID, d("6"), Ref{Type: RefReserve, ID: "SO-2026-0001"})
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, lifecycle.StockReserved, got.Status)
	require.NotNil(t, got.SalesOrderLineID)
	assert.Equal(t, f.line.ID, *got.SalesOrderLineID)

	line, err := f.l.RefreshLine(f.line.ID)
	require.NoError(t, err)
	assert.Equal(t, "6", line.QtyReserved.String())
	assert.Equal(t, "4", line.Open().String())
}

func TestReserveSplitsLargerRow(t *testing.T) {
	f := setup(t, "4.5")
	item := f.accepted(t, "SMLS-4NB-40", "12", "")

	piece, err := f.l.Reserve(f.line, item.ID, d("4.5"), Ref{Type: RefReserve, ID: "SO-2026-0001"})
	require.NoError(t, err)
	assert.NotEqual(t, item.ID, piece.ID)
	require.NotNil(t, piece.ParentID)
	assert.Equal(t, item.ID, *piece.ParentID)
	assert.Equal(t, "4.5", piece.Qty.String())
	assert.Equal(t, "H-100", piece.HeatNumber)
	assert.Equal(t, "950", piece.UnitCost.String())

	rest, err := f.l.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.5", rest.Qty.String())
	assert.Equal(t, lifecycle.StockAccepted, rest.Status)
	assert.Nil(t, rest.SalesOrderLineID)
}

func TestReserveRefusesOverAllocation(t *testing.T) {
	f := setup(t, "5")
	item := f.accepted(t, "SMLS-4NB-40", "12", "")

	_, err := f.l.Reserve(f.line, item.ID, d("6"), Ref{Type: RefReserve})
	require.Error(t, err)
	var re *response.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 409, re.Code)

	other := f.accepted(t, "ERW-2NB-10", "3", "")
	_, err = f.l.Reserve(f.line, other.ID, d("1"), Ref{Type: RefReserve})
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 400, re.Code)
}

func TestReserveRequiresAcceptedStock(t *testing.T) {
	f := setup(t, "5")
	item, err := f.l.Receive("SMLS-4NB-40", d("5"), "MTR", "", "", d("1"), Ref{Type: RefGRN, ID: "GRN-2026-0002"})
	require.NoError(t, err)

	_, err = f.l.Reserve(f.line, item.ID, d("5"), Ref{Type: RefReserve})
	var re *response.Error
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Msg, "UNDER_INSPECTION")
}

func TestAutoReserveIsFIFO(t *testing.T) {
	f := setup(t, "10")
	newer := f.accepted(t, "SMLS-4NB-40", "6", "2026-03-02 09:00:00")
	older := f.accepted(t, "SMLS-4NB-40", "6", "2026-01-15 09:00:00")
	f.accepted(t, "ERW-2NB-10", "50", "2025-12-01 09:00:00")

	got, err := f.l.AutoReserve(f.line, Ref{Type: RefReserve, ID: "SO-2026-0001"})
	require.NoError(t, err)
	assert.Equal(t, "10", got.String())

	o, err := f.l.Get(older.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StockReserved, o.Status)
	assert.Equal(t, "6", o.Qty.String())

	n, err := f.l.Get(newer.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StockAccepted, n.Status)
	assert.Equal(t, "2", n.Qty.String())

	line, err := f.l.RefreshLine(f.line.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", line.QtyReserved.String())
	assert.True(t, line.Open().IsZero())

	again, err := f.l.AutoReserve(line, Ref{Type: RefReserve})
	require.NoError(t, err)
	assert.True(t, again.IsZero())
}

func TestAutoReserveShortStock(t *testing.T) {
	f := setup(t, "10")
	f.accepted(t, "SMLS-4NB-40", "3", "")

	got, err := f.l.AutoReserve(f.line, Ref{Type: RefReserve})
	require.NoError(t, err)
	assert.Equal(t, "3", got.String())
}

func TestUnreserveOrder(t *testing.T) {
	f := setup(t, "10")
	f.accepted(t, "SMLS-4NB-40", "4", "")
	f.accepted(t, "SMLS-4NB-40", "4", "")
	_, err := f.l.AutoReserve(f.line, Ref{Type: RefReserve})
	require.NoError(t, err)

	lines, err := f.l.UnreserveOrder("SO-2026-0001", Ref{Type: RefUnreserve})
	require.NoError(t, err)
	assert.Equal(t, []int{f.line.ID}, lines)

	line, err := f.l.RefreshLine(f.line.ID)
	require.NoError(t, err)
	assert.True(t, line.QtyReserved.IsZero())

	var linked int
	require.NoError(t, f.tx.Get(&linked, "SELECT COUNT(*) FROM inventory_stock WHERE sales_order_id IS NOT NULL"))
	assert.Zero(t, linked)
}

func TestRefreshLineCountsByStatus(t *testing.T) {
	f := setup(t, "10")
	a := f.accepted(t, "SMLS-4NB-40", "3", "")
	b := f.accepted(t, "SMLS-4NB-40", "3", "")
	c := f.accepted(t, "SMLS-4NB-40", "3", "")
	for _, item := range []*models.StockItem{a, b, c} {
		_, err := f.l.Reserve(f.line, item.ID, decimal.Zero, Ref{Type: RefReserve})
		require.NoError(t, err)
	}
	b, _ = f.l.Get(b.ID)
	require.NoError(t, f.l.Move(b, lifecycle.StockIssued, Ref{Type: RefIssue}))
	c, _ = f.l.Get(c.ID)
	require.NoError(t, f.l.Move(c, lifecycle.StockIssued, Ref{Type: RefIssue}))
	require.NoError(t, f.l.Move(c, lifecycle.StockReleased, Ref{Type: RefQCRelease}))
	require.NoError(t, f.l.Move(c, lifecycle.StockDispatched, Ref{Type: RefDispatch}))

	line, err := f.l.RefreshLine(f.line.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", line.QtyReserved.String())
	assert.Equal(t, "3", line.QtyIssued.String())
	assert.Equal(t, "3", line.QtyDispatched.String())
	assert.Equal(t, "1", line.Open().String())

	p, err := f.l.OrderProgress("SO-2026-0001")
	require.NoError(t, err)
	assert.True(t, p.AnyDispatched)
	assert.True(t, p.Busy)
	assert.Equal(t, 0, p.FullyDispatched)
}

func TestFailedReleaseDropsLink(t *testing.T) {
	f := setup(t, "5")
	item := f.accepted(t, "SMLS-4NB-40", "5", "")
	item, err := f.l.Reserve(f.line, item.ID, d("5"), Ref{Type: RefReserve})
	require.NoError(t, err)
	require.NoError(t, f.l.Move(item, lifecycle.StockIssued, Ref{Type: RefIssue}))
	require.NoError(t, f.l.Move(item, lifecycle.StockRejected, Ref{Type: RefQCRelease}))

	got, err := f.l.Get(item.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SalesOrderID)
	assert.Nil(t, got.SalesOrderLineID)
}

func TestSplitBounds(t *testing.T) {
	f := setup(t, "5")
	item := f.accepted(t, "SMLS-4NB-40", "5", "")
	_, err := f.l.Split(item, d("5"), Ref{Type: RefSplit})
	assert.Error(t, err)
	_, err = f.l.Split(item, d("0"), Ref{Type: RefSplit})
	assert.Error(t, err)
}

func TestRelocate(t *testing.T) {
	f := setup(t, "5")
	item := f.accepted(t, "SMLS-4NB-40", "5", "")
	require.NoError(t, f.l.Relocate(item, "YARD-2", Ref{Type: RefRelocate}))
	got, err := f.l.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "YARD-2", got.Location)

	_, err = f.l.Reserve(f.line, item.ID, d("5"), Ref{Type: RefReserve})
	require.NoError(t, err)
	got, _ = f.l.Get(item.ID)
	assert.Error(t, f.l.Relocate(got, "YARD-3", Ref{Type: RefRelocate}))
}
