package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Document number prefixes.
const (
	PrefixEnquiry       = "ENQ"
	PrefixQuotation     = "QTN"
	PrefixSalesOrder    = "SO"
	PrefixPurchaseOrder = "PO"
	PrefixGoodsReceipt  = "GRN"
	PrefixInspection    = "INS"
	PrefixNCR           = "NCR"
	PrefixQCRelease     = "QCR"
	PrefixStockIssue    = "ISS"
	PrefixDispatch      = "DC"
	PrefixInvoice       = "INV"
	PrefixPayment       = "PAY"
	PrefixCustomer      = "CUS"
	PrefixVendor        = "VEN"
)

// masterPeriod is the period key used for numbers that never reset.
const masterPeriod = "-"

// Numberer hands out gap-free document numbers from document_sequences.
type Numberer struct {
	// FiscalStartMonth is 1 for calendar-year numbering, 4 for April-March, etc.
	FiscalStartMonth time.Month
	Digits           int
	Now              func() time.Time
}

// NewNumberer returns a Numberer using the wall clock.
func NewNumberer(fiscalStartMonth, digits int) *Numberer {
	if fiscalStartMonth < 1 || fiscalStartMonth > 12 {
		fiscalStartMonth = 1
	}
	if digits <= 0 {
		digits = 4
	}
	return &Numberer{FiscalStartMonth: time.Month(fiscalStartMonth), Digits: digits, Now: time.Now}
}

// Period returns the numbering period for t: "2026" for calendar years,
// "2026-27" when the fiscal year starts later than January.
func (n *Numberer) Period(t time.Time) string {
	if n.FiscalStartMonth <= time.January {
		return fmt.Sprintf("%d", t.Year())
	}
	start := t.Year()
	if t.Month() < n.FiscalStartMonth {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// Next returns the next document number for prefix, e.g. SO-2026-0007.
// It must run inside the transaction that inserts the document.
func (n *Numberer) Next(ctx context.Context, tx sqlx.QueryerContext, prefix string) (string, error) {
	period := n.Period(n.now())
	num, err := bump(ctx, tx, prefix, period)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, period, n.Digits, num), nil
}

// NextMaster returns the next master record number, e.g. CUS-0042.
func (n *Numberer) NextMaster(ctx context.Context, tx sqlx.QueryerContext, prefix string) (string, error) {
	num, err := bump(ctx, tx, prefix, masterPeriod)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%0*d", prefix, n.Digits, num), nil
}

func (n *Numberer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

func bump(ctx context.Context, q sqlx.QueryerContext, prefix, period string) (int, error) {
	var num int
	err := sqlx.GetContext(ctx, q, &num, `
		INSERT INTO document_sequences (prefix, period, last_number) VALUES (?, ?, 1)
		ON CONFLICT(prefix, period) DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number`, prefix, period)
	if err != nil {
		return 0, fmt.Errorf("next %s number: %w", prefix, err)
	}
	return num, nil
}
