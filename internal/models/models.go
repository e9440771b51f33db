package models

import "github.com/shopspring/decimal"

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

type User struct {
	ID          int     `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	DisplayName string  `json:"display_name" db:"display_name"`
	Role        string  `json:"role" db:"role"`
	Active      bool    `json:"active" db:"active"`
	LastLogin   *string `json:"last_login" db:"last_login"`
	CreatedAt   string  `json:"created_at" db:"created_at"`
}

type AuditEntry struct {
	ID        int    `json:"id" db:"id"`
	Username  string `json:"username" db:"username"`
	Action    string `json:"action" db:"action"`
	Module    string `json:"module" db:"module"`
	RecordID  string `json:"record_id" db:"record_id"`
	Summary   string `json:"summary" db:"summary"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

type Customer struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	TaxID            string          `json:"tax_id" db:"tax_id"`
	ContactName      string          `json:"contact_name" db:"contact_name"`
	Email            string          `json:"email" db:"email"`
	Phone            string          `json:"phone" db:"phone"`
	BillingAddress   string          `json:"billing_address" db:"billing_address"`
	ShippingAddress  string          `json:"shipping_address" db:"shipping_address"`
	PaymentTermsDays int             `json:"payment_terms_days" db:"payment_terms_days"`
	CreditLimit      decimal.Decimal `json:"credit_limit" db:"credit_limit"`
	Active           bool            `json:"active" db:"active"`
	CreatedAt        string          `json:"created_at" db:"created_at"`
	UpdatedAt        string          `json:"updated_at" db:"updated_at"`
}

type Vendor struct {
	ID               string `json:"id" db:"id"`
	Name             string `json:"name" db:"name"`
	TaxID            string `json:"tax_id" db:"tax_id"`
	ContactName      string `json:"contact_name" db:"contact_name"`
	Email            string `json:"email" db:"email"`
	Phone            string `json:"phone" db:"phone"`
	Address          string `json:"address" db:"address"`
	PaymentTermsDays int    `json:"payment_terms_days" db:"payment_terms_days"`
	Status           string `json:"status" db:"status"`
	CreatedAt        string `json:"created_at" db:"created_at"`
	UpdatedAt        string `json:"updated_at" db:"updated_at"`
}

// Product is a stocked pipe, fitting or flange identified by a user-chosen code.
type Product struct {
	ID          string `json:"id" db:"id"`
	Description string `json:"description" db:"description"`
	Material    string `json:"material" db:"material"`
	Grade       string `json:"grade" db:"grade"`
	Size        string `json:"size" db:"size"`
	Schedule    string `json:"schedule" db:"schedule"`
	UOM         string `json:"uom" db:"uom"`
	HSNCode     string `json:"hsn_code" db:"hsn_code"`
	Active      bool   `json:"active" db:"active"`
	CreatedAt   string `json:"created_at" db:"created_at"`
	UpdatedAt   string `json:"updated_at" db:"updated_at"`
}

type Enquiry struct {
	ID           string        `json:"id" db:"id"`
	CustomerID   string        `json:"customer_id" db:"customer_id"`
	Reference    string        `json:"reference" db:"reference"`
	ReceivedDate string        `json:"received_date" db:"received_date"`
	Status       string        `json:"status" db:"status"`
	LostReason   string        `json:"lost_reason" db:"lost_reason"`
	Notes        string        `json:"notes" db:"notes"`
	CreatedBy    string        `json:"created_by" db:"created_by"`
	CreatedAt    string        `json:"created_at" db:"created_at"`
	UpdatedAt    string        `json:"updated_at" db:"updated_at"`
	Lines        []EnquiryLine `json:"lines,omitempty" db:"-"`
}

type EnquiryLine struct {
	ID        int             `json:"id" db:"id"`
	EnquiryID string          `json:"enquiry_id" db:"enquiry_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Qty       decimal.Decimal `json:"qty" db:"qty"`
	UOM       string          `json:"uom" db:"uom"`
	Notes     string          `json:"notes" db:"notes"`
}

type Quotation struct {
	ID         string          `json:"id" db:"id"`
	RootID     string          `json:"root_id" db:"root_id"`
	Revision   int             `json:"revision" db:"revision"`
	ParentID   *string         `json:"parent_id" db:"parent_id"`
	EnquiryID  *string         `json:"enquiry_id" db:"enquiry_id"`
	CustomerID string          `json:"customer_id" db:"customer_id"`
	Status     string          `json:"status" db:"status"`
	ValidUntil string          `json:"valid_until" db:"valid_until"`
	TaxRate    decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Subtotal   decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Total      decimal.Decimal `json:"total" db:"total"`
	Terms      string          `json:"terms" db:"terms"`
	Notes      string          `json:"notes" db:"notes"`
	SentAt     *string         `json:"sent_at" db:"sent_at"`
	CreatedBy  string          `json:"created_by" db:"created_by"`
	CreatedAt  string          `json:"created_at" db:"created_at"`
	UpdatedAt  string          `json:"updated_at" db:"updated_at"`
	Lines      []QuotationLine `json:"lines,omitempty" db:"-"`
}

type QuotationLine struct {
	ID          int             `json:"id" db:"id"`
	QuotationID string          `json:"quotation_id" db:"quotation_id"`
	ProductID   string          `json:"product_id" db:"product_id"`
	Qty         decimal.Decimal `json:"qty" db:"qty"`
	UOM         string          `json:"uom" db:"uom"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPct decimal.Decimal `json:"discount_pct" db:"discount_pct"`
	LineTotal   decimal.Decimal `json:"line_total" db:"line_total"`
	Notes       string          `json:"notes" db:"notes"`
}

type SalesOrder struct {
	ID           string           `json:"id" db:"id"`
	CustomerID   string           `json:"customer_id" db:"customer_id"`
	QuotationID  *string          `json:"quotation_id" db:"quotation_id"`
	CustomerPO   string           `json:"customer_po" db:"customer_po"`
	OrderDate    string           `json:"order_date" db:"order_date"`
	DeliveryDate string           `json:"delivery_date" db:"delivery_date"`
	Status       string           `json:"status" db:"status"`
	TaxRate      decimal.Decimal  `json:"tax_rate" db:"tax_rate"`
	Subtotal     decimal.Decimal  `json:"subtotal" db:"subtotal"`
	TaxAmount    decimal.Decimal  `json:"tax_amount" db:"tax_amount"`
	Total        decimal.Decimal  `json:"total" db:"total"`
	Notes        string           `json:"notes" db:"notes"`
	CreatedBy    string           `json:"created_by" db:"created_by"`
	ConfirmedAt  *string          `json:"confirmed_at" db:"confirmed_at"`
	CreatedAt    string           `json:"created_at" db:"created_at"`
	UpdatedAt    string           `json:"updated_at" db:"updated_at"`
	Lines        []SalesOrderLine `json:"lines,omitempty" db:"-"`
}

type SalesOrderLine struct {
	ID            int             `json:"id" db:"id"`
	SalesOrderID  string          `json:"sales_order_id" db:"sales_order_id"`
	ProductID     string          `json:"product_id" db:"product_id"`
	Qty           decimal.Decimal `json:"qty" db:"qty"`
	UOM           string          `json:"uom" db:"uom"`
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPct   decimal.Decimal `json:"discount_pct" db:"discount_pct"`
	LineTotal     decimal.Decimal `json:"line_total" db:"line_total"`
	QtyReserved   decimal.Decimal `json:"qty_reserved" db:"qty_reserved"`
	QtyIssued     decimal.Decimal `json:"qty_issued" db:"qty_issued"`
	QtyDispatched decimal.Decimal `json:"qty_dispatched" db:"qty_dispatched"`
	QtyInvoiced   decimal.Decimal `json:"qty_invoiced" db:"qty_invoiced"`
	Notes         string          `json:"notes" db:"notes"`
}

// Open is the quantity still waiting for an allocation.
func (l SalesOrderLine) Open() decimal.Decimal {
	return l.Qty.Sub(l.QtyReserved).Sub(l.QtyIssued).Sub(l.QtyDispatched)
}

type PurchaseOrder struct {
	ID           string              `json:"id" db:"id"`
	VendorID     string              `json:"vendor_id" db:"vendor_id"`
	SalesOrderID *string             `json:"sales_order_id" db:"sales_order_id"`
	Status       string              `json:"status" db:"status"`
	OrderDate    string              `json:"order_date" db:"order_date"`
	ExpectedDate string              `json:"expected_date" db:"expected_date"`
	TaxRate      decimal.Decimal     `json:"tax_rate" db:"tax_rate"`
	Subtotal     decimal.Decimal     `json:"subtotal" db:"subtotal"`
	TaxAmount    decimal.Decimal     `json:"tax_amount" db:"tax_amount"`
	Total        decimal.Decimal     `json:"total" db:"total"`
	Notes        string              `json:"notes" db:"notes"`
	ApprovedBy   *string             `json:"approved_by" db:"approved_by"`
	ApprovedAt   *string             `json:"approved_at" db:"approved_at"`
	CreatedBy    string              `json:"created_by" db:"created_by"`
	CreatedAt    string              `json:"created_at" db:"created_at"`
	UpdatedAt    string              `json:"updated_at" db:"updated_at"`
	Lines        []PurchaseOrderLine `json:"lines,omitempty" db:"-"`
}

type PurchaseOrderLine struct {
	ID              int             `json:"id" db:"id"`
	PurchaseOrderID string          `json:"purchase_order_id" db:"purchase_order_id"`
	ProductID       string          `json:"product_id" db:"product_id"`
	Qty             decimal.Decimal `json:"qty" db:"qty"`
	UOM             string          `json:"uom" db:"uom"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal       decimal.Decimal `json:"line_total" db:"line_total"`
	QtyReceived     decimal.Decimal `json:"qty_received" db:"qty_received"`
	Notes           string          `json:"notes" db:"notes"`
}

// Remaining is the quantity not yet received.
func (l PurchaseOrderLine) Remaining() decimal.Decimal {
	return l.Qty.Sub(l.QtyReceived)
}

type GoodsReceipt struct {
	ID              string             `json:"id" db:"id"`
	PurchaseOrderID string             `json:"purchase_order_id" db:"purchase_order_id"`
	ReceivedDate    string             `json:"received_date" db:"received_date"`
	VendorChallan   string             `json:"vendor_challan" db:"vendor_challan"`
	Notes           string             `json:"notes" db:"notes"`
	ReceivedBy      string             `json:"received_by" db:"received_by"`
	CreatedAt       string             `json:"created_at" db:"created_at"`
	InspectionID    string             `json:"inspection_id,omitempty" db:"-"`
	Lines           []GoodsReceiptLine `json:"lines,omitempty" db:"-"`
}

type GoodsReceiptLine struct {
	ID             int             `json:"id" db:"id"`
	GoodsReceiptID string          `json:"goods_receipt_id" db:"goods_receipt_id"`
	POLineID       int             `json:"po_line_id" db:"po_line_id"`
	ProductID      string          `json:"product_id" db:"product_id"`
	Qty            decimal.Decimal `json:"qty" db:"qty"`
	HeatNumber     string          `json:"heat_number" db:"heat_number"`
	Location       string          `json:"location" db:"location"`
	StockID        *int64          `json:"stock_id" db:"stock_id"`
}

// StockItem is one physical lot: a pipe length, a bundle or a heat batch.
type StockItem struct {
	ID               int64           `json:"id" db:"id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	Qty              decimal.Decimal `json:"qty" db:"qty"`
	UOM              string          `json:"uom" db:"uom"`
	HeatNumber       string          `json:"heat_number" db:"heat_number"`
	Location         string          `json:"location" db:"location"`
	Status           string          `json:"status" db:"status"`
	SourceType       string          `json:"source_type" db:"source_type"`
	SourceID         string          `json:"source_id" db:"source_id"`
	ParentID         *int64          `json:"parent_id" db:"parent_id"`
	SalesOrderID     *string         `json:"sales_order_id" db:"sales_order_id"`
	SalesOrderLineID *int            `json:"sales_order_line_id" db:"sales_order_line_id"`
	UnitCost         decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	ReceivedAt       string          `json:"received_at" db:"received_at"`
	CreatedAt        string          `json:"created_at" db:"created_at"`
	UpdatedAt        string          `json:"updated_at" db:"updated_at"`
	Movements        []StockMovement `json:"movements,omitempty" db:"-"`
}

type StockMovement struct {
	ID            int             `json:"id" db:"id"`
	StockID       int64           `json:"stock_id" db:"stock_id"`
	FromStatus    string          `json:"from_status" db:"from_status"`
	ToStatus      string          `json:"to_status" db:"to_status"`
	Qty           decimal.Decimal `json:"qty" db:"qty"`
	ReferenceType string          `json:"reference_type" db:"reference_type"`
	ReferenceID   string          `json:"reference_id" db:"reference_id"`
	Username      string          `json:"username" db:"username"`
	CreatedAt     string          `json:"created_at" db:"created_at"`
}

type StockIssue struct {
	ID           string           `json:"id" db:"id"`
	SalesOrderID string           `json:"sales_order_id" db:"sales_order_id"`
	Status       string           `json:"status" db:"status"`
	Notes        string           `json:"notes" db:"notes"`
	IssuedBy     string           `json:"issued_by" db:"issued_by"`
	CancelledAt  *string          `json:"cancelled_at" db:"cancelled_at"`
	CreatedAt    string           `json:"created_at" db:"created_at"`
	Lines        []StockIssueLine `json:"lines,omitempty" db:"-"`
}

type StockIssueLine struct {
	ID           int             `json:"id" db:"id"`
	StockIssueID string          `json:"stock_issue_id" db:"stock_issue_id"`
	StockID      int64           `json:"stock_id" db:"stock_id"`
	Qty          decimal.Decimal `json:"qty" db:"qty"`
}

type Inspection struct {
	ID             string           `json:"id" db:"id"`
	GoodsReceiptID *string          `json:"goods_receipt_id" db:"goods_receipt_id"`
	Source         string           `json:"source" db:"source"`
	Status         string           `json:"status" db:"status"`
	Inspector      string           `json:"inspector" db:"inspector"`
	Notes          string           `json:"notes" db:"notes"`
	CompletedAt    *string          `json:"completed_at" db:"completed_at"`
	CreatedBy      string           `json:"created_by" db:"created_by"`
	CreatedAt      string           `json:"created_at" db:"created_at"`
	Lines          []InspectionLine `json:"lines,omitempty" db:"-"`
}

// InspectionLine is shared by inspections and QC releases.
type InspectionLine struct {
	ID       int     `json:"id" db:"id"`
	ParentID string  `json:"-" db:"parent_id"`
	StockID  int64   `json:"stock_id" db:"stock_id"`
	Result   *string `json:"result" db:"result"`
	Remarks  string  `json:"remarks" db:"remarks"`
}

type QCRelease struct {
	ID           string           `json:"id" db:"id"`
	SalesOrderID string           `json:"sales_order_id" db:"sales_order_id"`
	Status       string           `json:"status" db:"status"`
	Inspector    string           `json:"inspector" db:"inspector"`
	Notes        string           `json:"notes" db:"notes"`
	CompletedAt  *string          `json:"completed_at" db:"completed_at"`
	CreatedBy    string           `json:"created_by" db:"created_by"`
	CreatedAt    string           `json:"created_at" db:"created_at"`
	Lines        []InspectionLine `json:"lines,omitempty" db:"-"`
}

type NCR struct {
	ID               string          `json:"id" db:"id"`
	SourceType       string          `json:"source_type" db:"source_type"`
	SourceID         string          `json:"source_id" db:"source_id"`
	StockID          *int64          `json:"stock_id" db:"stock_id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	Qty              decimal.Decimal `json:"qty" db:"qty"`
	Description      string          `json:"description" db:"description"`
	Severity         string          `json:"severity" db:"severity"`
	Status           string          `json:"status" db:"status"`
	Disposition      string          `json:"disposition" db:"disposition"`
	RootCause        string          `json:"root_cause" db:"root_cause"`
	CorrectiveAction string          `json:"corrective_action" db:"corrective_action"`
	DispositionedBy  *string         `json:"dispositioned_by" db:"dispositioned_by"`
	DispositionedAt  *string         `json:"dispositioned_at" db:"dispositioned_at"`
	ClosedAt         *string         `json:"closed_at" db:"closed_at"`
	CreatedBy        string          `json:"created_by" db:"created_by"`
	CreatedAt        string          `json:"created_at" db:"created_at"`
	UpdatedAt        string          `json:"updated_at" db:"updated_at"`
}

type Dispatch struct {
	ID           string         `json:"id" db:"id"`
	SalesOrderID string         `json:"sales_order_id" db:"sales_order_id"`
	Status       string         `json:"status" db:"status"`
	Transporter  string         `json:"transporter" db:"transporter"`
	VehicleNo    string         `json:"vehicle_no" db:"vehicle_no"`
	LRNumber     string         `json:"lr_number" db:"lr_number"`
	Notes        string         `json:"notes" db:"notes"`
	DispatchedAt *string        `json:"dispatched_at" db:"dispatched_at"`
	DeliveredAt  *string        `json:"delivered_at" db:"delivered_at"`
	CreatedBy    string         `json:"created_by" db:"created_by"`
	CreatedAt    string         `json:"created_at" db:"created_at"`
	Lines        []DispatchLine `json:"lines,omitempty" db:"-"`
}

type DispatchLine struct {
	ID               int             `json:"id" db:"id"`
	DispatchID       string          `json:"dispatch_id" db:"dispatch_id"`
	StockID          int64           `json:"stock_id" db:"stock_id"`
	SalesOrderLineID int             `json:"sales_order_line_id" db:"sales_order_line_id"`
	Qty              decimal.Decimal `json:"qty" db:"qty"`
}

type Invoice struct {
	ID           string          `json:"id" db:"id"`
	DispatchID   string          `json:"dispatch_id" db:"dispatch_id"`
	SalesOrderID string          `json:"sales_order_id" db:"sales_order_id"`
	CustomerID   string          `json:"customer_id" db:"customer_id"`
	Status       string          `json:"status" db:"status"`
	IssueDate    *string         `json:"issue_date" db:"issue_date"`
	DueDate      *string         `json:"due_date" db:"due_date"`
	TaxRate      decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	Subtotal     decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Total        decimal.Decimal `json:"total" db:"total"`
	AmountPaid   decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	Notes        string          `json:"notes" db:"notes"`
	CreatedBy    string          `json:"created_by" db:"created_by"`
	CreatedAt    string          `json:"created_at" db:"created_at"`
	UpdatedAt    string          `json:"updated_at" db:"updated_at"`
	Lines        []InvoiceLine   `json:"lines,omitempty" db:"-"`
	Payments     []Payment       `json:"payments,omitempty" db:"-"`
}

// Outstanding is the unpaid balance.
func (inv Invoice) Outstanding() decimal.Decimal {
	return inv.Total.Sub(inv.AmountPaid)
}

type InvoiceLine struct {
	ID               int             `json:"id" db:"id"`
	InvoiceID        string          `json:"invoice_id" db:"invoice_id"`
	SalesOrderLineID int             `json:"sales_order_line_id" db:"sales_order_line_id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	Qty              decimal.Decimal `json:"qty" db:"qty"`
	UnitPrice        decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPct      decimal.Decimal `json:"discount_pct" db:"discount_pct"`
	LineTotal        decimal.Decimal `json:"line_total" db:"line_total"`
}

type Payment struct {
	ID          string          `json:"id" db:"id"`
	InvoiceID   string          `json:"invoice_id" db:"invoice_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PaymentDate string          `json:"payment_date" db:"payment_date"`
	Mode        string          `json:"mode" db:"mode"`
	Reference   string          `json:"reference" db:"reference"`
	Status      string          `json:"status" db:"status"`
	Notes       string          `json:"notes" db:"notes"`
	VoidedAt    *string         `json:"voided_at" db:"voided_at"`
	CreatedBy   string          `json:"created_by" db:"created_by"`
	CreatedAt   string          `json:"created_at" db:"created_at"`
}
