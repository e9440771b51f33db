package lifecycle

// Enquiry statuses.
const (
	EnquiryOpen      = "OPEN"
	EnquiryQuoted    = "QUOTED"
	EnquiryWon       = "WON"
	EnquiryLost      = "LOST"
	EnquiryCancelled = "CANCELLED"
)

// Quotation statuses.
const (
	QuotationDraft     = "DRAFT"
	QuotationSent      = "SENT"
	QuotationAccepted  = "ACCEPTED"
	QuotationRejected  = "REJECTED"
	QuotationExpired   = "EXPIRED"
	QuotationRevised   = "REVISED"
	QuotationConverted = "CONVERTED"
	QuotationCancelled = "CANCELLED"
)

// Sales order statuses.
const (
	SODraft               = "DRAFT"
	SOConfirmed           = "CONFIRMED"
	SOPartiallyDispatched = "PARTIALLY_DISPATCHED"
	SODispatched          = "DISPATCHED"
	SOShortClosed         = "SHORT_CLOSED"
	SOClosed              = "CLOSED"
	SOCancelled           = "CANCELLED"
)

// Purchase order statuses.
const (
	PODraft             = "DRAFT"
	POApproved          = "APPROVED"
	POSent              = "SENT"
	POPartiallyReceived = "PARTIALLY_RECEIVED"
	POReceived          = "RECEIVED"
	POShortClosed       = "SHORT_CLOSED"
	POClosed            = "CLOSED"
	POCancelled         = "CANCELLED"
)

// Stock statuses.
const (
	StockUnderInspection = "UNDER_INSPECTION"
	StockOnHold          = "ON_HOLD"
	StockAccepted        = "ACCEPTED"
	StockReserved        = "RESERVED"
	StockIssued          = "ISSUED"
	StockReleased        = "RELEASED"
	StockDispatched      = "DISPATCHED"
	StockRejected        = "REJECTED"
	StockReturned        = "RETURNED"
	StockScrapped        = "SCRAPPED"
)

// Stock issue statuses.
const (
	IssueIssued    = "ISSUED"
	IssueCancelled = "CANCELLED"
)

// Inspection and QC release statuses.
const (
	CheckPending   = "PENDING"
	CheckCompleted = "COMPLETED"
	CheckCancelled = "CANCELLED"
)

// NCR statuses.
const (
	NCROpen          = "OPEN"
	NCRUnderReview   = "UNDER_REVIEW"
	NCRDispositioned = "DISPOSITIONED"
	NCRClosed        = "CLOSED"
)

// Dispatch statuses.
const (
	DispatchDraft      = "DRAFT"
	DispatchDispatched = "DISPATCHED"
	DispatchDelivered  = "DELIVERED"
	DispatchCancelled  = "CANCELLED"
)

// Invoice statuses.
const (
	InvoiceDraft         = "DRAFT"
	InvoiceIssued        = "ISSUED"
	InvoicePartiallyPaid = "PARTIALLY_PAID"
	InvoicePaid          = "PAID"
	InvoiceOverdue       = "OVERDUE"
	InvoiceCancelled     = "CANCELLED"
)

// Payment statuses.
const (
	PaymentRecorded = "RECORDED"
	PaymentVoided   = "VOIDED"
)

var Enquiry = Machine{Name: "enquiry", Edges: map[string][]string{
	EnquiryOpen:   {EnquiryQuoted, EnquiryCancelled, EnquiryLost},
	EnquiryQuoted: {EnquiryWon, EnquiryLost, EnquiryOpen},
}}

var Quotation = Machine{Name: "quotation", Edges: map[string][]string{
	QuotationDraft:    {QuotationSent, QuotationCancelled},
	QuotationSent:     {QuotationAccepted, QuotationRejected, QuotationExpired, QuotationRevised},
	QuotationRejected: {QuotationRevised},
	QuotationExpired:  {QuotationRevised},
	QuotationAccepted: {QuotationConverted},
}}

var SalesOrder = Machine{Name: "sales order", Edges: map[string][]string{
	SODraft:               {SOConfirmed, SOCancelled},
	SOConfirmed:           {SOPartiallyDispatched, SODispatched, SOCancelled, SOShortClosed},
	SOPartiallyDispatched: {SODispatched, SOShortClosed},
	SODispatched:          {SOClosed},
}}

var PurchaseOrder = Machine{Name: "purchase order", Edges: map[string][]string{
	PODraft:             {POApproved, POCancelled},
	POApproved:          {POSent, POCancelled},
	POSent:              {POPartiallyReceived, POReceived, POCancelled},
	POPartiallyReceived: {POReceived, POShortClosed},
	POReceived:          {POClosed},
}}

var Stock = Machine{Name: "stock", Edges: map[string][]string{
	StockUnderInspection: {StockAccepted, StockRejected, StockOnHold},
	StockOnHold:          {StockAccepted, StockRejected},
	StockAccepted:        {StockReserved},
	StockReserved:        {StockAccepted, StockIssued},
	StockIssued:          {StockReserved, StockReleased, StockRejected},
	StockReleased:        {StockDispatched},
	StockRejected:        {StockAccepted, StockUnderInspection, StockReturned, StockScrapped},
}}

var StockIssue = Machine{Name: "stock issue", Edges: map[string][]string{
	IssueIssued: {IssueCancelled},
}}

var Inspection = Machine{Name: "inspection", Edges: map[string][]string{
	CheckPending: {CheckCompleted, CheckCancelled},
}}

var QCRelease = Machine{Name: "qc release", Edges: map[string][]string{
	CheckPending: {CheckCompleted, CheckCancelled},
}}

var NCR = Machine{Name: "ncr", Edges: map[string][]string{
	NCROpen:          {NCRUnderReview, NCRDispositioned},
	NCRUnderReview:   {NCRDispositioned},
	NCRDispositioned: {NCRClosed},
}}

var Dispatch = Machine{Name: "dispatch", Edges: map[string][]string{
	DispatchDraft:      {DispatchDispatched, DispatchCancelled},
	DispatchDispatched: {DispatchDelivered},
}}

var Invoice = Machine{Name: "invoice", Edges: map[string][]string{
	InvoiceDraft:         {InvoiceIssued, InvoiceCancelled},
	InvoiceIssued:        {InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoicePartiallyPaid: {InvoicePaid, InvoiceOverdue, InvoiceIssued},
	InvoiceOverdue:       {InvoicePartiallyPaid, InvoicePaid},
	InvoicePaid:          {InvoicePartiallyPaid, InvoiceIssued},
}}

var Payment = Machine{Name: "payment", Edges: map[string][]string{
	PaymentRecorded: {PaymentVoided},
}}

// NCR dispositions and the stock status each one leads to.
const (
	DispositionUseAsIs        = "USE_AS_IS"
	DispositionRework         = "REWORK"
	DispositionReturnToVendor = "RETURN_TO_VENDOR"
	DispositionScrap          = "SCRAP"
)

var DispositionStock = map[string]string{
	DispositionUseAsIs:        StockAccepted,
	DispositionRework:         StockUnderInspection,
	DispositionReturnToVendor: StockReturned,
	DispositionScrap:          StockScrapped,
}

// Check results.
const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
	ResultHold = "HOLD"
)

// Allocated lists stock statuses that count against a sales order line.
var Allocated = []string{StockReserved, StockIssued, StockReleased, StockDispatched}
