package validation

import "pipeerp/internal/lifecycle"

// Enum values - these MUST match DB CHECK constraints in the database package.
var (
	ValidRoles              = []string{"admin", "sales", "purchase", "stores", "qc", "accounts", "viewer"}
	ValidVendorStatuses     = []string{"active", "preferred", "inactive", "blocked"}
	ValidUOMs               = []string{"MTR", "NOS", "KG", "TON", "FT"}
	ValidNCRSeverities      = []string{"minor", "major", "critical"}
	ValidPaymentModes       = []string{"BANK_TRANSFER", "CHEQUE", "CASH", "CARD", "OTHER"}
	ValidInspectionResults  = []string{lifecycle.ResultPass, lifecycle.ResultFail, lifecycle.ResultHold}
	ValidQCResults          = []string{lifecycle.ResultPass, lifecycle.ResultFail}
	ValidDispositions       = []string{lifecycle.DispositionUseAsIs, lifecycle.DispositionRework, lifecycle.DispositionReturnToVendor, lifecycle.DispositionScrap}
	ValidEnquiryStatuses    = lifecycle.Enquiry.Statuses()
	ValidQuotationStatuses  = lifecycle.Quotation.Statuses()
	ValidSalesOrderStatuses = lifecycle.SalesOrder.Statuses()
	ValidPOStatuses         = lifecycle.PurchaseOrder.Statuses()
	ValidStockStatuses      = lifecycle.Stock.Statuses()
	ValidNCRStatuses        = lifecycle.NCR.Statuses()
	ValidDispatchStatuses   = lifecycle.Dispatch.Statuses()
	ValidInvoiceStatuses    = lifecycle.Invoice.Statuses()
)
