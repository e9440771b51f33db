package database

// Quantities and money are TEXT decimals. Dates are TEXT in TimeLayout or DateLayout.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'viewer' CHECK(role IN ('admin','sales','purchase','stores','qc','accounts','viewer')),
		active INTEGER NOT NULL DEFAULT 1,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until TEXT,
		last_login TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at TEXT NOT NULL,
		last_activity TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role TEXT NOT NULL,
		module TEXT NOT NULL,
		action TEXT NOT NULL,
		PRIMARY KEY (role, module, action)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS document_sequences (
		prefix TEXT NOT NULL,
		period TEXT NOT NULL,
		last_number INTEGER NOT NULL,
		PRIMARY KEY (prefix, period)
	)`,

	// masters
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		billing_address TEXT NOT NULL DEFAULT '',
		shipping_address TEXT NOT NULL DEFAULT '',
		payment_terms_days INTEGER NOT NULL DEFAULT 30,
		credit_limit TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		payment_terms_days INTEGER NOT NULL DEFAULT 30,
		status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','preferred','inactive','blocked')),
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		material TEXT NOT NULL DEFAULT '',
		grade TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT '',
		uom TEXT NOT NULL DEFAULT 'MTR' CHECK(uom IN ('MTR','NOS','KG','TON','FT')),
		hsn_code TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// sales
	`CREATE TABLE IF NOT EXISTS enquiries (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		reference TEXT NOT NULL DEFAULT '',
		received_date TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'OPEN' CHECK(status IN ('OPEN','QUOTED','WON','LOST','CANCELLED')),
		lost_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS enquiry_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		enquiry_id TEXT NOT NULL REFERENCES enquiries(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		uom TEXT NOT NULL DEFAULT 'MTR',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS quotations (
		id TEXT PRIMARY KEY,
		root_id TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 0,
		parent_id TEXT REFERENCES quotations(id),
		enquiry_id TEXT REFERENCES enquiries(id),
		customer_id TEXT NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL DEFAULT 'DRAFT' CHECK(status IN ('DRAFT','SENT','ACCEPTED','REJECTED','EXPIRED','REVISED','CONVERTED','CANCELLED')),
		valid_until TEXT NOT NULL DEFAULT '',
		tax_rate TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		tax_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		terms TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		sent_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS quotation_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quotation_id TEXT NOT NULL REFERENCES quotations(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		uom TEXT NOT NULL DEFAULT 'MTR',
		unit_price TEXT NOT NULL DEFAULT '0',
		discount_pct TEXT NOT NULL DEFAULT '0',
		line_total TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sales_orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		quotation_id TEXT REFERENCES quotations(id),
		customer_po TEXT NOT NULL DEFAULT '',
		order_date TEXT NOT NULL DEFAULT '',
		delivery_date TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'DRAFT' CHECK(status IN ('DRAFT','CONFIRMED','PARTIALLY_DISPATCHED','DISPATCHED','SHORT_CLOSED','CLOSED','CANCELLED')),
		tax_rate TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		tax_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		confirmed_at TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sales_order_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sales_order_id TEXT NOT NULL REFERENCES sales_orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		uom TEXT NOT NULL DEFAULT 'MTR',
		unit_price TEXT NOT NULL DEFAULT '0',
		discount_pct TEXT NOT NULL DEFAULT '0',
		line_total TEXT NOT NULL DEFAULT '0',
		qty_reserved TEXT NOT NULL DEFAULT '0',
		qty_issued TEXT NOT NULL DEFAULT '0',
		qty_dispatched TEXT NOT NULL DEFAULT '0',
		qty_invoiced TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT ''
	)`,

	// procurement
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		sales_order_id TEXT REFERENCES sales_orders(id),
		status TEXT NOT NULL DEFAULT 'DRAFT' CHECK(status IN ('DRAFT','APPROVED','SENT','PARTIALLY_RECEIVED','RECEIVED','SHORT_CLOSED','CLOSED','CANCELLED')),
		order_date TEXT NOT NULL DEFAULT '',
		expected_date TEXT NOT NULL DEFAULT '',
		tax_rate TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		tax_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		approved_by TEXT,
		approved_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_order_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_order_id TEXT NOT NULL REFERENCES purchase_orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		uom TEXT NOT NULL DEFAULT 'MTR',
		unit_price TEXT NOT NULL DEFAULT '0',
		line_total TEXT NOT NULL DEFAULT '0',
		qty_received TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS goods_receipts (
		id TEXT PRIMARY KEY,
		purchase_order_id TEXT NOT NULL REFERENCES purchase_orders(id),
		received_date TEXT NOT NULL DEFAULT '',
		vendor_challan TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		received_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS goods_receipt_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		goods_receipt_id TEXT NOT NULL REFERENCES goods_receipts(id) ON DELETE CASCADE,
		po_line_id INTEGER NOT NULL REFERENCES purchase_order_lines(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		heat_number TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		stock_id INTEGER
	)`,

	// inventory
	`CREATE TABLE IF NOT EXISTS inventory_stock (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		uom TEXT NOT NULL DEFAULT 'MTR',
		heat_number TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'UNDER_INSPECTION' CHECK(status IN ('UNDER_INSPECTION','ON_HOLD','ACCEPTED','RESERVED','ISSUED','RELEASED','DISPATCHED','REJECTED','RETURNED','SCRAPPED')),
		source_type TEXT NOT NULL DEFAULT 'GRN' CHECK(source_type IN ('GRN','SPLIT','OPENING')),
		source_id TEXT NOT NULL DEFAULT '',
		parent_id INTEGER REFERENCES inventory_stock(id),
		sales_order_id TEXT REFERENCES sales_orders(id),
		sales_order_line_id INTEGER REFERENCES sales_order_lines(id),
		unit_cost TEXT NOT NULL DEFAULT '0',
		received_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_id INTEGER NOT NULL REFERENCES inventory_stock(id),
		from_status TEXT NOT NULL DEFAULT '',
		to_status TEXT NOT NULL,
		qty TEXT NOT NULL DEFAULT '0',
		reference_type TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stock_issues (
		id TEXT PRIMARY KEY,
		sales_order_id TEXT NOT NULL REFERENCES sales_orders(id),
		status TEXT NOT NULL DEFAULT 'ISSUED' CHECK(status IN ('ISSUED','CANCELLED')),
		notes TEXT NOT NULL DEFAULT '',
		issued_by TEXT NOT NULL DEFAULT '',
		cancelled_at TEXT,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stock_issue_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_issue_id TEXT NOT NULL REFERENCES stock_issues(id) ON DELETE CASCADE,
		stock_id INTEGER NOT NULL REFERENCES inventory_stock(id),
		qty TEXT NOT NULL DEFAULT '0'
	)`,

	// quality
	`CREATE TABLE IF NOT EXISTS inspections (
		id TEXT PRIMARY KEY,
		goods_receipt_id TEXT REFERENCES goods_receipts(id),
		source TEXT NOT NULL DEFAULT 'MANUAL' CHECK(source IN ('GRN','MANUAL')),
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK(status IN ('PENDING','COMPLETED','CANCELLED')),
		inspector TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		completed_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS inspection_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		inspection_id TEXT NOT NULL REFERENCES inspections(id) ON DELETE CASCADE,
		stock_id INTEGER NOT NULL REFERENCES inventory_stock(id),
		result TEXT CHECK(result IS NULL OR result IN ('PASS','FAIL','HOLD')),
		remarks TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS qc_releases (
		id TEXT PRIMARY KEY,
		sales_order_id TEXT NOT NULL REFERENCES sales_orders(id),
		status TEXT NOT NULL DEFAULT 'PENDING' CHECK(status IN ('PENDING','COMPLETED','CANCELLED')),
		inspector TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		completed_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS qc_release_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		qc_release_id TEXT NOT NULL REFERENCES qc_releases(id) ON DELETE CASCADE,
		stock_id INTEGER NOT NULL REFERENCES inventory_stock(id),
		result TEXT CHECK(result IS NULL OR result IN ('PASS','FAIL')),
		remarks TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS ncrs (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL DEFAULT 'MANUAL' CHECK(source_type IN ('INSPECTION','QC_RELEASE','MANUAL')),
		source_id TEXT NOT NULL DEFAULT '',
		stock_id INTEGER REFERENCES inventory_stock(id),
		product_id TEXT NOT NULL DEFAULT '',
		qty TEXT NOT NULL DEFAULT '0',
		description TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL DEFAULT 'minor' CHECK(severity IN ('minor','major','critical')),
		status TEXT NOT NULL DEFAULT 'OPEN' CHECK(status IN ('OPEN','UNDER_REVIEW','DISPOSITIONED','CLOSED')),
		disposition TEXT NOT NULL DEFAULT '',
		root_cause TEXT NOT NULL DEFAULT '',
		corrective_action TEXT NOT NULL DEFAULT '',
		dispositioned_by TEXT,
		dispositioned_at TEXT,
		closed_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// dispatch and finance
	`CREATE TABLE IF NOT EXISTS dispatches (
		id TEXT PRIMARY KEY,
		sales_order_id TEXT NOT NULL REFERENCES sales_orders(id),
		status TEXT NOT NULL DEFAULT 'DRAFT' CHECK(status IN ('DRAFT','DISPATCHED','DELIVERED','CANCELLED')),
		transporter TEXT NOT NULL DEFAULT '',
		vehicle_no TEXT NOT NULL DEFAULT '',
		lr_number TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		dispatched_at TEXT,
		delivered_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS dispatch_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dispatch_id TEXT NOT NULL REFERENCES dispatches(id) ON DELETE CASCADE,
		stock_id INTEGER NOT NULL REFERENCES inventory_stock(id),
		sales_order_line_id INTEGER NOT NULL REFERENCES sales_order_lines(id),
		qty TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		dispatch_id TEXT NOT NULL REFERENCES dispatches(id),
		sales_order_id TEXT NOT NULL REFERENCES sales_orders(id),
		customer_id TEXT NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL DEFAULT 'DRAFT' CHECK(status IN ('DRAFT','ISSUED','PARTIALLY_PAID','PAID','OVERDUE','CANCELLED')),
		issue_date TEXT,
		due_date TEXT,
		tax_rate TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		tax_amount TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		amount_paid TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		sales_order_line_id INTEGER NOT NULL REFERENCES sales_order_lines(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		qty TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		discount_pct TEXT NOT NULL DEFAULT '0',
		line_total TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		amount TEXT NOT NULL DEFAULT '0',
		payment_date TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT 'BANK_TRANSFER' CHECK(mode IN ('BANK_TRANSFER','CHEQUE','CASH','CARD','OTHER')),
		reference TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'RECORDED' CHECK(status IN ('RECORDED','VOIDED')),
		notes TEXT NOT NULL DEFAULT '',
		voided_at TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_module ON audit_log(module, record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_enquiries_customer ON enquiries(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_quotations_root ON quotations(root_id)`,
	`CREATE INDEX IF NOT EXISTS idx_so_customer ON sales_orders(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_so_lines_order ON sales_order_lines(sales_order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_po_lines_order ON purchase_order_lines(purchase_order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_product_status ON inventory_stock(product_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_so_line ON inventory_stock(sales_order_line_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_heat ON inventory_stock(heat_number)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_stock ON stock_movements(stock_id)`,
	`CREATE INDEX IF NOT EXISTS idx_dispatch_lines_stock ON dispatch_lines(stock_id)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_dispatch ON invoices(dispatch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id)`,
}
