package auth

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Roles.
const (
	RoleAdmin    = "admin"
	RoleSales    = "sales"
	RolePurchase = "purchase"
	RoleStores   = "stores"
	RoleQC       = "qc"
	RoleAccounts = "accounts"
	RoleViewer   = "viewer"
)

// AllRoles lists every role.
var AllRoles = []string{RoleAdmin, RoleSales, RolePurchase, RoleStores, RoleQC, RoleAccounts, RoleViewer}

// Permission modules correspond to major feature areas.
const (
	ModuleMasters        = "masters"
	ModuleEnquiries      = "enquiries"
	ModuleQuotations     = "quotations"
	ModuleSalesOrders    = "sales_orders"
	ModulePurchaseOrders = "purchase_orders"
	ModuleReceiving      = "receiving"
	ModuleInventory      = "inventory"
	ModuleQuality        = "quality"
	ModuleDispatch       = "dispatch"
	ModuleInvoices       = "invoices"
	ModulePayments       = "payments"
	ModuleAdmin          = "admin"
)

// Permission actions.
const (
	PermActionView    = "view"
	PermActionCreate  = "create"
	PermActionEdit    = "edit"
	PermActionDelete  = "delete"
	PermActionApprove = "approve"
)

// AllModules lists every module.
var AllModules = []string{
	ModuleMasters, ModuleEnquiries, ModuleQuotations, ModuleSalesOrders,
	ModulePurchaseOrders, ModuleReceiving, ModuleInventory, ModuleQuality,
	ModuleDispatch, ModuleInvoices, ModulePayments, ModuleAdmin,
}

// AllActions lists every action.
var AllActions = []string{PermActionView, PermActionCreate, PermActionEdit, PermActionDelete, PermActionApprove}

var (
	allActs  = AllActions
	viewOnly = []string{PermActionView}
	noDelete = []string{PermActionView, PermActionCreate, PermActionEdit}
	operate  = []string{PermActionView, PermActionCreate, PermActionEdit, PermActionApprove}
)

// DefaultPermissions is the seeded role → module → actions matrix.
// Admin gets everything and viewer gets view on every module except admin.
var DefaultPermissions = map[string]map[string][]string{
	RoleSales: {
		ModuleMasters:        noDelete,
		ModuleEnquiries:      allActs,
		ModuleQuotations:     allActs,
		ModuleSalesOrders:    allActs,
		ModulePurchaseOrders: viewOnly,
		ModuleInventory:      viewOnly,
		ModuleQuality:        viewOnly,
		ModuleDispatch:       viewOnly,
		ModuleInvoices:       viewOnly,
	},
	RolePurchase: {
		ModuleMasters:        noDelete,
		ModulePurchaseOrders: allActs,
		ModuleReceiving:      operate,
		ModuleSalesOrders:    viewOnly,
		ModuleInventory:      viewOnly,
		ModuleQuality:        viewOnly,
	},
	RoleStores: {
		ModuleMasters:        viewOnly,
		ModuleSalesOrders:    viewOnly,
		ModulePurchaseOrders: viewOnly,
		ModuleReceiving:      operate,
		ModuleInventory:      operate,
		ModuleQuality:        viewOnly,
		ModuleDispatch:       operate,
	},
	RoleQC: {
		ModuleMasters:     viewOnly,
		ModuleSalesOrders: viewOnly,
		ModuleReceiving:   viewOnly,
		ModuleInventory:   viewOnly,
		ModuleQuality:     operate,
	},
	RoleAccounts: {
		ModuleMasters:     viewOnly,
		ModuleSalesOrders: viewOnly,
		ModuleDispatch:    viewOnly,
		ModuleInvoices:    operate,
		ModulePayments:    operate,
	},
}

// PermissionEntry represents a single permission assignment.
type PermissionEntry struct {
	Role   string `json:"role" db:"role"`
	Module string `json:"module" db:"module"`
	Action string `json:"action" db:"action"`
}

// PermCache caches role→permissions for fast middleware lookups.
type PermCache struct {
	sync.RWMutex
	data    map[string]map[string]map[string]bool // role → module → action → true
	updated time.Time
}

// NewPermCache creates a new empty permission cache.
func NewPermCache() *PermCache {
	return &PermCache{
		data: make(map[string]map[string]map[string]bool),
	}
}

// Refresh loads all role_permissions into the in-memory cache.
func (pc *PermCache) Refresh(db *sqlx.DB) error {
	var entries []PermissionEntry
	if err := db.Select(&entries, "SELECT role, module, action FROM role_permissions"); err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}

	data := make(map[string]map[string]map[string]bool)
	for _, e := range entries {
		if data[e.Role] == nil {
			data[e.Role] = make(map[string]map[string]bool)
		}
		if data[e.Role][e.Module] == nil {
			data[e.Role][e.Module] = make(map[string]bool)
		}
		data[e.Role][e.Module][e.Action] = true
	}

	pc.Lock()
	pc.data = data
	pc.updated = time.Now()
	pc.Unlock()
	return nil
}

// HasPermission checks whether a role has permission for module+action.
func (pc *PermCache) HasPermission(role, module, action string) bool {
	pc.RLock()
	defer pc.RUnlock()
	return pc.data[role][module][action]
}

// GetRolePermissions returns all permissions for a role, sorted by module then action.
func (pc *PermCache) GetRolePermissions(role string) []PermissionEntry {
	pc.RLock()
	defer pc.RUnlock()
	perms := []PermissionEntry{}
	for mod, actions := range pc.data[role] {
		for act := range actions {
			perms = append(perms, PermissionEntry{Role: role, Module: mod, Action: act})
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Module != perms[j].Module {
			return perms[i].Module < perms[j].Module
		}
		return perms[i].Action < perms[j].Action
	})
	return perms
}

// InitPermissions seeds the default matrix when the table is empty and loads the cache.
func InitPermissions(db *sqlx.DB, pc *PermCache) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM role_permissions"); err != nil {
		return fmt.Errorf("count permissions: %w", err)
	}
	if count == 0 {
		if err := SeedDefaultPermissions(db); err != nil {
			return fmt.Errorf("seed permissions: %w", err)
		}
	}
	return pc.Refresh(db)
}

// SeedDefaultPermissions populates the default role permissions.
func SeedDefaultPermissions(db *sqlx.DB) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT OR IGNORE INTO role_permissions (role, module, action) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, mod := range AllModules {
		for _, act := range AllActions {
			if _, err := stmt.Exec(RoleAdmin, mod, act); err != nil {
				return err
			}
		}
		if mod != ModuleAdmin {
			if _, err := stmt.Exec(RoleViewer, mod, PermActionView); err != nil {
				return err
			}
		}
	}

	for role, modules := range DefaultPermissions {
		for mod, acts := range modules {
			for _, act := range acts {
				if _, err := stmt.Exec(role, mod, act); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

// SetRolePermissions replaces all permissions for a role with the given set.
func SetRolePermissions(db *sqlx.DB, pc *PermCache, role string, perms []PermissionEntry) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM role_permissions WHERE role = ?", role); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT OR IGNORE INTO role_permissions (role, module, action) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range perms {
		if _, err := stmt.Exec(role, p.Module, p.Action); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return pc.Refresh(db)
}

// transitionSegments are trailing path segments that change a document's status.
var transitionSegments = map[string]bool{
	"approve": true, "send": true, "confirm": true, "accept": true, "reject": true,
	"cancel": true, "close": true, "short-close": true, "lost": true, "reopen": true,
	"revise": true, "convert": true, "review": true, "disposition": true,
	"complete": true, "dispatch": true, "deliver": true, "issue": true, "void": true,
}

// MapAPIPathToPermission maps an API path + method to (module, action).
// Returns empty strings if no permission mapping exists (passthrough).
func MapAPIPathToPermission(apiPath, method string) (module, action string) {
	parts := strings.Split(apiPath, "/")
	if len(parts) == 0 {
		return "", ""
	}

	seg := parts[0]

	switch method {
	case "GET":
		action = PermActionView
	case "POST":
		action = PermActionCreate
	case "PUT", "PATCH":
		action = PermActionEdit
	case "DELETE":
		action = PermActionDelete
	}

	if len(parts) >= 3 && method == "POST" && transitionSegments[parts[2]] {
		action = PermActionApprove
	}

	switch seg {
	case "customers", "vendors", "products":
		module = ModuleMasters
	case "enquiries":
		module = ModuleEnquiries
		if len(parts) >= 3 && parts[2] == "quote" {
			return ModuleQuotations, PermActionCreate
		}
	case "quotations":
		module = ModuleQuotations
	case "sales-orders":
		module = ModuleSalesOrders
		if len(parts) >= 3 && (parts[2] == "reserve" || parts[2] == "unreserve") {
			return ModuleInventory, PermActionEdit
		}
	case "purchase-orders":
		module = ModulePurchaseOrders
	case "goods-receipts":
		module = ModuleReceiving
	case "inventory", "stock-issues":
		module = ModuleInventory
		if len(parts) >= 3 && parts[2] == "relocate" {
			action = PermActionEdit
		}
	case "inspections", "qc-releases", "ncrs":
		module = ModuleQuality
	case "dispatches":
		module = ModuleDispatch
	case "invoices":
		module = ModuleInvoices
	case "payments":
		module = ModulePayments
	case "users", "permissions", "audit":
		module = ModuleAdmin
	case "auth", "ws", "me", "health":
		return "", ""
	default:
		return "", ""
	}

	return module, action
}
