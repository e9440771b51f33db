package masters

import (
	"net/http"

	"github.com/jmoiron/sqlx"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/database"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/models"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

var vendorRefs = []reference{{"purchase_orders", "vendor_id"}}

func validateVendor(v *models.Vendor) error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", v.Name)
	validation.ValidateMaxLength(ve, "name", v.Name, 255)
	validation.ValidateEmail(ve, "email", v.Email)
	validation.ValidateEnum(ve, "status", v.Status, validation.ValidVendorStatuses)
	validation.ValidateIntRange(ve, "payment_terms_days", v.PaymentTermsDays, 0, validation.MaxPaymentTerms)
	validation.ValidateMaxLength(ve, "address", v.Address, validation.MaxStringLength)
	return ve.Err()
}

func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Like("name", r.URL.Query().Get("q"))
	q.Eq("status", r.URL.Query().Get("status"))
	common.List[models.Vendor](h.Deps, w, r, "vendors", "id", q)
}

func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request, id string) {
	v, err := common.Get[models.Vendor](r.Context(), h.DB, "vendor", "SELECT * FROM vendors WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, v)
}

func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	v := models.Vendor{Status: "active", PaymentTermsDays: h.Business.DefaultPaymentTermDays}
	if err := common.Decode(r, &v); err != nil {
		h.Fail(w, r, err)
		return
	}
	if v.Status == "" {
		v.Status = "active"
	}
	if err := validateVendor(&v); err != nil {
		h.Fail(w, r, err)
		return
	}

	err := h.Tx(r, func(tx *sqlx.Tx) error {
		id, err := h.Numbers.NextMaster(r.Context(), tx, database.PrefixVendor)
		if err != nil {
			return err
		}
		v.ID = id
		v.CreatedAt = database.Now()
		v.UpdatedAt = v.CreatedAt
		_, err = tx.NamedExecContext(r.Context(), `INSERT INTO vendors
			(id, name, tax_id, contact_name, email, phone, address, payment_terms_days, status, created_at, updated_at)
			VALUES (:id, :name, :tax_id, :contact_name, :email, :phone, :address, :payment_terms_days, :status, :created_at, :updated_at)`, &v)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleMasters, v.ID, v.Status, "created vendor "+v.Name)
	response.Created(w, v)
}

func (h *Handler) UpdateVendor(w http.ResponseWriter, r *http.Request, id string) {
	v, err := common.Get[models.Vendor](r.Context(), h.DB, "vendor", "SELECT * FROM vendors WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := common.Decode(r, v); err != nil {
		h.Fail(w, r, err)
		return
	}
	v.ID = id
	if err := validateVendor(v); err != nil {
		h.Fail(w, r, err)
		return
	}
	v.UpdatedAt = database.Now()
	_, err = h.DB.NamedExecContext(r.Context(), `UPDATE vendors SET name = :name, tax_id = :tax_id, contact_name = :contact_name,
		email = :email, phone = :phone, address = :address, payment_terms_days = :payment_terms_days,
		status = :status, updated_at = :updated_at WHERE id = :id`, v)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleMasters, id, v.Status, "updated vendor "+v.Name)
	response.JSON(w, v)
}

func (h *Handler) DeleteVendor(w http.ResponseWriter, r *http.Request, id string) {
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		if _, err := common.Get[models.Vendor](r.Context(), tx, "vendor", "SELECT * FROM vendors WHERE id = ?", id); err != nil {
			return err
		}
		if err := inUse(r.Context(), tx, "vendor", id, vendorRefs); err != nil {
			return err
		}
		_, err := tx.ExecContext(r.Context(), "DELETE FROM vendors WHERE id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionDelete, auth.ModuleMasters, id, "", "deleted vendor")
	response.JSON(w, map[string]string{"status": "deleted"})
}
