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

var customerRefs = []reference{
	{"enquiries", "customer_id"},
	{"quotations", "customer_id"},
	{"sales_orders", "customer_id"},
	{"invoices", "customer_id"},
}

func validateCustomer(c *models.Customer) error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "name", c.Name)
	validation.ValidateMaxLength(ve, "name", c.Name, 255)
	validation.ValidateEmail(ve, "email", c.Email)
	validation.ValidateIntRange(ve, "payment_terms_days", c.PaymentTermsDays, 0, validation.MaxPaymentTerms)
	validation.ValidatePrice(ve, "credit_limit", c.CreditLimit)
	validation.ValidateMaxLength(ve, "billing_address", c.BillingAddress, validation.MaxStringLength)
	validation.ValidateMaxLength(ve, "shipping_address", c.ShippingAddress, validation.MaxStringLength)
	return ve.Err()
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Like("name", r.URL.Query().Get("q"))
	switch r.URL.Query().Get("active") {
	case "true":
		q.Eq("active", "1")
	case "false":
		q.Eq("active", "0")
	}
	common.List[models.Customer](h.Deps, w, r, "customers", "id", q)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request, id string) {
	c, err := common.Get[models.Customer](r.Context(), h.DB, "customer", "SELECT * FROM customers WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, c)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	c := models.Customer{Active: true, PaymentTermsDays: h.Business.DefaultPaymentTermDays}
	if err := common.Decode(r, &c); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := validateCustomer(&c); err != nil {
		h.Fail(w, r, err)
		return
	}

	err := h.Tx(r, func(tx *sqlx.Tx) error {
		id, err := h.Numbers.NextMaster(r.Context(), tx, database.PrefixCustomer)
		if err != nil {
			return err
		}
		c.ID = id
		c.CreatedAt = database.Now()
		c.UpdatedAt = c.CreatedAt
		_, err = tx.NamedExecContext(r.Context(), `INSERT INTO customers
			(id, name, tax_id, contact_name, email, phone, billing_address, shipping_address, payment_terms_days, credit_limit, active, created_at, updated_at)
			VALUES (:id, :name, :tax_id, :contact_name, :email, :phone, :billing_address, :shipping_address, :payment_terms_days, :credit_limit, :active, :created_at, :updated_at)`, &c)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleMasters, c.ID, "", "created customer "+c.Name)
	response.Created(w, c)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request, id string) {
	c, err := common.Get[models.Customer](r.Context(), h.DB, "customer", "SELECT * FROM customers WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := common.Decode(r, c); err != nil {
		h.Fail(w, r, err)
		return
	}
	c.ID = id
	if err := validateCustomer(c); err != nil {
		h.Fail(w, r, err)
		return
	}
	c.UpdatedAt = database.Now()
	_, err = h.DB.NamedExecContext(r.Context(), `UPDATE customers SET name = :name, tax_id = :tax_id, contact_name = :contact_name,
		email = :email, phone = :phone, billing_address = :billing_address, shipping_address = :shipping_address,
		payment_terms_days = :payment_terms_days, credit_limit = :credit_limit, active = :active, updated_at = :updated_at
		WHERE id = :id`, c)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleMasters, id, "", "updated customer "+c.Name)
	response.JSON(w, c)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request, id string) {
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		if _, err := common.Get[models.Customer](r.Context(), tx, "customer", "SELECT * FROM customers WHERE id = ?", id); err != nil {
			return err
		}
		if err := inUse(r.Context(), tx, "customer", id, customerRefs); err != nil {
			return err
		}
		_, err := tx.ExecContext(r.Context(), "DELETE FROM customers WHERE id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionDelete, auth.ModuleMasters, id, "", "deleted customer")
	response.JSON(w, map[string]string{"status": "deleted"})
}
