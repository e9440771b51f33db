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

var productRefs = []reference{
	{"enquiry_lines", "product_id"},
	{"quotation_lines", "product_id"},
	{"sales_order_lines", "product_id"},
	{"purchase_order_lines", "product_id"},
	{"inventory_stock", "product_id"},
}

func validateProduct(p *models.Product) error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "id", p.ID)
	validation.ValidateCode(ve, "id", p.ID)
	validation.RequireField(ve, "description", p.Description)
	validation.ValidateMaxLength(ve, "description", p.Description, 1000)
	validation.ValidateEnum(ve, "uom", p.UOM, validation.ValidUOMs)
	validation.ValidateMaxLength(ve, "hsn_code", p.HSNCode, 16)
	return ve.Err()
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := &common.Query{}
	q.Like("description", r.URL.Query().Get("q"))
	q.Eq("material", r.URL.Query().Get("material"))
	q.Eq("grade", r.URL.Query().Get("grade"))
	q.Eq("size", r.URL.Query().Get("size"))
	common.List[models.Product](h.Deps, w, r, "products", "id", q)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, id string) {
	p, err := common.Get[models.Product](r.Context(), h.DB, "product", "SELECT * FROM products WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, p)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	p := models.Product{UOM: "MTR", Active: true}
	if err := common.Decode(r, &p); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := validateProduct(&p); err != nil {
		h.Fail(w, r, err)
		return
	}

	err := h.Tx(r, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(r.Context(), &n, "SELECT COUNT(*) FROM products WHERE id = ?", p.ID); err != nil {
			return err
		}
		if n > 0 {
			return response.Conflict("product %s already exists", p.ID)
		}
		p.CreatedAt = database.Now()
		p.UpdatedAt = p.CreatedAt
		_, err := tx.NamedExecContext(r.Context(), `INSERT INTO products
			(id, description, material, grade, size, schedule, uom, hsn_code, active, created_at, updated_at)
			VALUES (:id, :description, :material, :grade, :size, :schedule, :uom, :hsn_code, :active, :created_at, :updated_at)`, &p)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleMasters, p.ID, "", "created product "+p.Description)
	response.Created(w, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, id string) {
	p, err := common.Get[models.Product](r.Context(), h.DB, "product", "SELECT * FROM products WHERE id = ?", id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := common.Decode(r, p); err != nil {
		h.Fail(w, r, err)
		return
	}
	p.ID = id
	if err := validateProduct(p); err != nil {
		h.Fail(w, r, err)
		return
	}
	p.UpdatedAt = database.Now()
	_, err = h.DB.NamedExecContext(r.Context(), `UPDATE products SET description = :description, material = :material,
		grade = :grade, size = :size, schedule = :schedule, uom = :uom, hsn_code = :hsn_code, active = :active,
		updated_at = :updated_at WHERE id = :id`, p)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleMasters, id, "", "updated product "+p.Description)
	response.JSON(w, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request, id string) {
	err := h.Tx(r, func(tx *sqlx.Tx) error {
		if _, err := common.Get[models.Product](r.Context(), tx, "product", "SELECT * FROM products WHERE id = ?", id); err != nil {
			return err
		}
		if err := inUse(r.Context(), tx, "product", id, productRefs); err != nil {
			return err
		}
		_, err := tx.ExecContext(r.Context(), "DELETE FROM products WHERE id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionDelete, auth.ModuleMasters, id, "", "deleted product")
	response.JSON(w, map[string]string{"status": "deleted"})
}
