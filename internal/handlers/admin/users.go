package admin

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

const userColumns = "id, username, display_name, role, active, last_login, created_at"

func loadUser(ctx context.Context, q sqlx.QueryerContext, id int) (*UserRecord, error) {
	return common.Get[UserRecord](ctx, q, "user", "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func userID(idStr string) (int, error) {
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, response.BadRequest("invalid user id %q", idStr)
	}
	return id, nil
}

func validRole(ve *validation.ValidationErrors, role string) {
	validation.ValidateEnum(ve, "role", role, auth.AllRoles)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users := []UserRecord{}
	q := "SELECT " + userColumns + " FROM users"
	var args []any
	if role := r.URL.Query().Get("role"); role != "" {
		q += " WHERE role = ?"
		args = append(args, role)
	}
	if err := h.DB.SelectContext(r.Context(), &users, q+" ORDER BY id", args...); err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := userID(idStr)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	u, err := loadUser(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, u)
}

// CreateUser adds an active user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if err := common.Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.ValidateMaxLength(ve, "username", req.Username, 100)
	validation.ValidateMaxLength(ve, "display_name", req.DisplayName, 255)
	validation.RequireField(ve, "password", req.Password)
	if req.Password != "" {
		if err := auth.ValidatePasswordStrength(req.Password); err != nil {
			ve.Add("password", err.Error())
		}
	}
	validRole(ve, req.Role)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var exists int
	if err := h.DB.GetContext(r.Context(), &exists, "SELECT COUNT(*) FROM users WHERE username = ?", req.Username); err != nil {
		h.Fail(w, r, err)
		return
	}
	if exists > 0 {
		h.Fail(w, r, response.Conflict("username %s is taken", req.Username))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	id, err := auth.CreateUser(h.DB, req.Username, req.DisplayName, req.Password, req.Role)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	u, err := loadUser(r.Context(), h.DB, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionCreate, auth.ModuleAdmin, u.Username, u.Role, "created user "+u.Username)
	response.Created(w, u)
}

// UpdateUser changes display name, role or active flag. Admins cannot
// deactivate or demote themselves.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := userID(idStr)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var u *UserRecord
	err = h.Tx(r, func(tx *sqlx.Tx) error {
		cur, err := loadUser(r.Context(), tx, id)
		if err != nil {
			return err
		}
		req := struct {
			DisplayName string `json:"display_name"`
			Role        string `json:"role"`
			Active      *bool  `json:"active"`
		}{DisplayName: cur.DisplayName, Role: cur.Role}
		if err := common.Decode(r, &req); err != nil {
			return err
		}
		active := cur.Active
		if req.Active != nil {
			active = *req.Active
		}
		ve := &validation.ValidationErrors{}
		validation.ValidateMaxLength(ve, "display_name", req.DisplayName, 255)
		validRole(ve, req.Role)
		if err := ve.Err(); err != nil {
			return err
		}
		if me := auth.UserFromContext(r.Context()); me != nil && me.ID == id {
			if !active {
				return response.BadRequest("you cannot deactivate yourself")
			}
			if req.Role != cur.Role {
				return response.BadRequest("you cannot change your own role")
			}
		}
		_, err = tx.ExecContext(r.Context(), "UPDATE users SET display_name = ?, role = ?, active = ? WHERE id = ?",
			req.DisplayName, req.Role, active, id)
		if err != nil {
			return err
		}
		if !active {
			if _, err := tx.ExecContext(r.Context(), "DELETE FROM sessions WHERE user_id = ?", id); err != nil {
				return err
			}
		}
		u, err = loadUser(r.Context(), tx, id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleAdmin, u.Username, u.Role, fmt.Sprintf("role %s, active %t", u.Role, u.Active))
	response.JSON(w, u)
}

// ResetPassword sets a new password and ends the user's sessions.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := userID(idStr)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := common.Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		ve := &validation.ValidationErrors{}
		ve.Add("password", err.Error())
		h.Fail(w, r, ve.Err())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	var u *UserRecord
	err = h.Tx(r, func(tx *sqlx.Tx) error {
		var err error
		if u, err = loadUser(r.Context(), tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(r.Context(), "UPDATE users SET password_hash = ?, failed_login_attempts = 0, locked_until = NULL WHERE id = ?", hash, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), "DELETE FROM sessions WHERE user_id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleAdmin, u.Username, u.Role, "password reset")
	response.JSON(w, map[string]string{"status": "password reset"})
}

// DeleteUser removes a user and their sessions.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := userID(idStr)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if me := auth.UserFromContext(r.Context()); me != nil && me.ID == id {
		h.Fail(w, r, response.BadRequest("you cannot delete yourself"))
		return
	}
	var u *UserRecord
	err = h.Tx(r, func(tx *sqlx.Tx) error {
		var err error
		if u, err = loadUser(r.Context(), tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(r.Context(), "DELETE FROM sessions WHERE user_id = ?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(r.Context(), "DELETE FROM users WHERE id = ?", id)
		return err
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionDelete, auth.ModuleAdmin, u.Username, "", "deleted user "+u.Username)
	response.JSON(w, map[string]string{"status": "deleted"})
}
