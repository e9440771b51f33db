package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

// ListPermissions lists the permissions of every role (or ?role=X).
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	q := "SELECT role, module, action FROM role_permissions"
	var args []any
	if role := r.URL.Query().Get("role"); role != "" {
		q += " WHERE role = ?"
		args = append(args, role)
	}
	perms := []auth.PermissionEntry{}
	if err := h.DB.SelectContext(r.Context(), &perms, q+" ORDER BY role, module, action", args...); err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, perms)
}

// ModuleInfo names a module and the actions a role can hold on it.
type ModuleInfo struct {
	Module  string   `json:"module"`
	Actions []string `json:"actions"`
}

func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules := make([]ModuleInfo, 0, len(auth.AllModules))
	for _, mod := range auth.AllModules {
		modules = append(modules, ModuleInfo{Module: mod, Actions: auth.AllActions})
	}
	response.JSON(w, map[string]any{"roles": auth.AllRoles, "modules": modules})
}

// SetPermissions replaces all permissions for a role. The admin role keeps
// admin access so nobody can lock the system out of itself.
func (h *Handler) SetPermissions(w http.ResponseWriter, r *http.Request, role string) {
	ve := &validation.ValidationErrors{}
	validation.ValidateEnum(ve, "role", role, auth.AllRoles)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	var req struct {
		Permissions []struct {
			Module string `json:"module"`
			Action string `json:"action"`
		} `json:"permissions"`
	}
	if err := common.Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}

	seen := make(map[string]bool)
	perms := []auth.PermissionEntry{}
	for i, p := range req.Permissions {
		field := "permissions[" + strconv.Itoa(i) + "]"
		validation.ValidateEnum(ve, field+".module", p.Module, auth.AllModules)
		validation.ValidateEnum(ve, field+".action", p.Action, auth.AllActions)
		key := p.Module + ":" + p.Action
		if !seen[key] {
			seen[key] = true
			perms = append(perms, auth.PermissionEntry{Role: role, Module: p.Module, Action: p.Action})
		}
	}
	if role == auth.RoleAdmin && !seen[auth.ModuleAdmin+":"+auth.PermActionEdit] {
		ve.Add("permissions", "admin role must keep admin:edit")
	}
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	if err := auth.SetRolePermissions(h.DB, h.Perms, role, perms); err != nil {
		h.Fail(w, r, err)
		return
	}
	h.Audit.Log(r, audit.ActionUpdate, auth.ModuleAdmin, role, "", fmt.Sprintf("%d permissions set", len(perms)))
	response.JSON(w, h.Perms.GetRolePermissions(role))
}

// ListAudit returns audit rows, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	f := audit.Filter{
		Module:   qs.Get("module"),
		RecordID: qs.Get("record_id"),
		Username: qs.Get("username"),
	}
	if s := qs.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.Fail(w, r, response.BadRequest("invalid limit %q", s))
			return
		}
		f.Limit = n
	}
	entries, err := h.Audit.List(r.Context(), f)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	response.JSON(w, entries)
}
