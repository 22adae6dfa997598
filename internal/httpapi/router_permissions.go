package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/setupdesk/setup-desk/internal/permissions"
)

func (r *router) handlePermissions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	user, err := r.authenticate(req)
	if err != nil {
		r.writeAuthFailure(w, err)
		return
	}

	role := strings.TrimSpace(req.URL.Query().Get("role"))
	if role == "" {
		role = user.Role
	}
	if !permissions.IsKnownRole(role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"role":             role,
		"level":            permissions.RoleLevel(role),
		"allowed_packages": r.deps.Permissions.AllowedPackages(role),
		"hierarchy":        r.deps.Permissions.HierarchySummary(),
	})
}

type grantRequest struct {
	Role    string `json:"role"`
	Package string `json:"package"`
}

func (r *router) handlePermissionGrant(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	user, err := r.authenticate(req)
	if err != nil {
		r.writeAuthFailure(w, err)
		return
	}

	var payload grantRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.Role) == "" || strings.TrimSpace(payload.Package) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role and package are required"})
		return
	}

	if err := r.deps.Permissions.GrantPackage(payload.Role, payload.Package); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	r.deps.Logger.Info("package granted",
		"granted_by", user.EmployeeID,
		"role", payload.Role,
		"package", payload.Package)

	writeJSON(w, http.StatusOK, map[string]any{
		"role":             payload.Role,
		"allowed_packages": r.deps.Permissions.AllowedPackages(payload.Role),
	})
}
