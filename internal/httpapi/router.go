package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/setupdesk/setup-desk/internal/config"
	"github.com/setupdesk/setup-desk/internal/permissions"
	"github.com/setupdesk/setup-desk/internal/store"
	"github.com/setupdesk/setup-desk/internal/workflow"
)

// RequestProcessor runs one free-text request through the installation
// workflow.
type RequestProcessor interface {
	ProcessRequest(ctx context.Context, user store.User, text string) workflow.Outcome
}

type Dependencies struct {
	Config      config.Config
	Store       *store.Store
	Workflow    RequestProcessor
	Permissions *permissions.Resolver
	Logger      *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/login", rt.handleLogin)
	mux.HandleFunc("/api/v1/requests", rt.handleRequests)
	mux.HandleFunc("/api/v1/requests/recent", rt.handleRecentRequests)
	mux.HandleFunc("/api/v1/permissions", rt.handlePermissions)
	mux.HandleFunc("/api/v1/permissions/grant", rt.handlePermissionGrant)
	mux.HandleFunc("/api/v1/chat/ws", rt.handleChatWS)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "setup-desk",
		"environment": r.deps.Config.Environment,
		"roles":       permissions.Roles(),
	})
}

func (r *router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload struct {
		EmployeeID string `json:"employee_id"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	user, err := r.deps.Store.Authenticate(req.Context(), payload.EmployeeID, payload.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, userToMap(user))
}

// authenticate resolves the request's Basic auth credentials to a user.
func (r *router) authenticate(req *http.Request) (store.User, error) {
	employeeID, password, ok := req.BasicAuth()
	if !ok {
		return store.User{}, store.ErrInvalidCredentials
	}
	return r.deps.Store.Authenticate(req.Context(), employeeID, password)
}

func (r *router) writeAuthFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrInvalidCredentials) {
		w.Header().Set("WWW-Authenticate", `Basic realm="setup-desk"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func userToMap(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"name":        user.Name,
		"employee_id": user.EmployeeID,
		"role":        user.Role,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
