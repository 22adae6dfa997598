package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/setupdesk/setup-desk/internal/deskerr"
	"github.com/setupdesk/setup-desk/internal/store"
)

type installRequest struct {
	Text string `json:"text"`
}

func (r *router) handleRequests(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	user, err := r.authenticate(req)
	if err != nil {
		r.writeAuthFailure(w, err)
		return
	}

	var payload installRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	outcome := r.deps.Workflow.ProcessRequest(req.Context(), user, payload.Text)
	status := http.StatusOK
	switch {
	case errors.Is(outcome.Err, deskerr.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(outcome.Err, deskerr.ErrValidation):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcome)
}

func (r *router) handleRecentRequests(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	user, err := r.authenticate(req)
	if err != nil {
		r.writeAuthFailure(w, err)
		return
	}

	limit := 20
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr == nil && parsed > 0 {
			limit = parsed
		}
	}

	requests, err := r.deps.Store.RecentRequests(req.Context(), user.ID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	items := make([]map[string]any, 0, len(requests))
	for _, item := range requests {
		items = append(items, requestToMap(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func requestToMap(item store.Request) map[string]any {
	payload := map[string]any{
		"id":                item.ID,
		"package_name":      item.PackageName,
		"version":           item.Version,
		"status":            item.Status,
		"request_time_unix": item.RequestTime.Unix(),
		"error_message":     item.ErrorMessage,
	}
	if !item.CompleteTime.IsZero() {
		payload["complete_time_unix"] = item.CompleteTime.Unix()
	}
	return payload
}
