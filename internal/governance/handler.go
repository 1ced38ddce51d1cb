// Package governance exposes audit logs and rate-limit status to the owner.
package governance

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/awaybot/awaybot/internal/api"
	"github.com/awaybot/awaybot/internal/governance/audit"
	"github.com/awaybot/awaybot/internal/governance/quota"
)

type Handler struct {
	quotaSvc *quota.Service
	audit    audit.Store
}

// NewHandler accepts nil for either dependency; the matching endpoint then
// answers 503.
func NewHandler(quotaSvc *quota.Service, store audit.Store) *Handler {
	return &Handler{
		quotaSvc: quotaSvc,
		audit:    store,
	}
}

// GetQuota returns the user's current rate-limit usage.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	if h.quotaSvc == nil {
		api.HandleError(w, api.NewUnavailableError("rate limiting is disabled"))
		return
	}

	status, err := h.quotaSvc.GetQuota(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		slog.Error("governance: reading quota", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// ListAuditLogs returns paginated audit logs for the user.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		api.HandleError(w, api.NewUnavailableError("audit log is disabled"))
		return
	}

	params := parseAuditParams(r)

	logs, total, err := h.audit.ListByUser(r.Context(), chi.URLParam(r, "userID"), params)
	if err != nil {
		slog.Error("governance: listing audit logs", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

const maxAuditPageSize = 100

// parseAuditParams reads the audit filters. Malformed values are ignored
// and fall back to the defaults.
func parseAuditParams(r *http.Request) audit.ListParams {
	q := r.URL.Query()
	params := audit.DefaultListParams()
	params.EventType = q.Get("event_type")
	params.Severity = q.Get("severity")

	if page, ok := positiveInt(q.Get("page")); ok {
		params.Page = page
	}
	if size, ok := positiveInt(q.Get("page_size")); ok && size <= maxAuditPageSize {
		params.PageSize = size
	}
	params.From = parseTime(q.Get("from"))
	params.To = parseTime(q.Get("to"))
	return params
}

func positiveInt(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	return n, err == nil && n > 0
}

func parseTime(raw string) *time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
