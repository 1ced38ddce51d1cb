package memory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/awaybot/awaybot/internal/api"
)

// Handler handles the owner-facing memory endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type ForgetRequest struct {
	Count int `json:"count" validate:"gte=0,lte=1000"`
}

type ModeRequest struct {
	Mode string `json:"mode" validate:"required"`
}

type ForgetResponse struct {
	Deleted int `json:"deleted"`
}

type ModeResponse struct {
	Mode      string   `json:"mode"`
	Available []string `json:"available"`
}

// Dashboard returns fact, history and long-term statistics.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.svc.Dashboard(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		slog.Error("loading memory dashboard", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, dash)
}

// Search runs a long-term similarity search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		api.HandleError(w, api.NewBadRequestError("query parameter q is required"))
		return
	}
	topK := 0
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 50 {
			api.HandleError(w, api.NewBadRequestError("top_k must be between 1 and 50"))
			return
		}
		topK = n
	}

	results, err := h.svc.Search(r.Context(), chi.URLParam(r, "userID"), q, topK)
	if err != nil {
		slog.Error("searching memories", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, results)
}

// History returns recent turns, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	turns, err := h.svc.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		slog.Error("listing history", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, turns)
}

// Forget deletes the most recent turns. An empty body forgets the default
// count.
func (h *Handler) Forget(w http.ResponseWriter, r *http.Request) {
	var req ForgetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	deleted, err := h.svc.Forget(r.Context(), chi.URLParam(r, "userID"), req.Count)
	if err != nil {
		slog.Error("forgetting turns", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, ForgetResponse{Deleted: deleted})
}

// ForgetAll clears short-term history.
func (h *Handler) ForgetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ForgetAll(r.Context(), chi.URLParam(r, "userID")); err != nil {
		slog.Error("clearing history", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "short-term memory cleared")
}

// Wipe deletes all data of the user.
func (h *Handler) Wipe(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Wipe(r.Context(), chi.URLParam(r, "userID")); err != nil {
		slog.Error("wiping user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "all data permanently deleted")
}

// Export returns everything stored about the user.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	exp, err := h.svc.Export(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		slog.Error("exporting user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="export_`+exp.UserID+`.json"`)
	api.JSON(w, http.StatusOK, exp)
}

// GetMode returns the current reply mode.
func (h *Handler) GetMode(w http.ResponseWriter, r *http.Request) {
	mode, err := h.svc.Mode(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		slog.Error("reading reply mode", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, ModeResponse{Mode: mode, Available: ReplyModes})
}

// SetMode changes the reply mode.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if err := h.svc.SetMode(r.Context(), chi.URLParam(r, "userID"), mode); err != nil {
		if errors.Is(err, ErrInvalidMode) {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		slog.Error("setting reply mode", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, ModeResponse{Mode: mode, Available: ReplyModes})
}

// Privacy returns the privacy notice.
func (h *Handler) Privacy(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]string{"notice": Privacy()})
}
