package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/awaybot/awaybot/internal/api"
)

// maxFileBytes bounds a single uploaded text body.
const maxFileBytes = 4 << 20

type Handler struct {
	ingestor *Ingestor
	validate *validator.Validate
}

func NewHandler(ingestor *Ingestor) *Handler {
	return &Handler{
		ingestor: ingestor,
		validate: validator.New(),
	}
}

type FileRequest struct {
	FileName string `json:"file_name" validate:"max=255"`
	Text     string `json:"text" validate:"required"`
}

// Upload ingests a text file for the user in the URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes)

	var req FileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	res, err := h.ingestor.IngestText(r.Context(), chi.URLParam(r, "userID"), req.FileName, req.Text)
	if err != nil {
		if errors.Is(err, ErrEmptyFile) {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		slog.Error("ingesting file", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusCreated, res)
}
