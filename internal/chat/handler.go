package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/awaybot/awaybot/internal/api"
	inats "github.com/awaybot/awaybot/internal/nats"
)

// HTTPHandler runs chat turns synchronously over HTTP. It is meant for
// testing the assistant without the chat platform.
type HTTPHandler struct {
	svc      Handler
	lanes    *Lanes
	validate *validator.Validate
}

func NewHTTPHandler(svc Handler, lanes *Lanes) *HTTPHandler {
	return &HTTPHandler{
		svc:      svc,
		lanes:    lanes,
		validate: validator.New(),
	}
}

type MessageRequest struct {
	Text     string `json:"text" validate:"required,max=8000"`
	Username string `json:"username" validate:"max=64"`
	Locale   string `json:"locale" validate:"max=16"`
}

// Send handles one message for the user in the URL and returns the reply.
func (h *HTTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	msg := inats.InboundMessage{
		UserID:   chi.URLParam(r, "userID"),
		Username: req.Username,
		Locale:   req.Locale,
		Text:     req.Text,
	}

	type result struct {
		reply *Reply
		err   error
	}
	done := make(chan result, 1)
	err := h.lanes.Submit(msg.UserID, func() {
		reply, err := h.svc.Handle(r.Context(), msg)
		done <- result{reply, err}
	})
	if err != nil {
		api.HandleError(w, api.NewUnavailableError("shutting down"))
		return
	}

	var res result
	select {
	case res = <-done:
	case <-r.Context().Done():
		return
	}

	if res.err != nil {
		if errors.Is(res.err, ErrEmptyMessage) {
			api.HandleError(w, api.NewValidationError(res.err.Error()))
			return
		}
		if errors.Is(res.err, ErrAutoReplyOff) {
			api.JSONMessage(w, http.StatusAccepted, "message recorded, auto-reply is off")
			return
		}
		slog.Error("handling chat message", "error", res.err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, res.reply)
}
