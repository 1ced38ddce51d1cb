package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/awaybot/awaybot/internal/api"
)

const autoReplyKey = "awaybot:settings:auto_reply"

// AutoReply is the owner's switch for answering messages. It is on until
// the owner turns it off.
type AutoReply struct {
	rdb redis.Cmdable
}

func NewAutoReply(rdb redis.Cmdable) *AutoReply {
	return &AutoReply{rdb: rdb}
}

func (a *AutoReply) Enabled(ctx context.Context) (bool, error) {
	v, err := a.rdb.Get(ctx, autoReplyKey).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading auto-reply switch: %w", err)
	}
	return v != "off", nil
}

func (a *AutoReply) SetEnabled(ctx context.Context, enabled bool) error {
	v := "off"
	if enabled {
		v = "on"
	}
	if err := a.rdb.Set(ctx, autoReplyKey, v, 0).Err(); err != nil {
		return fmt.Errorf("writing auto-reply switch: %w", err)
	}
	slog.Info("auto-reply switched", "enabled", enabled)
	return nil
}

type AutoReplyRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type autoReplyStatus struct {
	Enabled bool `json:"enabled"`
}

// AutoReplyHandler exposes the switch to the owner.
type AutoReplyHandler struct {
	sw       *AutoReply
	validate *validator.Validate
}

func NewAutoReplyHandler(sw *AutoReply) *AutoReplyHandler {
	return &AutoReplyHandler{sw: sw, validate: validator.New()}
}

func (h *AutoReplyHandler) Get(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.sw.Enabled(r.Context())
	if err != nil {
		slog.Error("chat: reading auto-reply switch", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, autoReplyStatus{Enabled: enabled})
}

func (h *AutoReplyHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req AutoReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if err := h.sw.SetEnabled(r.Context(), *req.Enabled); err != nil {
		slog.Error("chat: writing auto-reply switch", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, autoReplyStatus{Enabled: *req.Enabled})
}
