package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	inats "github.com/awaybot/awaybot/internal/nats"
)

// Publisher accepts audit events. Both the NATS publisher and Recorder
// satisfy it.
type Publisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Trail wraps an owner endpoint so that a successful call is recorded as
// eventType for the user in the URL. Failed calls are not recorded.
func Trail(pub Publisher, eventType string, next http.HandlerFunc) http.HandlerFunc {
	if pub == nil || next == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		if sw.status >= http.StatusBadRequest {
			return
		}

		event := inats.AuditEvent{
			UserID:    chi.URLParam(r, "userID"),
			EventType: eventType,
			Severity:  "info",
			Details:   fmt.Sprintf("%s %s by owner", r.Method, r.URL.Path),
			Timestamp: time.Now().UTC(),
		}
		if err := pub.PublishAuditEvent(context.WithoutCancel(r.Context()), event); err != nil {
			slog.Error("publishing audit event", "event_type", eventType, "error", err)
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}
