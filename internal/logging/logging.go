// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"regexp"

	"github.com/awaybot/awaybot/internal/config"
)

var (
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|pk|xox[abp])-[A-Za-z0-9_-]{16,}\b`)
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// New builds a logger writing to w. Format "json" selects the JSON handler,
// anything else the text handler. String attributes are redacted.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup installs a logger built by New as the slog default.
func Setup(cfg config.LogConfig, w io.Writer) {
	slog.SetDefault(New(cfg, w))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redact masks API keys, e-mail addresses, URLs and phone numbers in s.
// Order matters: URLs may contain digit runs that look like phone numbers.
func Redact(s string) string {
	s = apiKeyPattern.ReplaceAllString(s, "[API_KEY]")
	s = urlPattern.ReplaceAllString(s, "[URL]")
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	s = phonePattern.ReplaceAllString(s, "[PHONE]")
	return s
}

func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.SourceKey {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
	}
	return a
}
