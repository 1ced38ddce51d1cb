package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the envelope of every JSON body: data on success, error
// otherwise, and an optional human-readable message.
type Response struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type PaginatedResponse struct {
	Data       any   `json:"data"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	HasMore    bool  `json:"has_more"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Data: data})
}

func JSONMessage(w http.ResponseWriter, status int, message string) {
	write(w, status, Response{Message: message})
}

func JSONPaginated(w http.ResponseWriter, status int, data any, totalCount int64, page, pageSize int) {
	write(w, status, PaginatedResponse{
		Data:       data,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
		HasMore:    int64(page*pageSize) < totalCount,
	})
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	write(w, status, Response{Error: message})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("writing json response", "error", err)
	}
}
