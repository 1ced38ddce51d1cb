package api

import (
	"errors"
	"net/http"
)

// AppError is an error with the HTTP status it maps to. Its message is
// safe to show to the caller.
type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest       = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized     = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrInvalidToken     = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrNotFound         = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrMethodNotAllowed = &AppError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	ErrInternalServer   = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewUnavailableError(msg string) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: msg}
}

// HandleError renders err. Anything that is not an AppError becomes a
// generic 500 so internal details never reach the caller.
func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, ErrInternalServer.Message)
}
