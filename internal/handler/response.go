package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or WriteError, so the API has one
// success shape per endpoint and one error shape overall:
//
//	{"error": "capacity_full", "message": "capacity is already full"}
//
// "error" is the machine-readable kind from apperror; "message" is for humans.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/reservations/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends data as JSON. Headers and status must go out before the
// body, so both are set first.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// StatusOf maps an error's class to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the API's error format. It is also the
// ErrorWriter used by the auth and rate limit middleware.
//
// 5xx responses never carry the underlying message: it may hold SQL, file
// paths or driver details. The full error goes to the log instead.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	kind := apperror.KindOf(err)

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, ErrorResponse{Error: string(kind), Message: apperror.InternalMessage})
		return
	}

	message := err.Error()
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, ErrorResponse{Error: string(kind), Message: message})
}
