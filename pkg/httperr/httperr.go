// Package httperr provides JSON-rendered HTTP error values used by the
// permission gate and the resolvers shipped with it.
package httperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Error is an error value carrying the HTTP status and JSON body to render
// when it reaches the response writer. Resolvers and error factories may
// return any error type; this one is simply what the defaults produce.
type Error struct {
	Status  int            `json:"-"`
	Code    string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with the given status, machine-readable code and
// human-readable message.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Unauthorized creates a 401 error with code "unauthorized".
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, "unauthorized", message)
}

// Forbidden creates a 403 error with code "forbidden".
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, "forbidden", message)
}

// WithDetails returns a copy of e carrying additional context for the caller,
// such as the action that was denied.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// Write renders err as a JSON response. An *Error is written with its own
// status and body; any other error becomes a generic 500 so that internal
// failure details are not leaked to clients.
func Write(w http.ResponseWriter, err error) {
	var httpErr *Error
	if !errors.As(err, &httpErr) {
		httpErr = New(http.StatusInternalServerError, "internal", "internal server error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Status)
	if encErr := json.NewEncoder(w).Encode(httpErr); encErr != nil {
		slog.Error("Failed to encode error response", "error", encErr)
	}
}
