// Package httputil holds the JSON response helpers shared by the debug
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/xr"
)

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("[http] failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// Conflict writes a 409 Conflict response with the given message.
func Conflict(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusConflict, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// StatusForCategory maps a session failure category to an HTTP status.
func StatusForCategory(c xr.Category) int {
	switch c {
	case xr.CategoryUnsupported:
		return http.StatusNotImplemented
	case xr.CategoryPermissionDenied:
		return http.StatusForbidden
	case xr.CategoryAcquisitionFailed:
		return http.StatusServiceUnavailable
	case xr.CategoryEndedExternally:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteSessionError writes err. A categorised session error carries its
// category, stage, retryability and user-facing message.
func WriteSessionError(w http.ResponseWriter, err error) {
	var xe *xr.Error
	if !errors.As(err, &xe) {
		InternalServerError(w, err.Error())
		return
	}
	WriteJSON(w, StatusForCategory(xe.Category), map[string]interface{}{
		"error":     xe.Error(),
		"category":  xe.Category.String(),
		"stage":     string(xe.Stage),
		"retryable": xe.Category.Retryable(),
		"message":   xe.Message(),
	})
}
