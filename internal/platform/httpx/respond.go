// Package httpx provides JSON response utilities shared by all handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the uniform error envelope returned by protected endpoints.
type ErrorBody struct {
	Error       string `json:"error"`
	CurrentData any    `json:"currentData,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends the error envelope with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// Conflict sends a 409 carrying the authoritative current entity state so
// the caller can reconcile and retry.
func Conflict(w http.ResponseWriter, message string, current any) {
	JSON(w, http.StatusConflict, ErrorBody{Error: message, CurrentData: current})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
