// Package api implements the HTTP surface of the quoting engine.
package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes the standard error envelope. The request id comes from
// the request context, set by RequestIDMiddleware.
func WriteError(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	WriteJSON(w, status, ErrorResponse{
		Kind:      kind,
		Message:   message,
		RequestID: RequestID(r),
	})
}
