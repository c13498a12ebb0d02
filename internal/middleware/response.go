package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error *failure.Error `json:"error"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a classified error body.
func WriteError(w http.ResponseWriter, status int, fe *failure.Error) {
	WriteJSON(w, status, ErrorBody{Error: fe})
}

func writeAuthError(w http.ResponseWriter, msg string) {
	WriteError(w, http.StatusUnauthorized, failure.Validation(msg))
}
