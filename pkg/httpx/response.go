package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON error envelope every handler uses.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`

	// RetryAfterSeconds is set for throttled responses.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`

	// RequiredRoles is set for authorization failures. Role names are not
	// secret, so listing them back to the caller is acceptable.
	RequiredRoles []string `json:"required_roles,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache marks a response as uncacheable. Required for anything carrying
// tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, code int, errCode, desc string) {
	WriteJSON(w, code, ErrorResponse{Error: errCode, ErrorDescription: desc})
}
