package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "mandate/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Unknown
// errors become an opaque internal error so causes never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error": string(code),
	})
}

// Decode reads a JSON request body into v, answering 400 on malformed input.
// Returns false when the request was already answered.
func Decode[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var v T
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&v); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadFormat, "malformed request body"))
		return nil, false
	}
	return &v, true
}
