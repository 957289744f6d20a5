package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError answers with the status goToken.StatusCode assigns to err.
// Server-side failures get a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := goToken.StatusCode(err)

	var authErr *goToken.AuthError
	if errors.As(err, &authErr) {
		if challenge := authErr.Challenge(); challenge != "" {
			w.Header().Set("WWW-Authenticate", challenge)
		}
		writeJSONError(w, status, authErr.Kind.String(), authErr.Reason)
		return
	}

	switch status {
	case http.StatusBadRequest:
		writeJSONError(w, status, "invalid_identity", err.Error())
	case http.StatusNotFound:
		writeJSONError(w, status, "not_found", err.Error())
	case http.StatusServiceUnavailable:
		writeJSONError(w, status, "unavailable", "service temporarily unavailable")
	default:
		writeJSONError(w, status, "internal_error", "internal error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Code: code, Message: message})
}

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
