package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"mailmirror/internal/errs"
)

// errorResponse is the JSON error envelope
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	// RetryAfterSeconds is set on cooldown rejections
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError translates a service error to the HTTP boundary
func writeError(w http.ResponseWriter, err error) {
	var typed *errs.Error
	if errors.As(err, &typed) {
		resp := errorResponse{Error: typed.Message, Code: string(typed.Code)}
		if typed.Code == errs.CodeTooSoon {
			resp.RetryAfterSeconds = int(typed.Remaining.Seconds()) + 1
		}
		writeJSON(w, errs.HTTPStatus(typed.Code), resp)
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
