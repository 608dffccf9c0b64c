// Package shared holds response helpers common to all HTTP handlers.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/Mawilis/legal-doc-system-sub010/pkg/domain-errors"
)

// statusFor maps domain error codes to HTTP status codes.
var statusFor = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeIllegalTransition:  http.StatusConflict,
	dErrors.CodeTenantScope:        http.StatusForbidden,
	dErrors.CodeChainBroken:        http.StatusConflict,
	dErrors.CodeIntegrity:          http.StatusConflict,
	dErrors.CodeRetentionViolation: http.StatusConflict,
	dErrors.CodeLegalHold:          http.StatusLocked,
	dErrors.CodeDeliveryExhausted:  http.StatusBadGateway,
	dErrors.CodeInternal:           http.StatusInternalServerError,
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError renders a coded domain error. Internal errors hide their message
// so store and crypto details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusFor[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) {
		body.Message = de.Message
	}
	WriteJSON(w, status, body)
}

// WriteJSON renders v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
