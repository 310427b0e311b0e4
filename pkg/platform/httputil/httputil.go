// Package httputil renders domain errors and JSON bodies for HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "authority/pkg/domain-errors"
)

// Messages shown for authentication failures. Unknown identifier, wrong
// secret and password-less accounts share one message so responses never
// reveal which factor was wrong.
const (
	msgInvalidCredentials = "invalid identifier or password"
	msgTokenRevoked       = "session has been revoked, please log in again"
	msgTokenExpired       = "token has expired"
	msgTokenInvalid       = "invalid token"
	msgAccountInactive    = "account is inactive"
	msgAccountUnverified  = "account is not verified"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError translates err into a status code and JSON envelope.
// Internal and infrastructure errors omit their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, description := statusAndMessage(code, err)
	WriteJSON(w, status, errorBody{Error: string(publicCode(code)), Description: description})
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func publicCode(code dErrors.Code) dErrors.Code {
	if code == dErrors.CodeNoSecretSet {
		return dErrors.CodeInvalidCredentials
	}
	return code
}

func statusAndMessage(code dErrors.Code, err error) (int, string) {
	switch code {
	case dErrors.CodeInvalidCredentials, dErrors.CodeNoSecretSet:
		return http.StatusUnauthorized, msgInvalidCredentials
	case dErrors.CodeTokenRevoked:
		return http.StatusUnauthorized, msgTokenRevoked
	case dErrors.CodeTokenExpired:
		return http.StatusUnauthorized, msgTokenExpired
	case dErrors.CodeTokenMalformed:
		return http.StatusUnauthorized, msgTokenInvalid
	case dErrors.CodeAccountInactive:
		return http.StatusForbidden, msgAccountInactive
	case dErrors.CodeAccountUnverified:
		return http.StatusForbidden, msgAccountUnverified
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, message(err)
	case dErrors.CodeForbidden:
		return http.StatusForbidden, message(err)
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest, message(err)
	case dErrors.CodeNotFound:
		return http.StatusNotFound, message(err)
	case dErrors.CodeConflict:
		return http.StatusConflict, message(err)
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests, message(err)
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout, ""
	case dErrors.CodeCacheUnavailable:
		return http.StatusServiceUnavailable, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

func message(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
