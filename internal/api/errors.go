package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/sitereport-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeInternal           = "internal_error"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeAccountDisabled    = "account_disabled"
	ErrCodeInvalidToken       = "invalid_token"
	ErrCodeTokenRevoked       = "token_revoked"
	ErrCodeStoreUnavailable   = "store_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps an auth.Service error to its HTTP response. Messages
// are fixed strings; the underlying error never reaches the client.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "invalid or expired token")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenRevoked, "token has been revoked")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, ErrCodeAccountDisabled, "account is disabled")
	case errors.Is(err, auth.ErrLogoutMisuse):
		writeBadRequest(w, "refresh_token or logout_all is required")
	case errors.Is(err, auth.ErrStoreUnavailable):
		s.logger.Error("session store unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "session store unavailable, try again later")
	default:
		s.logger.Error("auth request failed", "error", err)
		writeInternalError(w, "internal server error")
	}
}
