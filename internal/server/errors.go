package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/teemow/tenantmail/internal/apperr"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

const reconnectMessage = "Gmail access is missing or was revoked; reconnect your account"

// statusClientClosedRequest is reported when the caller canceled the request.
const statusClientClosedRequest = 499

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput, apperr.KindInvalidGrant:
		return http.StatusBadRequest
	case apperr.KindRefreshFailed:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUserNotConnected:
		return http.StatusConflict
	case apperr.KindDeliveryRejected:
		return http.StatusUnprocessableEntity
	case apperr.KindProviderUnavailable, apperr.KindDeliveryUnauthorized:
		return http.StatusBadGateway
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// describe returns a message that is safe to show to API callers.
func describe(err error) string {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindUserNotConnected, apperr.KindRefreshFailed, apperr.KindDeliveryUnauthorized:
		return reconnectMessage
	case apperr.KindInvalidGrant:
		return "authorization code was rejected or already used; restart the authorization flow"
	case apperr.KindProviderUnavailable:
		return "Google is temporarily unavailable; retry later"
	case apperr.KindStoreUnavailable:
		return "credential store is temporarily unavailable; retry later"
	case apperr.KindTimeout:
		return "upstream call timed out; retry later"
	case apperr.KindCanceled:
		return "request was canceled"
	case apperr.KindInvalidInput, apperr.KindNotFound, apperr.KindDeliveryRejected:
		var e *apperr.Error
		if errors.As(err, &e) {
			if e.Message != "" {
				return e.Message
			}
			if e.Err != nil {
				return e.Err.Error()
			}
		}
		return string(kind)
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// writeError writes err as an ErrorResponse with the status of its kind.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := string(kind)
	if kind == apperr.KindUnknown {
		code = "internal_error"
	}
	writeJSON(w, statusFor(kind), ErrorResponse{Error: code, ErrorDescription: describe(err)})
}

func writeErrorCode(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}
