package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"nrkgo.com/accounts/internal/accounts"
	"nrkgo.com/accounts/internal/audit"
	"nrkgo.com/accounts/internal/obs"
)

// handleServiceError maps accounts errors onto HTTP status codes. Unknown
// errors are logged and answered with a generic message.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, accounts.ErrInvalidInput),
		errors.Is(err, accounts.ErrInvalidToken),
		errors.Is(err, accounts.ErrExpired),
		errors.Is(err, accounts.ErrAlreadyProcessed):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, accounts.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, publicMessage(err))
	case errors.Is(err, accounts.ErrForbidden), errors.Is(err, accounts.ErrNotVerified):
		writeError(w, r, http.StatusForbidden, publicMessage(err))
	case errors.Is(err, accounts.ErrNotFound):
		writeError(w, r, http.StatusNotFound, publicMessage(err))
	case errors.Is(err, accounts.ErrConflict):
		writeError(w, r, http.StatusConflict, publicMessage(err))
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", audit.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// publicMessage drops the package prefix of accounts sentinel errors.
func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "accounts: ")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
