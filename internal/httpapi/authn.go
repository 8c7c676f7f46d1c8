package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"nrkgo.com/accounts/internal/accounts"
	"nrkgo.com/accounts/internal/audit"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type ctxKey int

const (
	userKey ctxKey = iota
	tokenKey
)

// UserFromContext returns the user authenticated by withSession.
func UserFromContext(ctx context.Context) (*accounts.User, bool) {
	u, ok := ctx.Value(userKey).(*accounts.User)
	return u, ok && u != nil
}

func tokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// sessionToken reads the session cookie, then the bearer header.
func (a *API) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get(authHeader); h != "" {
		if token, err := extractBearerToken(h); err == nil {
			return token
		}
	}
	return ""
}

// withSession resolves the presented session, when any, into the context.
// It never rejects; requireUser does.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := a.svc.Sessions.ResolveUser(r.Context(), token)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), tokenKey, token)
		if user != nil {
			ctx = context.WithValue(ctx, userKey, user)
			ctx = audit.WithActor(ctx, user.ID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser answers 401 unless withSession resolved a user.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="accounts"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
