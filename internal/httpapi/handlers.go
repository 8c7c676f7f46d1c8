package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nrkgo.com/accounts/internal/accounts"
	"nrkgo.com/accounts/internal/obs"
)

const serviceName = "accounts"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tune the HTTP layer. Zero values fall back to defaults.
type Options struct {
	Version        string
	BaseURL        string
	CookieName     string
	CookieSecure   bool
	RateBurst      int
	RatePerSecond  float64
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// API is the HTTP layer over the accounts service.
type API struct {
	router     chi.Router
	svc        *accounts.Service
	readyProbe readinessChecker
	version    string
	baseURL    string

	cookieName   string
	cookieSecure bool
	rateBurst    int
	ratePerSec   float64
	origins      []string
	maxBody      int64
}

func New(svc *accounts.Service, rp readinessChecker, opts Options) *API {
	if rp == nil {
		rp = ReadyProbe{}
	}
	a := &API{
		svc:          svc,
		readyProbe:   rp,
		version:      opts.Version,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		rateBurst:    opts.RateBurst,
		ratePerSec:   opts.RatePerSecond,
		origins:      opts.AllowedOrigins,
		maxBody:      opts.MaxBodyBytes,
	}
	if a.cookieName == "" {
		a.cookieName = "user_session"
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 5
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	a.router = a.routes()
	return a
}

// Handler returns the root handler with the middleware chain applied.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, obs.Instrument, SecurityHeaders)
	if len(a.origins) > 0 {
		r.Use(CORS(a.origins))
	}
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.maxBody) })

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.withSession)
		r.Get("/info", a.Info)

		r.Route("/auth", func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.rateBurst, a.ratePerSec) })
			r.Post("/signup", a.signup)
			r.Post("/login", a.login)
			r.Post("/logout", a.logout)
			r.Get("/check-status", a.checkStatus)
			r.Get("/ustatus", a.sessionStatus)
			r.With(requireUser).Get("/init", a.initData)
			r.Get("/verify", a.verifyEmail)
			r.Post("/resend-verification", a.resendVerification)
			r.Post("/forgot-password", a.forgotPassword)
			r.Post("/reset-password", a.resetPassword)
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", a.getMe)
			r.Patch("/", a.updateMe)
			r.Get("/sessions", a.listSessions)
			r.Delete("/sessions/{sessionID}", a.revokeSession)
		})

		r.Route("/orgs", func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/", a.createOrg)
			r.Route("/{orgID}", func(r chi.Router) {
				r.Put("/", a.updateOrg)
				r.Post("/claim", a.claimOrg)
				r.Post("/invitations", a.inviteMember)
				r.Get("/members", a.listMembers)
				r.Patch("/members/{memberID}", a.updateMember)
				r.Delete("/members/{memberID}", a.removeMember)
				r.Get("/members/{memberID}/invite-link", a.inviteLink)
				r.Get("/roles", a.listRoles)
				r.Post("/roles", a.createRole)
				r.Put("/roles/{roleID}", a.updateRole)
				r.Delete("/roles/{roleID}", a.deleteRole)
			})
		})

		r.Route("/invitations/{token}", func(r chi.Router) {
			r.Get("/", a.invitationDetails)
			r.With(requireUser).Post("/accept", a.acceptInvitation)
			r.Post("/claim", a.claimAccount)
			r.Post("/session", a.invitationSession)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	build := obs.Build()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"commit":     build.Commit,
		"started_at": build.StartedAt.Format(time.RFC3339),
	})
}

// setSessionCookie hands the session token to browsers.
func (a *API) setSessionCookie(w http.ResponseWriter, s *accounts.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    s.Cookie,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// currentUser must only be called behind requireUser.
func currentUser(r *http.Request) *accounts.User {
	u, _ := UserFromContext(r.Context())
	return u
}
