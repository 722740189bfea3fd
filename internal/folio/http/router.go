package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/obs"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/aussiebroadwan/folio/pkg/ratelimit"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// Routes reachable without a session.
const (
	RouteLogin         Route = "POST /api/auth/login"
	RouteCSRF          Route = "GET /api/auth/csrf"
	RoutePasswordCheck Route = "POST /api/auth/password-check"
	RouteLookup        Route = "GET /api/invitations/lookup"
	RouteAccept        Route = "POST /api/invitations/accept"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Accounts    *service.AccountService
	Sessions    *service.SessionManager
	Invitations *service.InvitationManager
	Audit       *audit.Writer
	Policy      service.PasswordPolicy

	// LoginLimiter throttles login attempts per client address. Optional.
	LoginLimiter ratelimit.Limiter
	// LookupLimiter throttles invitation token lookups. Optional.
	LookupLimiter ratelimit.Limiter

	CSRF          *httpx.CSRFGuard
	Headers       httpx.HeaderConfig
	SecureCookies bool

	Metrics *obs.Metrics
	// Gatherer backs /metrics. Nil leaves the route unregistered.
	Gatherer prometheus.Gatherer
	// UploadsDir is served under /uploads/ when set.
	UploadsDir string

	Now func() time.Time
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Policy:       service.DefaultPasswordPolicy(),
		Headers:      httpx.DefaultHeaderConfig(),
	}
}

// Gatekeeper returns the gatekeeper configured from r.
func (r *Router) Gatekeeper() *Gatekeeper {
	return &Gatekeeper{
		Sessions:      r.Sessions,
		CSRF:          r.csrf(),
		Headers:       r.Headers,
		Metrics:       r.Metrics,
		SecureCookies: r.SecureCookies,
		Public: map[Route]bool{
			RouteLogin:         true,
			RouteCSRF:          true,
			RoutePasswordCheck: true,
			RouteLookup:        true,
			RouteAccept:        true,
		},
		CSRFExempt: map[Route]bool{
			RouteLogin:  true,
			RouteAccept: true,
		},
	}
}

func (r *Router) csrf() *httpx.CSRFGuard {
	if r.CSRF == nil {
		r.CSRF = httpx.NewCSRFGuard(r.SecureCookies)
	}
	return r.CSRF
}

// ApplyRoutes registers every route and builds the global middleware chain.
// Call it once after the exported fields are set.
func (r *Router) ApplyRoutes() {
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.Metrics.Instrument(ClassifyMetrics),
		r.Gatekeeper().Middleware(),
	}

	r.registerAuth()
	r.registerInvitations()
	r.registerAccounts()
	r.registerAudit()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Accounts:      r.Accounts,
		Sessions:      r.Sessions,
		Policy:        r.Policy,
		Limiter:       r.LoginLimiter,
		CSRF:          r.csrf(),
		Audit:         r.Audit,
		Metrics:       r.Metrics,
		SecureCookies: r.SecureCookies,
		Now:           r.Now,
	}

	r.Mux.HandleFunc(string(RouteCSRF), h.HandleCSRF)
	// Rate limited inside the handler so rejections are counted.
	r.Mux.HandleFunc(string(RouteLogin), h.HandleLogin)
	r.Mux.HandleFunc(string(RoutePasswordCheck), h.HandlePasswordCheck)

	r.Mux.HandleFunc("POST /api/auth/logout", h.HandleLogout)
	r.Mux.HandleFunc("GET /api/auth/me", h.HandleMe)
	r.Mux.HandleFunc("PATCH /api/auth/me", h.HandleUpdateMe)
	r.Mux.HandleFunc("POST /api/auth/password", h.HandleChangePassword)
	r.Mux.HandleFunc("GET /api/auth/sessions", h.HandleListSessions)
	r.Mux.HandleFunc("DELETE /api/auth/sessions", h.HandleRevokeOtherSessions)
}

func (r *Router) registerInvitations() {
	h := &InvitationHandler{
		Invitations: r.Invitations,
		Accounts:    r.Accounts,
		Audit:       r.Audit,
		Metrics:     r.Metrics,
		Now:         r.Now,
	}

	// Mutations check the role themselves so refusals are audited.
	r.Mux.HandleFunc("POST /api/invitations", h.HandleCreate)
	r.Mux.HandleFunc("DELETE /api/invitations/{id}", h.HandleRevoke)
	r.Mux.Handle("GET /api/invitations", httpx.Chain(http.HandlerFunc(h.HandleList), RequireAdmin))

	lookup := http.Handler(http.HandlerFunc(h.HandleLookup))
	if r.LookupLimiter != nil {
		lookup = httpx.Chain(lookup, httpx.RateLimit(r.LookupLimiter, httpx.PrefixedIP("invite")))
	}
	r.Mux.Handle(string(RouteLookup), lookup)
	r.Mux.HandleFunc(string(RouteAccept), h.HandleAccept)
}

func (r *Router) registerAccounts() {
	h := &AccountHandler{Accounts: r.Accounts, Audit: r.Audit}

	r.Mux.Handle("GET /api/accounts", httpx.Chain(http.HandlerFunc(h.HandleList), RequireAdmin))
	r.Mux.Handle("GET /api/accounts/{id}", httpx.Chain(http.HandlerFunc(h.HandleGet), RequireAdmin))
	r.Mux.HandleFunc("PATCH /api/accounts/{id}", h.HandleUpdate)
	r.Mux.HandleFunc("DELETE /api/accounts/{id}", h.HandleDelete)
	r.Mux.HandleFunc("POST /api/accounts/{id}/logout", h.HandleForceLogout)
}

func (r *Router) registerAudit() {
	r.Mux.Handle("GET /api/audit", httpx.Chain(&AuditHandler{Repo: r.store.Audit()}, RequireAdmin))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", obs.Handler(r.Gatherer))
	}
	if r.UploadsDir != "" {
		r.Mux.Handle("GET /uploads/", uploadsHandler(r.UploadsDir))
	}
}

// RequireAdmin rejects callers without the admin role with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFrom(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if !c.Account.Role.IsAdmin() {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "You do not have permission to do that")
			return
		}
		next.ServeHTTP(w, r)
	})
}
