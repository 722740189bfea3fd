package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/obs"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// Route is a "METHOD /path" pattern matched exactly against a request.
type Route string

func routeOf(r *http.Request) Route {
	return Route(r.Method + " " + r.URL.Path)
}

// Gatekeeper runs before every handler. It applies the security headers,
// binds the audit context and CSRF cookie, resolves the caller on protected
// paths and checks the CSRF echo on state-changing requests.
type Gatekeeper struct {
	Sessions *service.SessionManager
	CSRF     *httpx.CSRFGuard
	Headers  httpx.HeaderConfig
	Metrics  *obs.Metrics

	// SecureCookies marks cookies Secure. Set it whenever the site is
	// served over HTTPS.
	SecureCookies bool

	// Public routes under /api/ that do not need a session.
	Public map[Route]bool
	// CSRFExempt routes accept state-changing requests without an echo.
	CSRFExempt map[Route]bool
}

// Protected reports whether r needs an authenticated caller.
func (g *Gatekeeper) Protected(r *http.Request) bool {
	return isAPI(r.URL.Path) && !g.Public[routeOf(r)]
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// ClassifyProfile picks the header profile for r's path.
func ClassifyProfile(r *http.Request) httpx.Profile {
	switch {
	case isAPI(r.URL.Path):
		return httpx.ProfileAPI
	case strings.HasPrefix(r.URL.Path, "/uploads/"):
		return httpx.ProfileRelaxed
	default:
		return httpx.ProfileDefault
	}
}

// ClassifyMetrics maps r to a low cardinality metrics label.
func ClassifyMetrics(r *http.Request) string {
	switch p := r.URL.Path; {
	case isAPI(p):
		return "api"
	case strings.HasPrefix(p, "/uploads/"):
		return "uploads"
	case p == "/livez" || p == "/readyz" || p == "/metrics":
		return "system"
	default:
		return "other"
	}
}

// Middleware returns the gatekeeper as an httpx.Middleware.
func (g *Gatekeeper) Middleware() httpx.Middleware {
	headers := httpx.SecurityHeaders(g.Headers, ClassifyProfile)
	return func(next http.Handler) http.Handler {
		return headers(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		}))
	}
}

func (g *Gatekeeper) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Attribute the request for the audit trail.
	rc := audit.FromRequest(r)
	ctx = audit.NewContext(ctx, rc)

	// 2. Make sure the browser holds a CSRF token.
	tok, err := g.CSRF.EnsureCookie(w, r)
	if err != nil {
		log.Error("failed to mint csrf token", slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Something went wrong")
		return
	}
	ctx = withCSRFToken(ctx, tok)

	// 3. Resolve the caller on protected paths.
	if g.Protected(r) {
		token, present := sessionToken(r)
		sess, acct, err := g.Sessions.Resolve(ctx, token)
		if err != nil {
			if present {
				clearSessionCookie(w, g.SecureCookies)
			}
			g.Metrics.Unauthenticated()
			writeError(w, r.WithContext(ctx), err)
			return
		}
		ctx = withCaller(ctx, Caller{Account: acct, Session: sess, Token: token})
		ctx = audit.NewContext(ctx, rc.WithActor(acct))
		ctx = slogx.With(ctx, slog.Int64("account_id", acct.ID))
	}

	// 4. State-changing requests must echo the token.
	if !httpx.IsSafeMethod(r.Method) && !g.CSRFExempt[routeOf(r)] && !g.CSRF.Validate(r) {
		g.Metrics.CSRFRejected()
		slogx.FromContext(ctx).Warn("csrf token mismatch", slog.String("route", string(routeOf(r))))
		httpx.WriteError(w, http.StatusForbidden, "invalid_csrf_token", "Invalid CSRF token")
		return
	}

	next.ServeHTTP(w, r.WithContext(ctx))
}
