package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var allProfiles = []httpx.Profile{httpx.ProfileDefault, httpx.ProfileAPI, httpx.ProfileRelaxed}

func directive(policy, name string) string {
	for _, part := range strings.Split(policy, "; ") {
		if strings.HasPrefix(part, name+" ") {
			return part
		}
	}
	return ""
}

func TestBuildHeaders_Default(t *testing.T) {
	cfg := httpx.DefaultHeaderConfig()
	cfg.StyleSources = []string{"https://fonts.googleapis.com"}
	cfg.FontSources = []string{"https://fonts.gstatic.com"}

	h := httpx.BuildHeaders(cfg, httpx.ProfileDefault)
	csp := h.Get("Content-Security-Policy")

	require.Equal(t, "script-src 'self'", directive(csp, "script-src"))
	require.Equal(t, "style-src 'self' https://fonts.googleapis.com", directive(csp, "style-src"))
	require.Equal(t, "font-src 'self' https://fonts.gstatic.com", directive(csp, "font-src"))
	require.Equal(t, "object-src 'none'", directive(csp, "object-src"))
	require.Equal(t, "frame-ancestors 'none'", directive(csp, "frame-ancestors"))
	require.Equal(t, "DENY", h.Get("X-Frame-Options"))
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	require.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	require.Equal(t, "no-store", h.Get("Cache-Control"))
	require.Empty(t, h.Get("Strict-Transport-Security"), "HSTS only when HTTPS is confirmed")
}

func TestBuildHeaders_API(t *testing.T) {
	h := httpx.BuildHeaders(httpx.DefaultHeaderConfig(), httpx.ProfileAPI)
	csp := h.Get("Content-Security-Policy")

	require.Equal(t, "default-src 'none'", directive(csp, "default-src"))
	require.Equal(t, "script-src 'none'", directive(csp, "script-src"))
	require.Equal(t, "style-src 'none'", directive(csp, "style-src"))
	require.Equal(t, "frame-ancestors 'none'", directive(csp, "frame-ancestors"))
	require.Equal(t, "DENY", h.Get("X-Frame-Options"))
}

func TestBuildHeaders_Relaxed(t *testing.T) {
	h := httpx.BuildHeaders(httpx.DefaultHeaderConfig(), httpx.ProfileRelaxed)
	csp := h.Get("Content-Security-Policy")

	require.Equal(t, "frame-ancestors 'self'", directive(csp, "frame-ancestors"))
	require.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
	require.Equal(t, "object-src 'none'", directive(csp, "object-src"))
	require.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}

func TestBuildHeaders_HSTS(t *testing.T) {
	cfg := httpx.DefaultHeaderConfig()
	cfg.HTTPS = true

	for _, p := range allProfiles {
		require.Equal(t, "max-age=31536000; includeSubDomains", httpx.BuildHeaders(cfg, p).Get("Strict-Transport-Security"), p.String())
	}
}

func TestBuildHeaders_NeverAllowsUnsafeSources(t *testing.T) {
	cfg := httpx.DefaultHeaderConfig()
	hostile := []string{"'unsafe-eval'", "data:", "javascript:", "JavaScript:alert(1)", "'UNSAFE-EVAL'"}
	cfg.StyleSources = hostile
	cfg.FontSources = hostile
	cfg.ImageSources = hostile
	cfg.ConnectSources = hostile

	for _, p := range allProfiles {
		csp := strings.ToLower(httpx.BuildHeaders(cfg, p).Get("Content-Security-Policy"))
		require.NotContains(t, csp, "unsafe-eval", p.String())
		require.NotContains(t, csp, "javascript:", p.String())
		require.NotContains(t, directive(csp, "script-src"), "data:", p.String())
		require.NotContains(t, directive(csp, "default-src"), "data:", p.String())
	}
}

func TestCSP_StringSanitizes(t *testing.T) {
	csp := httpx.CSP{
		{Name: "default-src", Sources: []string{"'self'", "data:"}},
		{Name: "script-src", Sources: []string{"'self'", "'unsafe-eval'", "data:", "javascript:"}},
		{Name: "img-src", Sources: []string{"'self'", "data:"}},
		{Name: "media-src", Sources: nil},
		{Name: "worker-src", Sources: []string{"'unsafe-eval'"}},
		{Name: "frame-src", Sources: []string{"'self'"}, Disabled: true},
	}

	require.Equal(t, "default-src 'self'; script-src 'self'; img-src 'self' data:", csp.String())
}

func TestCSP_Toggle(t *testing.T) {
	cfg := httpx.DefaultHeaderConfig()
	cfg.DisabledDirectives = []string{"form-action", "base-uri"}

	csp := httpx.BuildHeaders(cfg, httpx.ProfileDefault).Get("Content-Security-Policy")
	require.NotContains(t, csp, "form-action")
	require.NotContains(t, csp, "base-uri")
	require.Contains(t, csp, "object-src 'none'")
}

func TestSecurityHeaders_SelectsProfile(t *testing.T) {
	classify := func(r *http.Request) httpx.Profile {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/"):
			return httpx.ProfileAPI
		case strings.HasPrefix(r.URL.Path, "/uploads/"):
			return httpx.ProfileRelaxed
		default:
			return httpx.ProfileDefault
		}
	}
	h := httpx.SecurityHeaders(httpx.DefaultHeaderConfig(), classify)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) }),
	)

	tests := []struct {
		path  string
		frame string
	}{
		{"/admin", "DENY"},
		{"/api/auth/me", "DENY"},
		{"/uploads/logo.png", "SAMEORIGIN"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, tt.frame, rec.Header().Get("X-Frame-Options"))
			require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
		})
	}
}
