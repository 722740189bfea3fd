package httpx

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Profile selects a family of security headers.
type Profile int

const (
	// ProfileDefault is for HTML-serving admin routes.
	ProfileDefault Profile = iota
	// ProfileAPI is for JSON routes. No markup is ever served so script and
	// style sources collapse to 'none'.
	ProfileAPI
	// ProfileRelaxed is for publicly served uploads. Same-origin framing is
	// permitted so assets can be previewed inside the admin.
	ProfileRelaxed
)

func (p Profile) String() string {
	switch p {
	case ProfileAPI:
		return "api"
	case ProfileRelaxed:
		return "relaxed"
	default:
		return "default"
	}
}

// Directive is one Content-Security-Policy directive.
type Directive struct {
	Name     string
	Sources  []string
	Disabled bool
}

// CSP is an ordered list of directives.
type CSP []Directive

// sources that may never appear in any directive.
var forbiddenEverywhere = []string{"'unsafe-eval'", "javascript:"}

// directives where data: would allow script execution.
var noDataDirectives = []string{"script-src", "default-src"}

// String renders the policy. Disabled and empty directives are skipped and
// forbidden sources are dropped, so a misconfiguration cannot smuggle in
// 'unsafe-eval' or a data:/javascript: script source.
func (c CSP) String() string {
	parts := make([]string, 0, len(c))
	for _, d := range c {
		if d.Disabled || d.Name == "" {
			continue
		}
		srcs := sanitizeSources(d.Name, d.Sources)
		if len(srcs) == 0 {
			continue
		}
		parts = append(parts, d.Name+" "+strings.Join(srcs, " "))
	}
	return strings.Join(parts, "; ")
}

// Set replaces the sources of the named directive, appending it if missing.
func (c CSP) Set(name string, sources ...string) CSP {
	out := slices.Clone(c)
	for i := range out {
		if out[i].Name == name {
			out[i].Sources = sources
			out[i].Disabled = false
			return out
		}
	}
	return append(out, Directive{Name: name, Sources: sources})
}

// Disable switches off the named directives.
func (c CSP) Disable(names ...string) CSP {
	out := slices.Clone(c)
	for i := range out {
		if slices.Contains(names, out[i].Name) {
			out[i].Disabled = true
		}
	}
	return out
}

func sanitizeSources(directive string, sources []string) []string {
	out := make([]string, 0, len(sources))
	noData := slices.Contains(noDataDirectives, directive)
	for _, s := range sources {
		s = strings.TrimSpace(s)
		lower := strings.ToLower(s)
		switch {
		case s == "":
		case slices.Contains(forbiddenEverywhere, lower):
		case strings.HasPrefix(lower, "javascript:"):
		case noData && strings.HasPrefix(lower, "data:"):
		default:
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// HeaderConfig drives BuildHeaders.
type HeaderConfig struct {
	// StyleSources and FontSources list CDNs allowed besides 'self'.
	StyleSources []string
	FontSources  []string
	// ImageSources and ConnectSources extend img-src and connect-src.
	ImageSources   []string
	ConnectSources []string

	// HTTPS must only be set when TLS termination is confirmed for the
	// deployment. It enables Strict-Transport-Security.
	HTTPS                 bool
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool

	// DisabledDirectives names CSP directives to omit in every profile.
	DisabledDirectives []string

	ReferrerPolicy string
}

// DefaultHeaderConfig returns a config with no CDNs and HSTS off.
func DefaultHeaderConfig() HeaderConfig {
	return HeaderConfig{
		HSTSMaxAge:            365 * 24 * time.Hour,
		HSTSIncludeSubdomains: true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

func baseCSP(cfg HeaderConfig) CSP {
	return CSP{
		{Name: "default-src", Sources: []string{"'self'"}},
		{Name: "script-src", Sources: []string{"'self'"}},
		{Name: "style-src", Sources: append([]string{"'self'"}, cfg.StyleSources...)},
		{Name: "font-src", Sources: append([]string{"'self'"}, cfg.FontSources...)},
		{Name: "img-src", Sources: append([]string{"'self'", "data:"}, cfg.ImageSources...)},
		{Name: "connect-src", Sources: append([]string{"'self'"}, cfg.ConnectSources...)},
		{Name: "object-src", Sources: []string{"'none'"}},
		{Name: "base-uri", Sources: []string{"'self'"}},
		{Name: "form-action", Sources: []string{"'self'"}},
		{Name: "frame-ancestors", Sources: []string{"'none'"}},
	}
}

// BuildHeaders composes the security headers for profile p.
func BuildHeaders(cfg HeaderConfig, p Profile) http.Header {
	csp := baseCSP(cfg)
	frameOptions := "DENY"

	switch p {
	case ProfileAPI:
		csp = csp.Set("default-src", "'none'").
			Set("script-src", "'none'").
			Set("style-src", "'none'").
			Set("font-src", "'none'")
	case ProfileRelaxed:
		csp = csp.Set("frame-ancestors", "'self'")
		frameOptions = "SAMEORIGIN"
	}
	csp = csp.Disable(cfg.DisabledDirectives...)

	h := make(http.Header)
	if policy := csp.String(); policy != "" {
		h.Set("Content-Security-Policy", policy)
	}
	h.Set("X-Frame-Options", frameOptions)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")

	referrer := cfg.ReferrerPolicy
	if referrer == "" {
		referrer = "strict-origin-when-cross-origin"
	}
	h.Set("Referrer-Policy", referrer)

	if p != ProfileRelaxed {
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
	}

	if cfg.HTTPS && cfg.HSTSMaxAge > 0 {
		v := fmt.Sprintf("max-age=%d", int64(cfg.HSTSMaxAge/time.Second))
		if cfg.HSTSIncludeSubdomains {
			v += "; includeSubDomains"
		}
		h.Set("Strict-Transport-Security", v)
	}

	return h
}

// SecurityHeaders applies BuildHeaders before calling next, choosing the
// profile per request with classify. Headers are computed once per profile.
func SecurityHeaders(cfg HeaderConfig, classify func(*http.Request) Profile) Middleware {
	profiles := map[Profile]http.Header{
		ProfileDefault: BuildHeaders(cfg, ProfileDefault),
		ProfileAPI:     BuildHeaders(cfg, ProfileAPI),
		ProfileRelaxed: BuildHeaders(cfg, ProfileRelaxed),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := w.Header()
			for k, v := range profiles[classify(r)] {
				hdr[k] = slices.Clone(v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
