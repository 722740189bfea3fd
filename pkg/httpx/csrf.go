package httpx

import (
	"mime"
	"net/http"
	"time"

	"github.com/aussiebroadwan/folio/pkg/cryptox"
)

// Defaults for the double-submit CSRF cookie.
const (
	DefaultCSRFCookie = "folio_csrf"
	DefaultCSRFHeader = "X-CSRF-Token"
	DefaultCSRFField  = "csrf_token"
	DefaultCSRFMaxAge = 365 * 24 * time.Hour
)

// CSRFGuard implements the double-submit cookie pattern. A random token is
// placed in a script-readable cookie on first contact and state-changing
// requests must echo it back via HeaderName or FormField. Nothing is stored
// server side and the token is not tied to a session, so it exists before
// login too.
type CSRFGuard struct {
	CookieName string
	HeaderName string
	FormField  string
	Secure     bool
	MaxAge     time.Duration
}

// NewCSRFGuard returns a guard using the default names.
func NewCSRFGuard(secure bool) *CSRFGuard {
	return &CSRFGuard{
		CookieName: DefaultCSRFCookie,
		HeaderName: DefaultCSRFHeader,
		FormField:  DefaultCSRFField,
		Secure:     secure,
		MaxAge:     DefaultCSRFMaxAge,
	}
}

// Token returns the well-formed token carried by r's cookie, or "".
func (g *CSRFGuard) Token(r *http.Request) string {
	c, err := r.Cookie(g.CookieName)
	if err != nil || !cryptox.WellFormedToken(c.Value, cryptox.TokenSize256) {
		return ""
	}
	return c.Value
}

// EnsureCookie returns the browser's token, minting one and setting the cookie
// when the request carries none (or a malformed one).
func (g *CSRFGuard) EnsureCookie(w http.ResponseWriter, r *http.Request) (string, error) {
	if tok := g.Token(r); tok != "" {
		return tok, nil
	}

	tok, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(g.MaxAge / time.Second),
		Secure:   g.Secure,
		HttpOnly: false, // must be readable so the client can echo it
		SameSite: http.SameSiteLaxMode,
	})
	return tok, nil
}

// Validate reports whether r echoes its cookie token. The header is checked
// first, then the form field for form-encoded bodies. Comparison is constant
// time.
func (g *CSRFGuard) Validate(r *http.Request) bool {
	want := g.Token(r)
	if want == "" {
		return false
	}

	got := r.Header.Get(g.HeaderName)
	if got == "" && isFormBody(r) {
		got = r.PostFormValue(g.FormField)
	}
	return cryptox.ConstantTimeEqual(want, got)
}

// IsSafeMethod reports whether method is read-only and exempt from CSRF checks.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func isFormBody(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}
