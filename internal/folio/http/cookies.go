package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
)

// SessionCookie holds the raw session token.
const SessionCookie = "folio_session"

func setSessionCookie(w http.ResponseWriter, s service.IssuedSession, secure bool, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   max(int(s.ExpiresAt.Sub(now)/time.Second), 1),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken returns the session cookie value. A value that cannot be a
// token is reported as present but empty so the cookie still gets cleared.
func sessionToken(r *http.Request) (token string, present bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	if !cryptox.WellFormedToken(c.Value, cryptox.TokenSize256) {
		return "", true
	}
	return c.Value, true
}
