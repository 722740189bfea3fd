package http

import (
	"context"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/service"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	Account domain.Account
	Session domain.Session
	// Token is the raw session token presented by the browser.
	Token string
}

// IsCurrent reports whether s is the session the caller is using.
func (c Caller) IsCurrent(s domain.Session) bool {
	return service.IsCurrent(s, c.Token)
}

type callerKey struct{}

type csrfKey struct{}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the Caller resolved by the gatekeeper, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

func withCSRFToken(ctx context.Context, tok string) context.Context {
	return context.WithValue(ctx, csrfKey{}, tok)
}

// CSRFTokenFrom returns the CSRF token bound to the browser for this request.
func CSRFTokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(csrfKey{}).(string)
	return tok
}
