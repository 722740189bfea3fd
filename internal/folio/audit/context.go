package audit

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/pkg/httpx"
)

// RequestContext identifies who did something and from where. It is built
// once per request and carried on the context.
type RequestContext struct {
	ActorID    *int64
	ActorEmail string
	IPAddress  string
	UserAgent  string
}

const maxUserAgent = 512

// FromRequest builds an anonymous RequestContext from r's headers. The
// client address follows httpx.ClientIP.
func FromRequest(r *http.Request) RequestContext {
	ua := r.UserAgent()
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return RequestContext{
		ActorEmail: domain.AnonymousActor,
		IPAddress:  httpx.ClientIP(r),
		UserAgent:  ua,
	}
}

// WithActor returns a copy attributed to a.
func (rc RequestContext) WithActor(a domain.Account) RequestContext {
	id := a.ID
	rc.ActorID = &id
	rc.ActorEmail = a.Email
	return rc
}

// Anonymous reports whether nobody is attributed.
func (rc RequestContext) Anonymous() bool { return rc.ActorID == nil }

type ctxKey struct{}

func NewContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the RequestContext in ctx. Without one the caller is
// anonymous with no network details.
func FromContext(ctx context.Context) RequestContext {
	if rc, ok := ctx.Value(ctxKey{}).(RequestContext); ok {
		return rc
	}
	return RequestContext{ActorEmail: domain.AnonymousActor}
}
