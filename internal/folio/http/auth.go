package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/obs"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/aussiebroadwan/folio/pkg/ratelimit"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

var loginKey = httpx.PrefixedIP("login")

// AuthHandler serves login, logout and the caller's own account.
type AuthHandler struct {
	Accounts      *service.AccountService
	Sessions      *service.SessionManager
	Policy        service.PasswordPolicy
	Limiter       ratelimit.Limiter
	CSRF          *httpx.CSRFGuard
	Audit         *audit.Writer
	Metrics       *obs.Metrics
	SecureCookies bool
	Now           func() time.Time
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleCSRF returns the browser's CSRF token and the header to echo it in.
func (h *AuthHandler) HandleCSRF(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, folioclient.CSRFResponse{
		Token:  CSRFTokenFrom(r.Context()),
		Header: h.CSRF.HeaderName,
	})
}

// HandleLogin checks credentials and sets the session cookie. The limiter is
// consulted before the password is looked at.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Limiter != nil && !httpx.Allow(w, r, h.Limiter, loginKey) {
		h.Metrics.LoginAttempt(obs.LoginRateLimited)
		return
	}

	ev := audit.Event{
		Action:       domain.ActionLogin,
		ResourceType: domain.ResourceSession,
	}
	var req folioclient.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.Metrics.LoginAttempt(obs.LoginFailure)
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}
	ev.ResourceName = domain.NormalizeEmail(req.Email)

	rc := audit.FromContext(ctx)
	acct, issued, err := h.Accounts.Login(ctx, req.Email, req.Password, service.ClientMeta{
		UserAgent: rc.UserAgent,
		IPAddress: rc.IPAddress,
	})
	if err != nil {
		h.Metrics.LoginAttempt(obs.LoginFailure)
		h.Audit.Log(ctx, ev.Outcome(err))
		writeError(w, r, err)
		return
	}

	if h.Limiter != nil {
		if err := h.Limiter.Reset(ctx, loginKey(r)); err != nil {
			slogx.FromContext(ctx).Warn("failed to reset login limiter", slog.Any("error", err))
		}
	}
	h.Metrics.LoginAttempt(obs.LoginSuccess)

	ctx = audit.NewContext(ctx, rc.WithActor(acct))
	ev.ResourceID = audit.ID(acct.ID)
	h.Audit.Log(ctx, ev.Outcome(nil))

	setSessionCookie(w, issued, h.SecureCookies, h.now())
	httpx.WriteJSON(w, http.StatusOK, folioclient.LoginResponse{
		Account:   toAccount(acct),
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	err := h.Sessions.Destroy(ctx, c.Token)
	h.Audit.Log(ctx, audit.Event{
		Action:       domain.ActionLogout,
		ResourceType: domain.ResourceSession,
		ResourceID:   audit.ID(c.Account.ID),
		ResourceName: c.Account.Email,
	}.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}

	clearSessionCookie(w, h.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFrom(r.Context())
	httpx.WriteJSON(w, http.StatusOK, toAccount(c.Account))
}

// HandleUpdateMe lets the caller change their display name.
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	ev := audit.Event{
		Action:       domain.ActionUpdate,
		ResourceType: domain.ResourceAccount,
		ResourceID:   audit.ID(c.Account.ID),
		ResourceName: c.Account.Email,
	}
	var req folioclient.UpdateProfileRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}

	before, after, err := h.Accounts.UpdateProfile(ctx, c.Account.ID, req.Name)
	ev.Changes = audit.ComputeChanges(before.AuditFields(), after.AuditFields())
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccount(after))
}

// HandleChangePassword rotates the caller's password and signs out their
// other sessions.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	ev := audit.Event{
		Action:       domain.ActionUpdate,
		ResourceType: domain.ResourceAccount,
		ResourceID:   audit.ID(c.Account.ID),
		ResourceName: c.Account.Email,
	}
	var req folioclient.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}

	revoked, err := h.Accounts.ChangePassword(ctx, c.Account, c.Token, req.CurrentPassword, req.NewPassword)
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, folioclient.RevokedResponse{Revoked: revoked})
}

func (h *AuthHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	sessions, err := h.Sessions.ListForAccount(ctx, c.Account.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := folioclient.SessionList{Sessions: make([]folioclient.Session, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, toSession(s, c.IsCurrent(s)))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevokeOtherSessions logs the caller out everywhere else.
func (h *AuthHandler) HandleRevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	n, err := h.Sessions.DestroyAllForAccount(ctx, c.Account.ID, c.Token)
	h.Audit.Log(ctx, audit.Event{
		Action:       domain.ActionLogout,
		ResourceType: domain.ResourceSession,
		ResourceID:   audit.ID(c.Account.ID),
		ResourceName: c.Account.Email,
	}.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, folioclient.RevokedResponse{Revoked: n})
}

// HandlePasswordCheck scores a candidate password for live feedback.
func (h *AuthHandler) HandlePasswordCheck(w http.ResponseWriter, r *http.Request) {
	var req folioclient.PasswordCheckRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	inputs := []string{req.Email, req.Name}
	if c, ok := CallerFrom(r.Context()); ok {
		inputs = append(inputs, c.Account.Email, c.Account.Name)
	}
	res := h.Policy.Evaluate(req.Password, inputs...)
	httpx.WriteJSON(w, http.StatusOK, folioclient.PasswordCheckResponse{
		Valid:       res.Valid,
		Score:       res.Score,
		Errors:      res.Errors,
		Suggestions: res.Suggestions,
	})
}
