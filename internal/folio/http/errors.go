package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/httpx"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// writeError maps a service error onto a response. Unexpected errors are
// logged with full detail and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse{
			Error:            "validation_error",
			ErrorDescription: verr.Message,
			Details:          verr.Fields,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, service.ErrUnauthenticated):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
	case errors.Is(err, service.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "You do not have permission to do that")
	case errors.Is(err, service.ErrInvitationInvalid):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_invitation", service.ErrInvitationInvalid.Error())
	case errors.Is(err, service.ErrAccountExists):
		httpx.WriteError(w, http.StatusConflict, "account_exists", "An account with this email already exists")
	case errors.Is(err, service.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Resource not found")
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Something went wrong")
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

// rejectAudited records ev as failed and answers 400. Malformed privileged
// attempts are audited like any other failure.
func rejectAudited(w http.ResponseWriter, r *http.Request, aw *audit.Writer, ev audit.Event, err error) {
	aw.Log(r.Context(), ev.Outcome(err))
	writeBadRequest(w, err)
}
