package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/acentrix/quotefunnel/internal/core"
	"github.com/acentrix/quotefunnel/pkg/problem"
)

func writeError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error, detail string) {
	switch {
	case errors.Is(err, core.ErrIdentityMismatch):
		// Dedicated recoverable state, not a generic failure: the client
		// routes this to the phone-mismatch screen.
		log.WarnContext(ctx, "identity mismatch", "err", err)
		problem.Write(w, http.StatusUnprocessableEntity, "Identity Mismatch", detail)

	case errors.Is(err, core.ErrNotFound):
		log.WarnContext(ctx, "resource not found", "err", err)
		problem.Write(w, http.StatusNotFound, "Not Found", detail)

	case errors.Is(err, core.ErrValidation):
		log.WarnContext(ctx, "validation failed", "err", err)
		problem.Write(w, http.StatusBadRequest, "Validation Error", detail)

	case errors.Is(err, core.ErrInvalidState):
		log.WarnContext(ctx, "step out of order", "err", err)
		problem.Write(w, http.StatusConflict, "Invalid Step", detail)

	case errors.Is(err, core.ErrConflict):
		log.WarnContext(ctx, "resource conflict", "err", err)
		problem.Write(w, http.StatusConflict, "Conflict", detail)

	case errors.Is(err, core.ErrUnauthorized):
		// Session expired: the flow aborts and the client redirects to the
		// funnel entry page.
		log.WarnContext(ctx, "session expired", "err", err)
		problem.Write(w, http.StatusUnauthorized, "Unauthorized", detail)

	case errors.Is(err, core.ErrForbidden):
		log.WarnContext(ctx, "forbidden operation", "err", err)
		problem.Write(w, http.StatusForbidden, "Forbidden", detail)

	case errors.Is(err, core.ErrUpstream):
		log.ErrorContext(ctx, "upstream failure", "err", err)
		problem.Write(w, http.StatusBadGateway, "Upstream Error", detail)

	case errors.Is(err, context.DeadlineExceeded):
		log.ErrorContext(ctx, "operation timeout", "err", err)
		problem.Write(w, http.StatusGatewayTimeout, "Timeout", "Operation took too long.")

	default:
		log.ErrorContext(ctx, "internal server error", "err", err)
		problem.Write(w, http.StatusInternalServerError, "Internal Server Error", detail)
	}
}
