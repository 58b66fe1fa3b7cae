package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/incident-impact/internal/pkg/ctxlog"
)

// ErrorMapping defines how a service error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError writes the response of the first mapping that matches err.
//
// Mapped 5xx responses are logged with their cause at warn level. A request
// that ran out of time gets 504 and a request abandoned by its client gets no
// response at all. Anything else is logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	logger := ctxlog.FromContext(ctx)

	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		if m.Status >= http.StatusInternalServerError {
			logger.Warn("request failed", "status", m.Status, "error", err)
		}
		Error(w, m.Status, msg)
		return
	}

	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("request cancelled by client", "error", err)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
	default:
		logger.Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
