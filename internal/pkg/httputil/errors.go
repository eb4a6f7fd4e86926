package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/wakekeeper/wakekeeper/internal/pkg/ctxlog"
)

// ErrorMapping maps one sentinel error to an HTTP status. An empty
// Message falls back to the error's own text.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError resolves err against the mappings and writes the mapped
// response. An unmapped error is logged and answered with a 500, so
// internal details never leak to the client.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
