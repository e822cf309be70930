package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/request"
)

// Registry publishes revocation entries.
type Registry interface {
	List(ctx context.Context, issuer string) ([]string, error)
}

type Handler struct {
	registry Registry
	logger   *slog.Logger
}

func New(registry Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the public registry. The path is the credentialStatus id
// of every credential the service issues.
func (h *Handler) Register(r chi.Router) {
	r.Get("/revocations/{issuer}", h.handleList)
}

type listResponse struct {
	Issuer  string   `json:"issuer"`
	Entries []string `json:"entries"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer := chi.URLParam(r, "issuer")
	entries, err := h.registry.List(ctx, issuer)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list revocation entries",
			"request_id", request.GetRequestID(ctx),
			"issuer", issuer,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Issuer: issuer, Entries: entries})
}
