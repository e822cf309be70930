package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"baseid/internal/presentation/models"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type Service interface {
	Verify(ctx context.Context, vp *models.VerifiablePresentation, challenge, domain string) (*models.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the public verification endpoint. Verifiers do not need a
// DID of their own.
func (h *Handler) Register(r chi.Router) {
	r.Post("/presentations/verify", h.handleVerify)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req VerifyRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid verify presentation request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Verify(ctx, req.Presentation, req.Challenge, req.Domain)
	if err != nil {
		level := slog.LevelWarn
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "failed to verify presentation",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
