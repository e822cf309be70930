package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"baseid/internal/auth/models"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/request"
	"baseid/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type Service interface {
	Challenge(ctx context.Context, did string) (*models.Challenge, error)
	Authenticate(ctx context.Context, did, nonce, signature string) (*models.AuthenticationResult, error)
	Logout(ctx context.Context) error
}

type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

func New(svc Service, requireAuth func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger, requireAuth: requireAuth}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/challenge", h.handleChallenge)
	r.Post("/auth/token", h.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/auth/session", h.handleSession)
		r.Post("/auth/logout", h.handleLogout)
	})
}

type ChallengeRequest struct {
	DID string `json:"did" validate:"required,did"`
}

type TokenRequest struct {
	DID       string `json:"did" validate:"required,did"`
	Nonce     string `json:"nonce" validate:"required,hexadecimal,len=64"`
	Signature string `json:"signature" validate:"required,max=132"`
}

func (r *TokenRequest) Validate() error {
	r.Signature = strings.TrimSpace(r.Signature)
	return nil
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ChallengeRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid challenge request", err)
		httputil.WriteError(w, authErr(err))
		return
	}
	c, err := h.service.Challenge(ctx, req.DID)
	if err != nil {
		h.fail(ctx, w, "failed to issue challenge", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TokenRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid token request", err)
		httputil.WriteError(w, authErr(err))
		return
	}
	result, err := h.service.Authenticate(ctx, req.DID, req.Nonce, req.Signature)
	if err != nil {
		h.fail(ctx, w, "authentication failed", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"did": requestcontext.DID(ctx)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx); err != nil {
		h.fail(ctx, w, "failed to logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err.Error(),
	)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.warn(ctx, msg, err)
	}
	httputil.WriteError(w, err)
}

func authErr(err error) error {
	if de, ok := err.(*dErrors.Error); ok {
		return de.In(dErrors.KindAuthentication)
	}
	return err
}
