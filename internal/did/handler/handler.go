package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"baseid/internal/did/models"
	"baseid/internal/did/service"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the DID registry as seen by the HTTP layer.
type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.Record, error)
	Resolve(ctx context.Context, did string) (*models.Resolution, error)
	AddService(ctx context.Context, did string, svc models.Service) (*models.Record, error)
	RemoveService(ctx context.Context, did, serviceID string) (*models.Record, error)
	AddVerificationMethod(ctx context.Context, did string, vm models.VerificationMethod, authentication bool) (*models.Record, error)
	Deactivate(ctx context.Context, did string) (*models.Record, error)
}

type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

// New creates the DID handler. requireAuth guards controller-only routes.
func New(svc Service, requireAuth func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger, requireAuth: requireAuth}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/dids", h.handleRegister)
	r.Get("/dids/{did}", h.handleResolve)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/dids/{did}/services", h.handleAddService)
		r.Delete("/dids/{did}/services/{serviceID}", h.handleRemoveService)
		r.Post("/dids/{did}/verification-methods", h.handleAddVerificationMethod)
		r.Post("/dids/{did}/deactivate", h.handleDeactivate)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid register request", err)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Register(ctx, service.RegisterRequest{PublicKey: req.PublicKey, Proof: req.Proof})
	if err != nil {
		h.fail(ctx, w, "failed to register did", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDocumentResponse(record))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.Resolve(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.fail(ctx, w, "failed to resolve did", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAddService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddServiceRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid add service request", err)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.AddService(ctx, chi.URLParam(r, "did"), req.Service())
	if err != nil {
		h.fail(ctx, w, "failed to add service", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(record))
}

func (h *Handler) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID, err := url.PathUnescape(chi.URLParam(r, "serviceID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid service id"))
		return
	}
	record, err := h.service.RemoveService(ctx, chi.URLParam(r, "did"), fragment(serviceID))
	if err != nil {
		h.fail(ctx, w, "failed to remove service", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(record))
}

func (h *Handler) handleAddVerificationMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddVerificationMethodRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid add verification method request", err)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.AddVerificationMethod(ctx, chi.URLParam(r, "did"), req.VerificationMethod(), req.Authentication)
	if err != nil {
		h.fail(ctx, w, "failed to add verification method", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(record))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.Deactivate(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.fail(ctx, w, "failed to deactivate did", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(record))
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err.Error(),
	)
}

// fail logs at error level for internal failures and at warn otherwise.
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
