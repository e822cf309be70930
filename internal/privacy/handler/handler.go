package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	credmodels "baseid/internal/credential/models"
	presmodels "baseid/internal/presentation/models"
	"baseid/internal/privacy/models"
	dErrors "baseid/pkg/domain-errors"
	audit "baseid/pkg/platform/audit"
	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the privacy manager as seen by the HTTP layer.
type Service interface {
	Get(ctx context.Context, did string) (*models.Settings, error)
	Update(ctx context.Context, did string, update models.Settings) (*models.Settings, error)
	Disclose(ctx context.Context, vc *credmodels.VerifiableCredential, names []string) (*presmodels.VerifiablePresentation, error)
	VerifyDisclosure(ctx context.Context, vc *credmodels.VerifiableCredential) *models.DisclosureResult
	VerifyIdentityProof(ctx context.Context, proof *models.IdentityProof) (*models.IdentityProofResult, error)
	ListDiscoverable(ctx context.Context, limit int) ([]string, error)
	AuditTrail(ctx context.Context, did string) ([]audit.Event, error)
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
	r.Get("/privacy/discoverable", h.handleListDiscoverable)
	r.Post("/privacy/disclosures/verify", h.handleVerifyDisclosure)
	r.Post("/privacy/identity-proofs/verify", h.handleVerifyIdentityProof)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/privacy/{did}", h.handleGet)
		r.Put("/privacy/{did}", h.handleUpdate)
		r.Get("/privacy/{did}/audit", h.handleAuditTrail)
		r.Post("/privacy/disclosures", h.handleDisclose)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.service.Get(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.fail(ctx, w, "failed to get privacy settings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateSettingsRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid privacy settings request", err)
		httputil.WriteError(w, err)
		return
	}
	settings, err := h.service.Update(ctx, chi.URLParam(r, "did"), req.Settings())
	if err != nil {
		h.fail(ctx, w, "failed to update privacy settings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleDisclose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DiscloseRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid disclose request", err)
		httputil.WriteError(w, err)
		return
	}
	vp, err := h.service.Disclose(ctx, req.Credential, req.Claims)
	if err != nil {
		h.fail(ctx, w, "failed to prepare disclosure", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vp)
}

func (h *Handler) handleVerifyDisclosure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req VerifyDisclosureRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid verify disclosure request", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.VerifyDisclosure(ctx, req.Credential))
}

func (h *Handler) handleVerifyIdentityProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req VerifyIdentityProofRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid identity proof request", err)
		httputil.WriteError(w, err)
		return
	}
	created, err := time.Parse(time.RFC3339, req.Created)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "created must be an RFC 3339 timestamp"))
		return
	}
	result, err := h.service.VerifyIdentityProof(ctx, &models.IdentityProof{
		DID:        req.DID,
		Challenge:  req.Challenge,
		Domain:     req.Domain,
		Created:    created,
		ProofValue: req.ProofValue,
	})
	if err != nil {
		h.fail(ctx, w, "failed to verify identity proof", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListDiscoverable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	dids, err := h.service.ListDiscoverable(ctx, limit)
	if err != nil {
		h.fail(ctx, w, "failed to list discoverable dids", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"dids": dids})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.AuditTrail(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.fail(ctx, w, "failed to load audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditResponse(events))
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
