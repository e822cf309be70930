package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"baseid/internal/credential/models"
	"baseid/internal/credential/service"
	dErrors "baseid/pkg/domain-errors"
	"baseid/pkg/platform/httputil"
	"baseid/pkg/platform/middleware/request"
	"baseid/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the credential store and verification engine as seen by the
// HTTP layer.
type Service interface {
	Issue(ctx context.Context, req service.IssueRequest) (*models.VerifiableCredential, error)
	Register(ctx context.Context, vc *models.VerifiableCredential) (*models.Record, error)
	Verify(ctx context.Context, vc *models.VerifiableCredential) (*models.VerificationResult, error)
	Revoke(ctx context.Context, issuer, id, reason string) (*models.Record, error)
	Suspend(ctx context.Context, issuer, id, reason string) (*models.Record, error)
	Reinstate(ctx context.Context, issuer, id string) (*models.Record, error)
	Get(ctx context.Context, id string) (*models.Record, error)
	ListBySubject(ctx context.Context, subject string) ([]*models.Record, error)
	ListByIssuer(ctx context.Context, issuer string) ([]*models.Record, error)
}

type Handler struct {
	service      Service
	logger       *slog.Logger
	requireAuth  func(http.Handler) http.Handler
	requireAdmin func(http.Handler) http.Handler
}

// New creates the credential handler. requireAdmin guards server-side
// issuance; requireAuth guards issuer and holder routes.
func New(svc Service, requireAuth, requireAdmin func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger, requireAuth: requireAuth, requireAdmin: requireAdmin}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials/verify", h.handleVerify)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/credentials/issue", h.handleIssue)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/credentials", h.handleRegister)
		r.Get("/credentials", h.handleList)
		r.Get("/credentials/{id}", h.handleGet)
		r.Post("/credentials/{id}/revoke", h.handleRevoke)
		r.Post("/credentials/{id}/suspend", h.handleSuspend)
		r.Post("/credentials/{id}/reinstate", h.handleReinstate)
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IssueRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid issue request", err)
		httputil.WriteError(w, err)
		return
	}
	vc, err := h.service.Issue(ctx, req.ToService())
	if err != nil {
		h.fail(ctx, w, "failed to issue credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issueResponse{Credential: vc})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CredentialRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid register credential request", err)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Register(ctx, req.Credential)
	if err != nil {
		h.fail(ctx, w, "failed to register credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record, requestcontext.Now(ctx)))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CredentialRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid verify request", err)
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Verify(ctx, req.Credential)
	if err != nil {
		h.fail(ctx, w, "failed to verify credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "failed to get credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, requestcontext.Now(ctx)))
}

// handleList serves GET /credentials?subject=<did> or ?issuer=<did>.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := r.URL.Query().Get("subject")
	issuer := r.URL.Query().Get("issuer")

	var (
		records []*models.Record
		err     error
	)
	switch {
	case subject != "" && issuer == "":
		records, err = h.service.ListBySubject(ctx, subject)
	case issuer != "" && subject == "":
		records, err = h.service.ListByIssuer(ctx, issuer)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "exactly one of subject or issuer is required")
	}
	if err != nil {
		h.fail(ctx, w, "failed to list credentials", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(records, requestcontext.Now(ctx)))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req StatusRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid revoke request", err)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Revoke(ctx, requestcontext.DID(ctx), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(ctx, w, "failed to revoke credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, requestcontext.Now(ctx)))
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req StatusRequest
	if err := httputil.Decode(r, &req); err != nil {
		h.warn(ctx, "invalid suspend request", err)
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Suspend(ctx, requestcontext.DID(ctx), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(ctx, w, "failed to suspend credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, requestcontext.Now(ctx)))
}

func (h *Handler) handleReinstate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	record, err := h.service.Reinstate(ctx, requestcontext.DID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "failed to reinstate credential", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record, requestcontext.Now(ctx)))
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
