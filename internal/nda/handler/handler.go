package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dealroom/internal/identity"
	"dealroom/internal/nda/models"
	"dealroom/internal/transport/http/shared"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/httputil"
	"dealroom/pkg/requestcontext"
)

// Service is the NDA gate as seen by the HTTP layer.
type Service interface {
	RequestNDA(ctx context.Context, who identity.Identity, proposalID id.ProposalID) (*models.Record, error)
	SignNDA(ctx context.Context, who identity.Identity, ndaID id.NDAID) (*models.Record, error)
	Records(ctx context.Context, who identity.Identity, proposalID id.ProposalID) ([]*models.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/proposals/{proposalID}/ndas", h.handleRequest)
	r.Get("/proposals/{proposalID}/ndas", h.handleList)
	r.Post("/ndas/{ndaID}/sign", h.handleSign)
}

type RecordResponse struct {
	ID          id.NDAID      `json:"id"`
	ProposalID  id.ProposalID `json:"proposal_id"`
	BuyerID     id.UserID     `json:"buyer_id"`
	State       string        `json:"state"`
	RequestedAt time.Time     `json:"requested_at"`
	SignedAt    *time.Time    `json:"signed_at,omitempty"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
}

type ListResponse struct {
	Records []RecordResponse `json:"records"`
}

func toResponse(r *models.Record, now time.Time) RecordResponse {
	return RecordResponse{
		ID:          r.ID,
		ProposalID:  r.ProposalID,
		BuyerID:     r.BuyerID,
		State:       r.State(now),
		RequestedAt: r.RequestedAt,
		SignedAt:    r.SignedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	proposalID, ok := shared.PathID(w, r, h.logger, "proposalID", id.ParseProposalID)
	if !ok {
		return
	}
	rec, err := h.service.RequestNDA(r.Context(), who, proposalID)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to request nda", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(rec, requestcontext.Now(r.Context())))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	proposalID, ok := shared.PathID(w, r, h.logger, "proposalID", id.ParseProposalID)
	if !ok {
		return
	}
	records, err := h.service.Records(r.Context(), who, proposalID)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to list ndas", err)
		return
	}
	now := requestcontext.Now(r.Context())
	resp := ListResponse{Records: make([]RecordResponse, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, toResponse(rec, now))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	ndaID, ok := shared.PathID(w, r, h.logger, "ndaID", id.ParseNDAID)
	if !ok {
		return
	}
	rec, err := h.service.SignNDA(r.Context(), who, ndaID)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to sign nda", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec, requestcontext.Now(r.Context())))
}
