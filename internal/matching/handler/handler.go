package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealroom/internal/identity"
	"dealroom/internal/matching/models"
	proposalModels "dealroom/internal/proposal/models"
	"dealroom/internal/transport/http/shared"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/httputil"
)

// Service is the matching engine as seen by the HTTP layer.
type Service interface {
	ProposeInterest(ctx context.Context, who identity.Identity, proposalID id.ProposalID, message string) (*models.Candidate, error)
	AcceptCandidate(ctx context.Context, who identity.Identity, candidateID id.CandidateID, version int64) (*proposalModels.Proposal, *models.Candidate, error)
	WithdrawCandidate(ctx context.Context, who identity.Identity, candidateID id.CandidateID) (*models.Candidate, error)
	ListCandidates(ctx context.Context, who identity.Identity, proposalID id.ProposalID) ([]*models.Candidate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/proposals/{proposalID}/candidates", h.handleProposeInterest)
	r.Get("/proposals/{proposalID}/candidates", h.handleListCandidates)
	r.Post("/candidates/{candidateID}/accept", h.handleAccept)
	r.Post("/candidates/{candidateID}/withdraw", h.handleWithdraw)
}

type InterestRequest struct {
	Message string `json:"message"`
}

type AcceptRequest struct {
	Version int64 `json:"version"`
}

type CandidateResponse struct {
	ID         id.CandidateID `json:"id"`
	ProposalID id.ProposalID  `json:"proposal_id"`
	BuyerID    id.UserID      `json:"buyer_id"`
	State      models.State   `json:"state"`
	Message    string         `json:"message,omitempty"`
}

type AcceptResponse struct {
	Candidate       CandidateResponse     `json:"candidate"`
	ProposalStatus  proposalModels.Status `json:"proposal_status"`
	ProposalVersion int64                 `json:"proposal_version"`
}

type ListResponse struct {
	Candidates []CandidateResponse `json:"candidates"`
}

func toResponse(c *models.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:         c.ID,
		ProposalID: c.ProposalID,
		BuyerID:    c.BuyerID,
		State:      c.State,
		Message:    c.Message,
	}
}

func (h *Handler) handleProposeInterest(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	proposalID, ok := shared.PathID(w, r, h.logger, "proposalID", id.ParseProposalID)
	if !ok {
		return
	}
	var req InterestRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, r, h.logger, "invalid interest request", err)
		return
	}
	c, err := h.service.ProposeInterest(r.Context(), who, proposalID, req.Message)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to register interest", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	proposalID, ok := shared.PathID(w, r, h.logger, "proposalID", id.ParseProposalID)
	if !ok {
		return
	}
	list, err := h.service.ListCandidates(r.Context(), who, proposalID)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to list candidates", err)
		return
	}
	resp := ListResponse{Candidates: make([]CandidateResponse, 0, len(list))}
	for _, c := range list {
		resp.Candidates = append(resp.Candidates, toResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	candidateID, ok := shared.PathID(w, r, h.logger, "candidateID", id.ParseCandidateID)
	if !ok {
		return
	}
	var req AcceptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, r, h.logger, "invalid accept request", err)
		return
	}
	if req.Version <= 0 {
		shared.WriteError(w, r, h.logger, "invalid accept request",
			dErrors.New(dErrors.CodeValidation, "version must be a positive integer"))
		return
	}
	p, c, err := h.service.AcceptCandidate(r.Context(), who, candidateID, req.Version)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to accept candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AcceptResponse{
		Candidate:       toResponse(c),
		ProposalStatus:  p.Status,
		ProposalVersion: p.Version,
	})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	candidateID, ok := shared.PathID(w, r, h.logger, "candidateID", id.ParseCandidateID)
	if !ok {
		return
	}
	c, err := h.service.WithdrawCandidate(r.Context(), who, candidateID)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to withdraw candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(c))
}
