package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealroom/internal/audit"
	"dealroom/internal/audit/service"
	"dealroom/internal/identity"
	"dealroom/internal/transport/http/shared"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/httputil"
)

type Service interface {
	List(ctx context.Context, who identity.Identity, q service.Query) ([]*audit.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.handleList)
}

type ListResponse struct {
	Entries []*audit.Entry `json:"entries"`
}

// handleList serves GET /admin/audit?proposal_id=...|entity_id=...[&action=...].
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return
	}
	params := r.URL.Query()
	q := service.Query{EntityID: params.Get("entity_id"), Action: params.Get("action")}
	if raw := params.Get("proposal_id"); raw != "" {
		pid, err := id.ParseProposalID(raw)
		if err != nil {
			shared.WriteError(w, r, h.logger, "invalid proposal_id", err)
			return
		}
		q.ProposalID = pid
	}

	entries, err := h.service.List(r.Context(), who, q)
	if err != nil {
		shared.WriteError(w, r, h.logger, "failed to list audit entries", err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Entries: entries})
}
