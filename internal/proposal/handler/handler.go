package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	"dealroom/internal/proposal/models"
	"dealroom/internal/proposal/service"
	"dealroom/internal/transport/http/shared"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/httputil"
)

// Service is the slice of the proposal registry the HTTP layer drives.
type Service interface {
	CreateDraft(ctx context.Context, who identity.Identity) (*models.Proposal, error)
	AutoSave(ctx context.Context, who identity.Identity, proposalID id.ProposalID, public, confidential models.Fields, version int64) (*models.Proposal, error)
	AttachDocument(ctx context.Context, who identity.Identity, proposalID id.ProposalID, in service.Attachment, version int64) (*models.Proposal, *models.Document, error)
	RemoveDocument(ctx context.Context, who identity.Identity, proposalID id.ProposalID, docID id.DocumentID, version int64) (*models.Proposal, error)
	DeleteDraft(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) error
	Submit(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error)
	StartReview(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error)
	Decide(ctx context.Context, who identity.Identity, proposalID id.ProposalID, approve bool, comment string, version int64) (*models.Proposal, error)
	Withdraw(ctx context.Context, who identity.Identity, proposalID id.ProposalID, reason string, version int64) (*models.Proposal, error)
	Complete(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error)
	Revert(ctx context.Context, who identity.Identity, proposalID id.ProposalID, target models.Status, version int64) (*models.Proposal, error)
	View(ctx context.Context, who identity.Identity, proposalID id.ProposalID) (*models.View, error)
	FetchDocument(ctx context.Context, who identity.Identity, proposalID id.ProposalID, docID id.DocumentID) (*models.Document, []byte, error)
	History(ctx context.Context, who identity.Identity, proposalID id.ProposalID) ([]*audit.Entry, error)
	Stats(ctx context.Context, who identity.Identity) (*service.Stats, error)
	PendingReviews(ctx context.Context, who identity.Identity, limit int) ([]*models.Proposal, error)
	BatchDecide(ctx context.Context, who identity.Identity, items []service.BatchItem, approve bool, comment string) (*service.BatchResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the proposal routes. Authentication is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/proposals", h.handleCreateDraft)
	r.Get("/proposals/{proposalID}", h.handleView)
	r.Delete("/proposals/{proposalID}", h.handleDeleteDraft)
	r.Put("/proposals/{proposalID}/draft", h.handleAutoSave)
	r.Post("/proposals/{proposalID}/documents", h.handleAttachDocument)
	r.Get("/proposals/{proposalID}/documents/{documentID}", h.handleFetchDocument)
	r.Delete("/proposals/{proposalID}/documents/{documentID}", h.handleRemoveDocument)
	r.Post("/proposals/{proposalID}/submit", h.handleTransition(h.service.Submit))
	r.Post("/proposals/{proposalID}/review", h.handleTransition(h.service.StartReview))
	r.Post("/proposals/{proposalID}/withdraw", h.handleWithdraw)
	r.Post("/proposals/{proposalID}/complete", h.handleTransition(h.service.Complete))
	r.Post("/proposals/{proposalID}/decision", h.handleDecide)
	r.Post("/proposals/{proposalID}/revert", h.handleRevert)
	r.Get("/proposals/{proposalID}/history", h.handleHistory)
	r.Get("/admin/proposals/stats", h.handleStats)
	r.Get("/admin/proposals/queue", h.handleQueue)
	r.Post("/admin/proposals/batch-decision", h.handleBatchDecide)
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	p, err := h.service.CreateDraft(ctx, who)
	if err != nil {
		h.writeError(w, r, "failed to create draft", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fullView(who, p))
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	v, err := h.service.View(r.Context(), who, proposalID)
	if err != nil {
		h.writeError(w, r, "failed to view proposal", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleAutoSave(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req AutoSaveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid autosave request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "invalid autosave request", err)
		return
	}
	p, err := h.service.AutoSave(r.Context(), who, proposalID, req.PublicFields, req.ConfidentialFields, req.Version)
	if err != nil {
		h.writeError(w, r, "failed to save draft", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fullView(who, p))
}

// handleAttachDocument takes a multipart upload with a "file" part and the
// "version" and optional "confidential" form values.
func (h *Handler) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		h.writeError(w, r, "invalid upload", dErrors.Wrap(err, dErrors.CodeValidation, "invalid multipart upload"))
		return
	}
	version, err := strconv.ParseInt(r.FormValue("version"), 10, 64)
	if err != nil || version <= 0 {
		h.writeError(w, r, "invalid upload", dErrors.New(dErrors.CodeValidation, "version must be a positive integer"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, "invalid upload", dErrors.Wrap(err, dErrors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, "invalid upload", dErrors.Wrap(err, dErrors.CodeValidation, "failed to read upload"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	p, doc, err := h.service.AttachDocument(r.Context(), who, proposalID, service.Attachment{
		Name:         header.Filename,
		ContentType:  contentType,
		Content:      content,
		Confidential: r.FormValue("confidential") == "true",
	}, version)
	if err != nil {
		h.writeError(w, r, "failed to attach document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, AttachResponse{Document: doc, Version: p.Version})
}

func (h *Handler) handleFetchDocument(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	docID, ok := shared.PathID(w, r, h.logger, "documentID", id.ParseDocumentID)
	if !ok {
		return
	}
	doc, content, err := h.service.FetchDocument(r.Context(), who, proposalID, docID)
	if err != nil {
		h.writeError(w, r, "failed to fetch document", err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(doc.Name, `"`, "")+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// handleRemoveDocument takes the expected version as the "version" query value.
func (h *Handler) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	docID, ok := shared.PathID(w, r, h.logger, "documentID", id.ParseDocumentID)
	if !ok {
		return
	}
	version, err := queryVersion(r)
	if err != nil {
		h.writeError(w, r, "invalid document removal", err)
		return
	}
	p, err := h.service.RemoveDocument(r.Context(), who, proposalID, docID, version)
	if err != nil {
		h.writeError(w, r, "failed to remove document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fullView(who, p))
}

func (h *Handler) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	version, err := queryVersion(r)
	if err != nil {
		h.writeError(w, r, "invalid draft deletion", err)
		return
	}
	if err := h.service.DeleteDraft(r.Context(), who, proposalID, version); err != nil {
		h.writeError(w, r, "failed to delete draft", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryVersion(r *http.Request) (int64, error) {
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "version must be a positive integer")
	}
	return version, nil
}

type transitionFunc func(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error)

// handleTransition serves the operations whose only input is the version.
func (h *Handler) handleTransition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, proposalID, ok := h.target(w, r)
		if !ok {
			return
		}
		var req VersionRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.writeError(w, r, "invalid transition request", err)
			return
		}
		if err := req.Validate(); err != nil {
			h.writeError(w, r, "invalid transition request", err)
			return
		}
		p, err := fn(r.Context(), who, proposalID, req.Version)
		if err != nil {
			h.writeError(w, r, "transition failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, fullView(who, p))
	}
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid decision request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "invalid decision request", err)
		return
	}
	p, err := h.service.Decide(r.Context(), who, proposalID, *req.Approve, req.Comment, req.Version)
	if err != nil {
		h.writeError(w, r, "decision failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fullView(who, p))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid withdraw request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "invalid withdraw request", err)
		return
	}
	p, err := h.service.Withdraw(r.Context(), who, proposalID, req.Reason, req.Version)
	if err != nil {
		h.writeError(w, r, "withdraw failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fullView(who, p))
}

func (h *Handler) handleRevert(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req RevertRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid revert request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "invalid revert request", err)
		return
	}
	p, err := h.service.Revert(r.Context(), who, proposalID, models.Status(req.Target), req.Version)
	if err != nil {
		h.writeError(w, r, "revert failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fullView(who, p))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	who, proposalID, ok := h.target(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), who, proposalID)
	if err != nil {
		h.writeError(w, r, "failed to load history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), who)
	if err != nil {
		h.writeError(w, r, "failed to load stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// handleQueue serves the review queue; "limit" is optional.
func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, "invalid queue request", dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	pending, err := h.service.PendingReviews(r.Context(), who, limit)
	if err != nil {
		h.writeError(w, r, "failed to load review queue", err)
		return
	}
	out := QueueResponse{Proposals: make([]*models.View, len(pending))}
	for i, p := range pending {
		out.Proposals[i] = fullView(who, p)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleBatchDecide(w http.ResponseWriter, r *http.Request) {
	who, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req BatchDecisionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid batch decision", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, "invalid batch decision", err)
		return
	}
	res, err := h.service.BatchDecide(r.Context(), who, req.Items, *req.Approve, req.Comment)
	if err != nil {
		h.writeError(w, r, "batch decision failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	return shared.Caller(w, r, h.logger)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (identity.Identity, id.ProposalID, bool) {
	who, ok := shared.Caller(w, r, h.logger)
	if !ok {
		return identity.Identity{}, id.ProposalID{}, false
	}
	proposalID, ok := shared.PathID(w, r, h.logger, "proposalID", id.ParseProposalID)
	return who, proposalID, ok
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	shared.WriteError(w, r, h.logger, msg, err)
}

// fullView renders a proposal returned from a mutation. Only owners and admins
// can mutate, and both see every field.
func fullView(who identity.Identity, p *models.Proposal) *models.View {
	basis := models.BasisAdmin
	if p.IsOwnedBy(who.ID) {
		basis = models.BasisOwner
	}
	return models.NewView(p, models.Visibility{Public: true, Confidential: true, Basis: basis})
}
