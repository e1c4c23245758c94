package service

import (
	"context"
	"time"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	"dealroom/internal/proposal/models"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

// View returns the proposal redacted for who. Every decision about a viewer
// other than the owner is audited, including denials; the view fails if that
// entry cannot be written.
func (s *Service) View(ctx context.Context, who identity.Identity, proposalID id.ProposalID) (*models.View, error) {
	ctx, span := s.start(ctx, identity.OpProposalView, proposalID)
	defer span.End()
	defer s.observe(identity.OpProposalView, time.Now())

	p, vis, err := s.visibility(ctx, who, proposalID, identity.OpProposalView)
	if err != nil {
		return nil, s.fail(ctx, span, identity.OpProposalView, proposalID, err)
	}
	if !vis.Public {
		return nil, s.fail(ctx, span, identity.OpProposalView, proposalID,
			dErrors.Forbidden(proposalID.String(), "proposal is not visible to this user"))
	}

	v := models.NewView(p, vis)
	if n, err := s.views.Increment(ctx, proposalID); err != nil {
		s.logger.WarnContext(ctx, "failed to count view",
			"request_id", requestcontext.RequestID(ctx),
			"proposal_id", proposalID,
			"error", err,
		)
	} else {
		v.Views = n
	}
	if p.IsOwnedBy(who.ID) && p.Status == models.StatusDraft {
		next := s.NextAutoSaveAt(p)
		v.NextAutoSaveAt = &next
	}
	return v, nil
}

// FetchDocument returns an attachment's metadata and bytes when who may see it.
func (s *Service) FetchDocument(ctx context.Context, who identity.Identity, proposalID id.ProposalID, docID id.DocumentID) (*models.Document, []byte, error) {
	ctx, span := s.start(ctx, identity.OpProposalView, proposalID)
	defer span.End()

	p, vis, err := s.visibility(ctx, who, proposalID, identity.OpProposalView)
	if err != nil {
		return nil, nil, s.fail(ctx, span, identity.OpProposalView, proposalID, err)
	}
	doc, ok := p.Document(docID)
	if !ok {
		return nil, nil, dErrors.NotFound("document", docID.String())
	}
	if !vis.CanSeeDocument(doc) {
		return nil, nil, s.fail(ctx, span, identity.OpProposalView, proposalID,
			dErrors.Forbidden(docID.String(), "document is not visible to this user"))
	}
	content, err := s.documents.Get(ctx, doc.FileRef)
	if err != nil {
		return nil, nil, s.fail(ctx, span, identity.OpProposalView, proposalID, store.Translate(err, "document", docID.String()))
	}
	return &doc, content, nil
}

// visibility loads the proposal and asks the gate what who may see.
func (s *Service) visibility(ctx context.Context, who identity.Identity, proposalID id.ProposalID, op identity.Operation) (*models.Proposal, models.Visibility, error) {
	p, err := s.uow.Proposals().FindByID(ctx, proposalID)
	if err != nil {
		return nil, models.Visibility{}, store.Translate(err, "proposal", proposalID.String())
	}
	if err := identity.Authorize(who, op, p.RelationOf(who), proposalID.String()); err != nil {
		return nil, models.Visibility{}, err
	}
	vis, err := s.gate.Visibility(ctx, who, p)
	if err != nil {
		return nil, models.Visibility{}, err
	}
	if s.metrics != nil {
		s.metrics.IncrementDisclosure(vis.Level(), string(vis.Basis))
	}
	if !p.IsOwnedBy(who.ID) {
		entry := audit.NewEntry(ctx, who, audit.ProposalTarget(proposalID), audit.ActionDisclosure, "", vis.Level()).
			WithDetail(string(vis.Basis))
		if err := s.uow.Audit().Append(ctx, entry); err != nil {
			return nil, models.Visibility{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record disclosure decision")
		}
	}
	return p, vis, nil
}

// History returns the proposal's audit trail in order.
func (s *Service) History(ctx context.Context, who identity.Identity, proposalID id.ProposalID) ([]*audit.Entry, error) {
	p, err := s.uow.Proposals().FindByID(ctx, proposalID)
	if err != nil {
		return nil, store.Translate(err, "proposal", proposalID.String())
	}
	if err := identity.Authorize(who, identity.OpProposalHistory, p.RelationOf(who), proposalID.String()); err != nil {
		return nil, err
	}
	entries, err := s.uow.Audit().ListByProposal(ctx, proposalID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history").WithEntity(proposalID.String())
	}
	return entries, nil
}

type Stats struct {
	ByStatus map[models.Status]int `json:"by_status"`
	Total    int                   `json:"total"`
	// StaleDrafts counts drafts untouched for longer than the archive period.
	StaleDrafts int `json:"stale_drafts"`
}

func (s *Service) Stats(ctx context.Context, who identity.Identity) (*Stats, error) {
	if err := identity.Authorize(who, identity.OpProposalStats, identity.RelationNone, ""); err != nil {
		return nil, err
	}
	counts, err := s.uow.Proposals().CountByStatus(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count proposals")
	}
	stale, err := s.uow.Proposals().CountStaleDrafts(ctx, requestcontext.Now(ctx).Add(-s.lifecycle.ArchiveAfter))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count stale drafts")
	}
	out := &Stats{ByStatus: make(map[models.Status]int, len(models.AllStatuses)), StaleDrafts: stale}
	for _, st := range models.AllStatuses {
		out.ByStatus[st] = counts[st]
		out.Total += counts[st]
	}
	return out, nil
}

const (
	defaultQueueLimit = 100
	maxQueueLimit     = 500
)

// PendingReviews is the administrators' queue: submitted and under-review
// proposals, longest waiting first.
func (s *Service) PendingReviews(ctx context.Context, who identity.Identity, limit int) ([]*models.Proposal, error) {
	if err := identity.Authorize(who, identity.OpProposalQueue, identity.RelationNone, ""); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	limit = min(limit, maxQueueLimit)
	pending, err := s.uow.Proposals().ListByStatus(ctx,
		[]models.Status{models.StatusSubmitted, models.StatusUnderReview}, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load review queue")
	}
	return pending, nil
}
