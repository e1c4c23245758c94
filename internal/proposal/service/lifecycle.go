package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"dealroom/internal/audit"
	"dealroom/internal/document"
	"dealroom/internal/identity"
	"dealroom/internal/notify"
	"dealroom/internal/proposal/models"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

const (
	// MaxDocumentSize bounds a single attachment.
	MaxDocumentSize       = 20 << 20
	MaxDocumentNameLength = 255
)

// CreateDraft starts an empty draft owned by the calling proposer.
func (s *Service) CreateDraft(ctx context.Context, who identity.Identity) (*models.Proposal, error) {
	now := requestcontext.Now(ctx)
	p := models.NewDraft(who.ID, now)

	ctx, span := s.start(ctx, identity.OpProposalCreate, p.ID)
	defer span.End()
	defer s.observe(identity.OpProposalCreate, time.Now())

	if err := identity.Authorize(who, identity.OpProposalCreate, identity.RelationNone, ""); err != nil {
		return nil, s.fail(ctx, span, identity.OpProposalCreate, p.ID, err)
	}
	err := s.uow.RunInTx(ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
		if err := tx.Proposals().Create(ctx, p); err != nil {
			return store.Translate(err, "proposal", p.ID.String())
		}
		entry := audit.NewEntry(ctx, who, audit.ProposalTarget(p.ID), string(identity.OpProposalCreate), "", string(p.Status))
		return tx.Audit().Append(ctx, entry)
	})
	if err != nil {
		return nil, s.fail(ctx, span, identity.OpProposalCreate, p.ID, err)
	}
	s.logger.InfoContext(ctx, "draft created",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", p.ID,
		"actor_id", who.ID,
	)
	return p, nil
}

// AutoSave replaces the non-nil field sets of a draft.
func (s *Service) AutoSave(ctx context.Context, who identity.Identity, proposalID id.ProposalID, public, confidential models.Fields, version int64) (*models.Proposal, error) {
	return s.mutate(ctx, mutation{
		op: identity.OpProposalAutoSave, who: who, id: proposalID, version: version,
		apply: func(p *models.Proposal, now time.Time) error {
			return p.AutoSave(public, confidential, now)
		},
	})
}

// Attachment is an uploaded document before it is stored.
type Attachment struct {
	Name         string
	ContentType  string
	Content      []byte
	Confidential bool
}

// AttachDocument stores the bytes first and then records the reference on the
// draft. If the draft changed in between, the stored object is removed again.
func (s *Service) AttachDocument(ctx context.Context, who identity.Identity, proposalID id.ProposalID, in Attachment, version int64) (*models.Proposal, *models.Document, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > MaxDocumentNameLength {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "document name is required and must be short").WithEntity(proposalID.String())
	}
	if len(in.Content) == 0 || len(in.Content) > MaxDocumentSize {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "document must be between 1 byte and 20 MiB").WithEntity(proposalID.String())
	}
	if in.ContentType == "" {
		in.ContentType = "application/octet-stream"
	}

	// Reject early so a doomed upload never reaches the document store.
	p, err := s.uow.Proposals().FindByID(ctx, proposalID)
	if err != nil {
		return nil, nil, store.Translate(err, "proposal", proposalID.String())
	}
	if err := identity.Authorize(who, identity.OpProposalAttach, p.RelationOf(who), proposalID.String()); err != nil {
		return nil, nil, err
	}
	if err := p.CheckVersion(version); err != nil {
		return nil, nil, err
	}
	if p.Status != models.StatusDraft {
		return nil, nil, dErrors.InvalidState(proposalID.String(), string(p.Status), string(models.StatusDraft))
	}

	doc := models.Document{
		ID:           id.NewDocumentID(),
		Name:         in.Name,
		ContentType:  in.ContentType,
		Size:         int64(len(in.Content)),
		Confidential: in.Confidential,
		AttachedAt:   requestcontext.Now(ctx),
	}
	ref, err := s.documents.Put(ctx, document.Key(proposalID, doc.ID), in.Content, in.ContentType)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document").WithEntity(proposalID.String())
	}
	doc.FileRef = ref

	updated, err := s.mutate(ctx, mutation{
		op: identity.OpProposalAttach, who: who, id: proposalID, version: version,
		detail: doc.ID.String(),
		apply: func(p *models.Proposal, now time.Time) error {
			return p.AttachDocument(doc, now)
		},
	})
	if err != nil {
		s.releaseDocuments(ctx, proposalID, ref)
		return nil, nil, err
	}
	return updated, &doc, nil
}

// RemoveDocument detaches a document from a draft. The stored bytes are
// released only once the detach has committed.
func (s *Service) RemoveDocument(ctx context.Context, who identity.Identity, proposalID id.ProposalID, docID id.DocumentID, version int64) (*models.Proposal, error) {
	var removed models.Document
	p, err := s.mutate(ctx, mutation{
		op: identity.OpProposalDetach, who: who, id: proposalID, version: version,
		detail: docID.String(),
		apply: func(p *models.Proposal, now time.Time) error {
			doc, err := p.RemoveDocument(docID, now)
			removed = doc
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	s.releaseDocuments(ctx, proposalID, removed.FileRef)
	return p, nil
}

// DeleteDraft removes a draft outright. The audit trail keeps its creation
// and deletion entries.
func (s *Service) DeleteDraft(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) error {
	p, err := s.mutate(ctx, mutation{
		op: identity.OpProposalDelete, who: who, id: proposalID, version: version,
		remove: true,
		apply: func(p *models.Proposal, _ time.Time) error {
			return p.CheckDeletable()
		},
	})
	if err != nil {
		return err
	}
	refs := make([]string, 0, len(p.Documents))
	for _, doc := range p.Documents {
		refs = append(refs, doc.FileRef)
	}
	s.releaseDocuments(ctx, proposalID, refs...)
	return nil
}

// releaseDocuments deletes stored bytes nothing references any more. A
// failure leaves an orphan behind and is only logged.
func (s *Service) releaseDocuments(ctx context.Context, proposalID id.ProposalID, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.documents.Delete(ctx, ref); err != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned document",
				"request_id", requestcontext.RequestID(ctx),
				"proposal_id", proposalID,
				"error", err,
			)
		}
	}
}

// Submit moves a complete draft into the review queue.
func (s *Service) Submit(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error) {
	p, err := s.mutate(ctx, mutation{
		op: identity.OpProposalSubmit, who: who, id: proposalID, version: version,
		apply: func(p *models.Proposal, now time.Time) error {
			return p.Submit(now, s.lifecycle.ReviewTimeout)
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.ownerEvent(ctx, p, notify.KindProposalSubmitted, ""))
	return p, nil
}

// StartReview is an administrator picking a submitted proposal up.
func (s *Service) StartReview(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error) {
	return s.mutate(ctx, mutation{
		op: identity.OpProposalReview, who: who, id: proposalID, version: version,
		apply: func(p *models.Proposal, now time.Time) error {
			return p.StartReview(now)
		},
	})
}

// Decide approves or rejects a proposal under review. A rejection needs a
// comment; it becomes the rejection reason.
func (s *Service) Decide(ctx context.Context, who identity.Identity, proposalID id.ProposalID, approve bool, comment string, version int64) (*models.Proposal, error) {
	if err := s.checkMessage(proposalID, comment); err != nil {
		return nil, err
	}
	p, err := s.mutate(ctx, mutation{
		op: identity.OpProposalDecide, who: who, id: proposalID, version: version,
		detail: strings.TrimSpace(comment),
		apply: func(p *models.Proposal, now time.Time) error {
			return p.Decide(approve, comment, now, s.lifecycle.ArchiveAfter)
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.ownerEvent(ctx, p, notify.KindProposalDecided, string(p.Status)))
	return p, nil
}

// Withdraw is the owner pulling a live proposal. Candidates and NDA records stay
// as they are, and confidential access already granted is not revoked. The
// optional reason is kept on the audit entry.
func (s *Service) Withdraw(ctx context.Context, who identity.Identity, proposalID id.ProposalID, reason string, version int64) (*models.Proposal, error) {
	if err := s.checkMessage(proposalID, reason); err != nil {
		return nil, err
	}
	return s.mutate(ctx, mutation{
		op: identity.OpProposalWithdraw, who: who, id: proposalID, version: version,
		detail: strings.TrimSpace(reason),
		apply: func(p *models.Proposal, now time.Time) error {
			return p.Withdraw(now)
		},
	})
}

// Complete closes a disclosed deal and starts its archive clock.
func (s *Service) Complete(ctx context.Context, who identity.Identity, proposalID id.ProposalID, version int64) (*models.Proposal, error) {
	return s.mutate(ctx, mutation{
		op: identity.OpProposalComplete, who: who, id: proposalID, version: version,
		apply: func(p *models.Proposal, now time.Time) error {
			return p.Complete(now, s.lifecycle.ArchiveAfter)
		},
	})
}

// Revert is the administrator override back out of a decision or an expiry.
func (s *Service) Revert(ctx context.Context, who identity.Identity, proposalID id.ProposalID, target models.Status, version int64) (*models.Proposal, error) {
	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown target status "+string(target)).WithEntity(proposalID.String())
	}
	p, err := s.mutate(ctx, mutation{
		op: identity.OpProposalRevert, who: who, id: proposalID, version: version,
		apply: func(p *models.Proposal, now time.Time) error {
			return p.Revert(target, now, s.lifecycle.ReviewTimeout)
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.ownerEvent(ctx, p, notify.KindProposalReverted, string(p.Status)))
	return p, nil
}

func (s *Service) checkMessage(proposalID id.ProposalID, msg string) error {
	if utf8.RuneCountInString(msg) > s.lifecycle.MaxMessageLength {
		return dErrors.New(dErrors.CodeValidation, "message is too long").WithEntity(proposalID.String())
	}
	return nil
}

func (s *Service) ownerEvent(ctx context.Context, p *models.Proposal, kind notify.Kind, detail string) notify.Event {
	return notify.Event{
		Kind:       kind,
		UserID:     p.OwnerID,
		ProposalID: p.ID,
		Detail:     detail,
		At:         requestcontext.Now(ctx),
	}
}
