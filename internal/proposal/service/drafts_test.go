package service_test

import (
	"time"

	"dealroom/internal/identity"
	"dealroom/internal/proposal/models"
	"dealroom/internal/proposal/service"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/sentinel"
)

func (s *ServiceSuite) attach(p *models.Proposal, name string) (*models.Proposal, *models.Document) {
	p, doc, err := s.service.AttachDocument(s.ctx, s.owner, p.ID, service.Attachment{
		Name: name, ContentType: "application/pdf", Content: []byte("%PDF-1.7"),
	}, p.Version)
	s.Require().NoError(err)
	return p, doc
}

func (s *ServiceSuite) TestRemoveDocument() {
	s.Run("owner detaches a document and its bytes are released", func() {
		p, kept := s.attach(s.draft(), "accounts.pdf")
		p, gone := s.attach(p, "lease.pdf")

		p, err := s.service.RemoveDocument(s.ctx, s.owner, p.ID, gone.ID, p.Version)

		s.Require().NoError(err)
		s.Len(p.Documents, 1)
		s.Equal(kept.ID, p.Documents[0].ID)
		_, err = s.docs.Get(s.ctx, gone.FileRef)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.docs.Get(s.ctx, kept.FileRef)
		s.NoError(err)
		s.Equal(string(identity.OpProposalDetach), s.actions(p.ID)[len(s.actions(p.ID))-1])
	})

	s.Run("failed detach keeps the bytes", func() {
		p, doc := s.attach(s.draft(), "accounts.pdf")

		_, err := s.service.RemoveDocument(s.ctx, s.owner, p.ID, doc.ID, p.Version-1)

		s.True(dErrors.HasCode(err, dErrors.CodeConcurrentModification))
		_, err = s.docs.Get(s.ctx, doc.FileRef)
		s.NoError(err)
	})

	s.Run("unknown document is not found", func() {
		p := s.draft()
		_, err := s.service.RemoveDocument(s.ctx, s.owner, p.ID, id.NewDocumentID(), p.Version)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("submitted proposals keep their documents", func() {
		p, doc := s.attach(s.draft(), "accounts.pdf")
		p, err := s.service.Submit(s.ctx, s.owner, p.ID, p.Version)
		s.Require().NoError(err)

		_, err = s.service.RemoveDocument(s.ctx, s.owner, p.ID, doc.ID, p.Version)

		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("another proposer may not detach", func() {
		p, doc := s.attach(s.draft(), "accounts.pdf")
		_, err := s.service.RemoveDocument(s.ctx, user(identity.RoleProposer), p.ID, doc.ID, p.Version)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestDeleteDraft() {
	s.Run("owner deletes a draft and the audit trail survives", func() {
		p, doc := s.attach(s.draft(), "accounts.pdf")

		err := s.service.DeleteDraft(s.ctx, s.owner, p.ID, p.Version)

		s.Require().NoError(err)
		_, err = s.service.View(s.ctx, s.owner, p.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.docs.Get(s.ctx, doc.FileRef)
		s.ErrorIs(err, sentinel.ErrNotFound)

		entries, err := s.store.Audit().ListByProposal(s.ctx, p.ID)
		s.Require().NoError(err)
		last := entries[len(entries)-1]
		s.Equal(string(identity.OpProposalDelete), last.Action)
		s.Equal(string(models.StatusDraft), last.PreviousState)
		s.Equal("deleted", last.NewState)
	})

	s.Run("submitted proposals cannot be deleted", func() {
		p := s.submitted()

		err := s.service.DeleteDraft(s.ctx, s.owner, p.ID, p.Version)

		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		_, err = s.store.Proposals().FindByID(s.ctx, p.ID)
		s.NoError(err)
	})

	s.Run("stale version is rejected", func() {
		p := s.draft()
		err := s.service.DeleteDraft(s.ctx, s.owner, p.ID, p.Version-1)
		s.True(dErrors.HasCode(err, dErrors.CodeConcurrentModification))
	})

	s.Run("only the owner may delete", func() {
		p := s.draft()
		err := s.service.DeleteDraft(s.ctx, s.admin, p.ID, p.Version)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestPendingReviews() {
	first := s.submitted()
	s.draft()
	reviewing := s.submitted()
	reviewing, err := s.service.StartReview(s.ctx, s.admin, reviewing.ID, reviewing.Version)
	s.Require().NoError(err)
	s.approved()
	later := s.draft()
	later, err = s.service.Submit(s.at(time.Hour), s.owner, later.ID, later.Version)
	s.Require().NoError(err)

	queue, err := s.service.PendingReviews(s.ctx, s.admin, 0)

	s.Require().NoError(err)
	got := make([]id.ProposalID, len(queue))
	for i, p := range queue {
		got[i] = p.ID
	}
	s.Len(got, 3)
	s.ElementsMatch([]id.ProposalID{first.ID, reviewing.ID}, got[:2])
	s.Equal(later.ID, got[2])

	_, err = s.service.PendingReviews(s.ctx, s.owner, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) underReview() *models.Proposal {
	p := s.submitted()
	p, err := s.service.StartReview(s.ctx, s.admin, p.ID, p.Version)
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) TestBatchDecide() {
	s.Run("each item commits or fails on its own", func() {
		a, b := s.underReview(), s.underReview()
		draft := s.draft()

		res, err := s.service.BatchDecide(s.ctx, s.admin, []service.BatchItem{
			{ProposalID: a.ID, Version: a.Version},
			{ProposalID: draft.ID, Version: draft.Version},
			{ProposalID: b.ID, Version: b.Version - 1},
			{ProposalID: id.NewProposalID(), Version: 1},
		}, true, "")

		s.Require().NoError(err)
		s.Equal(4, res.Total)
		s.Equal([]id.ProposalID{a.ID}, res.Succeeded)
		s.Require().Len(res.Failed, 3)
		s.Equal(dErrors.CodeInvalidState, res.Failed[0].Code)
		s.Equal(dErrors.CodeConcurrentModification, res.Failed[1].Code)
		s.Equal(dErrors.CodeNotFound, res.Failed[2].Code)

		got, err := s.store.Proposals().FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, got.Status)
		got, err = s.store.Proposals().FindByID(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusUnderReview, got.Status)
	})

	s.Run("batch rejection records the reason on each proposal", func() {
		a, b := s.underReview(), s.underReview()

		res, err := s.service.BatchDecide(s.ctx, s.admin, []service.BatchItem{
			{ProposalID: a.ID, Version: a.Version},
			{ProposalID: b.ID, Version: b.Version},
		}, false, "incomplete financials")

		s.Require().NoError(err)
		s.Len(res.Succeeded, 2)
		s.Empty(res.Failed)
		for _, pid := range res.Succeeded {
			got, err := s.store.Proposals().FindByID(s.ctx, pid)
			s.Require().NoError(err)
			s.Equal(models.StatusRejected, got.Status)
			s.Equal("incomplete financials", got.RejectionReason)
		}
	})

	s.Run("malformed batches touch nothing", func() {
		p := s.underReview()
		one := []service.BatchItem{{ProposalID: p.ID, Version: p.Version}}
		tooMany := make([]service.BatchItem, service.MaxBatchSize+1)
		for i := range tooMany {
			tooMany[i] = service.BatchItem{ProposalID: id.NewProposalID(), Version: 1}
		}

		cases := []struct {
			name    string
			who     identity.Identity
			items   []service.BatchItem
			approve bool
			comment string
		}{
			{"empty", s.admin, nil, true, ""},
			{"too many", s.admin, tooMany, true, ""},
			{"no reason", s.admin, one, false, " "},
			{"named twice", s.admin, append(one, one...), true, ""},
			{"not the admin", s.owner, one, true, ""},
		}
		for _, tc := range cases {
			_, err := s.service.BatchDecide(s.ctx, tc.who, tc.items, tc.approve, tc.comment)
			s.Error(err, tc.name)
		}
		got, err := s.store.Proposals().FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(p.Version, got.Version)
	})
}
