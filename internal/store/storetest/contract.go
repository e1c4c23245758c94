// Package storetest holds the behaviour every store.UnitOfWork implementation
// must show. Implementations run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	matchingModels "dealroom/internal/matching/models"
	ndaModels "dealroom/internal/nda/models"
	proposalModels "dealroom/internal/proposal/models"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
	"dealroom/pkg/requestcontext"
)

// Suite is embedded by implementation tests, which set New.
type Suite struct {
	suite.Suite
	New func() store.UnitOfWork

	uow store.UnitOfWork
	ctx context.Context
	now time.Time
}

func (s *Suite) SetupTest() {
	s.uow = s.New()
	// Postgres keeps microseconds; truncating keeps comparisons exact.
	s.now = time.Now().UTC().Truncate(time.Millisecond)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

var errBoom = errors.New("boom")

func (s *Suite) draft() *proposalModels.Proposal {
	p := proposalModels.NewDraft(id.UserID(uuid.New()), s.now)
	p.PublicFields = proposalModels.Fields{"title": "Bakery", "summary": "s"}
	p.ConfidentialFields = proposalModels.Fields{"company_name": "Crumb"}
	s.Require().NoError(s.uow.Proposals().Create(s.ctx, p))
	return p
}

func (s *Suite) approved() *proposalModels.Proposal {
	p := s.draft()
	s.Require().NoError(p.Submit(s.now, time.Hour))
	s.Require().NoError(p.StartReview(s.now))
	s.Require().NoError(p.Decide(true, "", s.now, time.Hour))
	s.Require().NoError(s.uow.Proposals().Update(s.ctx, p, 1))
	return p
}

func (s *Suite) TestProposalRoundTrip() {
	p := s.draft()

	got, err := s.uow.Proposals().FindByID(s.ctx, p.ID)

	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.Equal(p.OwnerID, got.OwnerID)
	s.Equal("Bakery", got.PublicFields["title"])
	s.Equal("Crumb", got.ConfidentialFields["company_name"])
	s.EqualValues(1, got.Version)
}

func (s *Suite) TestFindMissingProposal() {
	_, err := s.uow.Proposals().FindByID(s.ctx, id.NewProposalID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestUpdateIsCompareAndSwap() {
	p := s.draft()
	s.Require().NoError(p.Submit(s.now, time.Hour))

	s.Require().NoError(s.uow.Proposals().Update(s.ctx, p, 1))
	s.ErrorIs(s.uow.Proposals().Update(s.ctx, p, 1), sentinel.ErrVersionConflict)

	got, err := s.uow.Proposals().FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.EqualValues(2, got.Version)
	s.Equal(proposalModels.StatusSubmitted, got.Status)
}

func (s *Suite) TestFailedUnitLeavesNothingBehind() {
	p := s.approved()
	c := matchingModels.NewCandidate(p.ID, id.UserID(uuid.New()), "", s.now)

	err := s.uow.RunInTx(s.ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
		s.Require().NoError(tx.Candidates().Create(ctx, c))
		s.Require().NoError(p.Match(s.now))
		s.Require().NoError(tx.Proposals().Update(ctx, p, p.Version-1))
		s.Require().NoError(tx.Audit().Append(ctx, s.entry(p.ID)))
		return errBoom
	})

	s.ErrorIs(err, errBoom)
	got, err := s.uow.Proposals().FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(proposalModels.StatusApproved, got.Status)
	_, err = s.uow.Candidates().FindByID(s.ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	entries, err := s.uow.Audit().ListByProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *Suite) TestPanickingUnitReleasesProposal() {
	p := s.approved()

	s.Panics(func() {
		_ = s.uow.RunInTx(s.ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
			s.Require().NoError(p.Match(s.now))
			s.Require().NoError(tx.Proposals().Update(ctx, p, p.Version-1))
			panic("unit failed")
		})
	})

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	err := s.uow.RunInTx(ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
		got, err := tx.Proposals().FindByID(ctx, p.ID)
		if err != nil {
			return err
		}
		s.Equal(proposalModels.StatusApproved, got.Status)
		return nil
	})
	s.Require().NoError(err)
}

func (s *Suite) TestUnitSeesItsOwnWrites() {
	p := s.approved()
	c := matchingModels.NewCandidate(p.ID, id.UserID(uuid.New()), "", s.now)

	err := s.uow.RunInTx(s.ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
		if err := tx.Candidates().Create(ctx, c); err != nil {
			return err
		}
		list, err := tx.Candidates().ListByProposal(ctx, p.ID)
		s.Require().NoError(err)
		s.Len(list, 1)
		return nil
	})

	s.Require().NoError(err)
}

func (s *Suite) TestOneActiveCandidatePerBuyer() {
	p := s.approved()
	buyer := id.UserID(uuid.New())
	first := matchingModels.NewCandidate(p.ID, buyer, "", s.now)
	s.Require().NoError(s.uow.Candidates().Create(s.ctx, first))

	second := matchingModels.NewCandidate(p.ID, buyer, "", s.now)
	s.ErrorIs(s.uow.Candidates().Create(s.ctx, second), sentinel.ErrAlreadyExists)

	s.Require().NoError(first.Withdraw(s.now))
	s.Require().NoError(s.uow.Candidates().Update(s.ctx, first))
	s.NoError(s.uow.Candidates().Create(s.ctx, second))
}

func (s *Suite) TestOneAcceptedCandidatePerProposal() {
	p := s.approved()
	a := matchingModels.NewCandidate(p.ID, id.UserID(uuid.New()), "", s.now)
	b := matchingModels.NewCandidate(p.ID, id.UserID(uuid.New()), "", s.now)
	s.Require().NoError(s.uow.Candidates().Create(s.ctx, a))
	s.Require().NoError(s.uow.Candidates().Create(s.ctx, b))

	s.Require().NoError(a.Accept(s.now))
	s.Require().NoError(s.uow.Candidates().Update(s.ctx, a))
	s.Require().NoError(b.Accept(s.now))

	s.ErrorIs(s.uow.Candidates().Update(s.ctx, b), sentinel.ErrAlreadyExists)
}

func (s *Suite) TestNDARecords() {
	p := s.approved()
	buyer := id.UserID(uuid.New())
	r := ndaModels.NewRecord(p.ID, buyer, s.now)
	s.Require().NoError(s.uow.NDAs().Create(s.ctx, r))
	s.Require().NoError(r.Sign(s.now, 0))
	s.Require().NoError(s.uow.NDAs().Update(s.ctx, r))

	list, err := s.uow.NDAs().ListByProposalAndBuyer(s.ctx, p.ID, buyer)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.True(list[0].IsActive(s.now))

	other, err := s.uow.NDAs().ListByProposalAndBuyer(s.ctx, p.ID, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *Suite) entry(pid id.ProposalID) *audit.Entry {
	return audit.NewEntry(s.ctx, identity.System, audit.ProposalTarget(pid), "proposal.expire", "submitted", "expired")
}

func (s *Suite) TestAuditSequenceBreaksTimestampTies() {
	p := s.draft()
	for range 3 {
		s.Require().NoError(s.uow.RunInTx(s.ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
			return tx.Audit().Append(ctx, s.entry(p.ID))
		}))
	}

	entries, err := s.uow.Audit().ListByProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.Equal(entries[0].Timestamp, entries[i].Timestamp)
		s.Greater(entries[i].Seq, entries[i-1].Seq)
	}

	byEntity, err := s.uow.Audit().ListByEntity(s.ctx, p.ID.String())
	s.Require().NoError(err)
	s.Len(byEntity, 3)
}

func (s *Suite) TestUnpublishedEntriesAreRelayedOnce() {
	p := s.draft()
	for range 3 {
		s.Require().NoError(s.uow.Audit().Append(s.ctx, s.entry(p.ID)))
	}

	pending, err := s.uow.Audit().ListUnpublished(s.ctx, 1000)
	s.Require().NoError(err)
	var ours []int64
	for _, e := range pending {
		if e.ProposalID == p.ID {
			ours = append(ours, e.Seq)
		}
	}
	s.Require().Len(ours, 3)
	for i := 1; i < len(ours); i++ {
		s.Greater(ours[i], ours[i-1])
	}

	s.Require().NoError(s.uow.Audit().MarkPublished(s.ctx, ours, s.now))

	pending, err = s.uow.Audit().ListUnpublished(s.ctx, 1000)
	s.Require().NoError(err)
	for _, e := range pending {
		s.NotEqual(p.ID, e.ProposalID)
	}
}

func (s *Suite) TestListDue() {
	overdue := s.draft()
	s.Require().NoError(overdue.Submit(s.now.Add(-2*time.Hour), time.Hour))
	s.Require().NoError(s.uow.Proposals().Update(s.ctx, overdue, 1))

	fresh := s.draft()
	s.Require().NoError(fresh.Submit(s.now, time.Hour))
	s.Require().NoError(s.uow.Proposals().Update(s.ctx, fresh, 1))

	due, err := s.uow.Proposals().ListDue(s.ctx, s.now, 100)
	s.Require().NoError(err)
	s.Contains(due, overdue.ID)
	s.NotContains(due, fresh.ID)
}

func (s *Suite) TestCounts() {
	s.draft()
	p := s.draft()
	s.Require().NoError(p.Submit(s.now, time.Hour))
	s.Require().NoError(s.uow.Proposals().Update(s.ctx, p, 1))

	counts, err := s.uow.Proposals().CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.GreaterOrEqual(counts[proposalModels.StatusDraft], 1)
	s.GreaterOrEqual(counts[proposalModels.StatusSubmitted], 1)

	stale, err := s.uow.Proposals().CountStaleDrafts(s.ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.GreaterOrEqual(stale, 1)
}

func (s *Suite) TestDeleteIsCompareAndSwap() {
	p := s.draft()

	s.ErrorIs(s.uow.Proposals().Delete(s.ctx, p.ID, 7), sentinel.ErrVersionConflict)
	s.Require().NoError(s.uow.Proposals().Delete(s.ctx, p.ID, 1))

	_, err := s.uow.Proposals().FindByID(s.ctx, p.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.uow.Proposals().Delete(s.ctx, p.ID, 1), sentinel.ErrNotFound)
}

func (s *Suite) TestDeleteInsideUnit() {
	kept, gone := s.draft(), s.draft()

	err := s.uow.RunInTx(s.ctx, gone.ID, func(ctx context.Context, tx store.Stores) error {
		if err := tx.Proposals().Delete(ctx, gone.ID, 1); err != nil {
			return err
		}
		_, err := tx.Proposals().FindByID(ctx, gone.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		return tx.Audit().Append(ctx, s.entry(gone.ID))
	})
	s.Require().NoError(err)

	_, err = s.uow.Proposals().FindByID(s.ctx, gone.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.uow.Proposals().FindByID(s.ctx, kept.ID)
	s.NoError(err)
	entries, err := s.uow.Audit().ListByProposal(s.ctx, gone.ID)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *Suite) TestFailedDeleteUnitKeepsProposal() {
	p := s.draft()

	err := s.uow.RunInTx(s.ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
		s.Require().NoError(tx.Proposals().Delete(ctx, p.ID, 1))
		return errBoom
	})

	s.ErrorIs(err, errBoom)
	_, err = s.uow.Proposals().FindByID(s.ctx, p.ID)
	s.NoError(err)
}

func (s *Suite) TestListByStatusOrdersBySubmission() {
	later := s.draft()
	s.Require().NoError(later.Submit(s.now.Add(-time.Hour), 24*time.Hour))
	s.Require().NoError(s.uow.Proposals().Update(s.ctx, later, 1))

	earlier := s.draft()
	s.Require().NoError(earlier.Submit(s.now.Add(-2*time.Hour), 24*time.Hour))
	s.Require().NoError(earlier.StartReview(s.now.Add(-2 * time.Hour)))
	s.Require().NoError(s.uow.Proposals().Update(s.ctx, earlier, 1))

	draft := s.draft()

	got, err := s.uow.Proposals().ListByStatus(s.ctx,
		[]proposalModels.Status{proposalModels.StatusSubmitted, proposalModels.StatusUnderReview}, 1000)
	s.Require().NoError(err)

	var ours []id.ProposalID
	for _, p := range got {
		s.NotEqual(draft.ID, p.ID)
		if p.ID == earlier.ID || p.ID == later.ID {
			ours = append(ours, p.ID)
		}
	}
	s.Equal([]id.ProposalID{earlier.ID, later.ID}, ours)
}
