package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	"dealroom/internal/matching/models"
	"dealroom/internal/matching/service"
	"dealroom/internal/notify"
	"dealroom/internal/platform/config"
	proposalModels "dealroom/internal/proposal/models"
	"dealroom/internal/store/memory"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

type MatchingSuite struct {
	suite.Suite
	store    *memory.Store
	service  *service.Service
	recorder *notify.Recorder
	ctx      context.Context
	now      time.Time
	owner    identity.Identity
}

func TestMatchingSuite(t *testing.T) {
	suite.Run(t, new(MatchingSuite))
}

func (s *MatchingSuite) SetupTest() {
	s.store = memory.New()
	s.recorder = &notify.Recorder{}
	lifecycle := config.DefaultLifecycle()
	lifecycle.MaxMessageLength = 20
	s.service = service.New(s.store, lifecycle, service.WithNotifier(s.recorder))
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.owner = user(identity.RoleProposer)
}

func user(role identity.Role) identity.Identity {
	return identity.Identity{ID: id.UserID(uuid.New()), Role: role}
}

// proposalIn stores a proposal already moved to status.
func (s *MatchingSuite) proposalIn(status proposalModels.Status) *proposalModels.Proposal {
	p := proposalModels.NewDraft(s.owner.ID, s.now)
	p.Status = status
	s.Require().NoError(s.store.Proposals().Create(s.ctx, p))
	return p
}

func (s *MatchingSuite) TestProposeInterest() {
	s.Run("buyer registers on an approved proposal", func() {
		p := s.proposalIn(proposalModels.StatusApproved)
		buyer := user(identity.RoleBuyer)

		c, err := s.service.ProposeInterest(s.ctx, buyer, p.ID, "  keen  ")

		s.Require().NoError(err)
		s.Equal(models.StateProposed, c.State)
		s.Equal("keen", c.Message)
		events := s.recorder.Of(notify.KindInterest)
		s.Require().NotEmpty(events)
		s.Equal(s.owner.ID, events[len(events)-1].UserID)
	})

	s.Run("second interest from the same buyer is a duplicate", func() {
		p := s.proposalIn(proposalModels.StatusApproved)
		buyer := user(identity.RoleBuyer)
		_, err := s.service.ProposeInterest(s.ctx, buyer, p.ID, "")
		s.Require().NoError(err)

		_, err = s.service.ProposeInterest(s.ctx, buyer, p.ID, "")

		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
	})

	s.Run("proposal not yet approved is invalid state", func() {
		p := s.proposalIn(proposalModels.StatusUnderReview)
		_, err := s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), p.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("proposer cannot register interest", func() {
		p := s.proposalIn(proposalModels.StatusApproved)
		_, err := s.service.ProposeInterest(s.ctx, user(identity.RoleProposer), p.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("overlong message fails validation", func() {
		p := s.proposalIn(proposalModels.StatusApproved)
		_, err := s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), p.ID, strings.Repeat("x", 21))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown proposal is not found", func() {
		_, err := s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), id.NewProposalID(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MatchingSuite) TestAcceptRejectsTheOtherCandidates() {
	p := s.proposalIn(proposalModels.StatusApproved)
	b1, b2 := user(identity.RoleBuyer), user(identity.RoleBuyer)
	c1, err := s.service.ProposeInterest(s.ctx, b1, p.ID, "")
	s.Require().NoError(err)
	c2, err := s.service.ProposeInterest(s.ctx, b2, p.ID, "")
	s.Require().NoError(err)

	matched, accepted, err := s.service.AcceptCandidate(s.ctx, s.owner, c1.ID, p.Version)

	s.Require().NoError(err)
	s.Equal(proposalModels.StatusMatched, matched.Status)
	s.Equal(p.Version+1, matched.Version)
	s.Equal(models.StateAccepted, accepted.State)

	other, err := s.store.Candidates().FindByID(s.ctx, c2.ID)
	s.Require().NoError(err)
	s.Equal(models.StateRejected, other.State)

	rejections, err := s.store.Audit().ListByEntity(s.ctx, c2.ID.String())
	s.Require().NoError(err)
	s.Equal(audit.ActionCandidateRejected, rejections[len(rejections)-1].Action)

	s.Len(s.recorder.Of(notify.KindCandidateAccepted), 1)
	rejected := s.recorder.Of(notify.KindCandidateRejected)
	s.Require().Len(rejected, 1)
	s.Equal(b2.ID, rejected[0].UserID)

	_, err = s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), p.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *MatchingSuite) TestConcurrentAcceptsLeaveOneWinner() {
	p := s.proposalIn(proposalModels.StatusApproved)
	var candidates []*models.Candidate
	for range 4 {
		c, err := s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), p.ID, "")
		s.Require().NoError(err)
		candidates = append(candidates, c)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for _, c := range candidates {
		wg.Add(1)
		go func(cid id.CandidateID) {
			defer wg.Done()
			_, _, err := s.service.AcceptCandidate(s.ctx, s.owner, cid, p.Version)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case dErrors.HasCode(err, dErrors.CodeConcurrentModification):
				conflict++
			}
		}(c.ID)
	}
	wg.Wait()

	s.Equal(1, wins)
	s.Equal(3, conflict)

	list, err := s.store.Candidates().ListByProposal(s.ctx, p.ID)
	s.Require().NoError(err)
	accepted := 0
	for _, c := range list {
		if c.State == models.StateAccepted {
			accepted++
		}
	}
	s.Equal(1, accepted)
}

func (s *MatchingSuite) TestAcceptGuards() {
	s.Run("only the owner may accept", func() {
		p := s.proposalIn(proposalModels.StatusApproved)
		c, err := s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), p.ID, "")
		s.Require().NoError(err)

		_, _, err = s.service.AcceptCandidate(s.ctx, user(identity.RoleProposer), c.ID, p.Version)

		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("withdrawn candidate cannot be accepted", func() {
		p := s.proposalIn(proposalModels.StatusApproved)
		buyer := user(identity.RoleBuyer)
		c, err := s.service.ProposeInterest(s.ctx, buyer, p.ID, "")
		s.Require().NoError(err)
		_, err = s.service.WithdrawCandidate(s.ctx, buyer, c.ID)
		s.Require().NoError(err)

		_, _, err = s.service.AcceptCandidate(s.ctx, s.owner, c.ID, p.Version)

		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		got, err := s.store.Proposals().FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(proposalModels.StatusApproved, got.Status)
	})

	s.Run("unknown candidate is not found", func() {
		_, _, err := s.service.AcceptCandidate(s.ctx, s.owner, id.NewCandidateID(), 1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MatchingSuite) TestWithdrawCandidate() {
	p := s.proposalIn(proposalModels.StatusApproved)
	buyer := user(identity.RoleBuyer)
	c, err := s.service.ProposeInterest(s.ctx, buyer, p.ID, "")
	s.Require().NoError(err)

	_, err = s.service.WithdrawCandidate(s.ctx, user(identity.RoleBuyer), c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	got, err := s.service.WithdrawCandidate(s.ctx, buyer, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StateWithdrawn, got.State)

	_, err = s.service.ProposeInterest(s.ctx, buyer, p.ID, "again")
	s.NoError(err)
}

func (s *MatchingSuite) TestListCandidates() {
	p := s.proposalIn(proposalModels.StatusApproved)
	_, err := s.service.ProposeInterest(s.ctx, user(identity.RoleBuyer), p.ID, "")
	s.Require().NoError(err)

	list, err := s.service.ListCandidates(s.ctx, s.owner, p.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	list, err = s.service.ListCandidates(s.ctx, user(identity.RoleAdmin), p.ID)
	s.Require().NoError(err)
	s.Len(list, 1)

	_, err = s.service.ListCandidates(s.ctx, user(identity.RoleBuyer), p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
