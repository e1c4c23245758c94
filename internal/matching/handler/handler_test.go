package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dealroom/internal/identity"
	"dealroom/internal/matching/handler/mocks"
	"dealroom/internal/matching/models"
	proposalModels "dealroom/internal/proposal/models"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
	buyer   identity.Identity
	owner   identity.Identity
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	r := chi.NewRouter()
	New(s.service, slog.New(slog.DiscardHandler)).Register(r)
	s.router = r
	s.buyer = testutil.As(identity.RoleBuyer, id.UserID{})
	s.owner = testutil.As(identity.RoleProposer, id.UserID{})
	s.now = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) TestProposeInterest() {
	pid := id.NewProposalID()
	path := "/proposals/" + pid.String() + "/candidates"

	s.Run("created", func() {
		c := models.NewCandidate(pid, s.buyer.ID, "hello", s.now)
		s.service.EXPECT().ProposeInterest(gomock.Any(), s.buyer, pid, "hello").Return(c, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"message": "hello"})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, s.buyer))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[CandidateResponse](s.T(), rr)
		s.Equal(c.ID, got.ID)
		s.Equal(models.StateProposed, got.State)
	})

	s.Run("duplicate maps to 409", func() {
		s.service.EXPECT().ProposeInterest(gomock.Any(), s.buyer, pid, "").
			Return(nil, dErrors.New(dErrors.CodeDuplicate, "interest already registered"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, s.buyer))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeDuplicate))
	})
}

func (s *HandlerSuite) TestAccept() {
	pid := id.NewProposalID()
	c := models.NewCandidate(pid, s.buyer.ID, "", s.now)
	path := "/candidates/" + c.ID.String() + "/accept"

	s.Run("returns the matched proposal version", func() {
		accepted := *c
		accepted.State = models.StateAccepted
		p := proposalModels.NewDraft(s.owner.ID, s.now)
		p.Status = proposalModels.StatusMatched
		p.Version = 6
		s.service.EXPECT().AcceptCandidate(gomock.Any(), s.owner, c.ID, int64(5)).Return(p, &accepted, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"version": 5})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, s.owner))

		testutil.AssertStatusOK(s.T(), rr)
		got := testutil.UnmarshalResponse[AcceptResponse](s.T(), rr)
		s.Equal(proposalModels.StatusMatched, got.ProposalStatus)
		s.EqualValues(6, got.ProposalVersion)
		s.Equal(models.StateAccepted, got.Candidate.State)
	})

	s.Run("version is required", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, s.owner))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
	})

	s.Run("losing a race maps to 409", func() {
		s.service.EXPECT().AcceptCandidate(gomock.Any(), s.owner, c.ID, int64(5)).
			Return(nil, nil, dErrors.Conflict(pid.String(), 5, 6))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"version": 5})
		rr := testutil.DoRequest(s.router, testutil.WithIdentity(req, s.owner))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConcurrentModification))
	})
}

func (s *HandlerSuite) TestWithdrawAndList() {
	pid := id.NewProposalID()
	c := models.NewCandidate(pid, s.buyer.ID, "", s.now)
	withdrawn := *c
	withdrawn.State = models.StateWithdrawn
	s.service.EXPECT().WithdrawCandidate(gomock.Any(), s.buyer, c.ID).Return(&withdrawn, nil)
	s.service.EXPECT().ListCandidates(gomock.Any(), s.owner, pid).Return([]*models.Candidate{c}, nil)

	rr := testutil.DoRequest(s.router, testutil.WithIdentity(
		testutil.NewRequest(s.T(), http.MethodPost, "/candidates/"+c.ID.String()+"/withdraw"), s.buyer))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "state", string(models.StateWithdrawn))

	rr = testutil.DoRequest(s.router, testutil.WithIdentity(
		testutil.NewRequest(s.T(), http.MethodGet, "/proposals/"+pid.String()+"/candidates"), s.owner))
	testutil.AssertStatusOK(s.T(), rr)
	list := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
	s.Len(list.Candidates, 1)
}

func (s *HandlerSuite) TestInvalidCandidateID() {
	rr := testutil.DoRequest(s.router, testutil.WithIdentity(
		testutil.NewRequest(s.T(), http.MethodPost, "/candidates/nope/withdraw"), s.buyer))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
}
