package httptransport_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditHandler "dealroom/internal/audit/handler"
	auditService "dealroom/internal/audit/service"
	"dealroom/internal/identity"
	matchingHandler "dealroom/internal/matching/handler"
	matchingModels "dealroom/internal/matching/models"
	matchingService "dealroom/internal/matching/service"
	ndaHandler "dealroom/internal/nda/handler"
	ndaService "dealroom/internal/nda/service"
	"dealroom/internal/platform/config"
	"dealroom/internal/platform/metrics"
	proposalHandler "dealroom/internal/proposal/handler"
	proposalModels "dealroom/internal/proposal/models"
	proposalService "dealroom/internal/proposal/service"
	"dealroom/internal/store/memory"
	httptransport "dealroom/internal/transport/http"
	id "dealroom/pkg/domain"
	"dealroom/pkg/testutil"
)

type client struct {
	t       *testing.T
	router  http.Handler
	tokens  *identity.JWTResolver
	who     identity.Identity
	lastRaw *httptest.ResponseRecorder
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == nil {
		req = testutil.NewRequest(c.t, method, path)
	} else {
		req = testutil.NewJSONRequest(c.t, method, path, body)
	}
	token, err := c.tokens.IssueToken(c.who, time.Minute)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	c.lastRaw = testutil.DoRequest(c.router, req)
	return c.lastRaw
}

func newStack(t *testing.T) (http.Handler, *identity.JWTResolver) {
	t.Helper()
	uow := memory.New()
	lifecycle := config.DefaultLifecycle()
	log := slog.New(slog.DiscardHandler)

	ndas := ndaService.New(uow, lifecycle)
	proposals := proposalService.New(uow, lifecycle, ndas)
	matching := matchingService.New(uow, lifecycle)
	resolver := identity.NewJWTResolver("workflow-key", "dealroom", "dealroom-api")

	reg := prometheus.NewRegistry()
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Resolver: resolver,
	},
		proposalHandler.New(proposals, log),
		matchingHandler.New(matching, log),
		ndaHandler.New(ndas, log),
		auditHandler.New(auditService.New(uow.Audit()), log),
	)
	return router, resolver
}

func TestSaleWorkflowOverHTTP(t *testing.T) {
	router, tokens := newStack(t)
	as := func(role identity.Role) *client {
		return &client{t: t, router: router, tokens: tokens, who: identity.Identity{ID: id.UserID(uuid.New()), Role: role}}
	}
	owner, admin := as(identity.RoleProposer), as(identity.RoleAdmin)
	b1, b2 := as(identity.RoleBuyer), as(identity.RoleBuyer)

	var p proposalModels.View
	testutil.Given(t, "an approved proposal", func(t *testing.T) {
		rr := owner.do(http.MethodPost, "/proposals", nil)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		p = *testutil.UnmarshalResponse[proposalModels.View](t, rr)

		rr = owner.do(http.MethodPut, "/proposals/"+p.ID.String()+"/draft", map[string]any{
			"public_fields":       map[string]string{"title": "Harbour cafe", "summary": "Busy seafront cafe"},
			"confidential_fields": map[string]string{"company_name": "Gull & Co"},
			"version":             p.Version,
		})
		testutil.AssertStatusOK(t, rr)
		p = *testutil.UnmarshalResponse[proposalModels.View](t, rr)

		for _, step := range []struct {
			c    *client
			path string
			body map[string]any
		}{
			{owner, "/submit", nil},
			{admin, "/review", nil},
			{admin, "/decision", map[string]any{"approve": true, "comment": "complete"}},
		} {
			body := map[string]any{"version": p.Version}
			for k, v := range step.body {
				body[k] = v
			}
			rr = step.c.do(http.MethodPost, "/proposals/"+p.ID.String()+step.path, body)
			testutil.AssertStatusOK(t, rr)
			p = *testutil.UnmarshalResponse[proposalModels.View](t, rr)
		}
		require.Equal(t, proposalModels.StatusApproved, p.Status)
		assert.EqualValues(t, 5, p.Version)
	})

	testutil.When(t, "two buyers propose and the owner accepts the first", func(t *testing.T) {
		rr := b1.do(http.MethodPost, "/proposals/"+p.ID.String()+"/candidates", map[string]string{"message": "cash offer"})
		testutil.AssertStatus(t, rr, http.StatusCreated)
		c1 := testutil.UnmarshalResponse[matchingHandler.CandidateResponse](t, rr)
		rr = b2.do(http.MethodPost, "/proposals/"+p.ID.String()+"/candidates", nil)
		testutil.AssertStatus(t, rr, http.StatusCreated)

		t.Run("a buyer sees public fields only", func(t *testing.T) {
			rr := b2.do(http.MethodGet, "/proposals/"+p.ID.String(), nil)
			testutil.AssertStatusOK(t, rr)
			v := testutil.UnmarshalResponse[proposalModels.View](t, rr)
			assert.Equal(t, "Harbour cafe", v.PublicFields["title"])
			assert.Empty(t, v.ConfidentialFields)
		})

		rr = owner.do(http.MethodPost, "/candidates/"+c1.ID.String()+"/accept", map[string]int64{"version": p.Version})
		testutil.AssertStatusOK(t, rr)
		accepted := testutil.UnmarshalResponse[matchingHandler.AcceptResponse](t, rr)

		testutil.Then(t, "the proposal is matched and the other candidate rejected", func(t *testing.T) {
			assert.Equal(t, proposalModels.StatusMatched, accepted.ProposalStatus)
			rr := owner.do(http.MethodGet, "/proposals/"+p.ID.String()+"/candidates", nil)
			list := testutil.UnmarshalResponse[matchingHandler.ListResponse](t, rr)
			states := map[id.UserID]matchingModels.State{}
			for _, c := range list.Candidates {
				states[c.BuyerID] = c.State
			}
			assert.Equal(t, matchingModels.StateAccepted, states[b1.who.ID])
			assert.Equal(t, matchingModels.StateRejected, states[b2.who.ID])
		})

		testutil.Then(t, "a late proposal is refused with the current state", func(t *testing.T) {
			late := as(identity.RoleBuyer)
			rr := late.do(http.MethodPost, "/proposals/"+p.ID.String()+"/candidates", nil)
			testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_state")
			assert.Contains(t, rr.Body.String(), `"current_state":"matched"`)
		})
	})

	testutil.When(t, "the accepted buyer signs the NDA", func(t *testing.T) {
		rr := b1.do(http.MethodPost, "/proposals/"+p.ID.String()+"/ndas", nil)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		nda := testutil.UnmarshalResponse[ndaHandler.RecordResponse](t, rr)

		rr = b1.do(http.MethodPost, "/ndas/"+nda.ID.String()+"/sign", nil)
		testutil.AssertStatusOK(t, rr)

		testutil.Then(t, "confidential fields are disclosed to that buyer only", func(t *testing.T) {
			rr := b1.do(http.MethodGet, "/proposals/"+p.ID.String(), nil)
			v := testutil.UnmarshalResponse[proposalModels.View](t, rr)
			assert.Equal(t, proposalModels.StatusDisclosed, v.Status)
			assert.Equal(t, "Gull & Co", v.ConfidentialFields["company_name"])

			rr = b2.do(http.MethodGet, "/proposals/"+p.ID.String(), nil)
			v = testutil.UnmarshalResponse[proposalModels.View](t, rr)
			assert.Empty(t, v.ConfidentialFields)
		})
	})

	testutil.Then(t, "the administrator can read the whole trail", func(t *testing.T) {
		rr := admin.do(http.MethodGet, "/admin/audit?proposal_id="+p.ID.String(), nil)
		testutil.AssertStatusOK(t, rr)
		trail := rr.Body.String()
		for _, action := range []string{"proposal.submit", "match.accept", "match.reject", "nda.sign", "proposal.disclosure"} {
			assert.True(t, strings.Contains(trail, `"action":"`+action+`"`), "missing %s", action)
		}

		rr = owner.do(http.MethodGet, "/admin/audit?proposal_id="+p.ID.String(), nil)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}
