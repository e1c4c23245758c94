package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dealroom/internal/identity"
	"dealroom/internal/nda/handler/mocks"
	"dealroom/internal/nda/models"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
	"dealroom/pkg/testutil"
)

func newRouter(t *testing.T) (http.Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).Register(r)
	return r, svc
}

func at(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

func TestRequestNDA(t *testing.T) {
	router, svc := newRouter(t)
	buyer := testutil.As(identity.RoleBuyer, id.UserID{})
	pid := id.NewProposalID()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("pending record is returned", func(t *testing.T) {
		rec := models.NewRecord(pid, buyer.ID, now)
		svc.EXPECT().RequestNDA(gomock.Any(), buyer, pid).Return(rec, nil)

		req := at(testutil.NewRequest(t, http.MethodPost, "/proposals/"+pid.String()+"/ndas"), now)
		rr := testutil.DoRequest(router, testutil.WithIdentity(req, buyer))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[RecordResponse](t, rr)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "pending", got.State)
	})

	t.Run("request in the wrong state maps to 409", func(t *testing.T) {
		svc.EXPECT().RequestNDA(gomock.Any(), buyer, pid).
			Return(nil, dErrors.InvalidState(pid.String(), "approved", "nda_pending"))

		rr := testutil.DoRequest(router, testutil.WithIdentity(
			testutil.NewRequest(t, http.MethodPost, "/proposals/"+pid.String()+"/ndas"), buyer))

		testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeInvalidState))
	})
}

func TestSignNDA(t *testing.T) {
	router, svc := newRouter(t)
	buyer := testutil.As(identity.RoleBuyer, id.UserID{})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	rec := models.NewRecord(id.NewProposalID(), buyer.ID, now)
	require.NoError(t, rec.Sign(now, 24*time.Hour))
	svc.EXPECT().SignNDA(gomock.Any(), buyer, rec.ID).Return(rec, nil)

	req := at(testutil.NewRequest(t, http.MethodPost, "/ndas/"+rec.ID.String()+"/sign"), now)
	rr := testutil.DoRequest(router, testutil.WithIdentity(req, buyer))

	testutil.AssertStatusOK(t, rr)
	got := testutil.UnmarshalResponse[RecordResponse](t, rr)
	assert.Equal(t, rec.State(now), got.State)
	require.NotNil(t, got.ExpiresAt)
}

func TestListRecords(t *testing.T) {
	router, svc := newRouter(t)
	buyer := testutil.As(identity.RoleBuyer, id.UserID{})
	pid := id.NewProposalID()
	svc.EXPECT().Records(gomock.Any(), buyer, pid).DoAndReturn(
		func(ctx context.Context, _ identity.Identity, _ id.ProposalID) ([]*models.Record, error) {
			return []*models.Record{models.NewRecord(pid, buyer.ID, requestcontext.Now(ctx))}, nil
		})

	rr := testutil.DoRequest(router, testutil.WithIdentity(
		testutil.NewRequest(t, http.MethodGet, "/proposals/"+pid.String()+"/ndas"), buyer))

	testutil.AssertStatusOK(t, rr)
	got := testutil.UnmarshalResponse[ListResponse](t, rr)
	assert.Len(t, got.Records, 1)
}
