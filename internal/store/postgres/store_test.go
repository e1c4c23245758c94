//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	matchingModels "dealroom/internal/matching/models"
	proposalModels "dealroom/internal/proposal/models"
	"dealroom/internal/store"
	"dealroom/internal/store/postgres"
	"dealroom/internal/store/storetest"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
	"dealroom/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storetest.Suite
}

func TestPostgresStoreSuite(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := postgres.New(pg.DB)
	require.NoError(t, s.Migrate(context.Background()))

	ps := &PostgresStoreSuite{}
	ps.New = func() store.UnitOfWork { return s }
	suite.Run(t, ps)
}

func TestConcurrentAcceptsLeaveOneWinner(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := postgres.New(pg.DB)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Millisecond)
	p := proposalModels.NewDraft(id.UserID(uuid.New()), now)
	require.NoError(t, s.Proposals().Create(ctx, p))

	var candidates []*matchingModels.Candidate
	for range 5 {
		c := matchingModels.NewCandidate(p.ID, id.UserID(uuid.New()), "", now)
		require.NoError(t, s.Candidates().Create(ctx, c))
		candidates = append(candidates, c)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, c := range candidates {
		wg.Add(1)
		go func(c *matchingModels.Candidate) {
			defer wg.Done()
			err := s.RunInTx(ctx, p.ID, func(ctx context.Context, tx store.Stores) error {
				if err := c.Accept(now); err != nil {
					return err
				}
				return tx.Candidates().Update(ctx, c)
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, sentinel.ErrAlreadyExists)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestCandidateForUnknownProposalIsNotFound(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := postgres.New(pg.DB)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	c := matchingModels.NewCandidate(id.NewProposalID(), id.UserID(uuid.New()), "", time.Now())

	assert.ErrorIs(t, s.Candidates().Create(ctx, c), sentinel.ErrNotFound)
}
