package views

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dealroom/pkg/domain"
)

func TestMemoryCounterIsPerProposal(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()
	a, b := id.NewProposalID(), id.NewProposalID()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Increment(ctx, a)
		}()
	}
	wg.Wait()
	_, err := c.Increment(ctx, b)
	require.NoError(t, err)

	n, err := c.Count(ctx, a)
	require.NoError(t, err)
	assert.EqualValues(t, 50, n)
	n, err = c.Count(ctx, b)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
