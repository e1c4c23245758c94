// Package views counts proposal views outside the aggregate, so reading a
// proposal never bumps its version.
package views

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	id "dealroom/pkg/domain"
)

const keyPrefix = "dealroom:views:"

// RedisCounter keeps one INCR counter per proposal.
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, proposalID id.ProposalID) (int64, error) {
	n, err := c.client.Incr(ctx, keyPrefix+proposalID.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Count(ctx context.Context, proposalID id.ProposalID) (int64, error) {
	n, err := c.client.Get(ctx, keyPrefix+proposalID.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read views: %w", err)
	}
	return n, nil
}

type MemoryCounter struct {
	mu     sync.Mutex
	counts map[id.ProposalID]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[id.ProposalID]int64)}
}

func (c *MemoryCounter) Increment(_ context.Context, proposalID id.ProposalID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[proposalID]++
	return c.counts[proposalID], nil
}

func (c *MemoryCounter) Count(_ context.Context, proposalID id.ProposalID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[proposalID], nil
}
