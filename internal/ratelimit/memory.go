package ratelimit

import (
	"context"
	"sync"
	"time"
)

// idleSweepInterval is how often Allow walks every key to drop expired ones.
const idleSweepInterval = time.Minute

// MemoryStore keeps request timestamps per key. It only limits within one
// process; use RedisStore when several instances serve traffic.
type MemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	stamps []time.Time
	window time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*bucket)}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepIdle(now)

	b := s.windows[key]
	if b == nil {
		b = &bucket{}
	}
	b.window = window
	b.stamps = evict(b.stamps, now.Add(-window))
	res := Result{Limit: limit}
	if len(b.stamps) < limit {
		b.stamps = append(b.stamps, now)
		res.Allowed = true
	}
	res.Remaining = max(limit-len(b.stamps), 0)
	if len(b.stamps) == 0 {
		delete(s.windows, key)
		res.ResetAt = now
		return res, nil
	}
	s.windows[key] = b
	res.ResetAt = b.stamps[0].Add(window)
	return res, nil
}

// sweepIdle drops keys whose newest stamp has left its window. Callers that
// never return would otherwise keep their key forever.
func (s *MemoryStore) sweepIdle(now time.Time) {
	if now.Sub(s.lastSweep) < idleSweepInterval {
		return
	}
	s.lastSweep = now
	for key, b := range s.windows {
		if len(b.stamps) == 0 || !b.stamps[len(b.stamps)-1].After(now.Add(-b.window)) {
			delete(s.windows, key)
		}
	}
}

// evict drops timestamps at or before cutoff. stamps is ordered.
func evict(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
