// Package scheduler runs the timeout sweep: it finds proposals whose review or
// archive deadline has passed and applies the owed transition to each.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dealroom/internal/proposal/metrics"
	proposalModels "dealroom/internal/proposal/models"
	id "dealroom/pkg/domain"
	"dealroom/pkg/requestcontext"
)

const (
	// LockKey guards the sweep when several instances share a database.
	LockKey      = "dealroom:sweep"
	defaultBatch = 500
)

// Registry is the part of the proposal service the sweep drives.
type Registry interface {
	DueProposals(ctx context.Context, limit int) ([]id.ProposalID, error)
	ApplyTimeout(ctx context.Context, proposalID id.ProposalID) (proposalModels.Status, bool, error)
}

// Locker hands out a lease so that one instance sweeps at a time.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Scheduler struct {
	registry Registry
	locker   Locker
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLocker replaces the process-local lock, e.g. with the Redis client.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithClock replaces the wall clock that bounds how long one sweep may run.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.clock = now }
}

func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

func New(registry Registry, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry: registry,
		locker:   NewLocalLocker(),
		interval: interval,
		batch:    defaultBatch,
		logger:   slog.New(slog.DiscardHandler),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes one sweep.
type Result struct {
	Due     int
	Applied int
	Failed  int
	// Skipped is set when another instance held the lock.
	Skipped bool
	// Truncated is set when the sweep stopped at its time budget with work left.
	Truncated bool
}

// Start sweeps every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepAt(ctx, time.Now()); err != nil {
				s.logger.ErrorContext(ctx, "timeout sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SweepAt applies every timeout owed at now. Each proposal is its own unit of
// work; a failure is logged and the sweep moves on. Proposals that failed stay
// due, so later pages ask for that many more rows and skip what was already
// tried. The sweep stops after one interval, well inside its lease.
// Exported for testability; Start passes wall-clock time.
func (s *Scheduler) SweepAt(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	ctx = requestcontext.WithRequestID(requestcontext.WithTime(ctx, now), "sweep-"+uuid.NewString())

	release, ok, err := s.locker.TryLock(ctx, LockKey, 2*s.interval)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		s.logger.DebugContext(ctx, "timeout sweep skipped, lock held elsewhere")
		return Result{Skipped: true}, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release sweep lock", "error", err)
		}
	}()

	deadline := s.clock().Add(s.interval)
	tried := make(map[id.ProposalID]bool)
	var res Result
	for {
		limit := s.batch + len(tried)
		due, err := s.registry.DueProposals(ctx, limit)
		if err != nil {
			return res, err
		}
		fresh := 0
		for _, proposalID := range due {
			if tried[proposalID] {
				continue
			}
			if ctx.Err() != nil || s.clock().After(deadline) {
				res.Truncated = true
				break
			}
			fresh++
			tried[proposalID] = true
			res.Due++
			s.apply(ctx, proposalID, &res)
		}
		if res.Truncated || fresh == 0 || len(due) < limit {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(start)
	}
	if res.Due > 0 {
		s.logger.InfoContext(ctx, "timeout sweep finished",
			"request_id", requestcontext.RequestID(ctx),
			"due", res.Due,
			"applied", res.Applied,
			"failed", res.Failed,
			"truncated", res.Truncated,
		)
	}
	return res, ctx.Err()
}

func (s *Scheduler) apply(ctx context.Context, proposalID id.ProposalID, res *Result) {
	_, applied, err := s.registry.ApplyTimeout(ctx, proposalID)
	if err != nil {
		res.Failed++
		if s.metrics != nil {
			s.metrics.IncrementSweepFailure()
		}
		s.logger.ErrorContext(ctx, "timeout transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"proposal_id", proposalID,
			"error", err,
		)
		return
	}
	if applied {
		res.Applied++
	}
}
