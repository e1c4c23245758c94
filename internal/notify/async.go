package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned by Async.Notify when the backlog is at capacity.
// The event is dropped.
var ErrQueueFull = errors.New("notification queue full")

type queued struct {
	ctx context.Context
	e   Event
}

// Async hands events to a fixed pool of workers so a slow sink never adds its
// latency to the request that triggered the event. Delivery runs on a context
// detached from the request's cancellation.
type Async struct {
	sink    Sink
	queue   chan queued
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

type AsyncOption func(*Async)

func WithQueueSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.queue = make(chan queued, n)
		}
	}
}

func WithWorkers(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithDeliveryTimeout bounds a single Notify call on the wrapped sink.
func WithDeliveryTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.timeout = d }
}

func NewAsync(sink Sink, logger *slog.Logger, opts ...AsyncOption) *Async {
	a := &Async{
		sink:    sink,
		queue:   make(chan queued, 256),
		workers: 4,
		timeout: 10 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Notify enqueues e without blocking.
func (a *Async) Notify(ctx context.Context, e Event) error {
	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), e: e}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then flushes whatever is
// still queued before returning.
func (a *Async) Run(ctx context.Context) error {
	var g errgroup.Group
	for range a.workers {
		g.Go(func() error {
			for {
				select {
				case q := <-a.queue:
					a.deliver(q)
				case <-ctx.Done():
					a.flush()
					return nil
				}
			}
		})
	}
	return g.Wait()
}

func (a *Async) flush() {
	for {
		select {
		case q := <-a.queue:
			a.deliver(q)
		default:
			return
		}
	}
}

func (a *Async) deliver(q queued) {
	ctx := q.ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if err := a.sink.Notify(ctx, q.e); err != nil && a.logger != nil {
		a.logger.WarnContext(ctx, "notification delivery failed",
			"kind", q.e.Kind,
			"user_id", q.e.UserID,
			"proposal_id", q.e.ProposalID,
			"error", err,
		)
	}
}
