// Package relay publishes committed audit entries to Kafka. Entries are read
// from the audit table in Seq order and marked once the broker acknowledges
// them, so a crash between the two steps republishes rather than loses.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"dealroom/internal/audit"
	"dealroom/internal/platform/kafka"
	"dealroom/internal/store"
)

const LockKey = "dealroom:audit-relay"

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Metrics interface {
	AddAuditRelayed(n int)
	IncrementAuditRelayFailures()
}

type Relay struct {
	audit     store.AuditStore
	publisher Publisher
	topic     string
	interval  time.Duration
	batch     int
	locker    Locker
	metrics   Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithLocker(l Locker) Option {
	return func(r *Relay) { r.locker = l }
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithClock replaces the wall clock that bounds one drain.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.clock = now }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func New(entries store.AuditStore, publisher Publisher, topic string, interval time.Duration, opts ...Option) *Relay {
	r := &Relay{
		audit:     entries,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		batch:     500,
		logger:    slog.New(slog.DiscardHandler),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start relays on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "audit relay started", "interval", r.interval, "topic", r.topic)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "audit relay stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx, time.Now()); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "audit relay failed", "error", err)
			}
		}
	}
}

// RelayOnce drains unpublished entries batch by batch and returns how many
// were published. A batch that fails to publish stays unmarked for the next run.
// No new batch starts once one interval has passed, and nothing runs past the
// lease; the next tick picks up the rest.
func (r *Relay) RelayOnce(ctx context.Context, now time.Time) (int, error) {
	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, LockKey, 2*r.interval)
		if err != nil {
			return 0, fmt.Errorf("acquire relay lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.WarnContext(ctx, "release relay lock", "error", err)
			}
		}()
	}

	if r.interval > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*r.interval)
		defer cancel()
	}
	deadline := r.clock().Add(r.interval)

	total := 0
	for {
		if total > 0 && r.clock().After(deadline) {
			r.logger.DebugContext(ctx, "audit relay paused at its time budget", "relayed", total)
			return total, nil
		}
		entries, err := r.audit.ListUnpublished(ctx, r.batch)
		if err != nil {
			return total, fmt.Errorf("list unpublished audit entries: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}
		msgs, seqs, err := r.encode(entries)
		if err != nil {
			return total, err
		}
		if err := r.publisher.Publish(ctx, msgs...); err != nil {
			if r.metrics != nil {
				r.metrics.IncrementAuditRelayFailures()
			}
			return total, fmt.Errorf("publish audit entries: %w", err)
		}
		if err := r.audit.MarkPublished(ctx, seqs, now); err != nil {
			return total, fmt.Errorf("mark audit entries published: %w", err)
		}
		total += len(entries)
		if r.metrics != nil {
			r.metrics.AddAuditRelayed(len(entries))
		}
		r.logger.DebugContext(ctx, "audit entries relayed", "count", len(entries), "last_seq", seqs[len(seqs)-1])
		if len(entries) < r.batch {
			return total, nil
		}
	}
}

// encode keys each message by proposal so a consumer reads one proposal's
// history in order.
func (r *Relay) encode(entries []*audit.Entry) ([]kafka.Message, []int64, error) {
	msgs := make([]kafka.Message, len(entries))
	seqs := make([]int64, len(entries))
	for i, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, nil, fmt.Errorf("encode audit entry %d: %w", e.Seq, err)
		}
		msgs[i] = kafka.Message{
			Topic: r.topic,
			Key:   []byte(e.ProposalID.String()),
			Value: payload,
			Headers: map[string]string{
				"action":      e.Action,
				"entity_type": string(e.EntityType),
			},
		}
		seqs[i] = e.Seq
	}
	return msgs, seqs, nil
}
