package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dealroom/internal/platform/kafka"
	"dealroom/pkg/platform/circuit"
)

// LogSink writes events to the structured log. It is the default sink when no
// broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "notification",
		"kind", e.Kind,
		"user_id", e.UserID,
		"proposal_id", e.ProposalID,
		"subject_id", e.SubjectID,
	)
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes events keyed by recipient so a consumer sees each user's
// notifications in order.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return s.publisher.Publish(ctx, kafka.Message{
		Topic:   s.topic,
		Key:     []byte(e.UserID.String()),
		Value:   payload,
		Headers: map[string]string{"kind": string(e.Kind)},
	})
}

// Guarded skips its sink while the breaker is open so a dead broker does not
// add a timeout to every committed change.
type Guarded struct {
	sink    Sink
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(sink Sink, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{sink: sink, breaker: breaker, logger: logger}
}

func (g *Guarded) Notify(ctx context.Context, e Event) error {
	if !g.breaker.Allow(time.Now()) {
		return circuit.ErrOpen
	}
	if err := g.sink.Notify(ctx, e); err != nil {
		if g.breaker.RecordFailure(time.Now()) {
			g.logger.WarnContext(ctx, "notification sink disabled after repeated failures",
				"sink", g.breaker.Name(), "error", err)
		}
		return err
	}
	if g.breaker.RecordSuccess() {
		g.logger.InfoContext(ctx, "notification sink recovered", "sink", g.breaker.Name())
	}
	return nil
}

type FailureCounter interface {
	IncrementNotificationFailures(sink string)
}

// Named pairs a sink with the label used in metrics.
type Named struct {
	Name string
	Sink Sink
}

// Multi fans an event out to every sink concurrently. Each failure is counted;
// the first one is returned.
type Multi struct {
	sinks    []Named
	failures FailureCounter
}

func NewMulti(failures FailureCounter, sinks ...Named) *Multi {
	return &Multi{sinks: sinks, failures: failures}
}

func (m *Multi) Notify(ctx context.Context, e Event) error {
	var g errgroup.Group
	for _, n := range m.sinks {
		g.Go(func() error {
			if err := n.Sink.Notify(ctx, e); err != nil {
				if m.failures != nil {
					m.failures.IncrementNotificationFailures(n.Name)
				}
				return fmt.Errorf("%s: %w", n.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Recorder keeps every event in memory. Tests use it to assert on deliveries.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Of returns the recorded events of kind.
func (r *Recorder) Of(kind Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
