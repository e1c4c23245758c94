// Package kafka wraps a franz-go client for the producers in this service.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one record to produce. Key decides the partition, so every
// message about one proposal keeps its order.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	clientID string
	linger   time.Duration
	extra    []kgo.Opt
}

func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

func WithLinger(d time.Duration) Option {
	return func(o *options) { o.linger = d }
}

// WithClientOpts passes raw franz-go options through, mostly for tests.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

// NewProducer connects to brokers. Produces wait for all in-sync replicas and
// are idempotent, so a retried batch is not duplicated on the broker.
func NewProducer(brokers []string, logger *slog.Logger, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	o := options{clientID: "dealroom", linger: 5 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	kopts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(o.clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(o.linger),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	}
	client, err := kgo.NewClient(append(kopts, o.extra...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// Publish produces msgs synchronously and returns the first failure.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	results := p.client.ProduceSync(ctx, toRecords(msgs)...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// EnsureTopics creates topics that do not exist yet.
func (p *Producer) EnsureTopics(ctx context.Context, partitions int32, replication int16, topics ...string) error {
	adm := kadm.NewClient(p.client)
	for _, topic := range topics {
		resp, err := adm.CreateTopic(ctx, partitions, replication, nil, topic)
		if err != nil {
			return fmt.Errorf("kafka: create topic %s: %w", topic, err)
		}
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", topic, resp.Err)
		}
		if resp.Err == nil {
			p.logger.InfoContext(ctx, "kafka topic created", "topic", topic, "partitions", partitions)
		}
	}
	return nil
}

func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records before closing the client.
func (p *Producer) Close(ctx context.Context) {
	if err := p.client.Flush(ctx); err != nil {
		p.logger.WarnContext(ctx, "kafka flush on close failed", "error", err)
	}
	p.client.Close()
}

func toRecords(msgs []Message) []*kgo.Record {
	records := make([]*kgo.Record, len(msgs))
	for i, m := range msgs {
		r := &kgo.Record{Topic: m.Topic, Key: m.Key, Value: m.Value}
		for k, v := range m.Headers {
			r.Headers = append(r.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
		records[i] = r
	}
	return records
}
