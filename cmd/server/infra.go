package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dealroom/internal/document"
	"dealroom/internal/notify"
	"dealroom/internal/platform/config"
	"dealroom/internal/platform/kafka"
	"dealroom/internal/platform/metrics"
	"dealroom/internal/platform/redis"
	"dealroom/internal/proposal/service"
	"dealroom/internal/proposal/views"
	"dealroom/internal/ratelimit"
	"dealroom/internal/scheduler"
	"dealroom/internal/store"
	"dealroom/internal/store/memory"
	"dealroom/internal/store/postgres"
	httptransport "dealroom/internal/transport/http"
	"dealroom/pkg/platform/circuit"
)

// infra is the set of backing services chosen from config. Every external
// dependency is optional: without it the process falls back to an in-process
// implementation, which is enough for a single instance.
type infra struct {
	uow       store.UnitOfWork
	storeKind string
	documents service.DocumentStore
	views     service.ViewCounter
	notifier  notify.Sink
	delivery  *notify.Async
	locker    scheduler.Locker
	limits    ratelimit.Store
	publisher *kafka.Producer
	health    []httptransport.HealthCheck
	closers   []func(context.Context)
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*infra, error) {
	in := &infra{
		uow:       memory.New(),
		storeKind: "memory",
		documents: document.NewMemoryStore(),
		views:     views.NewMemoryCounter(),
		locker:    scheduler.NewLocalLocker(),
		limits:    ratelimit.NewMemoryStore(),
	}

	if cfg.Database.URL != "" {
		pg, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, func(context.Context) { _ = pg.Close() })
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				in.close(ctx)
				return nil, err
			}
		}
		in.uow, in.storeKind = pg, "postgres"
		in.health = append(in.health, httptransport.HealthCheck{Name: "postgres", Check: pg.Health})
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.close(ctx)
		return nil, err
	}
	if rdb != nil {
		in.closers = append(in.closers, func(context.Context) { _ = rdb.Close() })
		in.views = views.NewRedisCounter(rdb)
		in.locker = rdb
		in.limits = ratelimit.NewRedisStore(rdb)
		in.health = append(in.health, httptransport.HealthCheck{Name: "redis", Check: rdb.Health})
	}

	if cfg.S3.Bucket != "" {
		client, err := document.NewS3Client(ctx, cfg.S3)
		if err != nil {
			in.close(ctx)
			return nil, err
		}
		in.documents = document.NewS3Store(client, cfg.S3.Bucket)
	}

	sinks := []notify.Named{{Name: "log", Sink: notify.NewLogSink(log)}}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, log)
		if err != nil {
			in.close(ctx)
			return nil, err
		}
		in.closers = append(in.closers, producer.Close)
		if err := producer.EnsureTopics(ctx, 3, 1, cfg.Kafka.AuditTopic, cfg.Kafka.NotificationTopic); err != nil {
			in.close(ctx)
			return nil, fmt.Errorf("prepare kafka topics: %w", err)
		}
		in.publisher = producer
		kafkaSink := notify.NewGuarded(notify.NewKafkaSink(producer, cfg.Kafka.NotificationTopic),
			circuit.New("kafka-notify", circuit.WithCooldown(time.Minute)), log)
		sinks = append(sinks, notify.Named{Name: "kafka", Sink: kafkaSink})
		in.health = append(in.health, httptransport.HealthCheck{Name: "kafka", Check: producer.Health})
	}
	in.delivery = notify.NewAsync(notify.NewMulti(m, sinks...), log)
	in.notifier = in.delivery
	return in, nil
}

// close releases resources in reverse order of acquisition.
func (in *infra) close(ctx context.Context) {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i](ctx)
	}
}
