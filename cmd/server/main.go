package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	auditHandler "dealroom/internal/audit/handler"
	"dealroom/internal/audit/relay"
	auditService "dealroom/internal/audit/service"
	"dealroom/internal/identity"
	matchingHandler "dealroom/internal/matching/handler"
	matchingService "dealroom/internal/matching/service"
	ndaHandler "dealroom/internal/nda/handler"
	ndaService "dealroom/internal/nda/service"
	"dealroom/internal/platform/config"
	"dealroom/internal/platform/httpserver"
	"dealroom/internal/platform/logger"
	"dealroom/internal/platform/metrics"
	proposalHandler "dealroom/internal/proposal/handler"
	proposalMetrics "dealroom/internal/proposal/metrics"
	proposalService "dealroom/internal/proposal/service"
	"dealroom/internal/ratelimit"
	"dealroom/internal/scheduler"
	httptransport "dealroom/internal/transport/http"
)

// main wires the services onto the chosen infrastructure, serves HTTP and runs
// the timeout sweep and audit relay until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("dealroom stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("dealroom stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	platformMetrics := metrics.New(reg)
	workflowMetrics := proposalMetrics.New(reg)

	infra, err := openInfra(ctx, cfg, log, platformMetrics)
	if err != nil {
		return err
	}
	defer infra.close(context.WithoutCancel(ctx))

	ndaSvc := ndaService.New(infra.uow, cfg.Lifecycle,
		ndaService.WithLogger(log),
		ndaService.WithNotifier(infra.notifier),
	)
	proposalSvc := proposalService.New(infra.uow, cfg.Lifecycle, ndaSvc,
		proposalService.WithLogger(log),
		proposalService.WithMetrics(workflowMetrics),
		proposalService.WithNotifier(infra.notifier),
		proposalService.WithDocuments(infra.documents),
		proposalService.WithViewCounter(infra.views),
	)
	matchingSvc := matchingService.New(infra.uow, cfg.Lifecycle,
		matchingService.WithLogger(log),
		matchingService.WithMetrics(workflowMetrics),
		matchingService.WithNotifier(infra.notifier),
	)
	auditSvc := auditService.New(infra.uow.Audit(), auditService.WithLogger(log))

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Metrics:  platformMetrics,
		Gatherer: reg,
		Resolver: identity.NewJWTResolver(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience),
		Health:   infra.health,
		Throttle: ratelimit.New(infra.limits, cfg.RateLimit.WritesPerWindow, cfg.RateLimit.Window, log).LimitWrites,
	},
		proposalHandler.New(proposalSvc, log),
		matchingHandler.New(matchingSvc, log),
		ndaHandler.New(ndaSvc, log),
		auditHandler.New(auditSvc, log),
	)
	srv := httpserver.New(cfg.Server, router)

	sweep := scheduler.New(proposalSvc, cfg.Lifecycle.SweepInterval,
		scheduler.WithLogger(log),
		scheduler.WithMetrics(workflowMetrics),
		scheduler.WithLocker(infra.locker),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting dealroom", "addr", cfg.Server.Addr, "store", infra.storeKind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error { return infra.delivery.Run(gctx) })
	g.Go(func() error { return ignoreCancel(sweep.Start(gctx)) })
	if infra.publisher != nil {
		auditRelay := relay.New(infra.uow.Audit(), infra.publisher, cfg.Kafka.AuditTopic, cfg.Kafka.RelayInterval,
			relay.WithLogger(log),
			relay.WithMetrics(platformMetrics),
			relay.WithLocker(infra.locker),
			relay.WithBatchSize(cfg.Kafka.RelayBatch),
		)
		g.Go(func() error { return ignoreCancel(auditRelay.Start(gctx)) })
	}
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
