// Package service is the proposal registry: it owns proposal records and
// drives them through the lifecycle state machine.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dealroom/internal/audit"
	"dealroom/internal/document"
	"dealroom/internal/identity"
	"dealroom/internal/notify"
	"dealroom/internal/platform/config"
	"dealroom/internal/proposal/metrics"
	"dealroom/internal/proposal/models"
	"dealroom/internal/proposal/views"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

// DisclosureGate decides field-level visibility. The NDA service implements it.
type DisclosureGate interface {
	Visibility(ctx context.Context, viewer identity.Identity, p *models.Proposal) (models.Visibility, error)
}

type DocumentStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, fileRef string) ([]byte, error)
	Delete(ctx context.Context, fileRef string) error
}

type ViewCounter interface {
	Increment(ctx context.Context, proposalID id.ProposalID) (int64, error)
}

// Service orchestrates proposal lifecycle operations. Each mutation is one unit
// of work that checks the caller's version, applies the transition and appends
// the audit entry; notifications go out only after the unit commits.
type Service struct {
	uow       store.UnitOfWork
	lifecycle config.Lifecycle
	gate      DisclosureGate
	documents DocumentStore
	views     ViewCounter
	notifier  notify.Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n notify.Sink) Option {
	return func(s *Service) { s.notifier = n }
}

func WithDocuments(d DocumentStore) Option {
	return func(s *Service) { s.documents = d }
}

func WithViewCounter(v ViewCounter) Option {
	return func(s *Service) { s.views = v }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("dealroom/proposal") }
}

// New constructs a Service. Documents and view counts default to in-memory
// implementations.
func New(uow store.UnitOfWork, lifecycle config.Lifecycle, gate DisclosureGate, opts ...Option) *Service {
	s := &Service{
		uow:       uow,
		lifecycle: lifecycle,
		gate:      gate,
		documents: document.NewMemoryStore(),
		views:     views.NewMemoryCounter(),
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("dealroom/proposal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextAutoSaveAt is when the editor should save p again.
func (s *Service) NextAutoSaveAt(p *models.Proposal) time.Time {
	return p.LastSavedAt.Add(s.lifecycle.AutoSaveInterval)
}

type mutation struct {
	op      identity.Operation
	who     identity.Identity
	id      id.ProposalID
	version int64
	apply   func(p *models.Proposal, now time.Time) error
	detail  string
	// remove deletes the proposal instead of writing it back.
	remove bool
}

// stateDeleted is the audit target state of a removed draft.
const stateDeleted = "deleted"

// mutate runs one versioned change to a proposal.
func (s *Service) mutate(ctx context.Context, m mutation) (*models.Proposal, error) {
	ctx, span := s.start(ctx, m.op, m.id)
	defer span.End()
	defer s.observe(m.op, time.Now())

	now := requestcontext.Now(ctx)
	var (
		out  *models.Proposal
		from models.Status
		to   string
	)
	err := s.uow.RunInTx(ctx, m.id, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Proposals().FindByID(ctx, m.id)
		if err != nil {
			return store.Translate(err, "proposal", m.id.String())
		}
		if err := identity.Authorize(m.who, m.op, p.RelationOf(m.who), m.id.String()); err != nil {
			return err
		}
		if err := p.CheckVersion(m.version); err != nil {
			return err
		}
		from = p.Status
		if err := m.apply(p, now); err != nil {
			return err
		}
		to = string(p.Status)
		if m.remove {
			to = stateDeleted
			err = tx.Proposals().Delete(ctx, m.id, m.version)
		} else {
			err = tx.Proposals().Update(ctx, p, m.version)
		}
		if err != nil {
			return store.Translate(err, "proposal", m.id.String())
		}
		entry := audit.NewEntry(ctx, m.who, audit.ProposalTarget(m.id), string(m.op), string(from), to).
			WithDetail(m.detail)
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, m.op, m.id, err)
	}

	if string(from) != to && s.metrics != nil {
		s.metrics.IncrementTransition(string(from), to)
	}
	s.logger.InfoContext(ctx, "proposal updated",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", m.id,
		"actor_id", m.who.ID,
		"operation", m.op,
		"from", from,
		"to", to,
		"version", out.Version,
	)
	return out, nil
}

func (s *Service) start(ctx context.Context, op identity.Operation, proposalID id.ProposalID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, string(op), trace.WithAttributes(
		attribute.String("proposal.id", proposalID.String()),
	))
}

func (s *Service) observe(op identity.Operation, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(string(op), start)
	}
}

// fail records err on the span and in the log. Caller mistakes are logged at
// warn; anything without a domain code is an internal failure.
func (s *Service) fail(ctx context.Context, span trace.Span, op identity.Operation, proposalID id.ProposalID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))

	code := dErrors.CodeOf(err)
	if code == dErrors.CodeConcurrentModification && s.metrics != nil {
		s.metrics.IncrementConcurrentRejection()
	}
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"operation", op,
		"code", code,
		"error", err,
	}
	if code == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "proposal operation failed", attrs...)
		if _, ok := dErrors.As(err); !ok {
			return dErrors.Wrap(err, dErrors.CodeInternal, "proposal operation failed").WithEntity(proposalID.String())
		}
		return err
	}
	s.logger.WarnContext(ctx, "proposal operation rejected", attrs...)
	return err
}

func (s *Service) notify(ctx context.Context, events ...notify.Event) {
	notify.Dispatch(ctx, s.notifier, s.logger, events...)
}
