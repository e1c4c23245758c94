// Package service is the matching engine: buyers register interest in
// approved proposals and the owner accepts exactly one of them.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	"dealroom/internal/matching/models"
	"dealroom/internal/notify"
	"dealroom/internal/platform/config"
	"dealroom/internal/proposal/metrics"
	proposalModels "dealroom/internal/proposal/models"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

type Service struct {
	uow       store.UnitOfWork
	lifecycle config.Lifecycle
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

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("dealroom/matching") }
}

func New(uow store.UnitOfWork, lifecycle config.Lifecycle, opts ...Option) *Service {
	s := &Service{
		uow:       uow,
		lifecycle: lifecycle,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("dealroom/matching"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProposeInterest registers the calling buyer as a candidate for an approved
// proposal. A buyer holds at most one proposed or accepted candidate per
// proposal.
func (s *Service) ProposeInterest(ctx context.Context, who identity.Identity, proposalID id.ProposalID, message string) (*models.Candidate, error) {
	ctx, span := s.start(ctx, identity.OpMatchPropose, proposalID)
	defer span.End()
	defer s.observe(identity.OpMatchPropose, time.Now())

	if err := identity.Authorize(who, identity.OpMatchPropose, identity.RelationNone, proposalID.String()); err != nil {
		return nil, s.fail(ctx, span, identity.OpMatchPropose, proposalID, err)
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > s.lifecycle.MaxMessageLength {
		err := dErrors.New(dErrors.CodeValidation, "message is too long").WithEntity(proposalID.String())
		return nil, s.fail(ctx, span, identity.OpMatchPropose, proposalID, err)
	}

	now := requestcontext.Now(ctx)
	var (
		c       *models.Candidate
		ownerID id.UserID
	)
	err := s.uow.RunInTx(ctx, proposalID, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Proposals().FindByID(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		if p.Status != proposalModels.StatusApproved {
			return dErrors.InvalidState(proposalID.String(), string(p.Status), string(models.StateProposed))
		}
		existing, err := tx.Candidates().ListByProposal(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "candidate", proposalID.String())
		}
		for _, o := range existing {
			if o.BuyerID == who.ID && o.IsActive() {
				return dErrors.New(dErrors.CodeDuplicate, "interest already registered").WithEntity(o.ID.String())
			}
		}

		c = models.NewCandidate(proposalID, who.ID, message, now)
		if err := tx.Candidates().Create(ctx, c); err != nil {
			return store.Translate(err, "candidate", c.ID.String())
		}
		ownerID = p.OwnerID
		return s.record(ctx, tx, who, c, string(identity.OpMatchPropose), "")
	})
	if err != nil {
		return nil, s.fail(ctx, span, identity.OpMatchPropose, proposalID, err)
	}

	notify.Dispatch(ctx, s.notifier, s.logger, notify.Event{
		Kind: notify.KindInterest, UserID: ownerID, ProposalID: proposalID,
		SubjectID: c.ID.String(), At: now,
	})
	s.logger.InfoContext(ctx, "interest registered",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"candidate_id", c.ID,
		"actor_id", who.ID,
	)
	return c, nil
}

// AcceptCandidate matches the proposal with one candidate. In the same unit it
// rejects every other proposed candidate and moves the proposal from approved
// to matched. version is the proposal version the owner last saw; two owners
// racing on the same version get one success and one ConcurrentModification.
func (s *Service) AcceptCandidate(ctx context.Context, who identity.Identity, candidateID id.CandidateID, version int64) (*proposalModels.Proposal, *models.Candidate, error) {
	c, err := s.uow.Candidates().FindByID(ctx, candidateID)
	if err != nil {
		return nil, nil, store.Translate(err, "candidate", candidateID.String())
	}
	proposalID := c.ProposalID

	ctx, span := s.start(ctx, identity.OpMatchAccept, proposalID)
	defer span.End()
	defer s.observe(identity.OpMatchAccept, time.Now())

	now := requestcontext.Now(ctx)
	var (
		p        *proposalModels.Proposal
		accepted *models.Candidate
		rejected []*models.Candidate
	)
	err = s.uow.RunInTx(ctx, proposalID, func(ctx context.Context, tx store.Stores) error {
		cur, err := tx.Proposals().FindByID(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		if err := identity.Authorize(who, identity.OpMatchAccept, cur.RelationOf(who), proposalID.String()); err != nil {
			return err
		}
		if err := cur.CheckVersion(version); err != nil {
			return err
		}
		from := cur.Status
		if err := cur.Match(now); err != nil {
			return err
		}

		candidates, err := tx.Candidates().ListByProposal(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "candidate", proposalID.String())
		}
		for _, o := range candidates {
			if o.ID != candidateID {
				continue
			}
			if err := o.Accept(now); err != nil {
				return err
			}
			if err := tx.Candidates().Update(ctx, o); err != nil {
				return store.Translate(err, "candidate", o.ID.String())
			}
			if err := s.record(ctx, tx, who, o, string(identity.OpMatchAccept), string(models.StateProposed)); err != nil {
				return err
			}
			accepted = o
		}
		if accepted == nil {
			return dErrors.NotFound("candidate", candidateID.String())
		}
		for _, o := range candidates {
			if o.ID == candidateID || o.State != models.StateProposed {
				continue
			}
			if err := o.Reject(now); err != nil {
				return err
			}
			if err := tx.Candidates().Update(ctx, o); err != nil {
				return store.Translate(err, "candidate", o.ID.String())
			}
			if err := s.record(ctx, tx, who, o, audit.ActionCandidateRejected, string(models.StateProposed)); err != nil {
				return err
			}
			rejected = append(rejected, o)
		}

		if err := tx.Proposals().Update(ctx, cur, version); err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		entry := audit.NewEntry(ctx, who, audit.ProposalTarget(proposalID), string(identity.OpMatchAccept),
			string(from), string(cur.Status)).WithDetail(candidateID.String())
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}
		p = cur
		return nil
	})
	if err != nil {
		return nil, nil, s.fail(ctx, span, identity.OpMatchAccept, proposalID, err)
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(proposalModels.StatusApproved), string(p.Status))
	}
	events := []notify.Event{{
		Kind: notify.KindCandidateAccepted, UserID: accepted.BuyerID, ProposalID: proposalID,
		SubjectID: accepted.ID.String(), At: now,
	}}
	for _, o := range rejected {
		events = append(events, notify.Event{
			Kind: notify.KindCandidateRejected, UserID: o.BuyerID, ProposalID: proposalID,
			SubjectID: o.ID.String(), At: now,
		})
	}
	notify.Dispatch(ctx, s.notifier, s.logger, events...)
	s.logger.InfoContext(ctx, "candidate accepted",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"candidate_id", candidateID,
		"actor_id", who.ID,
		"rejected", len(rejected),
		"version", p.Version,
	)
	return p, accepted, nil
}

// WithdrawCandidate lets a buyer take back interest that has not been acted on.
func (s *Service) WithdrawCandidate(ctx context.Context, who identity.Identity, candidateID id.CandidateID) (*models.Candidate, error) {
	c, err := s.uow.Candidates().FindByID(ctx, candidateID)
	if err != nil {
		return nil, store.Translate(err, "candidate", candidateID.String())
	}
	proposalID := c.ProposalID

	ctx, span := s.start(ctx, identity.OpMatchWithdraw, proposalID)
	defer span.End()
	defer s.observe(identity.OpMatchWithdraw, time.Now())

	rel := identity.RelationNone
	if c.BuyerID == who.ID {
		rel = identity.RelationCounterparty
	}
	if err := identity.Authorize(who, identity.OpMatchWithdraw, rel, candidateID.String()); err != nil {
		return nil, s.fail(ctx, span, identity.OpMatchWithdraw, proposalID, err)
	}

	now := requestcontext.Now(ctx)
	err = s.uow.RunInTx(ctx, proposalID, func(ctx context.Context, tx store.Stores) error {
		cur, err := tx.Candidates().FindByID(ctx, candidateID)
		if err != nil {
			return store.Translate(err, "candidate", candidateID.String())
		}
		previous := cur.State
		if err := cur.Withdraw(now); err != nil {
			return err
		}
		if err := tx.Candidates().Update(ctx, cur); err != nil {
			return store.Translate(err, "candidate", candidateID.String())
		}
		c = cur
		return s.record(ctx, tx, who, cur, string(identity.OpMatchWithdraw), string(previous))
	})
	if err != nil {
		return nil, s.fail(ctx, span, identity.OpMatchWithdraw, proposalID, err)
	}
	s.logger.InfoContext(ctx, "interest withdrawn",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"candidate_id", candidateID,
		"actor_id", who.ID,
	)
	return c, nil
}

// ListCandidates returns every candidate of a proposal to its owner or an admin.
func (s *Service) ListCandidates(ctx context.Context, who identity.Identity, proposalID id.ProposalID) ([]*models.Candidate, error) {
	p, err := s.uow.Proposals().FindByID(ctx, proposalID)
	if err != nil {
		return nil, store.Translate(err, "proposal", proposalID.String())
	}
	if err := identity.Authorize(who, identity.OpMatchList, p.RelationOf(who), proposalID.String()); err != nil {
		return nil, err
	}
	list, err := s.uow.Candidates().ListByProposal(ctx, proposalID)
	if err != nil {
		return nil, store.Translate(err, "candidate", proposalID.String())
	}
	return list, nil
}

func (s *Service) record(ctx context.Context, tx store.Stores, who identity.Identity, c *models.Candidate, action, previous string) error {
	entry := audit.NewEntry(ctx, who, audit.CandidateTarget(c.ID, c.ProposalID), action, previous, string(c.State))
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
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
		s.logger.ErrorContext(ctx, "matching operation failed", attrs...)
		if _, ok := dErrors.As(err); !ok {
			return dErrors.Wrap(err, dErrors.CodeInternal, "matching operation failed").WithEntity(proposalID.String())
		}
		return err
	}
	s.logger.WarnContext(ctx, "matching operation rejected", attrs...)
	return err
}
