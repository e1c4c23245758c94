// Package service is the NDA gate: it owns NDA records and answers whether a
// buyer may see a proposal's confidential fields.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	matchingModels "dealroom/internal/matching/models"
	ndaModels "dealroom/internal/nda/models"
	"dealroom/internal/notify"
	"dealroom/internal/platform/config"
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
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(n notify.Sink) Option {
	return func(s *Service) { s.notifier = n }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("dealroom/nda") }
}

func New(uow store.UnitOfWork, lifecycle config.Lifecycle, opts ...Option) *Service {
	s := &Service{
		uow:       uow,
		lifecycle: lifecycle,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("dealroom/nda"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestNDA opens an NDA for the accepted buyer. The first request moves a
// matched proposal to nda_pending. Once disclosure is under way the buyer may
// request again to replace an expired record, but never while a pending or
// active record exists.
func (s *Service) RequestNDA(ctx context.Context, who identity.Identity, proposalID id.ProposalID) (*ndaModels.Record, error) {
	ctx, span := s.tracer.Start(ctx, string(identity.OpNDARequest),
		trace.WithAttributes(attribute.String("proposal.id", proposalID.String())))
	defer span.End()

	// Role check first; the counterparty relation is confirmed against the
	// accepted candidate below.
	if err := identity.Authorize(who, identity.OpNDARequest, identity.RelationCounterparty, proposalID.String()); err != nil {
		return nil, s.fail(ctx, span, identity.OpNDARequest, proposalID, err)
	}

	now := requestcontext.Now(ctx)
	var (
		record  *ndaModels.Record
		ownerID id.UserID
	)
	err := s.uow.RunInTx(ctx, proposalID, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Proposals().FindByID(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		switch p.Status {
		case proposalModels.StatusMatched, proposalModels.StatusNDAPending, proposalModels.StatusDisclosed:
		default:
			return dErrors.InvalidState(proposalID.String(), string(p.Status), string(proposalModels.StatusNDAPending))
		}
		if err := s.requireAcceptedBuyer(ctx, tx, who, proposalID); err != nil {
			return err
		}

		existing, err := tx.NDAs().ListByProposalAndBuyer(ctx, proposalID, who.ID)
		if err != nil {
			return store.Translate(err, "nda", proposalID.String())
		}
		for _, r := range existing {
			if r.IsPending() || r.IsActive(now) {
				return dErrors.New(dErrors.CodeDuplicate, "an NDA is already "+r.State(now)).WithEntity(r.ID.String())
			}
		}

		record = ndaModels.NewRecord(proposalID, who.ID, now)
		if err := tx.NDAs().Create(ctx, record); err != nil {
			return store.Translate(err, "nda", record.ID.String())
		}
		if err := tx.Audit().Append(ctx, audit.NewEntry(ctx, who, audit.NDATarget(record.ID, proposalID),
			string(identity.OpNDARequest), "", record.State(now))); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}

		if p.Status == proposalModels.StatusMatched {
			expected := p.Version
			if err := p.RequestNDA(now); err != nil {
				return err
			}
			if err := tx.Proposals().Update(ctx, p, expected); err != nil {
				return store.Translate(err, "proposal", proposalID.String())
			}
			if err := tx.Audit().Append(ctx, audit.NewEntry(ctx, who, audit.ProposalTarget(proposalID),
				string(identity.OpNDARequest), string(proposalModels.StatusMatched), string(p.Status))); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
			}
		}
		ownerID = p.OwnerID
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, identity.OpNDARequest, proposalID, err)
	}

	notify.Dispatch(ctx, s.notifier, s.logger, notify.Event{
		Kind: notify.KindNDARequested, UserID: ownerID, ProposalID: proposalID,
		SubjectID: record.ID.String(), At: now,
	})
	s.logger.InfoContext(ctx, "nda requested",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"nda_id", record.ID,
		"actor_id", who.ID,
	)
	return record, nil
}

// SignNDA signs the buyer's pending record. Signing while nda_pending discloses
// the proposal; signing a renewal leaves the status alone.
func (s *Service) SignNDA(ctx context.Context, who identity.Identity, ndaID id.NDAID) (*ndaModels.Record, error) {
	r, err := s.uow.NDAs().FindByID(ctx, ndaID)
	if err != nil {
		return nil, store.Translate(err, "nda", ndaID.String())
	}
	proposalID := r.ProposalID

	ctx, span := s.tracer.Start(ctx, string(identity.OpNDASign),
		trace.WithAttributes(attribute.String("proposal.id", proposalID.String())))
	defer span.End()

	rel := identity.RelationNone
	if r.BuyerID == who.ID {
		rel = identity.RelationCounterparty
	}
	if err := identity.Authorize(who, identity.OpNDASign, rel, ndaID.String()); err != nil {
		return nil, s.fail(ctx, span, identity.OpNDASign, proposalID, err)
	}

	now := requestcontext.Now(ctx)
	var ownerID id.UserID
	err = s.uow.RunInTx(ctx, proposalID, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Proposals().FindByID(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		if p.Status != proposalModels.StatusNDAPending && p.Status != proposalModels.StatusDisclosed {
			return dErrors.InvalidState(proposalID.String(), string(p.Status), string(proposalModels.StatusDisclosed))
		}
		cur, err := tx.NDAs().FindByID(ctx, ndaID)
		if err != nil {
			return store.Translate(err, "nda", ndaID.String())
		}
		previous := cur.State(now)
		if err := cur.Sign(now, s.lifecycle.NDAValidity); err != nil {
			return err
		}
		if err := tx.NDAs().Update(ctx, cur); err != nil {
			return store.Translate(err, "nda", ndaID.String())
		}
		if err := tx.Audit().Append(ctx, audit.NewEntry(ctx, who, audit.NDATarget(ndaID, proposalID),
			string(identity.OpNDASign), previous, cur.State(now))); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}

		if p.Status == proposalModels.StatusNDAPending {
			expected := p.Version
			if err := p.Disclose(now); err != nil {
				return err
			}
			if err := tx.Proposals().Update(ctx, p, expected); err != nil {
				return store.Translate(err, "proposal", proposalID.String())
			}
			if err := tx.Audit().Append(ctx, audit.NewEntry(ctx, who, audit.ProposalTarget(proposalID),
				string(identity.OpNDASign), string(proposalModels.StatusNDAPending), string(p.Status))); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
			}
		}
		r, ownerID = cur, p.OwnerID
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, identity.OpNDASign, proposalID, err)
	}

	notify.Dispatch(ctx, s.notifier, s.logger, notify.Event{
		Kind: notify.KindNDASigned, UserID: ownerID, ProposalID: proposalID,
		SubjectID: ndaID.String(), At: now,
	})
	s.logger.InfoContext(ctx, "nda signed",
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"nda_id", ndaID,
		"actor_id", who.ID,
	)
	return r, nil
}

// HasActiveNDA is true iff buyer holds a signed, unexpired record for the proposal.
func (s *Service) HasActiveNDA(ctx context.Context, proposalID id.ProposalID, buyer id.UserID) (bool, error) {
	records, err := s.uow.NDAs().ListByProposalAndBuyer(ctx, proposalID, buyer)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load NDA records").WithEntity(proposalID.String())
	}
	return ndaModels.HasActive(records, requestcontext.Now(ctx)), nil
}

// Visibility computes what viewer may see of p from stored state alone.
func (s *Service) Visibility(ctx context.Context, viewer identity.Identity, p *proposalModels.Proposal) (proposalModels.Visibility, error) {
	if p.IsOwnedBy(viewer.ID) || viewer.IsAdmin() || p.SubmittedAt == nil {
		return ndaModels.Decide(viewer, p, false), nil
	}
	active, err := s.HasActiveNDA(ctx, p.ID, viewer.ID)
	if err != nil {
		return proposalModels.Visibility{}, err
	}
	return ndaModels.Decide(viewer, p, active), nil
}

// Records lists the caller's own NDA records for a proposal.
func (s *Service) Records(ctx context.Context, who identity.Identity, proposalID id.ProposalID) ([]*ndaModels.Record, error) {
	records, err := s.uow.NDAs().ListByProposalAndBuyer(ctx, proposalID, who.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load NDA records").WithEntity(proposalID.String())
	}
	return records, nil
}

func (s *Service) requireAcceptedBuyer(ctx context.Context, tx store.Stores, who identity.Identity, proposalID id.ProposalID) error {
	candidates, err := tx.Candidates().ListByProposal(ctx, proposalID)
	if err != nil {
		return store.Translate(err, "candidate", proposalID.String())
	}
	for _, c := range candidates {
		if c.State == matchingModels.StateAccepted && c.BuyerID == who.ID {
			return nil
		}
	}
	return identity.Authorize(who, identity.OpNDARequest, identity.RelationNone, proposalID.String())
}

func (s *Service) fail(ctx context.Context, span trace.Span, op identity.Operation, proposalID id.ProposalID, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"proposal_id", proposalID,
		"operation", op,
		"code", code,
		"error", err,
	}
	if code == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "nda operation failed", attrs...)
		if _, ok := dErrors.As(err); !ok {
			return dErrors.Wrap(err, dErrors.CodeInternal, "nda operation failed").WithEntity(proposalID.String())
		}
		return err
	}
	s.logger.WarnContext(ctx, "nda operation rejected", attrs...)
	return err
}
