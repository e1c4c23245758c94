// Package service answers administrator queries over the audit trail.
package service

import (
	"context"
	"log/slog"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
)

// Query selects entries by proposal or by a single entity. Exactly one of the
// two must be set. Action optionally narrows the result.
type Query struct {
	ProposalID id.ProposalID
	EntityID   string
	Action     string
}

type Service struct {
	entries store.AuditStore
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(entries store.AuditStore, opts ...Option) *Service {
	s := &Service{entries: entries, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns matching entries in (Timestamp, Seq) order. Admin only.
func (s *Service) List(ctx context.Context, who identity.Identity, q Query) ([]*audit.Entry, error) {
	if err := identity.Authorize(who, identity.OpAuditList, identity.RelationNone, ""); err != nil {
		return nil, err
	}
	byProposal := !q.ProposalID.IsNil()
	if byProposal == (q.EntityID != "") {
		return nil, dErrors.New(dErrors.CodeValidation, "exactly one of proposal_id or entity_id is required")
	}

	var (
		entries []*audit.Entry
		err     error
	)
	if byProposal {
		entries, err = s.entries.ListByProposal(ctx, q.ProposalID)
	} else {
		entries, err = s.entries.ListByEntity(ctx, q.EntityID)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list audit entries", "actor_id", who.ID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit entries")
	}
	if q.Action == "" {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Action == q.Action {
			out = append(out, e)
		}
	}
	return out, nil
}
