package service

import (
	"context"
	"time"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	"dealroom/internal/notify"
	"dealroom/internal/proposal/models"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

// DueProposals lists proposals with a review or archive deadline at or before
// the time on ctx.
func (s *Service) DueProposals(ctx context.Context, limit int) ([]id.ProposalID, error) {
	ids, err := s.uow.Proposals().ListDue(ctx, requestcontext.Now(ctx), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list due proposals")
	}
	return ids, nil
}

// ApplyTimeout applies whichever timeout transition proposalID owes at the
// time on ctx, as the system actor. It re-checks inside the unit of work, so a
// proposal that moved on, or was already handled, is left alone and applied is
// false.
func (s *Service) ApplyTimeout(ctx context.Context, proposalID id.ProposalID) (to models.Status, applied bool, err error) {
	ctx, span := s.start(ctx, identity.OpProposalExpire, proposalID)
	defer span.End()

	now := requestcontext.Now(ctx)
	var (
		p    *models.Proposal
		from models.Status
	)
	err = s.uow.RunInTx(ctx, proposalID, func(ctx context.Context, tx store.Stores) error {
		cur, err := tx.Proposals().FindByID(ctx, proposalID)
		if err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		due, ok := cur.DueTransition(now)
		if !ok {
			return nil
		}
		op := identity.OpProposalExpire
		if due == models.StatusArchived {
			op = identity.OpProposalArchive
		}
		if err := identity.Authorize(identity.System, op, identity.RelationNone, proposalID.String()); err != nil {
			return err
		}
		expected := cur.Version
		from = cur.Status
		if due == models.StatusExpired {
			err = cur.Expire(now, s.lifecycle.ArchiveAfter)
		} else {
			err = cur.Archive(now)
		}
		if err != nil {
			return err
		}
		if err := tx.Proposals().Update(ctx, cur, expected); err != nil {
			return store.Translate(err, "proposal", proposalID.String())
		}
		entry := audit.NewEntry(ctx, identity.System, audit.ProposalTarget(proposalID), string(op), string(from), string(due))
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
		}
		p, to = cur, due
		return nil
	})
	if err != nil {
		return "", false, s.fail(ctx, span, identity.OpProposalExpire, proposalID, err)
	}
	if p == nil {
		return "", false, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementSweepApplied(string(to))
		s.metrics.IncrementTransition(string(from), string(to))
	}
	kind := notify.KindProposalExpired
	if to == models.StatusArchived {
		kind = notify.KindProposalArchived
	}
	s.notify(ctx, s.ownerEvent(ctx, p, kind, ""))
	s.logger.InfoContext(ctx, "timeout applied",
		"proposal_id", proposalID,
		"to", to,
		"at", now.Format(time.RFC3339),
	)
	return to, true, nil
}
