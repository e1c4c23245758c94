// Package notify delivers user-facing events after a workflow change commits.
// Delivery is best effort: a failed notification never undoes the change.
package notify

import (
	"context"
	"log/slog"
	"time"

	id "dealroom/pkg/domain"
)

type Kind string

const (
	KindProposalSubmitted Kind = "proposal.submitted"
	KindProposalDecided   Kind = "proposal.decided"
	KindProposalExpired   Kind = "proposal.expired"
	KindProposalArchived  Kind = "proposal.archived"
	KindProposalReverted  Kind = "proposal.reverted"
	KindInterest          Kind = "match.interest"
	KindCandidateAccepted Kind = "match.accepted"
	KindCandidateRejected Kind = "match.rejected"
	KindNDARequested      Kind = "nda.requested"
	KindNDASigned         Kind = "nda.signed"
)

// Event is addressed to a single user.
type Event struct {
	Kind       Kind          `json:"kind"`
	UserID     id.UserID     `json:"user_id"`
	ProposalID id.ProposalID `json:"proposal_id"`
	SubjectID  string        `json:"subject_id,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	At         time.Time     `json:"at"`
}

// Sink is the NotificationSink contract.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// Dispatch sends events one by one and logs failures.
func Dispatch(ctx context.Context, sink Sink, logger *slog.Logger, events ...Event) {
	if sink == nil {
		return
	}
	for _, e := range events {
		if err := sink.Notify(ctx, e); err != nil && logger != nil {
			logger.WarnContext(ctx, "notification failed",
				"kind", e.Kind,
				"user_id", e.UserID,
				"proposal_id", e.ProposalID,
				"error", err,
			)
		}
	}
}
