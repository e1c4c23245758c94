// Package store defines the persistence contracts shared by the workflow
// services. Implementations live in store/memory and store/postgres.
package store

import (
	"context"
	"time"

	"dealroom/internal/audit"
	matchingModels "dealroom/internal/matching/models"
	ndaModels "dealroom/internal/nda/models"
	proposalModels "dealroom/internal/proposal/models"
	id "dealroom/pkg/domain"
)

// ProposalStore persists the proposal aggregate. Update is a compare-and-swap:
// it succeeds only when the stored version equals expectedVersion, and returns
// sentinel.ErrVersionConflict otherwise.
type ProposalStore interface {
	Create(ctx context.Context, p *proposalModels.Proposal) error
	FindByID(ctx context.Context, proposalID id.ProposalID) (*proposalModels.Proposal, error)
	Update(ctx context.Context, p *proposalModels.Proposal, expectedVersion int64) error
	// Delete removes the proposal under the same compare-and-swap rule as Update.
	Delete(ctx context.Context, proposalID id.ProposalID, expectedVersion int64) error
	// ListByStatus returns up to limit proposals in any of statuses, oldest
	// submission first.
	ListByStatus(ctx context.Context, statuses []proposalModels.Status, limit int) ([]*proposalModels.Proposal, error)
	// ListDue returns proposals whose review or archive deadline is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]id.ProposalID, error)
	CountByStatus(ctx context.Context) (map[proposalModels.Status]int, error)
	// CountStaleDrafts counts drafts not saved since before.
	CountStaleDrafts(ctx context.Context, before time.Time) (int, error)
}

// CandidateStore rejects a second active candidate for the same buyer, and a
// second accepted candidate for the same proposal, with sentinel.ErrAlreadyExists.
type CandidateStore interface {
	Create(ctx context.Context, c *matchingModels.Candidate) error
	FindByID(ctx context.Context, candidateID id.CandidateID) (*matchingModels.Candidate, error)
	Update(ctx context.Context, c *matchingModels.Candidate) error
	ListByProposal(ctx context.Context, proposalID id.ProposalID) ([]*matchingModels.Candidate, error)
}

type NDAStore interface {
	Create(ctx context.Context, r *ndaModels.Record) error
	FindByID(ctx context.Context, ndaID id.NDAID) (*ndaModels.Record, error)
	Update(ctx context.Context, r *ndaModels.Record) error
	ListByProposalAndBuyer(ctx context.Context, proposalID id.ProposalID, buyer id.UserID) ([]*ndaModels.Record, error)
}

// AuditStore is append-only. Append assigns Seq; list calls return entries in
// (Timestamp, Seq) order.
type AuditStore interface {
	Append(ctx context.Context, e *audit.Entry) error
	ListByEntity(ctx context.Context, entityID string) ([]*audit.Entry, error)
	ListByProposal(ctx context.Context, proposalID id.ProposalID) ([]*audit.Entry, error)
	// ListUnpublished returns up to limit entries not yet relayed, in Seq order.
	ListUnpublished(ctx context.Context, limit int) ([]*audit.Entry, error)
	MarkPublished(ctx context.Context, seqs []int64, at time.Time) error
}

type Stores interface {
	Proposals() ProposalStore
	Candidates() CandidateStore
	NDAs() NDAStore
	Audit() AuditStore
}

// UnitOfWork runs fn against stores whose writes commit together or not at all.
// Units sharing a proposal id are serialized. fn must use the ctx it is given.
type UnitOfWork interface {
	Stores
	RunInTx(ctx context.Context, proposalID id.ProposalID, fn func(ctx context.Context, tx Stores) error) error
}
