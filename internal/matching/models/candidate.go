package models

import (
	"time"

	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
)

type State string

const (
	StateProposed  State = "proposed"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateWithdrawn State = "withdrawn"
)

// Candidate is a buyer's expression of interest in an approved proposal.
// Candidates carry no version of their own; every change happens inside the
// owning proposal's unit of work.
type Candidate struct {
	ID         id.CandidateID
	ProposalID id.ProposalID
	BuyerID    id.UserID
	State      State
	Message    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewCandidate(proposalID id.ProposalID, buyer id.UserID, message string, now time.Time) *Candidate {
	return &Candidate{
		ID:         id.NewCandidateID(),
		ProposalID: proposalID,
		BuyerID:    buyer,
		State:      StateProposed,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsActive covers the states that block a second candidate from the same buyer.
func (c *Candidate) IsActive() bool {
	return c.State == StateProposed || c.State == StateAccepted
}

func (c *Candidate) Accept(now time.Time) error {
	return c.move(StateProposed, StateAccepted, now)
}

func (c *Candidate) Reject(now time.Time) error {
	return c.move(StateProposed, StateRejected, now)
}

// Withdraw is open only while the candidate is still proposed. An accepted
// candidate is bound to the match.
func (c *Candidate) Withdraw(now time.Time) error {
	return c.move(StateProposed, StateWithdrawn, now)
}

func (c *Candidate) move(from, to State, now time.Time) error {
	if c.State != from {
		return dErrors.InvalidState(c.ID.String(), string(c.State), string(to))
	}
	c.State = to
	c.UpdatedAt = now
	return nil
}

func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
