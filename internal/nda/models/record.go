package models

import (
	"time"

	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
)

// Record is one NDA between a buyer and a proposal owner. Records are never
// deleted; an expired one is superseded by a new signed record.
type Record struct {
	ID          id.NDAID
	ProposalID  id.ProposalID
	BuyerID     id.UserID
	RequestedAt time.Time
	SignedAt    *time.Time
	ExpiresAt   *time.Time
}

func NewRecord(proposalID id.ProposalID, buyer id.UserID, now time.Time) *Record {
	return &Record{
		ID:          id.NewNDAID(),
		ProposalID:  proposalID,
		BuyerID:     buyer,
		RequestedAt: now,
	}
}

// State is the label used in audit entries and API responses.
func (r *Record) State(now time.Time) string {
	switch {
	case r.SignedAt == nil:
		return "pending"
	case r.IsActive(now):
		return "signed"
	default:
		return "expired"
	}
}

func (r *Record) IsPending() bool {
	return r.SignedAt == nil
}

// IsActive is true for a signed record whose expiry, if any, is still ahead.
func (r *Record) IsActive(now time.Time) bool {
	if r.SignedAt == nil {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// Sign marks the record signed. A validity of zero leaves it without expiry.
func (r *Record) Sign(now time.Time, validity time.Duration) error {
	if r.SignedAt != nil {
		return dErrors.InvalidState(r.ID.String(), r.State(now), "signed")
	}
	r.SignedAt = &now
	if validity > 0 {
		exp := now.Add(validity)
		r.ExpiresAt = &exp
	}
	return nil
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.SignedAt != nil {
		s := *r.SignedAt
		c.SignedAt = &s
	}
	if r.ExpiresAt != nil {
		e := *r.ExpiresAt
		c.ExpiresAt = &e
	}
	return &c
}

// HasActive reports whether any of records is active at now.
func HasActive(records []*Record, now time.Time) bool {
	for _, r := range records {
		if r.IsActive(now) {
			return true
		}
	}
	return false
}
