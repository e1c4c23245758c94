package audit

import (
	"context"
	"time"

	"dealroom/internal/identity"
	id "dealroom/pkg/domain"
	"dealroom/pkg/requestcontext"
)

type EntityType string

const (
	EntityProposal  EntityType = "proposal"
	EntityCandidate EntityType = "match_candidate"
	EntityNDA       EntityType = "nda"
)

// Actions not named after an identity.Operation.
const (
	ActionDisclosure        = "proposal.disclosure"
	ActionCandidateRejected = "match.reject"
)

// Entry is an immutable record of one event. Seq is assigned by the store at
// commit and breaks ties between entries sharing a timestamp.
type Entry struct {
	ID            id.AuditEntryID `json:"id"`
	Seq           int64           `json:"seq"`
	ActorID       id.UserID       `json:"actor_id"`
	ActorRole     identity.Role   `json:"actor_role"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	ProposalID    id.ProposalID   `json:"proposal_id"`
	Action        string          `json:"action"`
	Timestamp     time.Time       `json:"timestamp"`
	PreviousState string          `json:"previous_state,omitempty"`
	NewState      string          `json:"new_state,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
}

// Target names the entity an entry is about.
type Target struct {
	Type       EntityType
	ID         string
	ProposalID id.ProposalID
}

func ProposalTarget(p id.ProposalID) Target {
	return Target{Type: EntityProposal, ID: p.String(), ProposalID: p}
}

func CandidateTarget(c id.CandidateID, p id.ProposalID) Target {
	return Target{Type: EntityCandidate, ID: c.String(), ProposalID: p}
}

func NDATarget(n id.NDAID, p id.ProposalID) Target {
	return Target{Type: EntityNDA, ID: n.String(), ProposalID: p}
}

// NewEntry stamps an entry with the request time and request id carried on ctx.
func NewEntry(ctx context.Context, actor identity.Identity, target Target, action, previous, next string) *Entry {
	return &Entry{
		ID:            id.NewAuditEntryID(),
		ActorID:       actor.ID,
		ActorRole:     actor.Role,
		EntityType:    target.Type,
		EntityID:      target.ID,
		ProposalID:    target.ProposalID,
		Action:        action,
		Timestamp:     requestcontext.Now(ctx),
		PreviousState: previous,
		NewState:      next,
		RequestID:     requestcontext.RequestID(ctx),
	}
}

// WithDetail sets a free-text annotation such as a rejection reason.
func (e *Entry) WithDetail(detail string) *Entry {
	e.Detail = detail
	return e
}

func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}
