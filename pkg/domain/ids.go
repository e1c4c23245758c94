package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "dealroom/pkg/domain-errors"
)

// Typed identifiers keep a proposal id from being passed where a candidate id is
// expected. All of them are UUIDs underneath.
type (
	UserID       uuid.UUID
	ProposalID   uuid.UUID
	CandidateID  uuid.UUID
	NDAID        uuid.UUID
	DocumentID   uuid.UUID
	AuditEntryID uuid.UUID
)

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id ProposalID) String() string   { return uuid.UUID(id).String() }
func (id CandidateID) String() string  { return uuid.UUID(id).String() }
func (id NDAID) String() string        { return uuid.UUID(id).String() }
func (id DocumentID) String() string   { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ProposalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func NewProposalID() ProposalID     { return ProposalID(uuid.New()) }
func NewCandidateID() CandidateID   { return CandidateID(uuid.New()) }
func NewNDAID() NDAID               { return NDAID(uuid.New()) }
func NewDocumentID() DocumentID     { return DocumentID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

// SystemUserID is the actor recorded for transitions applied by background sweeps.
var SystemUserID = UserID(uuid.Nil)

// parseUUID enforces the trust-boundary rule shared by every id type:
// non-empty, well-formed, and not the nil UUID.
func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, kind+" must not be nil")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseProposalID(s string) (ProposalID, error) {
	u, err := parseUUID("proposal id", s)
	return ProposalID(u), err
}

func ParseCandidateID(s string) (CandidateID, error) {
	u, err := parseUUID("candidate id", s)
	return CandidateID(u), err
}

func ParseNDAID(s string) (NDAID, error) {
	u, err := parseUUID("nda id", s)
	return NDAID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document id", s)
	return DocumentID(u), err
}

// Text encoding keeps ids as canonical UUID strings in JSON.

func (id UserID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ProposalID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id CandidateID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id NDAID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id DocumentID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProposalID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CandidateID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *NDAID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DocumentID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
