package models

import (
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"dealroom/internal/identity"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
)

const (
	// MaxFieldNameLength and MaxFieldValueLength bound a single form field.
	MaxFieldNameLength  = 64
	MaxFieldValueLength = 20000
	MaxFields           = 100
)

// Submission requires these fields to be present and non-blank.
var (
	RequiredPublicFields       = []string{"title", "summary"}
	RequiredConfidentialFields = []string{"company_name"}
)

// Fields is a named set of form values.
type Fields map[string]string

// Document is an attachment whose bytes live in the document store.
type Document struct {
	ID           id.DocumentID `json:"id"`
	Name         string        `json:"name"`
	ContentType  string        `json:"content_type"`
	Size         int64         `json:"size"`
	Confidential bool          `json:"confidential"`
	FileRef      string        `json:"-"`
	AttachedAt   time.Time     `json:"attached_at"`
}

// Proposal is the business-sale aggregate. Version increases by exactly one on
// every persisted mutation; the store rejects writes against a stale version.
type Proposal struct {
	ID                 id.ProposalID
	OwnerID            id.UserID
	Status             Status
	PublicFields       Fields
	ConfidentialFields Fields
	Documents          []Document
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastSavedAt        time.Time
	SubmittedAt        *time.Time
	ReviewDeadline     *time.Time
	DecidedAt          *time.Time
	MatchedAt          *time.Time
	DisclosedAt        *time.Time
	ArchiveDeadline    *time.Time
	ReviewComment      string
	RejectionReason    string
}

// NewDraft creates a version-1 draft owned by owner.
func NewDraft(owner id.UserID, now time.Time) *Proposal {
	return &Proposal{
		ID:                 id.NewProposalID(),
		OwnerID:            owner,
		Status:             StatusDraft,
		PublicFields:       Fields{},
		ConfidentialFields: Fields{},
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
		LastSavedAt:        now,
	}
}

func (p *Proposal) IsOwnedBy(user id.UserID) bool {
	return p.OwnerID == user
}

// RelationOf is who's standing for authorization on proposal operations.
func (p *Proposal) RelationOf(who identity.Identity) identity.Relation {
	if p.IsOwnedBy(who.ID) {
		return identity.RelationOwner
	}
	return identity.RelationNone
}

// CheckVersion fails with ConcurrentModification when expected is stale.
func (p *Proposal) CheckVersion(expected int64) error {
	if p.Version != expected {
		return dErrors.Conflict(p.ID.String(), expected, p.Version)
	}
	return nil
}

// Reached reports whether the proposal has at some point been in s or beyond on
// the main path. Side-branch states answer from recorded milestones, so a
// withdrawn proposal that was matched still counts as matched.
func (p *Proposal) Reached(s Status) bool {
	if r := p.Status.Rank(); r >= 0 {
		return r >= s.Rank()
	}
	switch s {
	case StatusDraft:
		return true
	case StatusSubmitted, StatusUnderReview:
		return p.SubmittedAt != nil
	case StatusApproved:
		return p.MatchedAt != nil || p.RejectionReason == "" && p.DecidedAt != nil
	case StatusMatched, StatusNDAPending:
		return p.MatchedAt != nil
	case StatusDisclosed, StatusCompleted:
		return p.DisclosedAt != nil
	}
	return false
}

func (p *Proposal) transition(to Status, now time.Time) error {
	if !p.Status.CanTransitionTo(to) {
		return p.invalid(to)
	}
	p.Status = to
	p.touch(now)
	return nil
}

func (p *Proposal) invalid(to Status) error {
	return dErrors.InvalidState(p.ID.String(), string(p.Status), string(to))
}

func (p *Proposal) touch(now time.Time) {
	p.Version++
	p.UpdatedAt = now
}

// AutoSave replaces whichever field sets are non-nil. Only drafts accept edits.
func (p *Proposal) AutoSave(public, confidential Fields, now time.Time) error {
	if p.Status != StatusDraft {
		return p.invalid(StatusDraft)
	}
	if public == nil && confidential == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to save").WithEntity(p.ID.String())
	}
	for _, f := range []Fields{public, confidential} {
		if err := validateFields(f); err != nil {
			return err.WithEntity(p.ID.String())
		}
	}
	if public != nil {
		p.PublicFields = maps.Clone(public)
	}
	if confidential != nil {
		p.ConfidentialFields = maps.Clone(confidential)
	}
	p.LastSavedAt = now
	p.touch(now)
	return nil
}

// AttachDocument records an already-stored document on a draft.
func (p *Proposal) AttachDocument(doc Document, now time.Time) error {
	if p.Status != StatusDraft {
		return p.invalid(StatusDraft)
	}
	p.Documents = append(p.Documents, doc)
	p.LastSavedAt = now
	p.touch(now)
	return nil
}

// RemoveDocument detaches docID from a draft and returns it so the caller can
// release the stored bytes.
func (p *Proposal) RemoveDocument(docID id.DocumentID, now time.Time) (Document, error) {
	if p.Status != StatusDraft {
		return Document{}, p.invalid(StatusDraft)
	}
	i := slices.IndexFunc(p.Documents, func(d Document) bool { return d.ID == docID })
	if i < 0 {
		return Document{}, dErrors.NotFound("document", docID.String())
	}
	doc := p.Documents[i]
	p.Documents = slices.Delete(slices.Clone(p.Documents), i, i+1)
	p.LastSavedAt = now
	p.touch(now)
	return doc, nil
}

// CheckDeletable allows removing a proposal only while it is still a draft.
// Anything submitted has an audit trail to keep.
func (p *Proposal) CheckDeletable() error {
	if p.Status != StatusDraft {
		return dErrors.InvalidState(p.ID.String(), string(p.Status), "deleted")
	}
	return nil
}

// Submit moves a complete draft into the review queue and starts the review clock.
func (p *Proposal) Submit(now time.Time, reviewTimeout time.Duration) error {
	if !p.Status.CanTransitionTo(StatusSubmitted) {
		return p.invalid(StatusSubmitted)
	}
	var missing []string
	for _, name := range RequiredPublicFields {
		if strings.TrimSpace(p.PublicFields[name]) == "" {
			missing = append(missing, "public."+name)
		}
	}
	for _, name := range RequiredConfidentialFields {
		if strings.TrimSpace(p.ConfidentialFields[name]) == "" {
			missing = append(missing, "confidential."+name)
		}
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeValidation, "missing required fields: "+strings.Join(missing, ", ")).
			WithEntity(p.ID.String())
	}
	p.Status = StatusSubmitted
	p.SubmittedAt = &now
	p.ReviewDeadline = ptr(now.Add(reviewTimeout))
	p.touch(now)
	return nil
}

func (p *Proposal) StartReview(now time.Time) error {
	return p.transition(StatusUnderReview, now)
}

// Decide approves or rejects a proposal under review. Rejection requires a reason.
func (p *Proposal) Decide(approve bool, comment string, now time.Time, archiveAfter time.Duration) error {
	to := StatusRejected
	if approve {
		to = StatusApproved
	}
	if !p.Status.CanTransitionTo(to) {
		return p.invalid(to)
	}
	comment = strings.TrimSpace(comment)
	if !approve && comment == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection requires a reason").WithEntity(p.ID.String())
	}
	p.Status = to
	p.DecidedAt = &now
	p.ReviewDeadline = nil
	p.ReviewComment = comment
	if approve {
		p.RejectionReason = ""
	} else {
		p.RejectionReason = comment
		p.ArchiveDeadline = ptr(now.Add(archiveAfter))
	}
	p.touch(now)
	return nil
}

func (p *Proposal) Withdraw(now time.Time) error {
	if err := p.transition(StatusWithdrawn, now); err != nil {
		return err
	}
	p.ReviewDeadline = nil
	p.ArchiveDeadline = nil
	return nil
}

// Match records the accepted candidate's arrival.
func (p *Proposal) Match(now time.Time) error {
	if err := p.transition(StatusMatched, now); err != nil {
		return err
	}
	p.MatchedAt = &now
	return nil
}

func (p *Proposal) RequestNDA(now time.Time) error {
	return p.transition(StatusNDAPending, now)
}

func (p *Proposal) Disclose(now time.Time) error {
	if err := p.transition(StatusDisclosed, now); err != nil {
		return err
	}
	p.DisclosedAt = &now
	return nil
}

func (p *Proposal) Complete(now time.Time, archiveAfter time.Duration) error {
	if err := p.transition(StatusCompleted, now); err != nil {
		return err
	}
	p.ArchiveDeadline = ptr(now.Add(archiveAfter))
	return nil
}

// Expire is applied by the sweep once the review deadline has passed.
func (p *Proposal) Expire(now time.Time, archiveAfter time.Duration) error {
	if err := p.transition(StatusExpired, now); err != nil {
		return err
	}
	p.ReviewDeadline = nil
	p.ArchiveDeadline = ptr(now.Add(archiveAfter))
	return nil
}

func (p *Proposal) Archive(now time.Time) error {
	if err := p.transition(StatusArchived, now); err != nil {
		return err
	}
	p.ArchiveDeadline = nil
	return nil
}

// Revert is the administrator's way back from a decision or an expiry.
func (p *Proposal) Revert(target Status, now time.Time, reviewTimeout time.Duration) error {
	if !p.Status.CanRevertTo(target) {
		return p.invalid(target)
	}
	p.Status = target
	p.ArchiveDeadline = nil
	p.DecidedAt = nil
	p.RejectionReason = ""
	p.ReviewComment = ""
	if target == StatusSubmitted {
		p.ReviewDeadline = ptr(now.Add(reviewTimeout))
	} else {
		p.ReviewDeadline = nil
	}
	p.touch(now)
	return nil
}

// DueTransition reports the timeout transition owed at now, if any.
func (p *Proposal) DueTransition(now time.Time) (Status, bool) {
	switch p.Status {
	case StatusSubmitted, StatusUnderReview:
		if p.ReviewDeadline != nil && !now.Before(*p.ReviewDeadline) {
			return StatusExpired, true
		}
	case StatusRejected, StatusExpired, StatusCompleted:
		if p.ArchiveDeadline != nil && !now.Before(*p.ArchiveDeadline) {
			return StatusArchived, true
		}
	}
	return "", false
}

// Document returns the attachment with docID.
func (p *Proposal) Document(docID id.DocumentID) (Document, bool) {
	i := slices.IndexFunc(p.Documents, func(d Document) bool { return d.ID == docID })
	if i < 0 {
		return Document{}, false
	}
	return p.Documents[i], true
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	c.PublicFields = maps.Clone(p.PublicFields)
	c.ConfidentialFields = maps.Clone(p.ConfidentialFields)
	c.Documents = slices.Clone(p.Documents)
	c.SubmittedAt = clonePtr(p.SubmittedAt)
	c.ReviewDeadline = clonePtr(p.ReviewDeadline)
	c.DecidedAt = clonePtr(p.DecidedAt)
	c.MatchedAt = clonePtr(p.MatchedAt)
	c.DisclosedAt = clonePtr(p.DisclosedAt)
	c.ArchiveDeadline = clonePtr(p.ArchiveDeadline)
	return &c
}

func validateFields(f Fields) *dErrors.Error {
	if len(f) > MaxFields {
		return dErrors.New(dErrors.CodeValidation, "too many fields")
	}
	for name, value := range f {
		if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > MaxFieldNameLength {
			return dErrors.New(dErrors.CodeValidation, "invalid field name")
		}
		if utf8.RuneCountInString(value) > MaxFieldValueLength {
			return dErrors.New(dErrors.CodeValidation, "field "+name+" is too long")
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
