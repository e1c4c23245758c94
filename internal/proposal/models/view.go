package models

import (
	"maps"
	"time"

	id "dealroom/pkg/domain"
)

// View is a proposal as one viewer may see it. Field sets and documents the
// viewer may not see are left out entirely rather than blanked.
type View struct {
	ID                 id.ProposalID `json:"id"`
	OwnerID            id.UserID     `json:"owner_id"`
	Status             Status        `json:"status"`
	Version            int64         `json:"version"`
	PublicFields       Fields        `json:"public_fields,omitempty"`
	ConfidentialFields Fields        `json:"confidential_fields,omitempty"`
	Documents          []Document    `json:"documents,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	LastSavedAt        time.Time     `json:"last_saved_at"`
	SubmittedAt        *time.Time    `json:"submitted_at,omitempty"`
	ReviewDeadline     *time.Time    `json:"review_deadline,omitempty"`
	ArchiveDeadline    *time.Time    `json:"archive_deadline,omitempty"`
	ReviewComment      string        `json:"review_comment,omitempty"`
	RejectionReason    string        `json:"rejection_reason,omitempty"`
	Visibility         string        `json:"visibility"`
	Views              int64         `json:"views"`
	// NextAutoSaveAt is only set for the owner of a draft.
	NextAutoSaveAt *time.Time `json:"next_autosave_at,omitempty"`
}

// NewView redacts p for v. Review notes follow the confidential level, since
// they routinely quote confidential figures.
func NewView(p *Proposal, v Visibility) *View {
	out := &View{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Status:      p.Status,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		LastSavedAt: p.LastSavedAt,
		SubmittedAt: clonePtr(p.SubmittedAt),
		Visibility:  v.Level(),
	}
	if v.Public {
		out.PublicFields = maps.Clone(p.PublicFields)
	}
	if v.Confidential {
		out.ConfidentialFields = maps.Clone(p.ConfidentialFields)
		out.ReviewDeadline = clonePtr(p.ReviewDeadline)
		out.ArchiveDeadline = clonePtr(p.ArchiveDeadline)
		out.ReviewComment = p.ReviewComment
		out.RejectionReason = p.RejectionReason
	}
	for _, d := range p.Documents {
		if d.Confidential && v.Confidential || !d.Confidential && v.Public {
			out.Documents = append(out.Documents, d)
		}
	}
	return out
}

// CanSeeDocument applies the same rule as NewView to one attachment.
func (v Visibility) CanSeeDocument(d Document) bool {
	if d.Confidential {
		return v.Confidential
	}
	return v.Public
}
