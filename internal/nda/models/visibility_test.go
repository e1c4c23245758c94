package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"dealroom/internal/identity"
	proposalModels "dealroom/internal/proposal/models"
	id "dealroom/pkg/domain"
)

func proposalIn(owner id.UserID, status proposalModels.Status) *proposalModels.Proposal {
	p := &proposalModels.Proposal{ID: id.NewProposalID(), OwnerID: owner, Status: status}
	if status != proposalModels.StatusDraft {
		p.SubmittedAt = &now
	}
	if status.Rank() >= proposalModels.StatusMatched.Rank() {
		p.MatchedAt = &now
	}
	return p
}

// Confidential fields reach a non-owner, non-admin viewer only with an active
// NDA on a proposal at or past matched.
func TestDecideDisclosureRule(t *testing.T) {
	owner := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleProposer}
	admin := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleAdmin}
	buyer := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleBuyer}
	otherProposer := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleProposer}

	mainPath := []proposalModels.Status{
		proposalModels.StatusDraft, proposalModels.StatusSubmitted, proposalModels.StatusUnderReview,
		proposalModels.StatusApproved, proposalModels.StatusMatched, proposalModels.StatusNDAPending,
		proposalModels.StatusDisclosed, proposalModels.StatusCompleted,
	}
	for _, status := range mainPath {
		for _, nda := range []bool{false, true} {
			p := proposalIn(owner.ID, status)

			assert.True(t, Decide(owner, p, nda).Confidential, "owner in %s", status)
			assert.True(t, Decide(admin, p, nda).Confidential, "admin in %s", status)

			want := nda && status.Rank() >= proposalModels.StatusMatched.Rank()
			for _, viewer := range []identity.Identity{buyer, otherProposer} {
				v := Decide(viewer, p, nda)
				assert.Equal(t, want, v.Confidential, "%s nda=%v in %s", viewer.Role, nda, status)
				assert.Equal(t, status != proposalModels.StatusDraft, v.Public, "%s public in %s", viewer.Role, status)
			}
		}
	}
}

func TestDecideWithdrawnAfterMatchKeepsDisclosure(t *testing.T) {
	owner := id.UserID(uuid.New())
	buyer := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleBuyer}
	p := proposalIn(owner, proposalModels.StatusDisclosed)
	p.Status = proposalModels.StatusWithdrawn

	v := Decide(buyer, p, true)

	assert.True(t, v.Confidential)
	assert.Equal(t, proposalModels.BasisNDA, v.Basis)
	assert.Equal(t, "confidential", v.Level())
}

func TestDecideWithdrawnBeforeMatchStaysPublic(t *testing.T) {
	buyer := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleBuyer}
	p := proposalIn(id.UserID(uuid.New()), proposalModels.StatusApproved)
	p.Status = proposalModels.StatusWithdrawn

	v := Decide(buyer, p, true)

	assert.False(t, v.Confidential)
	assert.Equal(t, "public", v.Level())
}

func TestDecideDraftIsDenied(t *testing.T) {
	buyer := identity.Identity{ID: id.UserID(uuid.New()), Role: identity.RoleBuyer}
	p := proposalIn(id.UserID(uuid.New()), proposalModels.StatusDraft)

	assert.Equal(t, "denied", Decide(buyer, p, true).Level())
}
