package models

import (
	"dealroom/internal/identity"
	proposalModels "dealroom/internal/proposal/models"
)

// Decide computes what viewer may see of p. hasActiveNDA is only consulted for
// viewers other than the owner and administrators.
//
// Public fields open to everyone once the proposal has been submitted.
// Confidential fields need an active NDA and a proposal that has reached the
// matched stage; withdrawal after that point does not close them again.
func Decide(viewer identity.Identity, p *proposalModels.Proposal, hasActiveNDA bool) proposalModels.Visibility {
	switch {
	case p.IsOwnedBy(viewer.ID):
		return proposalModels.Visibility{Public: true, Confidential: true, Basis: proposalModels.BasisOwner}
	case viewer.IsAdmin():
		return proposalModels.Visibility{Public: true, Confidential: true, Basis: proposalModels.BasisAdmin}
	}
	if p.SubmittedAt == nil {
		return proposalModels.Visibility{Basis: proposalModels.BasisNone}
	}
	if hasActiveNDA && p.Reached(proposalModels.StatusMatched) {
		return proposalModels.Visibility{Public: true, Confidential: true, Basis: proposalModels.BasisNDA}
	}
	return proposalModels.Visibility{Public: true, Basis: proposalModels.BasisPublic}
}
