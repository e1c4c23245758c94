package identity

import (
	dErrors "dealroom/pkg/domain-errors"
)

// Operation names every action that passes through the authorization table.
type Operation string

const (
	OpProposalCreate   Operation = "proposal.create"
	OpProposalAutoSave Operation = "proposal.autosave"
	OpProposalAttach   Operation = "proposal.attach"
	OpProposalDetach   Operation = "proposal.detach"
	OpProposalDelete   Operation = "proposal.delete"
	OpProposalSubmit   Operation = "proposal.submit"
	OpProposalReview   Operation = "proposal.review"
	OpProposalDecide   Operation = "proposal.decide"
	OpProposalRevert   Operation = "proposal.revert"
	OpProposalWithdraw Operation = "proposal.withdraw"
	OpProposalComplete Operation = "proposal.complete"
	OpProposalView     Operation = "proposal.view"
	OpProposalHistory  Operation = "proposal.history"
	OpProposalStats    Operation = "proposal.stats"
	OpProposalQueue    Operation = "proposal.queue"
	OpProposalExpire   Operation = "proposal.expire"
	OpProposalArchive  Operation = "proposal.archive"
	OpMatchList        Operation = "match.list"
	OpMatchPropose     Operation = "match.propose"
	OpMatchAccept      Operation = "match.accept"
	OpMatchWithdraw    Operation = "match.withdraw"
	OpNDARequest       Operation = "nda.request"
	OpNDASign          Operation = "nda.sign"
	OpAuditList        Operation = "audit.list"
)

// Relation is the caller's relationship to the entity the operation targets.
type Relation int

const (
	RelationNone Relation = iota
	// RelationOwner: the caller owns the proposal.
	RelationOwner
	// RelationCounterparty: the caller is the buyer named on the candidate or NDA.
	RelationCounterparty
)

type requirement int

const (
	deny requirement = iota
	allowAny
	requireOwner
	requireCounterparty
)

// capabilities is the only place role checks live. Missing entries deny.
var capabilities = map[Operation]map[Role]requirement{
	OpProposalCreate:   {RoleProposer: allowAny},
	OpProposalAutoSave: {RoleProposer: requireOwner},
	OpProposalAttach:   {RoleProposer: requireOwner},
	OpProposalDetach:   {RoleProposer: requireOwner},
	OpProposalDelete:   {RoleProposer: requireOwner},
	OpProposalSubmit:   {RoleProposer: requireOwner},
	OpProposalReview:   {RoleAdmin: allowAny},
	OpProposalDecide:   {RoleAdmin: allowAny},
	OpProposalRevert:   {RoleAdmin: allowAny},
	OpProposalWithdraw: {RoleProposer: requireOwner},
	OpProposalComplete: {RoleProposer: requireOwner, RoleAdmin: allowAny},
	OpProposalView:     {RoleBuyer: allowAny, RoleProposer: allowAny, RoleAdmin: allowAny},
	OpProposalHistory:  {RoleProposer: requireOwner, RoleAdmin: allowAny},
	OpProposalStats:    {RoleAdmin: allowAny},
	OpProposalQueue:    {RoleAdmin: allowAny},
	OpProposalExpire:   {RoleSystem: allowAny},
	OpProposalArchive:  {RoleSystem: allowAny},
	OpMatchList:        {RoleProposer: requireOwner, RoleAdmin: allowAny},
	OpMatchPropose:     {RoleBuyer: allowAny},
	OpMatchAccept:      {RoleProposer: requireOwner},
	OpMatchWithdraw:    {RoleBuyer: requireCounterparty},
	OpNDARequest:       {RoleBuyer: requireCounterparty},
	OpNDASign:          {RoleBuyer: requireCounterparty},
	OpAuditList:        {RoleAdmin: allowAny},
}

// Allowed is the pure capability check (role, operation, relation) -> allow/deny.
func Allowed(role Role, op Operation, rel Relation) bool {
	switch capabilities[op][role] {
	case allowAny:
		return true
	case requireOwner:
		return rel == RelationOwner
	case requireCounterparty:
		return rel == RelationCounterparty
	default:
		return false
	}
}

// Authorize returns a Forbidden error naming entityID when who may not perform op.
func Authorize(who Identity, op Operation, rel Relation, entityID string) error {
	if Allowed(who.Role, op, rel) {
		return nil
	}
	return dErrors.Forbidden(entityID, string(who.Role)+" may not perform "+string(op))
}
