package models

// Basis names why a viewer got what they got. It is recorded on the audit entry
// for every disclosure decision.
type Basis string

const (
	BasisOwner  Basis = "owner"
	BasisAdmin  Basis = "admin"
	BasisNDA    Basis = "nda"
	BasisPublic Basis = "public"
	BasisNone   Basis = "none"
)

// Visibility is the field-level disclosure decision for one viewer.
type Visibility struct {
	Public       bool
	Confidential bool
	Basis        Basis
}

// Level is the coarse label stored in audit entries.
func (v Visibility) Level() string {
	switch {
	case v.Confidential:
		return "confidential"
	case v.Public:
		return "public"
	default:
		return "denied"
	}
}
