package models

// Status is the proposal lifecycle state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusMatched     Status = "matched"
	StatusNDAPending  Status = "nda_pending"
	StatusDisclosed   Status = "disclosed"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
	StatusWithdrawn   Status = "withdrawn"
	StatusArchived    Status = "archived"
)

// AllStatuses lists every state in main-path order followed by the side branches.
var AllStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusMatched,
	StatusNDAPending, StatusDisclosed, StatusCompleted,
	StatusRejected, StatusExpired, StatusWithdrawn, StatusArchived,
}

// transitions is the forward table. Reversals live in reversals and are only
// reachable through Revert.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusSubmitted, StatusWithdrawn},
	StatusSubmitted:   {StatusUnderReview, StatusExpired, StatusWithdrawn},
	StatusUnderReview: {StatusApproved, StatusRejected, StatusExpired, StatusWithdrawn},
	StatusApproved:    {StatusMatched, StatusWithdrawn},
	StatusMatched:     {StatusNDAPending, StatusWithdrawn},
	StatusNDAPending:  {StatusDisclosed, StatusWithdrawn},
	StatusDisclosed:   {StatusCompleted, StatusWithdrawn},
	StatusCompleted:   {StatusArchived},
	StatusRejected:    {StatusArchived},
	StatusExpired:     {StatusArchived},
}

var reversals = map[Status]Status{
	StatusRejected: StatusUnderReview,
	StatusExpired:  StatusSubmitted,
	StatusApproved: StatusUnderReview,
}

// mainPath ranks the happy-path states; side branches are absent.
var mainPath = map[Status]int{
	StatusDraft:       0,
	StatusSubmitted:   1,
	StatusUnderReview: 2,
	StatusApproved:    3,
	StatusMatched:     4,
	StatusNDAPending:  5,
	StatusDisclosed:   6,
	StatusCompleted:   7,
}

func (s Status) IsValid() bool {
	_, fwd := transitions[s]
	return fwd || s == StatusWithdrawn || s == StatusArchived
}

// IsTerminal reports states with no outgoing forward transition.
func (s Status) IsTerminal() bool {
	return s == StatusWithdrawn || s == StatusArchived
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// CanRevertTo reports whether an administrator may move s back to target.
func (s Status) CanRevertTo(target Status) bool {
	to, ok := reversals[s]
	return ok && to == target
}

// Rank returns the main-path position, or -1 for side-branch states.
func (s Status) Rank() int {
	if r, ok := mainPath[s]; ok {
		return r
	}
	return -1
}

// Withdrawable states: anything live on the main path before completion.
func (s Status) Withdrawable() bool {
	return s.CanTransitionTo(StatusWithdrawn)
}

func (s Status) String() string { return string(s) }
