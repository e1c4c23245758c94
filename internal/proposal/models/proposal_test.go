package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
)

var (
	t0            = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reviewTimeout = 7 * 24 * time.Hour
	archiveAfter  = 30 * 24 * time.Hour
)

func completeDraft(t *testing.T) *Proposal {
	t.Helper()
	p := NewDraft(id.UserID(uuid.New()), t0)
	require.NoError(t, p.AutoSave(
		Fields{"title": "Bakery", "summary": "Family bakery, 12 staff"},
		Fields{"company_name": "Crumb Ltd", "asking_price": "450000"},
		t0,
	))
	return p
}

func TestNewDraftStartsAtVersionOne(t *testing.T) {
	p := NewDraft(id.UserID(uuid.New()), t0)

	assert.Equal(t, StatusDraft, p.Status)
	assert.EqualValues(t, 1, p.Version)
	assert.Nil(t, p.SubmittedAt)
}

func TestEveryMutationBumpsVersionByOne(t *testing.T) {
	p := completeDraft(t)
	assert.EqualValues(t, 2, p.Version)

	steps := []func() error{
		func() error { return p.Submit(t0, reviewTimeout) },
		func() error { return p.StartReview(t0) },
		func() error { return p.Decide(true, "", t0, archiveAfter) },
		func() error { return p.Match(t0) },
		func() error { return p.RequestNDA(t0) },
		func() error { return p.Disclose(t0) },
		func() error { return p.Complete(t0, archiveAfter) },
		func() error { return p.Archive(t0) },
	}
	for i, step := range steps {
		before := p.Version
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, before+1, p.Version, "step %d", i)
	}
	assert.Equal(t, StatusArchived, p.Status)
}

func TestFailedTransitionLeavesProposalUntouched(t *testing.T) {
	p := completeDraft(t)
	before := p.Clone()

	err := p.Match(t0)

	require.Error(t, err)
	de, ok := dErrors.As(err)
	require.True(t, ok)
	assert.Equal(t, dErrors.CodeInvalidState, de.Code)
	assert.Equal(t, "draft", de.CurrentState)
	assert.Equal(t, "matched", de.AttemptedState)
	assert.Equal(t, before, p)
}

func TestSubmitRequiresFields(t *testing.T) {
	p := NewDraft(id.UserID(uuid.New()), t0)
	require.NoError(t, p.AutoSave(Fields{"title": "Bakery"}, nil, t0))

	err := p.Submit(t0, reviewTimeout)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.ErrorContains(t, err, "public.summary")
	assert.ErrorContains(t, err, "confidential.company_name")
	assert.Equal(t, StatusDraft, p.Status)
}

func TestSubmitSetsReviewDeadline(t *testing.T) {
	p := completeDraft(t)

	require.NoError(t, p.Submit(t0, reviewTimeout))

	require.NotNil(t, p.ReviewDeadline)
	assert.Equal(t, t0.Add(reviewTimeout), *p.ReviewDeadline)
	assert.Equal(t, t0, *p.SubmittedAt)
}

func TestAutoSaveOnlyInDraft(t *testing.T) {
	p := completeDraft(t)
	require.NoError(t, p.Submit(t0, reviewTimeout))

	err := p.AutoSave(Fields{"title": "changed"}, nil, t0)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Equal(t, "Bakery", p.PublicFields["title"])
}

func TestAutoSaveRejectsOversizedValues(t *testing.T) {
	p := NewDraft(id.UserID(uuid.New()), t0)
	long := make([]rune, MaxFieldValueLength+1)
	for i := range long {
		long[i] = 'x'
	}

	err := p.AutoSave(Fields{"summary": string(long)}, nil, t0)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.EqualValues(t, 1, p.Version)
}

func TestAutoSaveCopiesInput(t *testing.T) {
	p := NewDraft(id.UserID(uuid.New()), t0)
	in := Fields{"title": "a"}
	require.NoError(t, p.AutoSave(in, nil, t0))

	in["title"] = "b"

	assert.Equal(t, "a", p.PublicFields["title"])
}

func TestRejectRequiresReasonAndSetsArchiveDeadline(t *testing.T) {
	p := completeDraft(t)
	require.NoError(t, p.Submit(t0, reviewTimeout))
	require.NoError(t, p.StartReview(t0))

	assert.True(t, dErrors.HasCode(p.Decide(false, "  ", t0, archiveAfter), dErrors.CodeValidation))

	require.NoError(t, p.Decide(false, "numbers do not add up", t0, archiveAfter))
	assert.Equal(t, StatusRejected, p.Status)
	assert.Equal(t, "numbers do not add up", p.RejectionReason)
	assert.Equal(t, t0.Add(archiveAfter), *p.ArchiveDeadline)
}

func TestWithdrawFromEveryLiveState(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved,
		StatusMatched, StatusNDAPending, StatusDisclosed} {
		t.Run(string(s), func(t *testing.T) {
			p := &Proposal{Status: s, Version: 5}
			require.NoError(t, p.Withdraw(t0))
			assert.Equal(t, StatusWithdrawn, p.Status)
		})
	}
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusExpired, StatusWithdrawn, StatusArchived} {
		t.Run("not from "+string(s), func(t *testing.T) {
			p := &Proposal{Status: s}
			assert.True(t, dErrors.HasCode(p.Withdraw(t0), dErrors.CodeInvalidState))
		})
	}
}

func TestRevert(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusRejected, StatusUnderReview, true},
		{StatusExpired, StatusSubmitted, true},
		{StatusApproved, StatusUnderReview, true},
		{StatusMatched, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			p := &Proposal{Status: tt.from, ArchiveDeadline: &t0, RejectionReason: "x"}
			err := p.Revert(tt.to, t0, reviewTimeout)
			if !tt.ok {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, p.Status)
			assert.Nil(t, p.ArchiveDeadline)
			assert.Empty(t, p.RejectionReason)
			assert.Equal(t, tt.to == StatusSubmitted, p.ReviewDeadline != nil)
		})
	}
}

func TestDueTransition(t *testing.T) {
	past := t0.Add(-time.Second)
	future := t0.Add(time.Hour)
	tests := []struct {
		name string
		p    Proposal
		want Status
		due  bool
	}{
		{"submitted overdue", Proposal{Status: StatusSubmitted, ReviewDeadline: &past}, StatusExpired, true},
		{"under review exactly at deadline", Proposal{Status: StatusUnderReview, ReviewDeadline: &t0}, StatusExpired, true},
		{"submitted not yet due", Proposal{Status: StatusSubmitted, ReviewDeadline: &future}, "", false},
		{"rejected past archive", Proposal{Status: StatusRejected, ArchiveDeadline: &past}, StatusArchived, true},
		{"completed past archive", Proposal{Status: StatusCompleted, ArchiveDeadline: &past}, StatusArchived, true},
		{"approved never times out", Proposal{Status: StatusApproved, ReviewDeadline: &past}, "", false},
		{"archived is settled", Proposal{Status: StatusArchived, ArchiveDeadline: &past}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, due := tt.p.DueTransition(t0)
			assert.Equal(t, tt.due, due)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReached(t *testing.T) {
	matched := t0
	tests := []struct {
		name string
		p    Proposal
		s    Status
		want bool
	}{
		{"disclosed is past matched", Proposal{Status: StatusDisclosed}, StatusMatched, true},
		{"approved is before matched", Proposal{Status: StatusApproved}, StatusMatched, false},
		{"withdrawn after match", Proposal{Status: StatusWithdrawn, MatchedAt: &matched}, StatusMatched, true},
		{"withdrawn before match", Proposal{Status: StatusWithdrawn, SubmittedAt: &matched}, StatusMatched, false},
		{"archived completed deal", Proposal{Status: StatusArchived, MatchedAt: &matched}, StatusMatched, true},
		{"expired was submitted", Proposal{Status: StatusExpired, SubmittedAt: &matched}, StatusSubmitted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Reached(tt.s))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := completeDraft(t)
	require.NoError(t, p.AttachDocument(Document{ID: id.NewDocumentID(), Name: "pnl.pdf"}, t0))
	require.NoError(t, p.Submit(t0, reviewTimeout))

	c := p.Clone()
	c.PublicFields["title"] = "other"
	c.Documents[0].Name = "other"
	*c.ReviewDeadline = t0

	assert.Equal(t, "Bakery", p.PublicFields["title"])
	assert.Equal(t, "pnl.pdf", p.Documents[0].Name)
	assert.NotEqual(t, t0, *p.ReviewDeadline)
}

func TestRemoveDocument(t *testing.T) {
	p := completeDraft(t)
	keep := Document{ID: id.NewDocumentID(), Name: "a.pdf"}
	drop := Document{ID: id.NewDocumentID(), Name: "b.pdf", FileRef: "ref-b"}
	require.NoError(t, p.AttachDocument(keep, t0))
	require.NoError(t, p.AttachDocument(drop, t0))
	before := p.Version

	removed, err := p.RemoveDocument(drop.ID, t0.Add(time.Minute))

	require.NoError(t, err)
	assert.Equal(t, "ref-b", removed.FileRef)
	assert.Equal(t, []Document{keep}, p.Documents)
	assert.Equal(t, before+1, p.Version)
	assert.Equal(t, t0.Add(time.Minute), p.LastSavedAt)

	_, err = p.RemoveDocument(drop.ID, t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRemoveDocumentOnlyInDraft(t *testing.T) {
	p := completeDraft(t)
	doc := Document{ID: id.NewDocumentID()}
	require.NoError(t, p.AttachDocument(doc, t0))
	require.NoError(t, p.Submit(t0, reviewTimeout))

	_, err := p.RemoveDocument(doc.ID, t0)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Len(t, p.Documents, 1)
}

func TestCheckDeletable(t *testing.T) {
	p := completeDraft(t)
	require.NoError(t, p.CheckDeletable())

	require.NoError(t, p.Submit(t0, reviewTimeout))
	err := p.CheckDeletable()

	de, ok := dErrors.As(err)
	require.True(t, ok)
	assert.Equal(t, dErrors.CodeInvalidState, de.Code)
	assert.Equal(t, "submitted", de.CurrentState)
}
