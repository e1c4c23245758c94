package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "dealroom/pkg/domain"
)

func proposalWithDocs() *Proposal {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	p := NewDraft(id.UserID(uuid.New()), now)
	p.PublicFields = Fields{"title": "Bakery", "summary": "Family bakery"}
	p.ConfidentialFields = Fields{"company_name": "Crumb Ltd"}
	p.Documents = []Document{
		{ID: id.NewDocumentID(), Name: "teaser.pdf"},
		{ID: id.NewDocumentID(), Name: "accounts.xlsx", Confidential: true},
	}
	p.ReviewComment = "EBITDA looks thin"
	return p
}

func TestNewViewRedactsByLevel(t *testing.T) {
	p := proposalWithDocs()

	public := NewView(p, Visibility{Public: true, Basis: BasisPublic})
	assert.Equal(t, "public", public.Visibility)
	assert.Equal(t, "Bakery", public.PublicFields["title"])
	assert.Nil(t, public.ConfidentialFields)
	assert.Empty(t, public.ReviewComment)
	if assert.Len(t, public.Documents, 1) {
		assert.Equal(t, "teaser.pdf", public.Documents[0].Name)
	}

	full := NewView(p, Visibility{Public: true, Confidential: true, Basis: BasisNDA})
	assert.Equal(t, "confidential", full.Visibility)
	assert.Equal(t, "Crumb Ltd", full.ConfidentialFields["company_name"])
	assert.Len(t, full.Documents, 2)

	none := NewView(p, Visibility{Basis: BasisNone})
	assert.Equal(t, "denied", none.Visibility)
	assert.Nil(t, none.PublicFields)
	assert.Empty(t, none.Documents)
}

func TestNewViewDoesNotAlias(t *testing.T) {
	p := proposalWithDocs()
	v := NewView(p, Visibility{Public: true, Confidential: true})

	v.ConfidentialFields["company_name"] = "changed"

	assert.Equal(t, "Crumb Ltd", p.ConfidentialFields["company_name"])
}
