package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"dealroom/internal/audit"
	matchingModels "dealroom/internal/matching/models"
	ndaModels "dealroom/internal/nda/models"
	proposalModels "dealroom/internal/proposal/models"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
)

type proposalStore struct{ t *txn }

func (s *proposalStore) Create(_ context.Context, p *proposalModels.Proposal) error {
	t := s.t
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		if _, ok := t.s.proposals[p.ID]; ok {
			return sentinel.ErrAlreadyExists
		}
		t.s.proposals[p.ID] = p.Clone()
		return nil
	}
	if _, ok := t.proposal(p.ID); ok {
		return sentinel.ErrAlreadyExists
	}
	t.proposals[p.ID] = p.Clone()
	t.created[p.ID] = true
	return nil
}

func (s *proposalStore) FindByID(_ context.Context, proposalID id.ProposalID) (*proposalModels.Proposal, error) {
	p, ok := s.t.proposal(proposalID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *proposalStore) Update(_ context.Context, p *proposalModels.Proposal, expectedVersion int64) error {
	t := s.t
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		cur, ok := t.s.proposals[p.ID]
		if !ok {
			return sentinel.ErrNotFound
		}
		if cur.Version != expectedVersion {
			return sentinel.ErrVersionConflict
		}
		t.s.proposals[p.ID] = p.Clone()
		return nil
	}
	cur, ok := t.proposal(p.ID)
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return sentinel.ErrVersionConflict
	}
	if _, seen := t.expected[p.ID]; !seen && !t.created[p.ID] {
		t.expected[p.ID] = expectedVersion
	}
	t.proposals[p.ID] = p.Clone()
	return nil
}

func (s *proposalStore) Delete(_ context.Context, proposalID id.ProposalID, expectedVersion int64) error {
	t := s.t
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		cur, ok := t.s.proposals[proposalID]
		if !ok {
			return sentinel.ErrNotFound
		}
		if cur.Version != expectedVersion {
			return sentinel.ErrVersionConflict
		}
		delete(t.s.proposals, proposalID)
		return nil
	}
	cur, ok := t.proposal(proposalID)
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return sentinel.ErrVersionConflict
	}
	if created := t.created[proposalID]; created {
		delete(t.created, proposalID)
		delete(t.proposals, proposalID)
		return nil
	}
	if _, seen := t.expected[proposalID]; !seen {
		t.expected[proposalID] = expectedVersion
	}
	delete(t.proposals, proposalID)
	t.deleted[proposalID] = true
	return nil
}

func (s *proposalStore) ListByStatus(_ context.Context, statuses []proposalModels.Status, limit int) ([]*proposalModels.Proposal, error) {
	s.t.s.mu.RLock()
	var out []*proposalModels.Proposal
	for _, p := range s.t.s.proposals {
		if slices.Contains(statuses, p.Status) {
			out = append(out, p.Clone())
		}
	}
	s.t.s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *proposalModels.Proposal) int {
		if c := submittedAt(a).Compare(submittedAt(b)); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func submittedAt(p *proposalModels.Proposal) time.Time {
	if p.SubmittedAt != nil {
		return *p.SubmittedAt
	}
	return p.CreatedAt
}

func (s *proposalStore) ListDue(_ context.Context, now time.Time, limit int) ([]id.ProposalID, error) {
	s.t.s.mu.RLock()
	var due []*proposalModels.Proposal
	for _, p := range s.t.s.proposals {
		if _, ok := p.DueTransition(now); ok {
			due = append(due, p)
		}
	}
	s.t.s.mu.RUnlock()

	slices.SortFunc(due, func(a, b *proposalModels.Proposal) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]id.ProposalID, len(due))
	for i, p := range due {
		out[i] = p.ID
	}
	return out, nil
}

func (s *proposalStore) CountByStatus(_ context.Context) (map[proposalModels.Status]int, error) {
	s.t.s.mu.RLock()
	defer s.t.s.mu.RUnlock()
	counts := make(map[proposalModels.Status]int)
	for _, p := range s.t.s.proposals {
		counts[p.Status]++
	}
	return counts, nil
}

func (s *proposalStore) CountStaleDrafts(_ context.Context, before time.Time) (int, error) {
	s.t.s.mu.RLock()
	defer s.t.s.mu.RUnlock()
	n := 0
	for _, p := range s.t.s.proposals {
		if p.Status == proposalModels.StatusDraft && p.LastSavedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type candidateStore struct{ t *txn }

// checkUnique enforces one active candidate per buyer and one accepted
// candidate per proposal among others.
func checkUnique(c *matchingModels.Candidate, others []*matchingModels.Candidate) error {
	for _, o := range others {
		if o.ID == c.ID {
			continue
		}
		if c.IsActive() && o.IsActive() && o.BuyerID == c.BuyerID {
			return sentinel.ErrAlreadyExists
		}
		if c.State == matchingModels.StateAccepted && o.State == matchingModels.StateAccepted {
			return sentinel.ErrAlreadyExists
		}
	}
	return nil
}

func (s *candidateStore) Create(_ context.Context, c *matchingModels.Candidate) error {
	return s.put(c, true)
}

func (s *candidateStore) Update(_ context.Context, c *matchingModels.Candidate) error {
	return s.put(c, false)
}

func (s *candidateStore) put(c *matchingModels.Candidate, create bool) error {
	t := s.t
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		_, exists := t.s.candidates[c.ID]
		if create == exists {
			return existenceErr(create)
		}
		var siblings []*matchingModels.Candidate
		for _, o := range t.s.candidates {
			if o.ProposalID == c.ProposalID {
				siblings = append(siblings, o)
			}
		}
		if err := checkUnique(c, siblings); err != nil {
			return err
		}
		t.s.candidates[c.ID] = c.Clone()
		return nil
	}
	_, exists := t.candidate(c.ID)
	if create == exists {
		return existenceErr(create)
	}
	if err := checkUnique(c, t.candidatesOf(c.ProposalID)); err != nil {
		return err
	}
	t.candidates[c.ID] = c.Clone()
	return nil
}

func existenceErr(create bool) error {
	if create {
		return sentinel.ErrAlreadyExists
	}
	return sentinel.ErrNotFound
}

func (s *candidateStore) FindByID(_ context.Context, candidateID id.CandidateID) (*matchingModels.Candidate, error) {
	c, ok := s.t.candidate(candidateID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *candidateStore) ListByProposal(_ context.Context, proposalID id.ProposalID) ([]*matchingModels.Candidate, error) {
	found := s.t.candidatesOf(proposalID)
	out := make([]*matchingModels.Candidate, len(found))
	for i, c := range found {
		out[i] = c.Clone()
	}
	slices.SortFunc(out, func(a, b *matchingModels.Candidate) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

type ndaStore struct{ t *txn }

func (s *ndaStore) Create(_ context.Context, r *ndaModels.Record) error {
	return s.put(r, true)
}

func (s *ndaStore) Update(_ context.Context, r *ndaModels.Record) error {
	return s.put(r, false)
}

func (s *ndaStore) put(r *ndaModels.Record, create bool) error {
	t := s.t
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		if _, exists := t.s.ndas[r.ID]; create == exists {
			return existenceErr(create)
		}
		t.s.ndas[r.ID] = r.Clone()
		return nil
	}
	if _, exists := t.nda(r.ID); create == exists {
		return existenceErr(create)
	}
	t.ndas[r.ID] = r.Clone()
	return nil
}

func (s *ndaStore) FindByID(_ context.Context, ndaID id.NDAID) (*ndaModels.Record, error) {
	r, ok := s.t.nda(ndaID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *ndaStore) ListByProposalAndBuyer(_ context.Context, proposalID id.ProposalID, buyer id.UserID) ([]*ndaModels.Record, error) {
	var out []*ndaModels.Record
	for _, r := range s.t.ndasOf(proposalID) {
		if r.BuyerID == buyer {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *ndaModels.Record) int {
		return a.RequestedAt.Compare(b.RequestedAt)
	})
	return out, nil
}

type auditStore struct{ t *txn }

func (s *auditStore) Append(_ context.Context, e *audit.Entry) error {
	t := s.t
	if t.direct {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		t.s.seq++
		e.Seq = t.s.seq
		t.s.entries = append(t.s.entries, e.Clone())
		return nil
	}
	// Seq is assigned on commit; the caller's pointer is updated then.
	t.entries = append(t.entries, e)
	return nil
}

func (s *auditStore) ListByEntity(_ context.Context, entityID string) ([]*audit.Entry, error) {
	return s.filter(func(e *audit.Entry) bool { return e.EntityID == entityID }), nil
}

func (s *auditStore) ListByProposal(_ context.Context, proposalID id.ProposalID) ([]*audit.Entry, error) {
	return s.filter(func(e *audit.Entry) bool { return e.ProposalID == proposalID }), nil
}

func (s *auditStore) ListUnpublished(_ context.Context, limit int) ([]*audit.Entry, error) {
	s.t.s.mu.RLock()
	defer s.t.s.mu.RUnlock()
	var out []*audit.Entry
	for _, e := range s.t.s.entries {
		if limit > 0 && len(out) == limit {
			break
		}
		if _, done := s.t.s.published[e.Seq]; !done {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (s *auditStore) MarkPublished(_ context.Context, seqs []int64, at time.Time) error {
	s.t.s.mu.Lock()
	defer s.t.s.mu.Unlock()
	for _, seq := range seqs {
		if _, done := s.t.s.published[seq]; !done {
			s.t.s.published[seq] = at
		}
	}
	return nil
}

func (s *auditStore) filter(keep func(*audit.Entry) bool) []*audit.Entry {
	s.t.s.mu.RLock()
	var out []*audit.Entry
	for _, e := range s.t.s.entries {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	s.t.s.mu.RUnlock()
	if !s.t.direct {
		for _, e := range s.t.entries {
			if keep(e) {
				out = append(out, e.Clone())
			}
		}
	}
	slices.SortStableFunc(out, func(a, b *audit.Entry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}
