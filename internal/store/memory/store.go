// Package memory is the in-process implementation of the store contracts.
//
// Units of work are serialized per proposal with sharded mutexes. Writes made
// inside a unit are staged and applied to the shared maps in one step on
// commit, so a failing unit leaves nothing behind.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"dealroom/internal/audit"
	matchingModels "dealroom/internal/matching/models"
	ndaModels "dealroom/internal/nda/models"
	proposalModels "dealroom/internal/proposal/models"
	"dealroom/internal/store"
	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/platform/sentinel"
)

const (
	numShards        = 128
	defaultTxTimeout = 5 * time.Second
)

type Store struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration

	mu         sync.RWMutex
	proposals  map[id.ProposalID]*proposalModels.Proposal
	candidates map[id.CandidateID]*matchingModels.Candidate
	ndas       map[id.NDAID]*ndaModels.Record
	entries    []*audit.Entry
	published  map[int64]time.Time
	seq        int64
}

type Option func(*Store)

// WithTxTimeout bounds how long a unit of work may run when ctx has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		timeout:    defaultTxTimeout,
		proposals:  make(map[id.ProposalID]*proposalModels.Proposal),
		candidates: make(map[id.CandidateID]*matchingModels.Candidate),
		ndas:       make(map[id.NDAID]*ndaModels.Record),
		published:  make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outside a unit of work every write applies immediately.
func (s *Store) Proposals() store.ProposalStore   { return &proposalStore{t: s.direct()} }
func (s *Store) Candidates() store.CandidateStore { return &candidateStore{t: s.direct()} }
func (s *Store) NDAs() store.NDAStore             { return &ndaStore{t: s.direct()} }
func (s *Store) Audit() store.AuditStore          { return &auditStore{t: s.direct()} }

func (s *Store) RunInTx(ctx context.Context, proposalID id.ProposalID, fn func(ctx context.Context, tx store.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := &s.shards[shardFor(proposalID)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	t := s.begin()
	if err := fn(ctx, t); err != nil {
		return err
	}
	return store.Translate(t.commit(), "proposal", proposalID.String())
}

func shardFor(proposalID id.ProposalID) int {
	h := fnv.New32a()
	_, _ = h.Write(proposalID[:])
	return int(h.Sum32() % numShards)
}

// txn is either a staged unit of work or, when direct is set, a pass-through
// to the shared maps.
type txn struct {
	s      *Store
	direct bool

	proposals  map[id.ProposalID]*proposalModels.Proposal
	expected   map[id.ProposalID]int64
	created    map[id.ProposalID]bool
	deleted    map[id.ProposalID]bool
	candidates map[id.CandidateID]*matchingModels.Candidate
	ndas       map[id.NDAID]*ndaModels.Record
	entries    []*audit.Entry
}

func (s *Store) direct() *txn {
	return &txn{s: s, direct: true}
}

func (s *Store) begin() *txn {
	return &txn{
		s:          s,
		proposals:  make(map[id.ProposalID]*proposalModels.Proposal),
		expected:   make(map[id.ProposalID]int64),
		created:    make(map[id.ProposalID]bool),
		deleted:    make(map[id.ProposalID]bool),
		candidates: make(map[id.CandidateID]*matchingModels.Candidate),
		ndas:       make(map[id.NDAID]*ndaModels.Record),
	}
}

func (t *txn) Proposals() store.ProposalStore   { return &proposalStore{t: t} }
func (t *txn) Candidates() store.CandidateStore { return &candidateStore{t: t} }
func (t *txn) NDAs() store.NDAStore             { return &ndaStore{t: t} }
func (t *txn) Audit() store.AuditStore          { return &auditStore{t: t} }

// commit re-checks every proposal compare-and-swap against the shared state and
// applies all staged writes under one lock.
func (t *txn) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for pid, want := range t.expected {
		cur, ok := s.proposals[pid]
		if !ok {
			return sentinel.ErrNotFound
		}
		if cur.Version != want {
			return sentinel.ErrVersionConflict
		}
	}
	for pid := range t.created {
		if _, ok := s.proposals[pid]; ok {
			return sentinel.ErrAlreadyExists
		}
	}

	for pid, p := range t.proposals {
		s.proposals[pid] = p
	}
	for pid := range t.deleted {
		delete(s.proposals, pid)
	}
	for cid, c := range t.candidates {
		s.candidates[cid] = c
	}
	for nid, r := range t.ndas {
		s.ndas[nid] = r
	}
	for _, e := range t.entries {
		s.seq++
		e.Seq = s.seq
		s.entries = append(s.entries, e.Clone())
	}
	return nil
}

func (t *txn) proposal(pid id.ProposalID) (*proposalModels.Proposal, bool) {
	if !t.direct {
		if t.deleted[pid] {
			return nil, false
		}
		if p, ok := t.proposals[pid]; ok {
			return p, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	p, ok := t.s.proposals[pid]
	return p, ok
}

func (t *txn) candidate(cid id.CandidateID) (*matchingModels.Candidate, bool) {
	if !t.direct {
		if c, ok := t.candidates[cid]; ok {
			return c, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.candidates[cid]
	return c, ok
}

func (t *txn) nda(nid id.NDAID) (*ndaModels.Record, bool) {
	if !t.direct {
		if r, ok := t.ndas[nid]; ok {
			return r, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	r, ok := t.s.ndas[nid]
	return r, ok
}

// candidatesOf merges shared and staged candidates for one proposal.
func (t *txn) candidatesOf(pid id.ProposalID) []*matchingModels.Candidate {
	t.s.mu.RLock()
	merged := make(map[id.CandidateID]*matchingModels.Candidate)
	for cid, c := range t.s.candidates {
		if c.ProposalID == pid {
			merged[cid] = c
		}
	}
	t.s.mu.RUnlock()
	if !t.direct {
		for cid, c := range t.candidates {
			if c.ProposalID == pid {
				merged[cid] = c
			}
		}
	}
	out := make([]*matchingModels.Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	return out
}

func (t *txn) ndasOf(pid id.ProposalID) []*ndaModels.Record {
	t.s.mu.RLock()
	merged := make(map[id.NDAID]*ndaModels.Record)
	for nid, r := range t.s.ndas {
		if r.ProposalID == pid {
			merged[nid] = r
		}
	}
	t.s.mu.RUnlock()
	if !t.direct {
		for nid, r := range t.ndas {
			if r.ProposalID == pid {
				merged[nid] = r
			}
		}
	}
	out := make([]*ndaModels.Record, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out
}
