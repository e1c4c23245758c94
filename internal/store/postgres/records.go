package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"dealroom/internal/audit"
	"dealroom/internal/identity"
	matchingModels "dealroom/internal/matching/models"
	ndaModels "dealroom/internal/nda/models"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
	txcontext "dealroom/pkg/platform/tx"
)

type candidateStore struct {
	db *sql.DB
}

const candidateColumns = `id, proposal_id, buyer_id, state, message, created_at, updated_at`

func (s *candidateStore) Create(ctx context.Context, c *matchingModels.Candidate) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO match_candidates (`+candidateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuidArg(c.ID), uuidArg(c.ProposalID), uuidArg(c.BuyerID), string(c.State), c.Message, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return translate(fmt.Errorf("insert candidate: %w", err))
	}
	return nil
}

func (s *candidateStore) FindByID(ctx context.Context, candidateID id.CandidateID) (*matchingModels.Candidate, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM match_candidates WHERE id = $1`, uuidArg(candidateID))
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find candidate: %w", err)
	}
	return c, nil
}

func (s *candidateStore) Update(ctx context.Context, c *matchingModels.Candidate) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE match_candidates SET state = $2, message = $3, updated_at = $4 WHERE id = $1`,
		uuidArg(c.ID), string(c.State), c.Message, c.UpdatedAt)
	if err != nil {
		return translate(fmt.Errorf("update candidate: %w", err))
	}
	return requireOne(res, "candidate")
}

func (s *candidateStore) ListByProposal(ctx context.Context, proposalID id.ProposalID) ([]*matchingModels.Candidate, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM match_candidates WHERE proposal_id = $1 ORDER BY created_at, id`,
		uuidArg(proposalID))
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []*matchingModels.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCandidate(row interface{ Scan(...any) error }) (*matchingModels.Candidate, error) {
	var (
		c                 matchingModels.Candidate
		cid, pid, buyerID uuid.UUID
		state             string
	)
	if err := row.Scan(&cid, &pid, &buyerID, &state, &c.Message, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ID = id.CandidateID(cid)
	c.ProposalID = id.ProposalID(pid)
	c.BuyerID = id.UserID(buyerID)
	c.State = matchingModels.State(state)
	return &c, nil
}

type ndaStore struct {
	db *sql.DB
}

const ndaColumns = `id, proposal_id, buyer_id, requested_at, signed_at, expires_at`

func (s *ndaStore) Create(ctx context.Context, r *ndaModels.Record) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO nda_records (`+ndaColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuidArg(r.ID), uuidArg(r.ProposalID), uuidArg(r.BuyerID), r.RequestedAt,
		nullTime(r.SignedAt), nullTime(r.ExpiresAt))
	if err != nil {
		return translate(fmt.Errorf("insert nda: %w", err))
	}
	return nil
}

func (s *ndaStore) FindByID(ctx context.Context, ndaID id.NDAID) (*ndaModels.Record, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+ndaColumns+` FROM nda_records WHERE id = $1`, uuidArg(ndaID))
	r, err := scanNDA(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find nda: %w", err)
	}
	return r, nil
}

func (s *ndaStore) Update(ctx context.Context, r *ndaModels.Record) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE nda_records SET signed_at = $2, expires_at = $3 WHERE id = $1`,
		uuidArg(r.ID), nullTime(r.SignedAt), nullTime(r.ExpiresAt))
	if err != nil {
		return translate(fmt.Errorf("update nda: %w", err))
	}
	return requireOne(res, "nda")
}

func (s *ndaStore) ListByProposalAndBuyer(ctx context.Context, proposalID id.ProposalID, buyer id.UserID) ([]*ndaModels.Record, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+ndaColumns+` FROM nda_records WHERE proposal_id = $1 AND buyer_id = $2 ORDER BY requested_at, id`,
		uuidArg(proposalID), uuidArg(buyer))
	if err != nil {
		return nil, fmt.Errorf("list ndas: %w", err)
	}
	defer rows.Close()

	var out []*ndaModels.Record
	for rows.Next() {
		r, err := scanNDA(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nda: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanNDA(row interface{ Scan(...any) error }) (*ndaModels.Record, error) {
	var (
		r                 ndaModels.Record
		nid, pid, buyerID uuid.UUID
		signed, expires   sql.NullTime
	)
	if err := row.Scan(&nid, &pid, &buyerID, &r.RequestedAt, &signed, &expires); err != nil {
		return nil, err
	}
	r.ID = id.NDAID(nid)
	r.ProposalID = id.ProposalID(pid)
	r.BuyerID = id.UserID(buyerID)
	r.SignedAt = timePtr(signed)
	r.ExpiresAt = timePtr(expires)
	return &r, nil
}

type auditStore struct {
	db *sql.DB
}

const auditColumns = `seq, id, actor_id, actor_role, entity_type, entity_id, proposal_id, action,
	occurred_at, previous_state, new_state, detail, request_id`

func (s *auditStore) Append(ctx context.Context, e *audit.Entry) error {
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO audit_entries (id, actor_id, actor_role, entity_type, entity_id, proposal_id, action,
			occurred_at, previous_state, new_state, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq`,
		uuidArg(e.ID), uuidArg(e.ActorID), string(e.ActorRole), string(e.EntityType), e.EntityID,
		uuidArg(e.ProposalID), e.Action, e.Timestamp, e.PreviousState, e.NewState, e.Detail, e.RequestID,
	).Scan(&e.Seq)
	if err != nil {
		return translate(fmt.Errorf("insert audit entry: %w", err))
	}
	return nil
}

func (s *auditStore) ListByEntity(ctx context.Context, entityID string) ([]*audit.Entry, error) {
	return s.query(ctx, `SELECT `+auditColumns+` FROM audit_entries WHERE entity_id = $1
		ORDER BY occurred_at, seq`, entityID)
}

func (s *auditStore) ListByProposal(ctx context.Context, proposalID id.ProposalID) ([]*audit.Entry, error) {
	return s.query(ctx, `SELECT `+auditColumns+` FROM audit_entries WHERE proposal_id = $1
		ORDER BY occurred_at, seq`, uuidArg(proposalID))
}

func (s *auditStore) ListUnpublished(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 500
	}
	return s.query(ctx, `SELECT `+auditColumns+` FROM audit_entries WHERE published_at IS NULL
		ORDER BY seq LIMIT $1`, limit)
}

func (s *auditStore) MarkPublished(ctx context.Context, seqs []int64, at time.Time) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE audit_entries SET published_at = $2 WHERE seq = ANY($1) AND published_at IS NULL`,
		pq.Array(seqs), at)
	if err != nil {
		return fmt.Errorf("mark audit entries published: %w", err)
	}
	return nil
}

func (s *auditStore) query(ctx context.Context, query string, args ...any) ([]*audit.Entry, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e                audit.Entry
			eid, actor, pid  uuid.UUID
			role, entityType string
		)
		if err := rows.Scan(&e.Seq, &eid, &actor, &role, &entityType, &e.EntityID, &pid, &e.Action,
			&e.Timestamp, &e.PreviousState, &e.NewState, &e.Detail, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(eid)
		e.ActorID = id.UserID(actor)
		e.ActorRole = identity.Role(role)
		e.EntityType = audit.EntityType(entityType)
		e.ProposalID = id.ProposalID(pid)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func requireOne(res sql.Result, kind string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
