package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	proposalModels "dealroom/internal/proposal/models"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
	txcontext "dealroom/pkg/platform/tx"
)

var (
	reviewClockStatuses  = []string{string(proposalModels.StatusSubmitted), string(proposalModels.StatusUnderReview)}
	archiveClockStatuses = []string{
		string(proposalModels.StatusRejected),
		string(proposalModels.StatusExpired),
		string(proposalModels.StatusCompleted),
	}
)

const proposalColumns = `id, owner_id, status, public_fields, confidential_fields, documents, version,
	created_at, updated_at, last_saved_at, submitted_at, review_deadline, decided_at,
	matched_at, disclosed_at, archive_deadline, review_comment, rejection_reason`

type proposalStore struct {
	db *sql.DB
}

func uuidArg[T ~[16]byte](v T) uuid.UUID { return uuid.UUID(v) }

func (s *proposalStore) Create(ctx context.Context, p *proposalModels.Proposal) error {
	args, err := proposalArgs(p)
	if err != nil {
		return err
	}
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO proposals (`+proposalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		args...)
	if err != nil {
		return translate(fmt.Errorf("insert proposal: %w", err))
	}
	return nil
}

func (s *proposalStore) FindByID(ctx context.Context, proposalID id.ProposalID) (*proposalModels.Proposal, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, uuidArg(proposalID))
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find proposal: %w", err)
	}
	return p, nil
}

func (s *proposalStore) Update(ctx context.Context, p *proposalModels.Proposal, expectedVersion int64) error {
	args, err := proposalArgs(p)
	if err != nil {
		return err
	}
	exec := txcontext.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE proposals SET
			owner_id = $2, status = $3, public_fields = $4, confidential_fields = $5, documents = $6,
			version = $7, created_at = $8, updated_at = $9, last_saved_at = $10, submitted_at = $11,
			review_deadline = $12, decided_at = $13, matched_at = $14, disclosed_at = $15,
			archive_deadline = $16, review_comment = $17, rejection_reason = $18
		WHERE id = $1 AND version = $19`,
		append(args, expectedVersion)...)
	if err != nil {
		return translate(fmt.Errorf("update proposal: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if n == 1 {
		return nil
	}
	return missedSwap(ctx, exec, p.ID)
}

func (s *proposalStore) Delete(ctx context.Context, proposalID id.ProposalID, expectedVersion int64) error {
	exec := txcontext.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1 AND version = $2`,
		uuidArg(proposalID), expectedVersion)
	if err != nil {
		return translate(fmt.Errorf("delete proposal: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	if n == 1 {
		return nil
	}
	return missedSwap(ctx, exec, proposalID)
}

// missedSwap explains a compare-and-swap that touched no row.
func missedSwap(ctx context.Context, exec txcontext.Executor, proposalID id.ProposalID) error {
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM proposals WHERE id = $1)`,
		uuidArg(proposalID)).Scan(&exists); err != nil {
		return fmt.Errorf("check proposal: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrVersionConflict
}

func (s *proposalStore) ListByStatus(ctx context.Context, statuses []proposalModels.Status, limit int) ([]*proposalModels.Proposal, error) {
	if limit <= 0 {
		limit = 1000
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT `+proposalColumns+` FROM proposals
		WHERE status = ANY($1)
		ORDER BY COALESCE(submitted_at, created_at), id
		LIMIT $2`,
		pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("list proposals by status: %w", err)
	}
	defer rows.Close()

	var out []*proposalModels.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *proposalStore) ListDue(ctx context.Context, now time.Time, limit int) ([]id.ProposalID, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT id FROM proposals
		WHERE (status = ANY($1) AND review_deadline <= $3)
		   OR (status = ANY($2) AND archive_deadline <= $3)
		ORDER BY updated_at, id
		LIMIT $4`,
		pq.Array(reviewClockStatuses), pq.Array(archiveClockStatuses), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due proposals: %w", err)
	}
	defer rows.Close()

	var out []id.ProposalID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan due proposal: %w", err)
		}
		out = append(out, id.ProposalID(u))
	}
	return out, rows.Err()
}

func (s *proposalStore) CountByStatus(ctx context.Context) (map[proposalModels.Status]int, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT status, COUNT(*) FROM proposals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count proposals: %w", err)
	}
	defer rows.Close()

	counts := make(map[proposalModels.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan proposal count: %w", err)
		}
		counts[proposalModels.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *proposalStore) CountStaleDrafts(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proposals WHERE status = $1 AND last_saved_at < $2`,
		string(proposalModels.StatusDraft), before).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale drafts: %w", err)
	}
	return n, nil
}

func proposalArgs(p *proposalModels.Proposal) ([]any, error) {
	public, err := json.Marshal(nonNilFields(p.PublicFields))
	if err != nil {
		return nil, fmt.Errorf("marshal public fields: %w", err)
	}
	confidential, err := json.Marshal(nonNilFields(p.ConfidentialFields))
	if err != nil {
		return nil, fmt.Errorf("marshal confidential fields: %w", err)
	}
	docs := p.Documents
	if docs == nil {
		docs = []proposalModels.Document{}
	}
	documents, err := json.Marshal(toDocumentRows(docs))
	if err != nil {
		return nil, fmt.Errorf("marshal documents: %w", err)
	}
	return []any{
		uuidArg(p.ID), uuidArg(p.OwnerID), string(p.Status), public, confidential, documents, p.Version,
		p.CreatedAt, p.UpdatedAt, p.LastSavedAt, nullTime(p.SubmittedAt), nullTime(p.ReviewDeadline),
		nullTime(p.DecidedAt), nullTime(p.MatchedAt), nullTime(p.DisclosedAt), nullTime(p.ArchiveDeadline),
		p.ReviewComment, p.RejectionReason,
	}, nil
}

func scanProposal(row interface{ Scan(...any) error }) (*proposalModels.Proposal, error) {
	var (
		p                                   proposalModels.Proposal
		pid, owner                          uuid.UUID
		status                              string
		public, confidential, documents     []byte
		submitted, review, decided, matched sql.NullTime
		disclosed, archive                  sql.NullTime
	)
	if err := row.Scan(&pid, &owner, &status, &public, &confidential, &documents, &p.Version,
		&p.CreatedAt, &p.UpdatedAt, &p.LastSavedAt, &submitted, &review, &decided,
		&matched, &disclosed, &archive, &p.ReviewComment, &p.RejectionReason); err != nil {
		return nil, err
	}
	p.ID = id.ProposalID(pid)
	p.OwnerID = id.UserID(owner)
	p.Status = proposalModels.Status(status)
	if err := json.Unmarshal(public, &p.PublicFields); err != nil {
		return nil, fmt.Errorf("decode public fields: %w", err)
	}
	if err := json.Unmarshal(confidential, &p.ConfidentialFields); err != nil {
		return nil, fmt.Errorf("decode confidential fields: %w", err)
	}
	var docRows []documentRow
	if err := json.Unmarshal(documents, &docRows); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	p.Documents = fromDocumentRows(docRows)
	p.SubmittedAt = timePtr(submitted)
	p.ReviewDeadline = timePtr(review)
	p.DecidedAt = timePtr(decided)
	p.MatchedAt = timePtr(matched)
	p.DisclosedAt = timePtr(disclosed)
	p.ArchiveDeadline = timePtr(archive)
	return &p, nil
}

func nonNilFields(f proposalModels.Fields) proposalModels.Fields {
	if f == nil {
		return proposalModels.Fields{}
	}
	return f
}

// documentRow is the stored form of a document; the API form hides FileRef.
type documentRow struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Confidential bool      `json:"confidential"`
	FileRef      string    `json:"file_ref"`
	AttachedAt   time.Time `json:"attached_at"`
}

func toDocumentRows(docs []proposalModels.Document) []documentRow {
	out := make([]documentRow, len(docs))
	for i, d := range docs {
		out[i] = documentRow{
			ID: uuid.UUID(d.ID), Name: d.Name, ContentType: d.ContentType, Size: d.Size,
			Confidential: d.Confidential, FileRef: d.FileRef, AttachedAt: d.AttachedAt,
		}
	}
	return out
}

func fromDocumentRows(rows []documentRow) []proposalModels.Document {
	if len(rows) == 0 {
		return nil
	}
	out := make([]proposalModels.Document, len(rows))
	for i, r := range rows {
		out[i] = proposalModels.Document{
			ID: id.DocumentID(r.ID), Name: r.Name, ContentType: r.ContentType, Size: r.Size,
			Confidential: r.Confidential, FileRef: r.FileRef, AttachedAt: r.AttachedAt,
		}
	}
	return out
}
