// Package postgres implements the store contracts on PostgreSQL through
// database/sql and the pgx driver.
//
// A unit of work is one READ COMMITTED transaction that starts by locking the
// proposal row, so units for the same proposal queue behind each other while
// units for different proposals run in parallel. Proposal updates are
// additionally compare-and-swap on version.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"dealroom/internal/platform/config"
	"dealroom/internal/store"
	"dealroom/internal/store/postgres/migrations"
	id "dealroom/pkg/domain"
	"dealroom/pkg/platform/sentinel"
	txcontext "dealroom/pkg/platform/tx"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, cfg config.Database) (*Store, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Proposals() store.ProposalStore   { return &proposalStore{db: s.db} }
func (s *Store) Candidates() store.CandidateStore { return &candidateStore{db: s.db} }
func (s *Store) NDAs() store.NDAStore             { return &ndaStore{db: s.db} }
func (s *Store) Audit() store.AuditStore          { return &auditStore{db: s.db} }

func (s *Store) RunInTx(ctx context.Context, proposalID id.ProposalID, fn func(ctx context.Context, tx store.Stores) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op; a panicking fn still releases the row lock.
	defer func() { _ = tx.Rollback() }()

	// Serialize units for the same proposal. A missing row locks nothing, which
	// is fine: there is nothing to race on yet.
	if _, err = tx.ExecContext(ctx, `SELECT 1 FROM proposals WHERE id = $1 FOR UPDATE`, uuidArg(proposalID)); err != nil {
		return fmt.Errorf("lock proposal: %w", err)
	}

	if err = fn(txcontext.WithTx(ctx, tx), s); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// translate maps constraint violations onto the store sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", sentinel.ErrAlreadyExists, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", sentinel.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
