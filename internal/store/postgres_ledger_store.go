package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	"github.com/rosariomoscato/Design-Buddy/internal/id"
	_ "github.com/lib/pq"
)

const ledgerSchemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	delta BIGINT NOT NULL,
	description TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS usage_records_user_created_idx
	ON usage_records (user_id, created_at);
`

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(ctx context.Context, dsn string) (*PostgresLedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresLedgerStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// NewPostgresLedgerStoreFromDB wraps an existing connection pool so the
// ledger and design stores can share one.
func NewPostgresLedgerStoreFromDB(ctx context.Context, db *sql.DB) (*PostgresLedgerStore, error) {
	store := &PostgresLedgerStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresLedgerStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ledgerSchemaSQL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (s *PostgresLedgerStore) Close() error {
	return s.db.Close()
}

func (s *PostgresLedgerStore) Balance(ctx context.Context, userID string) (int64, bool, error) {
	var balance int64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT balance FROM accounts WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query balance: %w", err)
	}
	return balance, true, nil
}

// Apply runs the read-check-write-append sequence in one transaction with
// the account row locked, so concurrent calls for the same account cannot
// lose updates or overdraw.
func (s *PostgresLedgerStore) Apply(ctx context.Context, userID string, delta int64, record domain.UsageRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var balance int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock account row: %w", err)
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return 0, ErrInsufficientCredits
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE user_id = $3`,
		newBalance,
		now,
		userID,
	); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	if record.ID == "" {
		record.ID = id.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO usage_records (id, user_id, delta, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID,
		userID,
		record.Delta,
		record.Description,
		record.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("insert usage record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ledger tx: %w", err)
	}

	return newBalance, nil
}

func (s *PostgresLedgerStore) Initialize(ctx context.Context, userID string, balance int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO accounts (user_id, balance, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET balance = $2, updated_at = $3`,
		userID,
		balance,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("initialize account: %w", err)
	}
	return nil
}

func (s *PostgresLedgerStore) History(ctx context.Context, userID string, limit int) ([]domain.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user_id, delta, description, created_at
		 FROM usage_records
		 WHERE user_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var r domain.UsageRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Delta, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage records: %w", err)
	}

	return records, nil
}
