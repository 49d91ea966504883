package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	_ "github.com/lib/pq"
)

const designSchemaSQL = `
CREATE TABLE IF NOT EXISTS design_jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL,
	room_type TEXT NOT NULL,
	design_style TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	source_key TEXT NOT NULL,
	output_key TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PostgresDesignStore struct {
	db *sql.DB
}

func NewPostgresDesignStore(ctx context.Context, dsn string) (*PostgresDesignStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresDesignStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func NewPostgresDesignStoreFromDB(ctx context.Context, db *sql.DB) (*PostgresDesignStore, error) {
	store := &PostgresDesignStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresDesignStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, designSchemaSQL); err != nil {
		return fmt.Errorf("ensure design_jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresDesignStore) Close() error {
	return s.db.Close()
}

func (s *PostgresDesignStore) Create(ctx context.Context, job domain.DesignJob) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO design_jobs (id, user_id, status, room_type, design_style, webhook_url, source_key, output_key, failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID,
		job.UserID,
		job.Status,
		job.RoomType,
		job.DesignStyle,
		job.WebhookURL,
		job.SourceKey,
		job.OutputKey,
		job.FailureReason,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert design job: %w", err)
	}

	return nil
}

func (s *PostgresDesignStore) Get(ctx context.Context, id string) (domain.DesignJob, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, status, room_type, design_style, webhook_url, source_key, output_key, failure_reason, created_at, updated_at
		 FROM design_jobs
		 WHERE id = $1`,
		id,
	)

	var job domain.DesignJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&job.RoomType,
		&job.DesignStyle,
		&job.WebhookURL,
		&job.SourceKey,
		&job.OutputKey,
		&job.FailureReason,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.DesignJob{}, false, nil
		}
		return domain.DesignJob{}, false, fmt.Errorf("query design job: %w", err)
	}

	return job, true, nil
}

func (s *PostgresDesignStore) UpdateStatus(ctx context.Context, id, status string) (domain.DesignJob, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE design_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.DesignJob{}, fmt.Errorf("update design job status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresDesignStore) MarkSucceeded(ctx context.Context, id, outputKey string) (domain.DesignJob, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE design_jobs
		 SET status = $1, output_key = $2, updated_at = $3
		 WHERE id = $4`,
		domain.DesignStatusSucceeded,
		outputKey,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.DesignJob{}, fmt.Errorf("mark design job succeeded: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresDesignStore) MarkFailed(ctx context.Context, id, reason string) (domain.DesignJob, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE design_jobs
		 SET status = $1, failure_reason = $2, updated_at = $3
		 WHERE id = $4`,
		domain.DesignStatusFailed,
		reason,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.DesignJob{}, fmt.Errorf("mark design job failed: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresDesignStore) mustGet(ctx context.Context, id string) (domain.DesignJob, error) {
	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.DesignJob{}, err
	}
	if !ok {
		return domain.DesignJob{}, ErrDesignNotFound
	}
	return job, nil
}
