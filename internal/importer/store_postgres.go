package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepworks/examimport/internal/parse"
)

const dbTimeout = 10 * time.Second

// Schema creates the tables this store needs. The surrounding system runs
// migrations; tests apply it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS import_jobs (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	exam_title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'PARSING',
	stage TEXT NOT NULL DEFAULT 'QUEUED',
	progress INT NOT NULL DEFAULT 0,
	lock_owner TEXT,
	locked_at TIMESTAMPTZ,
	attempts INT NOT NULL DEFAULT 0,
	errors TEXT[] NOT NULL DEFAULT '{}',
	warnings TEXT[] NOT NULL DEFAULT '{}',
	manifest JSONB,
	question_doc_path TEXT NOT NULL DEFAULT '',
	answer_doc_path TEXT NOT NULL DEFAULT '',
	question_doc_sum TEXT NOT NULL DEFAULT '',
	answer_doc_sum TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_questions (
	job_id UUID NOT NULL REFERENCES import_jobs(id) ON DELETE CASCADE,
	number INT NOT NULL,
	stem TEXT NOT NULL DEFAULT '',
	choice_a TEXT,
	choice_b TEXT,
	choice_c TEXT,
	choice_d TEXT,
	answer TEXT NOT NULL DEFAULT '',
	source_page INT NOT NULL DEFAULT 0,
	page_image TEXT NOT NULL DEFAULT '',
	crop_image TEXT NOT NULL DEFAULT '',
	crop_fallback BOOLEAN NOT NULL DEFAULT false,
	warnings TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (job_id, number)
);

CREATE INDEX IF NOT EXISTS idx_import_jobs_claimable
	ON import_jobs (created_at) WHERE status = 'PARSING';
`

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed job store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const jobColumns = `id::text, exam_title, status, stage, progress,
	COALESCE(lock_owner, ''), locked_at, attempts, errors, warnings,
	COALESCE(manifest, 'null'::jsonb), question_doc_path, answer_doc_path,
	question_doc_sum, answer_doc_sum, created_at`

// ClaimNext performs the single conditional update that gates job ownership:
// it either moves one eligible job into this worker's lease or affects zero
// rows, in which case the caller polls again.
func (s *PostgresStore) ClaimNext(ctx context.Context, owner string, leaseTTL time.Duration) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`UPDATE import_jobs
		 SET lock_owner = $1, locked_at = now(), attempts = attempts + 1,
		     stage = $3, progress = 0
		 WHERE id = (
		     SELECT id FROM import_jobs
		     WHERE status = 'PARSING'
		       AND (lock_owner IS NULL OR locked_at < now() - ($2::float8 * interval '1 second'))
		     ORDER BY created_at
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		owner,
		leaseTTL.Seconds(),
		StageClaimed,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoEligibleJob
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, jobID, stage string, progress int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET stage = $2, progress = $3 WHERE id = $1::uuid`,
		jobID, stage, progress,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) SetFingerprints(ctx context.Context, jobID, questionSum, answerSum string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET question_doc_sum = $2, answer_doc_sum = $3 WHERE id = $1::uuid`,
		jobID, questionSum, answerSum,
	)
	if err != nil {
		return fmt.Errorf("set fingerprints: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FingerprintKnown(ctx context.Context, sum, excludeJobID string) (bool, error) {
	if sum == "" {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var known bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM import_jobs
		     WHERE question_doc_sum = $1 AND id <> $2::uuid
		 )`,
		sum, excludeJobID,
	).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return known, nil
}

// ReplaceQuestions deletes and re-inserts the job's question rows inside one
// transaction, so a re-claimed job fully replaces its prior output.
func (s *PostgresStore) ReplaceQuestions(ctx context.Context, jobID string, rows []QuestionRow) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM import_questions WHERE job_id = $1::uuid`, jobID,
	); err != nil {
		return fmt.Errorf("delete prior questions: %w", err)
	}

	for _, r := range rows {
		var a, b, c, d any
		if r.Choices != nil {
			a, b, c, d = r.Choices.A, r.Choices.B, r.Choices.C, r.Choices.D
		}
		warnings := r.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO import_questions
			     (job_id, number, stem, choice_a, choice_b, choice_c, choice_d,
			      answer, source_page, page_image, crop_image, crop_fallback, warnings)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			jobID, r.Number, r.Stem, a, b, c, d,
			r.Answer, r.SourcePage, r.PageImage, r.CropImage, r.CropFallback, warnings,
		); err != nil {
			return fmt.Errorf("insert question %d: %w", r.Number, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit questions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Questions(ctx context.Context, jobID string) ([]QuestionRow, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT number, stem, choice_a, choice_b, choice_c, choice_d,
		        answer, source_page, page_image, crop_image, crop_fallback, warnings
		 FROM import_questions
		 WHERE job_id = $1::uuid
		 ORDER BY number`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []QuestionRow
	for rows.Next() {
		var r QuestionRow
		var a, b, c, d *string
		if err := rows.Scan(
			&r.Number, &r.Stem, &a, &b, &c, &d,
			&r.Answer, &r.SourcePage, &r.PageImage, &r.CropImage, &r.CropFallback, &r.Warnings,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if a != nil && b != nil && c != nil && d != nil {
			r.Choices = choicesFrom(*a, *b, *c, *d)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Finalize(ctx context.Context, jobID string, status Status, jobErrs, warnings []string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if jobErrs == nil {
		jobErrs = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}

	var cmd pgconn.CommandTag
	var err error
	if status == StatusFailed {
		cmd, err = s.pool.Exec(ctx,
			`UPDATE import_jobs SET status = $2, errors = $3, warnings = $4
			 WHERE id = $1::uuid AND status <> 'PUBLISHED'`,
			jobID, status, jobErrs, warnings,
		)
	} else {
		cmd, err = s.pool.Exec(ctx,
			`UPDATE import_jobs SET status = $2, errors = $3, warnings = $4,
			     stage = $5, progress = 100
			 WHERE id = $1::uuid AND status <> 'PUBLISHED'`,
			jobID, status, jobErrs, warnings, StageDone,
		)
	}
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("job not found or already published: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) ReleaseLock(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE import_jobs SET lock_owner = NULL, locked_at = NULL WHERE id = $1::uuid`,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE id = $1::uuid`, jobID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job not found: %s", jobID)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CreateJob inserts a pending job; the upload layer owns this in production,
// tests and local tools use it directly.
func (s *PostgresStore) CreateJob(ctx context.Context, job Job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	status := job.Status
	if status == "" {
		status = StatusParsing
	}

	var manifest any
	if len(job.Manifest) > 0 {
		manifest = string(job.Manifest)
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO import_jobs
		     (exam_title, status, manifest, question_doc_path, answer_doc_path)
		 VALUES ($1, $2, $3::jsonb, $4, $5)
		 RETURNING id::text`,
		job.ExamTitle, status, manifest, job.QuestionDocPath, job.AnswerDocPath,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

func choicesFrom(a, b, c, d string) *parse.Choices {
	return &parse.Choices{A: a, B: b, C: c, D: d}
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var lockedAt *time.Time
	var manifest string
	if err := row.Scan(
		&j.ID, &j.ExamTitle, &j.Status, &j.Stage, &j.Progress,
		&j.LockOwner, &lockedAt, &j.Attempts, &j.Errors, &j.Warnings,
		&manifest, &j.QuestionDocPath, &j.AnswerDocPath,
		&j.QuestionDocSum, &j.AnswerDocSum, &j.CreatedAt,
	); err != nil {
		return nil, err
	}
	j.LockedAt = lockedAt
	if manifest != "" && manifest != "null" {
		j.Manifest = []byte(manifest)
	}
	return &j, nil
}
