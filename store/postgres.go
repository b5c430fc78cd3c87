package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"transmute/models"
)

// Schema is the DDL the migrate command applies.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	action      TEXT NOT NULL,
	target      INTEGER NOT NULL DEFAULT 70,
	to_format   TEXT NOT NULL DEFAULT '',
	input_path  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	progress    INTEGER NOT NULL DEFAULT 0,
	output_path TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS jobs_status_created_at ON jobs (status, created_at);
`

const jobColumns = `id, filename, action, target, to_format, input_path, status, progress, output_path, created_at`

// terminalList is the SQL list of statuses a row never leaves.
var terminalList = fmt.Sprintf("('%s','%s','%s')", models.StatusDone, models.StatusError, models.StatusCancelled)

// Postgres stores jobs in a jobs table. Conditional UPDATEs give the
// compare-and-swap semantics, so several processes may share it.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the jobs table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Filename, &j.Action, &j.Target, &j.ToFormat, &j.InputPath,
		&j.Status, &j.Progress, &j.OutputPath, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// patchArgs turns a patch into nullable parameters for COALESCE.
func patchArgs(p models.Patch) (status, progress, output any) {
	if p.Status != nil {
		status = string(*p.Status)
	}
	if p.Progress != nil {
		progress = *p.Progress
	}
	if p.OutputPath != nil {
		output = *p.OutputPath
	}
	return
}

func (s *Postgres) Create(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query, job.ID, job.Filename, job.Action, job.Target, job.ToFormat,
		job.InputPath, job.Status, job.Progress, job.OutputPath, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *Postgres) Update(ctx context.Context, id string, p models.Patch) (*models.Job, error) {
	status, progress, output := patchArgs(p)
	query := `UPDATE jobs SET
		status = COALESCE($2, status),
		progress = COALESCE($3, progress),
		output_path = COALESCE($4, output_path)
		WHERE id = $1 AND status NOT IN ` + terminalList + `
		RETURNING ` + jobColumns
	j, err := scanJob(s.db.QueryRowContext(ctx, query, id, status, progress, output))
	if !errors.Is(err, ErrNotFound) {
		return j, err
	}
	// Either missing or terminal.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrFinalized
}

func (s *Postgres) ListQueued(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at, id`, models.StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Postgres) Claim(ctx context.Context, id string) (bool, error) {
	return s.Advance(ctx, id, models.StatusQueued, models.StatusPatch(models.StatusStarting, models.ProgressStarting))
}

func (s *Postgres) Advance(ctx context.Context, id string, from models.Status, p models.Patch) (bool, error) {
	status, progress, output := patchArgs(p)
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET
		status = COALESCE($3, status),
		progress = COALESCE($4, progress),
		output_path = COALESCE($5, output_path)
		WHERE id = $1 AND status = $2`, id, from, status, progress, output)
	if err != nil {
		return false, fmt.Errorf("failed to advance job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (s *Postgres) Cancel(ctx context.Context, id string) (*models.Job, error) {
	query := `UPDATE jobs SET status = $2 WHERE id = $1 AND status IN ($3, $4) RETURNING ` + jobColumns
	j, err := scanJob(s.db.QueryRowContext(ctx, query, id, models.StatusCancelled, models.StatusQueued, models.StatusStarting))
	if errors.Is(err, ErrNotFound) {
		return s.Get(ctx, id)
	}
	return j, err
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
