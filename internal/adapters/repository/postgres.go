package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/types"
	"github.com/okian/placement/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS allocation_runs (
	id              TEXT PRIMARY KEY,
	dataset_id      TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	idempotency_key TEXT,
	status          TEXT NOT NULL,
	fallback        BOOLEAN NOT NULL DEFAULT FALSE,
	result          JSONB,
	error           TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS allocation_runs_created_at_idx ON allocation_runs (created_at DESC);
`

const runColumns = `id, dataset_id, strategy, idempotency_key, status, fallback, result, error, created_at, completed_at`

// PostgresStore is a Store backed by PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) PutDataset(ctx context.Context, ds types.Dataset) error {
	payload, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO datasets (id, payload, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET payload = $2, created_at = $3`,
		ds.ID, payload, ds.LoadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Dataset(ctx context.Context) (types.Dataset, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM datasets ORDER BY created_at DESC LIMIT 1`,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Dataset{}, ErrNoDataset
		}
		return types.Dataset{}, fmt.Errorf("failed to get dataset: %w", err)
	}
	var ds types.Dataset
	if err := json.Unmarshal(payload, &ds); err != nil {
		return types.Dataset{}, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return ds, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRun)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	result, err := marshalResult(run.Result)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO allocation_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		run.ID, run.DatasetID, run.Strategy, run.IdempotencyKey, string(run.Status),
		run.Fallback, result, run.Error, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: run %s already exists", ErrRunConflict, run.ID)
	}
	return nil
}

func (s *PostgresStore) StartRun(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE allocation_runs SET status = $2 WHERE id = $1 AND status = $3`,
		id, string(types.RunRunning), string(types.RunQueued),
	)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run types.Run) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("%w: status %s is not terminal", ErrInvalidRun, run.Status)
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	result, err := marshalResult(run.Result)
	if err != nil {
		return err
	}
	completed := time.Now().UTC()
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE allocation_runs
		 SET status = $2, result = $3, error = NULLIF($4, ''), fallback = $5, completed_at = $6
		 WHERE id = $1 AND status IN ('queued', 'running')`,
		run.ID, string(run.Status), result, run.Error, run.Fallback, completed,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, run.ID)
	}
	return nil
}

func (s *PostgresStore) Run(ctx context.Context, id string) (types.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM allocation_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return types.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) Runs(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM allocation_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM allocation_runs`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *PostgresStore) missOrConflict(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM allocation_runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read run status: %w", err)
	}
	return fmt.Errorf("%w: run %s is %s", ErrRunConflict, id, status)
}

func marshalResult(res *allocation.Result) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return b, nil
}

func scanRun(row pgx.Row) (types.Run, error) {
	var (
		run       types.Run
		status    string
		key, msg  *string
		resultRaw []byte
	)
	if err := row.Scan(&run.ID, &run.DatasetID, &run.Strategy, &key, &status, &run.Fallback,
		&resultRaw, &msg, &run.CreatedAt, &run.CompletedAt); err != nil {
		return types.Run{}, err
	}
	run.Status = types.RunStatus(status)
	if key != nil {
		run.IdempotencyKey = *key
	}
	if msg != nil {
		run.Error = *msg
	}
	if resultRaw != nil {
		var res allocation.Result
		if err := json.Unmarshal(resultRaw, &res); err != nil {
			return types.Run{}, fmt.Errorf("failed to decode result: %w", err)
		}
		run.Result = &res
	}
	return run, nil
}
