package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/okian/sentinel/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sentinel_detections (
	id               TEXT PRIMARY KEY,
	player_id        INTEGER NOT NULL,
	type             TEXT NOT NULL,
	reason           TEXT NOT NULL,
	severity         TEXT NOT NULL,
	client_reported  BOOLEAN NOT NULL,
	server_validated BOOLEAN NOT NULL,
	trust_impact     DOUBLE PRECISION NOT NULL,
	detail           JSONB,
	detected_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sentinel_detections_player_idx ON sentinel_detections (player_id, detected_at);
CREATE TABLE IF NOT EXISTS sentinel_sessions (
	player_id   INTEGER NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	final_trust DOUBLE PRECISION NOT NULL,
	detections  INTEGER NOT NULL,
	validated   INTEGER NOT NULL,
	errors      JSONB,
	enforced    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (player_id, started_at)
);`

const insertDetection = `
INSERT INTO sentinel_detections
	(id, player_id, type, reason, severity, client_reported, server_validated, trust_impact, detail, detected_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

const insertSession = `
INSERT INTO sentinel_sessions
	(player_id, started_at, ended_at, final_trust, detections, validated, errors, enforced)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (player_id, started_at) DO UPDATE SET
	ended_at = EXCLUDED.ended_at,
	final_trust = EXCLUDED.final_trust,
	detections = EXCLUDED.detections,
	validated = EXCLUDED.validated,
	errors = EXCLUDED.errors,
	enforced = EXCLUDED.enforced`

// execer is the slice of *sql.DB the store uses.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore writes to PostgreSQL through lib/pq.
type PostgresStore struct {
	db     execer
	closer func() error
}

// OpenPostgres connects, pings and bootstraps the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	cfg := defaultPostgresConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrPersist, err)
	}
	db.SetMaxOpenConns(cfg.maxOpen)
	db.SetMaxIdleConns(cfg.maxIdle)
	db.SetConnMaxLifetime(cfg.maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", ErrPersist, err)
	}
	s := &PostgresStore{db: db, closer: db.Close}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrPersist, err)
	}
	return nil
}

// StoreDetection inserts d; a detection already stored is left unchanged.
func (s *PostgresStore) StoreDetection(ctx context.Context, d model.Detection) error {
	detail, err := jsonOrNull(d.Detail)
	if err != nil {
		return fmt.Errorf("%w: encode detail: %w", ErrPersist, err)
	}
	_, err = s.db.ExecContext(ctx, insertDetection,
		d.ID, d.PlayerID, string(d.Type), d.Reason, d.Severity.String(),
		d.ClientReported, d.ServerValidated, d.TrustImpact, detail, d.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert detection %s: %w", ErrPersist, d.ID, err)
	}
	return nil
}

// SaveSessionSummary upserts the summary keyed by player and start time.
func (s *PostgresStore) SaveSessionSummary(ctx context.Context, sum model.SessionSummary) error {
	errs, err := jsonOrNull(sum.Errors)
	if err != nil {
		return fmt.Errorf("%w: encode errors: %w", ErrPersist, err)
	}
	_, err = s.db.ExecContext(ctx, insertSession,
		sum.PlayerID, sum.StartedAt.UTC(), sum.EndedAt.UTC(), sum.FinalTrust,
		sum.Detections, sum.Validated, errs, sum.Enforced,
	)
	if err != nil {
		return fmt.Errorf("%w: insert session %d: %w", ErrPersist, sum.PlayerID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// jsonOrNull encodes v for a JSONB column; empty maps become NULL.
func jsonOrNull[M ~map[K]V, K comparable, V any](v M) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
