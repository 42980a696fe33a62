package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/contaflow/docextract/internal/calibrate"
)

// Pool is the minimal pgx pool surface the store needs; pgxpool.Pool and
// the pgxmock pool both satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS calibration_models (
	version    INTEGER PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_records (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	tenant      TEXT NOT NULL DEFAULT '',
	filename    TEXT NOT NULL DEFAULT '',
	mime_type   TEXT NOT NULL DEFAULT '',
	record      JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	tenant          TEXT NOT NULL DEFAULT '',
	field           TEXT NOT NULL,
	original        TEXT NOT NULL DEFAULT '',
	corrected       TEXT NOT NULL DEFAULT '',
	corrected_by    TEXT NOT NULL DEFAULT '',
	time_to_correct BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_tenant ON extraction_records(tenant);
CREATE INDEX IF NOT EXISTS idx_records_document ON extraction_records(document_id);
CREATE INDEX IF NOT EXISTS idx_corrections_document ON corrections(document_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveModel(ctx context.Context, m calibrate.Model) error {
	snapshot, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal model")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO calibration_models (version, snapshot, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (version) DO UPDATE SET snapshot = EXCLUDED.snapshot, created_at = EXCLUDED.created_at`,
		m.Version, string(snapshot), time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save model")
}

func (s *PostgresStore) LatestModel(ctx context.Context) (*calibrate.Model, error) {
	var snapshot string
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM calibration_models ORDER BY version DESC LIMIT 1`,
	).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest model")
	}
	var m calibrate.Model
	if err := json.Unmarshal([]byte(snapshot), &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal model")
	}
	return &m, nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec StoredRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(rec.Record)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO extraction_records (id, document_id, tenant, filename, mime_type, record, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.DocumentID, rec.Tenant, rec.Filename, rec.MimeType, string(body), rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save record")
}

func (s *PostgresStore) ListRecords(ctx context.Context, tenant string, limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, document_id, tenant, filename, mime_type, record, created_at
	          FROM extraction_records WHERE ($1 = '' OR tenant = $1)
	          ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, tenant, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			rec  StoredRecord
			body string
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Tenant, &rec.Filename, &rec.MimeType, &body, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		if err := json.Unmarshal([]byte(body), &rec.Record); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records")
}

func (s *PostgresStore) SaveCorrection(ctx context.Context, c Correction) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO corrections (id, document_id, tenant, field, original, corrected, corrected_by, time_to_correct, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.DocumentID, c.Tenant, c.Field, c.Original, c.Corrected, c.CorrectedBy, int64(c.TimeToCorrect), c.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save correction")
}

func (s *PostgresStore) ListCorrections(ctx context.Context, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, tenant, field, original, corrected, corrected_by, time_to_correct, created_at
		 FROM corrections ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list corrections")
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var (
			c    Correction
			took int64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Tenant, &c.Field, &c.Original, &c.Corrected, &c.CorrectedBy, &took, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan correction")
		}
		c.TimeToCorrect = time.Duration(took)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list corrections")
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*SQLiteStore)(nil)
