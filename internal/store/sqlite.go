package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/contaflow/docextract/internal/calibrate"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS calibration_models (
	version    INTEGER PRIMARY KEY,
	snapshot   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extraction_records (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	tenant      TEXT NOT NULL DEFAULT '',
	filename    TEXT NOT NULL DEFAULT '',
	mime_type   TEXT NOT NULL DEFAULT '',
	record      TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS corrections (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	tenant          TEXT NOT NULL DEFAULT '',
	field           TEXT NOT NULL,
	original        TEXT NOT NULL DEFAULT '',
	corrected       TEXT NOT NULL DEFAULT '',
	corrected_by    TEXT NOT NULL DEFAULT '',
	time_to_correct INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_tenant ON extraction_records(tenant);
CREATE INDEX IF NOT EXISTS idx_records_document ON extraction_records(document_id);
CREATE INDEX IF NOT EXISTS idx_corrections_document ON corrections(document_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveModel(ctx context.Context, m calibrate.Model) error {
	snapshot, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal model")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO calibration_models (version, snapshot, created_at) VALUES (?, ?, ?)`,
		m.Version, string(snapshot), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save model")
}

func (s *SQLiteStore) LatestModel(ctx context.Context) (*calibrate.Model, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM calibration_models ORDER BY version DESC LIMIT 1`,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest model")
	}
	var m calibrate.Model
	if err := json.Unmarshal([]byte(snapshot), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal model")
	}
	return &m, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec StoredRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(rec.Record)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extraction_records (id, document_id, tenant, filename, mime_type, record, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DocumentID, rec.Tenant, rec.Filename, rec.MimeType, string(body), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save record")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, tenant string, limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, document_id, tenant, filename, mime_type, record, created_at
	          FROM extraction_records`
	args := []any{}
	if tenant != "" {
		query += ` WHERE tenant = ?`
		args = append(args, tenant)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			rec  StoredRecord
			body string
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.Tenant, &rec.Filename, &rec.MimeType, &body, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if err := json.Unmarshal([]byte(body), &rec.Record); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records")
}

func (s *SQLiteStore) SaveCorrection(ctx context.Context, c Correction) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO corrections (id, document_id, tenant, field, original, corrected, corrected_by, time_to_correct, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.Tenant, c.Field, c.Original, c.Corrected, c.CorrectedBy, int64(c.TimeToCorrect), c.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save correction")
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, tenant, field, original, corrected, corrected_by, time_to_correct, created_at
		 FROM corrections ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list corrections")
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var (
			c    Correction
			took int64
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Tenant, &c.Field, &c.Original, &c.Corrected, &c.CorrectedBy, &took, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan correction")
		}
		c.TimeToCorrect = time.Duration(took)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list corrections")
}
