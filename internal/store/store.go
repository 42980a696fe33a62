// Package store persists what must survive a restart: calibration model
// snapshots, processed extraction records, and the raw correction events
// the ledger is rebuilt from. The pipeline core never touches it directly;
// the surrounding application does.
package store

import (
	"context"
	"time"

	"github.com/contaflow/docextract/internal/calibrate"
	"github.com/contaflow/docextract/internal/model"
)

// StoredRecord is a processed extraction as persisted.
type StoredRecord struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Tenant     string                 `json:"tenant"`
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mime_type"`
	Record     model.ExtractionRecord `json:"record"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Correction is one reviewed field change as persisted.
type Correction struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	Tenant        string        `json:"tenant"`
	Field         string        `json:"field"`
	Original      string        `json:"original"`
	Corrected     string        `json:"corrected"`
	CorrectedBy   string        `json:"corrected_by"`
	TimeToCorrect time.Duration `json:"time_to_correct"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Store defines the persistence interface.
type Store interface {
	// Calibration model snapshots; LatestModel returns nil when none exists.
	SaveModel(ctx context.Context, m calibrate.Model) error
	LatestModel(ctx context.Context) (*calibrate.Model, error)

	// Processed records
	SaveRecord(ctx context.Context, rec StoredRecord) error
	ListRecords(ctx context.Context, tenant string, limit int) ([]StoredRecord, error)

	// Correction events
	SaveCorrection(ctx context.Context, c Correction) error
	ListCorrections(ctx context.Context, limit int) ([]Correction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
