package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/docextract/internal/calibrate"
	"github.com/contaflow/docextract/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_ModelRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	got, err := s.LatestModel(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	m := calibrate.NewModel()
	m.Version = 3
	m.Weights[0] = 0.42
	require.NoError(t, s.SaveModel(ctx, m))

	older := calibrate.NewModel()
	older.Version = 2
	require.NoError(t, s.SaveModel(ctx, older))

	got, err = s.LatestModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Version)
	assert.InDelta(t, 0.42, got.Weights[0], 0.0001)
}

func TestSQLite_RecordRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := model.NewRecord()
	rec.ConfidenceScore = 0.87
	rec.SetField(model.FieldVendor, "ACME LDA", model.FieldProvenance{Source: "claude", RawConfidence: 0.9})
	rec.AddIssue("smudged total")

	require.NoError(t, s.SaveRecord(ctx, StoredRecord{
		DocumentID: "doc-1",
		Tenant:     "acme",
		Filename:   "fatura.pdf",
		MimeType:   "application/pdf",
		Record:     *rec,
	}))
	require.NoError(t, s.SaveRecord(ctx, StoredRecord{
		DocumentID: "doc-2",
		Tenant:     "other",
		Record:     *model.NewRecord(),
	}))

	got, err := s.ListRecords(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-1", got[0].DocumentID)
	assert.Equal(t, "ACME LDA", got[0].Record.Field(model.FieldVendor))
	assert.Equal(t, []string{"smudged total"}, got[0].Record.Issues)
	assert.NotEmpty(t, got[0].ID)

	all, err := s.ListRecords(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_CorrectionRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCorrection(ctx, Correction{
		DocumentID:    "doc-1",
		Field:         model.FieldVendor,
		Original:      "AKME LDA",
		Corrected:     "ACME LDA",
		CorrectedBy:   "ana",
		TimeToCorrect: 45 * time.Second,
	}))

	got, err := s.ListCorrections(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "vendor", got[0].Field)
	assert.Equal(t, "ACME LDA", got[0].Corrected)
	assert.Equal(t, 45*time.Second, got[0].TimeToCorrect)
}
