package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/docextract/internal/calibrate"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_LatestModel_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM calibration_models`).
		WillReturnError(pgx.ErrNoRows)

	m, err := s.LatestModel(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestModel(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM calibration_models`).
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).
			AddRow(`{"weights":[0.3,0.2,0.15,0.1,0.1,0.05,0.05,0.05],"bias":0.5,"learning_rate":0.01,"version":4,"sample_count":120,"last_trained":"2026-08-01T00:00:00Z","mse":0.02,"accuracy":0.9}`))

	m, err := s.LatestModel(context.Background())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 4, m.Version)
	assert.Equal(t, 120, m.SampleCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveModel(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO calibration_models`).
		WithArgs(2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	m := calibrate.NewModel()
	m.Version = 2
	require.NoError(t, s.SaveModel(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCorrection(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO corrections`).
		WithArgs(pgxmock.AnyArg(), "doc-1", "", "vendor", "AKME LDA", "ACME LDA", "ana", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveCorrection(context.Background(), Correction{
		DocumentID:  "doc-1",
		Field:       "vendor",
		Original:    "AKME LDA",
		Corrected:   "ACME LDA",
		CorrectedBy: "ana",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCorrections_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, document_id, tenant, field`).
		WithArgs(10).
		WillReturnError(assert.AnError)

	_, err := s.ListCorrections(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list corrections")
	assert.NoError(t, mock.ExpectationsWereMet())
}
