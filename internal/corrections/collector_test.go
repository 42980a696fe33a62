package corrections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/docextract/internal/model"
)

func extraction(fields map[string]string) *model.ExtractionRecord {
	rec := model.NewRecord()
	rec.ConfidenceScore = 0.8
	for name, value := range fields {
		rec.SetField(name, value, model.FieldProvenance{Source: "test", RawConfidence: 0.8})
	}
	return rec
}

func TestRecord_ChangedFieldCountsAgainstAccuracy(t *testing.T) {
	c := NewCollector()
	original := extraction(map[string]string{model.FieldVendor: "AKME LDA"})

	err := c.Record("doc-1", original, map[string]string{model.FieldVendor: "ACME LDA"}, Metadata{})
	require.NoError(t, err)

	stats := c.Statistics()
	acc := stats.AccuracyByField[model.FieldVendor]
	assert.Equal(t, 1, acc.Total)
	assert.Equal(t, 0, acc.Correct)
	assert.Equal(t, 1, stats.CommonErrors["vendor:AKME LDA->ACME LDA"])
	assert.Equal(t, 1, stats.FieldCorrections)
}

func TestRecord_UnchangedFieldCountsAsCorrect(t *testing.T) {
	c := NewCollector()
	original := extraction(map[string]string{
		model.FieldVendor: "ACME LDA",
		model.FieldTotal:  "123.00",
	})

	err := c.Record("doc-1", original, map[string]string{
		model.FieldVendor: "acme lda", // same value, different case
		model.FieldTotal:  "123.00",
	}, Metadata{})
	require.NoError(t, err)

	stats := c.Statistics()
	assert.Equal(t, 1, stats.AccuracyByField[model.FieldVendor].Correct)
	assert.Equal(t, 1, stats.AccuracyByField[model.FieldTotal].Correct)
	assert.Equal(t, 0, stats.FieldCorrections)
	assert.Empty(t, stats.CommonErrors)
}

func TestRecord_RejectsEmptyInput(t *testing.T) {
	c := NewCollector()
	assert.Error(t, c.Record("doc-1", nil, map[string]string{"vendor": "X"}, Metadata{}))
	assert.Error(t, c.Record("doc-1", extraction(nil), nil, Metadata{}))
}

func TestStatistics_AverageTimeToCorrect(t *testing.T) {
	c := NewCollector()
	original := extraction(map[string]string{model.FieldVendor: "ACME LDA"})

	require.NoError(t, c.Record("doc-1", original, map[string]string{model.FieldVendor: "ACME LDA"},
		Metadata{TimeToCorrect: 30 * time.Second}))
	require.NoError(t, c.Record("doc-2", original, map[string]string{model.FieldVendor: "ACME LDA"},
		Metadata{TimeToCorrect: 90 * time.Second}))

	stats := c.Statistics()
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, time.Minute, stats.AvgTimeToCorrect)
}

func TestTrainingData(t *testing.T) {
	c := NewCollector()
	original := extraction(map[string]string{
		model.FieldVendor: "AKME LDA",
		model.FieldTotal:  "123.00",
	})

	require.NoError(t, c.Record("doc-1", original, map[string]string{
		model.FieldVendor: "ACME LDA",
		model.FieldTotal:  "123.00",
	}, Metadata{}))

	data := c.TrainingData()
	require.Len(t, data, 1)
	assert.Equal(t, "doc-1", data[0].DocumentID)
	assert.InDelta(t, 0.5, data[0].Target, 0.001)
	assert.InDelta(t, 0.8, data[0].Features[0], 0.001)
}

func TestMeanFieldAccuracy(t *testing.T) {
	c := NewCollector()
	_, ok := c.MeanFieldAccuracy()
	assert.False(t, ok)

	original := extraction(map[string]string{
		model.FieldVendor: "AKME LDA",
		model.FieldTotal:  "123.00",
	})
	require.NoError(t, c.Record("doc-1", original, map[string]string{
		model.FieldVendor: "ACME LDA", // wrong
		model.FieldTotal:  "123.00",   // right
	}, Metadata{}))

	acc, ok := c.MeanFieldAccuracy()
	require.True(t, ok)
	assert.InDelta(t, 0.5, acc, 0.001)
}

func TestStatistics_SnapshotIsolated(t *testing.T) {
	c := NewCollector()
	original := extraction(map[string]string{model.FieldVendor: "AKME LDA"})
	require.NoError(t, c.Record("doc-1", original, map[string]string{model.FieldVendor: "ACME LDA"}, Metadata{}))

	stats := c.Statistics()
	stats.CommonErrors["vendor:AKME LDA->ACME LDA"] = 99
	stats.AccuracyByField[model.FieldVendor] = FieldAccuracy{Correct: 9, Total: 9}

	fresh := c.Statistics()
	assert.Equal(t, 1, fresh.CommonErrors["vendor:AKME LDA->ACME LDA"])
	assert.Equal(t, 0, fresh.AccuracyByField[model.FieldVendor].Correct)
}
