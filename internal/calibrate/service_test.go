package calibrate

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/docextract/internal/model"
)

type stubHistory struct{ acc float64 }

func (s stubHistory) MeanFieldAccuracy() (float64, bool) { return s.acc, true }

func newTestService(opts ServiceOptions) *Service {
	if opts.RetrainThreshold == 0 {
		opts.RetrainThreshold = 100000 // keep the background worker quiet
	}
	return NewService(opts)
}

func sampleAt(i int, label float64) Sample {
	return Sample{
		DocumentID: fmt.Sprintf("doc-%d", i),
		Features:   [FeatureCount]float64{0.8, 0.7, 0.75, 1, 1, 0.8, 0.5, 0.6},
		Label:      label,
		Kind:       "consensus",
		RecordedAt: time.Now().UTC(),
	}
}

func TestCalibrate_TraditionalFallback(t *testing.T) {
	s := newTestService(ServiceOptions{Learned: false})
	defer s.Close()

	rec := testRecord(0.8, map[string]string{model.FieldVendor: "ACME LDA"})
	// Single provenance entry with raw confidence 0.8.
	got := s.Calibrate(rec, UnknownQuality())
	assert.InDelta(t, 0.8*(0.7+0.3*0.8), got, 0.001)
}

func TestCalibrate_LearnedNeedsTrainingData(t *testing.T) {
	s := newTestService(ServiceOptions{Learned: true})
	defer s.Close()

	// Untrained model: still the traditional formula.
	rec := testRecord(0.8, map[string]string{model.FieldVendor: "ACME LDA"})
	assert.InDelta(t, 0.8*(0.7+0.3*0.8), s.Calibrate(rec, UnknownQuality()), 0.001)
}

func TestCalibrate_LearnedMode(t *testing.T) {
	s := newTestService(ServiceOptions{Learned: true})
	defer s.Close()

	m := NewModel()
	m.Weights = [FeatureCount]float64{}
	m.Bias = 0
	m.SampleCount = 50
	require.NoError(t, s.Import(m))

	rec := testRecord(0.9, map[string]string{model.FieldVendor: "ACME LDA"})
	assert.InDelta(t, 0.5, s.Calibrate(rec, UnknownQuality()), 0.001) // sigmoid(0)
}

func TestCalibrate_HistoricalAccuracyScaling(t *testing.T) {
	s := newTestService(ServiceOptions{Learned: true, History: stubHistory{acc: 0}})
	defer s.Close()

	m := NewModel()
	m.Weights = [FeatureCount]float64{}
	m.Bias = 0
	m.SampleCount = 50
	require.NoError(t, s.Import(m))

	rec := testRecord(0.9, map[string]string{model.FieldVendor: "ACME LDA"})
	assert.InDelta(t, 0.5*0.8, s.Calibrate(rec, UnknownQuality()), 0.001)
}

func TestCalibrate_Boundedness(t *testing.T) {
	s := newTestService(ServiceOptions{Learned: true})
	defer s.Close()

	m := NewModel()
	m.Weights = [FeatureCount]float64{500, -500, 500, -500, 500, -500, 500, -500}
	m.Bias = 300
	m.SampleCount = 50
	require.NoError(t, s.Import(m))

	adversarial := []*model.ExtractionRecord{
		testRecord(999, map[string]string{model.FieldTotal: "99999999.00"}),
		testRecord(-5, map[string]string{model.FieldVATRate: "42"}),
		testRecord(math.NaN(), nil),
	}
	for _, rec := range adversarial {
		got := s.Calibrate(rec, Quality{OCR: 99, Image: -3, Structure: 7})
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestRecordConsensus_LabelWeightedByAgreement(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	final := testRecord(0.9, map[string]string{model.FieldVendor: "ACME LDA"})
	agree := testRecord(0.9, map[string]string{model.FieldVendor: "ACME LDA"})
	disagree := testRecord(0.6, map[string]string{model.FieldVendor: "AKME LDA"})

	s.RecordConsensus("doc-1", []*model.ExtractionRecord{agree, disagree}, final, UnknownQuality())

	stats := s.Statistics()
	assert.Equal(t, 1, stats.Samples)
	assert.Equal(t, 1, stats.ByKind["consensus"])
	// Mean provider confidence 0.75, half the sources agreed with the
	// final vendor.
	assert.InDelta(t, 0.75*0.5, stats.MeanLabel, 0.001)
}

func TestRecordConsensus_LabelIgnoresCalibratedScore(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	a := testRecord(0.9, map[string]string{model.FieldVendor: "ACME LDA"})
	b := testRecord(0.9, map[string]string{model.FieldVendor: "ACME LDA"})
	final := testRecord(0.2, map[string]string{model.FieldVendor: "ACME LDA"})

	s.RecordConsensus("doc-1", []*model.ExtractionRecord{a, b}, final, UnknownQuality())

	// Full agreement at provider confidence 0.9; the final record's low
	// calibrated score must not drag the label down.
	assert.InDelta(t, 0.9, s.Statistics().MeanLabel, 0.001)
}

func TestRecordCorrection_LabelIsUnchangedFraction(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	original := testRecord(0.9, map[string]string{
		model.FieldVendor: "AKME LDA",
		model.FieldTotal:  "123.00",
	})
	corrected := testRecord(1.0, map[string]string{
		model.FieldVendor: "ACME LDA",
		model.FieldTotal:  "123.00",
	})

	s.RecordCorrection("doc-1", original, corrected, UnknownQuality())

	stats := s.Statistics()
	assert.Equal(t, 1, stats.ByKind["correction"])
	assert.InDelta(t, 0.5, stats.MeanLabel, 0.001)
}

func TestSampleValidation(t *testing.T) {
	ok := sampleAt(0, 0.5)
	assert.True(t, ok.valid())

	bad := sampleAt(0, math.NaN())
	assert.False(t, bad.valid())

	bad = sampleAt(0, 1.5)
	assert.False(t, bad.valid())

	inf := sampleAt(0, 0.5)
	inf.Features[3] = math.Inf(1)
	assert.False(t, inf.valid())
}

func TestRetrain_RequiresMinimumSamples(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	for i := 0; i < minTrainSamples-1; i++ {
		s.addSample(sampleAt(i, 0.8))
	}
	assert.Error(t, s.Retrain())
}

func TestRetrain_UpdatesModel(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	for i := 0; i < 20; i++ {
		s.addSample(sampleAt(i, 0.8))
	}
	require.NoError(t, s.Retrain())

	m := s.Export()
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, 20, m.SampleCount)
	assert.False(t, m.LastTrained.IsZero())
	assert.GreaterOrEqual(t, m.Accuracy, 0.0)
	assert.LessOrEqual(t, m.Accuracy, 1.0)
	assert.Equal(t, 0, s.Statistics().SinceLastTrain)
}

func TestRetrain_MovesTowardLabels(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	x := sampleAt(0, 0.1).Features
	prior := s.Export()
	before := prior.Predict(x)
	for i := 0; i < 100; i++ {
		s.addSample(sampleAt(i, 0.1))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Retrain())
	}
	trained := s.Export()
	after := trained.Predict(x)
	assert.Less(t, after, before)
}

func TestBufferPruning(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	for i := 0; i < bufferCap+1; i++ {
		s.addSample(sampleAt(i, 0.5))
	}
	assert.Equal(t, bufferCap/2+1, s.Statistics().Samples)
}

func TestAutoRetrainTrigger(t *testing.T) {
	s := NewService(ServiceOptions{RetrainThreshold: 10})
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.addSample(sampleAt(i, 0.7))
	}
	require.Eventually(t, func() bool {
		return s.Export().Version == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestImportRejectsBadModel(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	assert.Error(t, s.Import(Model{}))
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestService(ServiceOptions{})
	defer s.Close()

	m := s.Export()
	m.Version = 7
	m.Weights[0] = 0.42
	require.NoError(t, s.Import(m))
	assert.Equal(t, m, s.Export())
}
