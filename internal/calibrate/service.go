package calibrate

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/consensus"
	"github.com/contaflow/docextract/internal/model"
)

const (
	// minTrainSamples is the floor below which Retrain refuses to run.
	minTrainSamples = 10

	// defaultRetrainThreshold triggers a background retrain after this many
	// new samples since the last one.
	defaultRetrainThreshold = 100

	// bufferCap bounds the training buffer; the oldest half is discarded
	// when exceeded.
	bufferCap = 1000
)

// AccuracySource supplies historical per-field correction accuracy. The
// correction ledger implements it; a nil source disables the scaling.
type AccuracySource interface {
	MeanFieldAccuracy() (float64, bool)
}

// ServiceOptions configures a calibration service.
type ServiceOptions struct {
	// Learned enables the trained-model path. When false every calibration
	// uses the traditional fallback formula.
	Learned bool

	// RetrainThreshold is the new-sample count that triggers a background
	// retrain. Zero means the default.
	RetrainThreshold int

	// History is consulted for the historical-accuracy scaling. Optional.
	History AccuracySource
}

// Service owns the calibration model and training buffer. It is the only
// shared mutable state in the pipeline and is safe for concurrent use:
// writes are serialized, reads work on copies.
type Service struct {
	mu         sync.Mutex
	model      Model
	buffer     []Sample
	sinceTrain int
	rng        *rand.Rand

	learned   bool
	threshold int
	history   AccuracySource

	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewService creates a service with the prior model and starts the
// background retraining worker. Call Close to stop it.
func NewService(opts ServiceOptions) *Service {
	threshold := opts.RetrainThreshold
	if threshold <= 0 {
		threshold = defaultRetrainThreshold
	}
	s := &Service{
		model:     NewModel(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		learned:   opts.Learned,
		threshold: threshold,
		history:   opts.History,
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.worker()
	return s
}

// Close stops the background worker.
func (s *Service) Close() {
	close(s.stop)
	<-s.done
}

// worker keeps retraining off the request path: document processing only
// signals, the slow pass happens here.
func (s *Service) worker() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.trigger:
			if err := s.Retrain(); err != nil {
				zap.L().Warn("calibrate: background retrain skipped", zap.Error(err))
			}
		}
	}
}

// Calibrate scores a record in [0,1]. Learned mode runs the trained model
// scaled by historical field accuracy; before enough training data exists
// it falls back to the traditional agreement formula.
func (s *Service) Calibrate(rec *model.ExtractionRecord, q Quality) float64 {
	x := Features(rec, q)

	s.mu.Lock()
	m := s.model
	s.mu.Unlock()

	if !s.learned || m.SampleCount < minTrainSamples {
		return clamp01(x[featModelConfidence] * (0.7 + 0.3*x[featAgreement]))
	}

	score := m.Predict(x)
	if s.history != nil {
		if acc, ok := s.history.MeanFieldAccuracy(); ok {
			score *= 0.8 + 0.2*clamp01(acc)
		}
	}
	return clamp01(score)
}

// RecordConsensus ingests a consensus snapshot: the label is the mean
// provider confidence weighted by how much the contributing extractions
// agreed with the merged result. The final record's own calibrated score
// never enters the label.
func (s *Service) RecordConsensus(documentID string, contributions []*model.ExtractionRecord, final *model.ExtractionRecord, q Quality) {
	if final == nil || len(contributions) == 0 {
		return
	}
	agreement := fieldAgreement(contributions, final)
	mean := 0.0
	for _, c := range contributions {
		mean += clamp01(c.ConfidenceScore)
	}
	mean /= float64(len(contributions))
	s.addSample(Sample{
		DocumentID: documentID,
		Features:   Features(final, q),
		Label:      clamp01(mean * agreement),
		Kind:       "consensus",
		RecordedAt: time.Now().UTC(),
	})
}

// RecordCorrection ingests a manual correction: the label is the fraction
// of fields the reviewer left unchanged.
func (s *Service) RecordCorrection(documentID string, original, corrected *model.ExtractionRecord, q Quality) {
	if original == nil || corrected == nil {
		return
	}
	names := fieldUnion(original, corrected)
	if len(names) == 0 {
		return
	}
	unchanged := 0
	for _, name := range names {
		if consensus.FieldsEqual(name, original.Field(name), corrected.Field(name)) {
			unchanged++
		}
	}
	s.addSample(Sample{
		DocumentID: documentID,
		Features:   Features(original, q),
		Label:      float64(unchanged) / float64(len(names)),
		Kind:       "correction",
		RecordedAt: time.Now().UTC(),
	})
}

func (s *Service) addSample(sample Sample) {
	if !sample.valid() {
		zap.L().Warn("calibrate: dropping malformed sample",
			zap.String("document_id", sample.DocumentID),
			zap.String("kind", sample.Kind),
		)
		return
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, sample)
	if len(s.buffer) > bufferCap {
		kept := make([]Sample, len(s.buffer)-len(s.buffer)/2)
		copy(kept, s.buffer[len(s.buffer)/2:])
		s.buffer = kept
	}
	s.sinceTrain++
	fire := s.sinceTrain >= s.threshold
	s.mu.Unlock()

	if fire {
		select {
		case s.trigger <- struct{}{}:
		default:
		}
	}
}

// Retrain runs one SGD pass over a shuffled 80/20 split of the buffer and
// installs the updated model. It requires at least 10 buffered samples.
func (s *Service) Retrain() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) < minTrainSamples {
		return eris.Errorf("calibrate: %d samples buffered, need %d", len(s.buffer), minTrainSamples)
	}

	samples := make([]Sample, len(s.buffer))
	copy(samples, s.buffer)
	s.rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
	split := len(samples) * 4 / 5
	if split == len(samples) {
		split = len(samples) - 1
	}
	train, validation := samples[:split], samples[split:]

	m := s.model
	for _, sample := range train {
		m.Learn(sample.Features, sample.Label)
	}

	var sumSq float64
	within := 0
	for _, sample := range validation {
		diff := m.Predict(sample.Features) - sample.Label
		sumSq += diff * diff
		if diff < 0.1 && diff > -0.1 {
			within++
		}
	}
	m.MSE = sumSq / float64(len(validation))
	m.Accuracy = float64(within) / float64(len(validation))
	m.Version++
	m.SampleCount = len(samples)
	m.LastTrained = time.Now().UTC()

	s.model = m
	s.sinceTrain = 0

	zap.L().Info("calibrate: retrained model",
		zap.Int("version", m.Version),
		zap.Int("samples", m.SampleCount),
		zap.Float64("validation_mse", m.MSE),
		zap.Float64("validation_accuracy", m.Accuracy),
	)
	return nil
}

// Export returns a copy of the current model for persistence.
func (s *Service) Export() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Import restores a previously exported model.
func (s *Service) Import(m Model) error {
	if m.LearningRate <= 0 {
		return eris.New("calibrate: imported model has non-positive learning rate")
	}
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
	return nil
}

// DataStatistics summarizes the training buffer.
type DataStatistics struct {
	Samples        int                   `json:"samples"`
	ByKind         map[string]int        `json:"by_kind"`
	MeanLabel      float64               `json:"mean_label"`
	FeatureMeans   [FeatureCount]float64 `json:"feature_means"`
	SinceLastTrain int                   `json:"since_last_train"`
	ModelVersion   int                   `json:"model_version"`
}

// Statistics returns a read-only snapshot of the buffer state.
func (s *Service) Statistics() DataStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := DataStatistics{
		Samples:        len(s.buffer),
		ByKind:         make(map[string]int),
		SinceLastTrain: s.sinceTrain,
		ModelVersion:   s.model.Version,
	}
	if len(s.buffer) == 0 {
		return stats
	}
	var labelSum float64
	for _, sample := range s.buffer {
		stats.ByKind[sample.Kind]++
		labelSum += sample.Label
		for i, f := range sample.Features {
			stats.FeatureMeans[i] += f
		}
	}
	stats.MeanLabel = labelSum / float64(len(s.buffer))
	for i := range stats.FeatureMeans {
		stats.FeatureMeans[i] /= float64(len(s.buffer))
	}
	return stats
}

// fieldAgreement is the mean, over the final record's fields, of the
// fraction of contributing records that agree with the final value.
func fieldAgreement(contributions []*model.ExtractionRecord, final *model.ExtractionRecord) float64 {
	fields := 0
	var sum float64
	for _, name := range model.KnownFields {
		value := final.Field(name)
		if value == "" {
			continue
		}
		fields++
		agreeing := 0
		for _, rec := range contributions {
			if consensus.FieldsEqual(name, value, rec.Field(name)) {
				agreeing++
			}
		}
		sum += float64(agreeing) / float64(len(contributions))
	}
	if fields == 0 {
		return 0
	}
	return sum / float64(fields)
}

func fieldUnion(a, b *model.ExtractionRecord) []string {
	var names []string
	for _, name := range model.KnownFields {
		if a.Field(name) != "" || b.Field(name) != "" {
			names = append(names, name)
		}
	}
	return names
}
