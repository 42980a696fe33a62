package main

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/calibrate"
	"github.com/contaflow/docextract/internal/classifier"
	"github.com/contaflow/docextract/internal/consensus"
	"github.com/contaflow/docextract/internal/corrections"
	"github.com/contaflow/docextract/internal/manager"
	"github.com/contaflow/docextract/internal/model"
	"github.com/contaflow/docextract/internal/ocr"
	"github.com/contaflow/docextract/internal/provider"
	"github.com/contaflow/docextract/internal/store"
	"github.com/contaflow/docextract/internal/table"
	anthropicpkg "github.com/contaflow/docextract/pkg/anthropic"
)

// pipelineEnv holds the initialized store, calibration service, correction
// ledger, and manager needed by the process/serve commands.
type pipelineEnv struct {
	Store      store.Store
	Manager    *manager.Manager
	Calibrator *calibrate.Service
	Ledger     *corrections.Collector
	OCR        ocr.Extractor
}

// preOCR fills in OCR text for PDF documents when none was supplied.
// Failures are logged and ignored; the vision providers can still read the
// raw bytes.
func (pe *pipelineEnv) preOCR(ctx context.Context, doc *model.Document) {
	if pe.OCR == nil || doc.OCRText != "" || doc.MimeType != "application/pdf" {
		return
	}
	text, err := pe.OCR.Extract(ctx, doc.Bytes)
	if err != nil {
		zap.L().Debug("ocr pre-pass failed", zap.String("filename", doc.Filename), zap.Error(err))
		return
	}
	doc.OCRText = text
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Calibrator != nil {
		pe.Calibrator.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// storedFrom pairs a processed record with its document metadata for
// persistence.
func storedFrom(doc model.Document, rec *model.ExtractionRecord) store.StoredRecord {
	return store.StoredRecord{
		DocumentID: doc.ID,
		Tenant:     doc.Tenant,
		Filename:   doc.Filename,
		MimeType:   doc.MimeType,
		Record:     *rec,
	}
}

// replayCorrections feeds persisted ledger rows back into the correction
// collector and the calibrator's training buffer.
func replayCorrections(ctx context.Context, st store.Store, ledger *corrections.Collector, cal *calibrate.Service) error {
	rows, err := st.ListCorrections(ctx, 0)
	if err != nil {
		return err
	}
	for _, c := range rows {
		original := model.NewRecord()
		original.SetField(c.Field, c.Original, model.FieldProvenance{Source: "ledger"})
		corrected := model.NewRecord()
		corrected.SetField(c.Field, c.Corrected, model.FieldProvenance{Source: "manual"})

		if err := ledger.Record(c.DocumentID, original, map[string]string{c.Field: c.Corrected}, corrections.Metadata{
			CorrectedBy:   c.CorrectedBy,
			TimeToCorrect: c.TimeToCorrect,
		}); err != nil {
			zap.L().Warn("skipping stored correction",
				zap.String("document_id", c.DocumentID),
				zap.Error(err),
			)
			continue
		}
		cal.RecordCorrection(c.DocumentID, original, corrected, calibrate.UnknownQuality())
	}
	if len(rows) > 0 {
		zap.L().Info("correction ledger restored", zap.Int("corrections", len(rows)))
	}
	return nil
}

// initStore opens the configured persistence backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, API clients, providers, and the manager.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := provider.NewRegistry()
	var openaiClient provider.OpenAIClient
	if cfg.Anthropic.Key != "" {
		reg.Register(provider.NewClaudeProvider(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model))
	}
	if cfg.OpenAI.Key != "" {
		openaiClient = openai.NewClient(cfg.OpenAI.Key)
		reg.Register(provider.NewOpenAIProvider(openaiClient, cfg.OpenAI.Model))
	}
	if len(reg.List()) == 0 {
		_ = st.Close()
		return nil, eris.New("no extraction provider configured: set DOCEXTRACT_ANTHROPIC_KEY or DOCEXTRACT_OPENAI_KEY")
	}

	var analyzer classifier.FeatureAnalyzer
	if cfg.Classifier.Analyzer == "llm" {
		if openaiClient == nil {
			_ = st.Close()
			return nil, eris.New("classifier.analyzer=llm requires an OpenAI key")
		}
		analyzer = classifier.NewLLMAnalyzer(openaiClient, cfg.OpenAI.Model)
	} else {
		analyzer = classifier.HeuristicAnalyzer{}
	}

	opts := consensus.DefaultOptions()
	if cfg.Consensus.OptionsFile != "" {
		opts, err = consensus.LoadOptions(cfg.Consensus.OptionsFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	if cfg.Consensus.MinConfidence > 0 {
		opts.MinConfidence = cfg.Consensus.MinConfidence
	}
	if cfg.Consensus.MinAgreement > 0 {
		opts.MinAgreement = cfg.Consensus.MinAgreement
	}

	ledger := corrections.NewCollector()
	calibrator := calibrate.NewService(calibrate.ServiceOptions{
		Learned:          cfg.Pipeline.LearnedCalibration,
		RetrainThreshold: cfg.Pipeline.RetrainingThreshold,
		History:          ledger,
	})

	// Resume from the last persisted model snapshot, if any.
	if snapshot, err := st.LatestModel(ctx); err != nil {
		zap.L().Warn("loading calibration model failed, starting from priors", zap.Error(err))
	} else if snapshot != nil {
		if err := calibrator.Import(*snapshot); err != nil {
			zap.L().Warn("stored calibration model rejected, starting from priors", zap.Error(err))
		} else {
			zap.L().Info("calibration model restored",
				zap.Int("version", snapshot.Version),
				zap.Int("samples", snapshot.SampleCount),
			)
		}
	}

	// Rebuild the in-memory ledger from persisted corrections so the
	// historical-accuracy scaling and correction statistics survive restarts.
	if err := replayCorrections(ctx, st, ledger, calibrator); err != nil {
		zap.L().Warn("replaying stored corrections failed", zap.Error(err))
	}

	var tbl *table.Extractor
	if openaiClient != nil {
		tbl = table.NewExtractor(openaiClient, cfg.OpenAI.TableModel)
	}

	ocrExtractor, err := ocr.New(cfg.OCR)
	if err != nil {
		zap.L().Warn("ocr disabled", zap.Error(err))
		ocrExtractor = nil
	}

	mgr := manager.New(reg, classifier.New(analyzer), consensus.NewEngine(opts), tbl, calibrator, manager.Options{
		UseVision:           cfg.Pipeline.UseVision,
		UseConsensus:        cfg.Pipeline.UseMultiProviderConsensus,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		AttemptTimeout:      cfg.Pipeline.AttemptTimeout(),
	})

	zap.L().Info("pipeline initialized",
		zap.Strings("providers", reg.List()),
		zap.String("classifier", cfg.Classifier.Analyzer),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("learned_calibration", cfg.Pipeline.LearnedCalibration),
	)

	return &pipelineEnv{
		Store:      st,
		Manager:    mgr,
		Calibrator: calibrator,
		Ledger:     ledger,
		OCR:        ocrExtractor,
	}, nil
}
