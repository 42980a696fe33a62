// Package manager orchestrates the pipeline: classify, run the provider
// fallback chain, fan out for consensus, enhance, calibrate.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/contaflow/docextract/internal/calibrate"
	"github.com/contaflow/docextract/internal/classifier"
	"github.com/contaflow/docextract/internal/consensus"
	"github.com/contaflow/docextract/internal/model"
	"github.com/contaflow/docextract/internal/provider"
	"github.com/contaflow/docextract/internal/table"
)

// ErrNoProviders means no registered provider can handle the document at
// all. There is no fallback from this.
var ErrNoProviders = eris.New("manager: no provider supports this document")

// Options tunes orchestration. UseVision and UseConsensus are global
// enables layered over the per-document classifier decision.
type Options struct {
	UseVision           bool
	UseConsensus        bool
	ConfidenceThreshold float64
	AttemptTimeout      time.Duration
}

// DefaultOptions enables the full pipeline.
func DefaultOptions() Options {
	return Options{
		UseVision:           true,
		UseConsensus:        true,
		ConfidenceThreshold: 0.75,
		AttemptTimeout:      60 * time.Second,
	}
}

// Manager is the single entry point for document processing.
type Manager struct {
	registry   *provider.Registry
	classifier *classifier.Classifier
	engine     *consensus.Engine
	table      *table.Extractor
	calibrator *calibrate.Service
	opts       Options
}

// New wires the pipeline together. The table extractor is optional; the
// rest is required.
func New(reg *provider.Registry, cls *classifier.Classifier, engine *consensus.Engine,
	tbl *table.Extractor, cal *calibrate.Service, opts Options) *Manager {
	if opts.ConfidenceThreshold == 0 {
		opts.ConfidenceThreshold = DefaultOptions().ConfidenceThreshold
	}
	if opts.AttemptTimeout == 0 {
		opts.AttemptTimeout = DefaultOptions().AttemptTimeout
	}
	return &Manager{
		registry:   reg,
		classifier: cls,
		engine:     engine,
		table:      tbl,
		calibrator: cal,
		opts:       opts,
	}
}

// Process runs one document through the full pipeline and returns the
// calibrated best-effort record. Only an exhausted provider chain or a
// missing provider refuses to return a result.
func (m *Manager) Process(ctx context.Context, doc model.Document) (*model.ExtractionRecord, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	decision := m.classifier.Classify(ctx, doc)
	decision.UseVision = decision.UseVision && m.opts.UseVision
	decision.UseConsensus = decision.UseConsensus && m.opts.UseConsensus

	strategy, err := buildStrategy(m.registry, decision, doc.MimeType)
	if err != nil {
		return nil, err
	}
	zap.L().Info("manager: processing document",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.String("primary", strategy.Primary.Name()),
		zap.Bool("use_vision", decision.UseVision),
		zap.Bool("use_consensus", decision.UseConsensus),
		zap.String("priority", string(decision.Priority)),
	)

	primary, usedName, chainIssues, err := m.runChain(ctx, strategy, doc)
	if err != nil {
		return nil, err
	}

	contributions := []*model.ExtractionRecord{primary}
	var tableRec *model.ExtractionRecord
	if decision.UseConsensus {
		secondaries, tbl := m.fanOut(ctx, strategy, doc, usedName)
		tableRec = tbl
		contributions = append(contributions, secondaries...)
	}

	final, err := m.engine.Merge(contributions)
	if err != nil {
		return nil, err
	}
	for _, issue := range chainIssues {
		final.AddIssue(issue)
	}

	m.enhance(ctx, doc, final, tableRec)

	q := documentQuality(doc)
	final.ConfidenceScore = m.calibrator.Calibrate(final, q)
	if ctx.Err() == nil && len(contributions) > 1 {
		m.calibrator.RecordConsensus(doc.ID, contributions, final, q)
	}
	return final, nil
}

// runChain attempts providers in order until one meets the confidence
// threshold. Failed attempts become issues and the chain continues; an
// exhausted chain with no result at all surfaces the last error.
func (m *Manager) runChain(ctx context.Context, strategy Strategy, doc model.Document) (*model.ExtractionRecord, string, []string, error) {
	var (
		best     *model.ExtractionRecord
		bestName string
		issues   []string
		lastErr  error
	)
	for _, p := range strategy.Chain() {
		if ctx.Err() != nil {
			break
		}
		rec, err := m.attempt(ctx, p, doc)
		if err != nil {
			lastErr = err
			issues = append(issues, fmt.Sprintf("provider %s failed: %v", p.Name(), err))
			zap.L().Warn("manager: provider attempt failed",
				zap.String("document_id", doc.ID),
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}
		if rec.ConfidenceScore >= m.opts.ConfidenceThreshold {
			return rec, p.Name(), issues, nil
		}
		issues = append(issues, fmt.Sprintf("provider %s below confidence threshold (%.2f)", p.Name(), rec.ConfidenceScore))
		if best == nil || rec.ConfidenceScore > best.ConfidenceScore {
			best, bestName = rec, p.Name()
		}
	}
	if best != nil {
		return best, bestName, issues, nil
	}
	if err := ctx.Err(); err != nil && lastErr == nil {
		lastErr = err
	}
	return nil, "", nil, eris.Wrap(lastErr, "manager: provider chain exhausted")
}

// attempt routes one provider call by mime type under the per-attempt
// timeout.
func (m *Manager) attempt(ctx context.Context, p provider.Provider, doc model.Document) (*model.ExtractionRecord, error) {
	actx, cancel := context.WithTimeout(ctx, m.opts.AttemptTimeout)
	defer cancel()

	switch {
	case strings.HasPrefix(doc.MimeType, "image/"):
		return p.ExtractImage(actx, doc.Bytes, doc.MimeType, doc.Filename)
	case strings.Contains(doc.MimeType, "pdf"):
		return p.ExtractPDF(actx, doc.Bytes, doc.Filename)
	default:
		return p.ExtractText(actx, doc.Text(), doc.Filename)
	}
}

// fanOut contacts the consensus sources concurrently: the best provider not
// already used, plus the table extractor. Partial failure is tolerated;
// whatever succeeded contributes.
func (m *Manager) fanOut(ctx context.Context, strategy Strategy, doc model.Document, usedName string) ([]*model.ExtractionRecord, *model.ExtractionRecord) {
	var (
		mu        sync.Mutex
		records   []*model.ExtractionRecord
		tableRec  *model.ExtractionRecord
		secondary provider.Provider
	)
	for _, p := range strategy.Chain() {
		if p.Name() != usedName {
			secondary = p
			break
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if secondary != nil {
		g.Go(func() error {
			rec, err := m.attempt(gctx, secondary, doc)
			if err != nil {
				zap.L().Warn("manager: consensus secondary failed",
					zap.String("document_id", doc.ID),
					zap.String("provider", secondary.Name()),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	if m.table != nil && strings.TrimSpace(textOf(doc)) != "" {
		g.Go(func() error {
			rec, err := m.table.ExtractLineItems(gctx, textOf(doc), doc.Filename)
			if err != nil {
				zap.L().Warn("manager: table extraction failed",
					zap.String("document_id", doc.ID),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			tableRec = rec
			if len(rec.LineItems) > 0 {
				records = append(records, rec)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return records, tableRec
}

// textOf returns usable document text: OCR output, or the raw bytes only
// when the document actually is text.
func textOf(doc model.Document) string {
	if doc.OCRText != "" {
		return doc.OCRText
	}
	if strings.HasPrefix(doc.MimeType, "text/") {
		return string(doc.Bytes)
	}
	return ""
}

// documentQuality derives the calibration quality estimates. Whatever
// cannot be measured stays unknown and calibrates as neutral.
func documentQuality(doc model.Document) calibrate.Quality {
	q := calibrate.UnknownQuality()
	if text := textOf(doc); text != "" {
		q.OCR = calibrate.EstimateOCRQuality(text)
		q.Structure = calibrate.EstimateStructureQuality(text)
	}
	return q
}
