// Package engine wires name parsing, identity scoring and persona
// classification behind the three operations exposed to callers.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/juror-match/internal/config"
	"github.com/sells-group/juror-match/internal/metrics"
	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/persona"
	"github.com/sells-group/juror-match/internal/resolve"
	"github.com/sells-group/juror-match/internal/signal"
	"github.com/sells-group/juror-match/internal/weights"
)

// Engine is safe for concurrent use. The weight table is the only shared
// mutable state and is replaced atomically by ReloadWeights.
type Engine struct {
	scorer      *resolve.Scorer
	extractor   *signal.Extractor
	classifier  *persona.Classifier
	weights     *weights.Holder
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over the catalog and an initial weight table, which
// may be nil.
func New(cfg *config.Config, catalog *signal.Catalog, table *weights.Table, opts ...Option) *Engine {
	e := &Engine{
		scorer:      resolve.NewScorer(cfg.Resolve),
		extractor:   signal.NewExtractor(catalog),
		classifier:  persona.NewClassifier(cfg.Classify),
		weights:     weights.NewHolder(table),
		concurrency: cfg.Classify.MaxConcurrent,
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	for _, opt := range opts {
		opt(e)
	}
	if table != nil {
		e.metrics.SetWeights(table.ID(), table.Version())
	}
	return e
}

// Classification is the detailed output of classifying one subject.
type Classification struct {
	Signals        []model.ExtractedSignal    `json:"signals"`
	Contradicts    []string                   `json:"contradicts,omitempty"`
	Results        []model.PersonaMatchResult `json:"results"`
	WeightsID      string                     `json:"weights_id"`
	WeightsVersion string                     `json:"weights_version"`
}

// Subject is one juror in a batch.
type Subject struct {
	ID         string            `json:"id"`
	Attributes *model.Attributes `json:"attributes"`
}

// BatchResult is the outcome for one batch subject. Err is set when that
// subject failed; other subjects are unaffected.
type BatchResult struct {
	SubjectID      string          `json:"subject_id"`
	Classification *Classification `json:"classification,omitempty"`
	Err            error           `json:"-"`
	Error          string          `json:"error,omitempty"`
}

// ParseName parses a free-text juror name.
func (e *Engine) ParseName(raw string) (model.ParsedName, error) {
	start := time.Now()
	p, err := resolve.ParseName(raw)
	e.metrics.ObserveOperation(metrics.OpParseName, time.Since(start), err)
	return p, err
}

// ScoreIdentityCandidates ranks candidates for the target by TotalScore.
func (e *Engine) ScoreIdentityCandidates(target model.Target, candidates []model.CandidateRecord) ([]model.IdentityCandidate, error) {
	start := time.Now()
	ranked, err := e.scorer.ScoreCandidates(target, candidates)
	e.metrics.ObserveOperation(metrics.OpScoreCandidate, time.Since(start), err)
	if err != nil {
		return nil, eris.Wrap(err, "engine: score identity candidates")
	}
	e.metrics.AddCandidatesScored(len(candidates))
	return ranked, nil
}

// Rescore recomputes a pending candidate's score.
func (e *Engine) Rescore(target model.Target, c *model.IdentityCandidate) error {
	return e.scorer.Rescore(target, c)
}

// ClassifyPersonas returns the ranked persona matches for an attribute bag.
func (e *Engine) ClassifyPersonas(attrs *model.Attributes) ([]model.PersonaMatchResult, error) {
	c, err := e.Classify(attrs)
	if err != nil {
		return nil, err
	}
	return c.Results, nil
}

// Classify extracts signals and classifies them against the current table.
func (e *Engine) Classify(attrs *model.Attributes) (*Classification, error) {
	return e.classify(attrs, e.weights.Load())
}

func (e *Engine) classify(attrs *model.Attributes, table *weights.Table) (*Classification, error) {
	start := time.Now()
	out, err := e.extractor.Extract(attrs)
	if err != nil {
		e.metrics.ObserveOperation(metrics.OpClassify, time.Since(start), err)
		return nil, eris.Wrap(err, "engine: extract signals")
	}

	results := e.classifier.Classify(out.IDs(), table)
	e.metrics.ObserveOperation(metrics.OpClassify, time.Since(start), nil)
	if len(results) > 0 {
		e.metrics.IncrementPrimaryPersona(results[0].PersonaID)
	}

	signals := out.Signals
	if signals == nil {
		signals = []model.ExtractedSignal{}
	}
	return &Classification{
		Signals:        signals,
		Contradicts:    out.Contradicts,
		Results:        results,
		WeightsID:      table.ID(),
		WeightsVersion: table.Version(),
	}, nil
}

// ClassifyBatch classifies subjects concurrently against a single table
// snapshot. A failing subject is reported in its result and does not stop
// the batch. Cancelling ctx stops scheduling further subjects; results for
// unscheduled subjects carry the context error.
func (e *Engine) ClassifyBatch(ctx context.Context, subjects []Subject) ([]BatchResult, error) {
	start := time.Now()
	table := e.weights.Load()
	results := make([]BatchResult, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, s := range subjects {
		results[i].SubjectID = s.ID
		if gctx.Err() != nil {
			results[i].Err = gctx.Err()
			results[i].Error = gctx.Err().Error()
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			c, err := e.classify(s.Attributes, table)
			if err != nil {
				zap.L().Debug("engine: batch subject failed", zap.String("subject", s.ID), zap.Error(err))
				results[i].Err = err
				results[i].Error = err.Error()
				return nil
			}
			results[i].Classification = c
			return nil
		})
	}

	_ = g.Wait()
	err := ctx.Err()
	e.metrics.ObserveOperation(metrics.OpClassifyBatch, time.Since(start), err)
	if err != nil {
		return results, eris.Wrap(err, "engine: classify batch")
	}

	zap.L().Info("engine: batch classified",
		zap.Int("subjects", len(subjects)),
		zap.String("weights_version", table.Version()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

// ReloadWeights publishes a new weight table. In-flight classifications keep
// the table they started with.
func (e *Engine) ReloadWeights(t *weights.Table) error {
	if t == nil {
		return model.NewValidationError("weights", "must not be nil")
	}
	if cv := t.Meta().CatalogVersion; cv != "" && cv != e.extractor.Catalog().Version() {
		zap.L().Warn("engine: weight table built from a different catalog",
			zap.String("table_catalog", cv),
			zap.String("catalog", e.extractor.Catalog().Version()),
		)
	}
	old := e.weights.Swap(t)
	e.metrics.SetWeights(t.ID(), t.Version())
	zap.L().Info("engine: weights reloaded",
		zap.String("id", t.ID()),
		zap.String("version", t.Version()),
		zap.String("previous", old.Version()),
	)
	return nil
}

// Weights returns the current weight table.
func (e *Engine) Weights() *weights.Table { return e.weights.Load() }

// Catalog returns the signal catalog.
func (e *Engine) Catalog() *signal.Catalog { return e.extractor.Catalog() }
