package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer decodes a raw event into a feature.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Feature, error)
}

// LayerLoader publishes a marker layer to the rendering surface.
type LayerLoader interface {
	LoadLayer(ctx context.Context, layer domain.Layer) error
}

// Pipeline orchestrates the extract-classify-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      LayerLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	latest      atomic.Pointer[domain.Layer]
	batchSize   int

	// Only touched by the Run goroutine.
	window    *featureWindow
	lastLayer domain.LayerHandle
}

// New creates a Pipeline with the given stages and observability. Each
// published layer covers at most windowSize of the most recent features.
func New(e BatchExtractor, t Transformer, l LayerLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize, windowSize int) *Pipeline {
	// Every tier series exists from startup, at zero.
	for _, tier := range domain.Tiers() {
		metrics.PointsClassified.WithLabelValues(string(tier))
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		window:      newFeatureWindow(windowSize),
	}
}

// CheckReadiness returns nil once the pipeline has published at least one layer,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any layer yet")
	}
	return nil
}

// Ready reports whether a layer has been published.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// LatestLayer returns the most recently published layer.
func (p *Pipeline) LatestLayer() (domain.Layer, bool) {
	l := p.latest.Load()
	if l == nil {
		return domain.Layer{}, false
	}
	return *l, true
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "window_size", p.window.size)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-classify-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	published, ok := p.classifyAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if published {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// classifyAndLoad decodes each message in the batch into the feature window,
// classifies the window, publishes the resulting layer, and commits offsets.
// A batch that leaves the layer content unchanged is committed without
// publishing. Returns whether a layer was published and false if the
// pipeline should stop.
func (p *Pipeline) classifyAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) (bool, bool) {
	decoded := make([]domain.RawEvent, 0, len(rawBatch))
	features := make([]domain.Feature, 0, len(rawBatch))

	for _, raw := range rawBatch {
		f, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("decode failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.DecodeErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		decoded = append(decoded, raw)
		features = append(features, f)
	}

	if len(features) == 0 {
		return false, true
	}

	// Build the candidate window without touching the live one, so a failed
	// load leaves the published state unchanged.
	candidate := newFeatureWindow(p.window.size)
	for _, f := range p.window.snapshot() {
		candidate.add(f)
	}
	for _, f := range features {
		candidate.add(f)
	}

	result := domain.Classify(candidate.snapshot())
	layer := domain.NewLayer(p.lastLayer, result)

	if layer.Unchanged() {
		p.window = candidate
		for _, raw := range decoded {
			p.commitOffset(ctx, raw)
		}
		p.logger.Debug("layer unchanged, skipping publish", "layer_id", layer.ID, "features", len(features))
		return false, true
	}

	if err := p.loader.LoadLayer(ctx, layer); err != nil {
		p.logger.Error("load layer failed", "error", err, "layer_id", layer.ID, "point_count", len(layer.Points))
		return false, p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	p.window = candidate
	p.lastLayer = layer.ID
	p.latest.Store(&layer)
	p.recordLayer(layer, countDropped(features))

	for _, raw := range decoded {
		p.commitOffset(ctx, raw)
	}

	p.logger.Debug("layer published",
		"layer_id", layer.ID,
		"replaces", layer.Replaces,
		"point_count", len(layer.Points),
		"dropped", layer.Dropped,
		"window", candidate.count(),
	)
	return true, true
}

// recordLayer updates classification metrics. Dropped features are counted
// once, for the batch that introduced them, not for every window they sit in.
func (p *Pipeline) recordLayer(layer domain.Layer, droppedInBatch int) {
	p.metrics.LayersPublished.Inc()
	p.metrics.FeaturesDropped.Add(float64(droppedInBatch))
	if layer.Bounds == nil {
		p.metrics.LayerEmptyBounds.Inc()
	}
	for _, pt := range layer.Points {
		p.metrics.PointsClassified.WithLabelValues(string(pt.ColorToken)).Inc()
	}
}

func countDropped(features []domain.Feature) int {
	n := 0
	for _, f := range features {
		if !domain.Locatable(f) {
			n++
		}
	}
	return n
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
