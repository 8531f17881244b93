package ingv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// FeatureSink accepts features fetched from the feed.
type FeatureSink interface {
	Publish(ctx context.Context, features []domain.Feature) error
}

// PollerConfig controls what each poll asks the feed for.
type PollerConfig struct {
	Interval time.Duration
	Lookback time.Duration
	MinMag   float64
	Limit    int
}

// Poller periodically queries a Source for recent events and forwards them to
// a sink. Re-fetched events are forwarded again; the pipeline window merges
// them by event ID.
type Poller struct {
	source Source
	sink   FeatureSink
	cfg    PollerConfig
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewPoller creates a poller. A nil clock uses the real clock.
func NewPoller(source Source, sink FeatureSink, cfg PollerConfig, clock clockwork.Clock, logger *slog.Logger) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{source: source, sink: sink, cfg: cfg, clock: clock, logger: logger}
}

// Run polls once immediately and then on every interval until the context is
// cancelled. Failed polls are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("ingv poller started", "interval", p.cfg.Interval, "lookback", p.cfg.Lookback, "min_mag", p.cfg.MinMag)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("ingv poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("ingv poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// Poll runs a single query and forwards the result. It returns the number of
// features forwarded.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	end := p.clock.Now()
	features, err := p.source.Query(ctx, Query{
		Start:  end.Add(-p.cfg.Lookback),
		End:    end,
		MinMag: p.cfg.MinMag,
		Limit:  p.cfg.Limit,
	})
	if err != nil {
		return 0, fmt.Errorf("query feed: %w", err)
	}
	if len(features) == 0 {
		return 0, nil
	}
	if err := p.sink.Publish(ctx, features); err != nil {
		return 0, fmt.Errorf("forward features: %w", err)
	}
	return len(features), nil
}
