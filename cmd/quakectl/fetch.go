package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/adapter/ingv"
	kafkaadapter "github.com/couchcryptid/quake-map-etl/internal/adapter/kafka"
	"github.com/couchcryptid/quake-map-etl/internal/config"
	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
)

// FetchCommand queries the INGV event service for recent events. Feed and
// Kafka settings come from the same environment as the service.
type FetchCommand struct {
	MinMag  float64       `short:"m" long:"min-mag" description:"Minimum magnitude" default:"2"`
	Since   time.Duration `short:"s" long:"since" description:"How far back to query" default:"24h"`
	Limit   int           `short:"l" long:"limit" description:"Maximum number of events" default:"200"`
	BBox    string        `short:"b" long:"bbox" description:"Bounding box as minLat,minLng,maxLat,maxLng"`
	Raw     bool          `long:"raw" description:"Print the raw FeatureCollection instead of the classification"`
	Publish bool          `short:"p" long:"publish" description:"Publish the fetched features to KAFKA_SOURCE_TOPIC instead of printing"`
	Output  string        `short:"o" long:"output" description:"Output file path. Writes to stdout if empty"`
	Format  string        `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
}

func (c *FetchCommand) Execute(_ []string) error {
	if c.Since <= 0 {
		return errors.New("--since must be positive")
	}
	bounds, err := parseBBox(c.BBox)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger()
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now()
	client := ingv.NewClient(cfg.INGVBaseURL, cfg.INGVTimeout, metrics, logger)
	features, err := client.Query(ctx, ingv.Query{
		Start:  end.Add(-c.Since),
		End:    end,
		MinMag: c.MinMag,
		Limit:  c.Limit,
		Bounds: bounds,
	})
	if err != nil {
		return err
	}
	logger.Info("fetched", "features", len(features))

	if c.Publish {
		publisher := kafkaadapter.NewFeaturePublisher(cfg, logger)
		defer func() { _ = publisher.Close() }()
		if err := publisher.Publish(ctx, features); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "published %d features to %s\n", len(features), cfg.KafkaSourceTopic)
		return nil
	}

	if c.Raw {
		return writeOutput(c.Output, domain.FeatureCollection{Type: "FeatureCollection", Features: features}, c.Format)
	}
	return writeOutput(c.Output, domain.Classify(features), c.Format)
}

// parseBBox parses "minLat,minLng,maxLat,maxLng". An empty string means no
// bounding box.
func parseBBox(s string) (*domain.BoundingBox, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid --bbox %q: want minLat,minLng,maxLat,maxLng", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := &domain.BoundingBox{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return nil, fmt.Errorf("invalid --bbox %q: min must not exceed max", s)
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLng < -180 || b.MaxLng > 180 {
		return nil, fmt.Errorf("invalid --bbox %q: out of range", s)
	}
	return b, nil
}
