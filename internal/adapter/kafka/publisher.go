package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/quake-map-etl/internal/config"
	"github.com/couchcryptid/quake-map-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// FeaturePublisher writes raw feed features into the source topic, one
// message per feature. It feeds the pipeline from an ad-hoc feed query.
type FeaturePublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewFeaturePublisher creates a producer for the configured source topic.
func NewFeaturePublisher(cfg *config.Config, logger *slog.Logger) *FeaturePublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSourceTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &FeaturePublisher{writer: w, logger: logger}
}

// Publish sends the features in a single WriteMessages call. Features with the
// same event ID land on the same partition, so revisions stay ordered.
func (p *FeaturePublisher) Publish(ctx context.Context, features []domain.Feature) error {
	if len(features) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(features))
	for i := range features {
		msg, err := featureToMessage(features[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish features: %w", err)
	}
	p.logger.Info("features published", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *FeaturePublisher) Close() error {
	return p.writer.Close()
}

func featureToMessage(f domain.Feature) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature: %w", err)
	}
	return kafkago.Message{
		Key:   featureKey(f),
		Value: data,
	}, nil
}

// featureKey returns the event ID as message key, or nil when the feature has
// none.
func featureKey(f domain.Feature) []byte {
	for _, k := range []string{"eventId", "eventid"} {
		switch v := f.Properties[k].(type) {
		case nil:
			continue
		case float64:
			return []byte(strconv.FormatFloat(v, 'f', -1, 64))
		case string:
			return []byte(v)
		default:
			return []byte(fmt.Sprint(v))
		}
	}
	return nil
}
