package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/config"
	"github.com/couchcryptid/quake-map-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces marker layers to the sink topic.
// It implements pipeline.LayerLoader.
type Writer struct {
	writer    *kafkago.Writer
	streamKey string
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic. Every
// layer is keyed by the topic name so the whole replaces chain lands on one
// partition and is consumed in publish order.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, streamKey: cfg.KafkaSinkTopic, logger: logger}
}

// LoadLayer serializes and publishes a whole layer as a single message.
// Consumers drop the layer named in the replaces header once this one is drawn.
func (w *Writer) LoadLayer(ctx context.Context, layer domain.Layer) error {
	msg, err := serializeToMessage(layer, w.streamKey)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write layer %s: %w", layer.ID, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Layer into a Kafka message keyed by streamKey.
// The layer's own ID travels in the layer_id header.
func serializeToMessage(layer domain.Layer, streamKey string) (kafkago.Message, error) {
	data, err := json.Marshal(layer)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize layer: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(streamKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "layer_id", Value: []byte(layer.ID)},
			{Key: "replaces", Value: []byte(layer.Replaces)},
			{Key: "point_count", Value: []byte(strconv.Itoa(len(layer.Points)))},
			{Key: "processed_at", Value: []byte(layer.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
