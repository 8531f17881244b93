//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/adapter/kafka"
	"github.com/couchcryptid/quake-map-etl/internal/config"
	"github.com/couchcryptid/quake-map-etl/internal/domain"
	"github.com/couchcryptid/quake-map-etl/internal/observability"
	"github.com/couchcryptid/quake-map-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// publishedLayer holds a deserialized message read from the sink topic.
type publishedLayer struct {
	Layer   domain.Layer
	Key     string
	Headers map[string]string
}

// readLayer reads a single message from the sink consumer and deserializes it.
func readLayer(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedLayer {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var layer domain.Layer
	require.NoError(t, json.Unmarshal(msg.Value, &layer), "unmarshal sink message")

	return publishedLayer{
		Layer:   layer,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: the feature publisher,
// kafka.Reader (extractor), and kafka.Writer (loader) round-trip through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-reader")

	// Publish the first fixture feature (Campi Flegrei, M4.4) to the source topic.
	features := loadMockData(t)
	publisher := kafka.NewFeaturePublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })
	require.NoError(t, publisher.Publish(ctx, features[:1]))

	// Extract via kafka.Reader.
	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("38451861"), raw.Key)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")

	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(discardLogger())
	feature, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	// Load via kafka.Writer.
	layer := domain.NewLayer("", domain.Classify([]domain.Feature{feature}))
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.LoadLayer(ctx, layer))

	// Read from the sink topic and verify headers + value.
	pl := readLayer(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, testSinkTopic, pl.Key)
	assert.Equal(t, string(layer.ID), pl.Headers["layer_id"])
	assert.Empty(t, pl.Headers["replaces"])
	assert.Equal(t, "1", pl.Headers["point_count"])
	_, err = time.Parse(time.RFC3339, pl.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	require.Len(t, pl.Layer.Points, 1)
	pt := pl.Layer.Points[0]
	assert.Equal(t, domain.TierModerate, pt.ColorToken)
	assert.InDelta(t, 40.8293, pt.Lat, 1e-9)
	assert.InDelta(t, 14.1473, pt.Lng, 1e-9)
	assert.Equal(t, "Campi Flegrei", pt.SourceProperties["place"])
}

// TestPipelineEndToEnd wires the full pipeline (Reader → Transformer → Writer)
// with real Kafka and verifies the layers built from the recorded feed.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-pipeline")

	features := loadMockData(t)
	publisher := kafka.NewFeaturePublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })
	require.NoError(t, publisher.Publish(ctx, features))

	// Wire up the pipeline.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	transformer := pipeline.NewTransformer(discardLogger())

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, 500)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	// The consumer may see the feed across several batches; each layer covers
	// the whole window so far, so read until every feature is accounted for.
	consumer := sinkConsumer(t, broker)
	var received []publishedLayer
	for {
		pl := readLayer(ctx, t, consumer)
		received = append(received, pl)
		if len(pl.Layer.Points)+pl.Layer.Dropped == len(features) {
			break
		}
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	// Layers chain through the replaces header.
	assert.Empty(t, received[0].Headers["replaces"])
	for i := 1; i < len(received); i++ {
		assert.Equal(t, string(received[i-1].Layer.ID), received[i].Headers["replaces"])
	}

	final := received[len(received)-1]
	assert.Equal(t, strconv.Itoa(len(final.Layer.Points)), final.Headers["point_count"])

	layer := final.Layer
	assert.Len(t, layer.Points, 9)
	assert.Equal(t, 3, layer.Dropped)
	require.NotNil(t, layer.Bounds)
	assert.Equal(t, domain.BoundingBox{MinLat: 38.21, MinLng: 11.12, MaxLat: 44.2, MaxLng: 20.3}, *layer.Bounds)

	tiers := map[domain.Tier]int{}
	for _, pt := range layer.Points {
		tiers[pt.ColorToken]++
	}
	assert.Equal(t, 2, tiers[domain.TierMinimal], "minimal count")
	assert.Equal(t, 3, tiers[domain.TierLow], "low count")
	assert.Equal(t, 2, tiers[domain.TierModerate], "moderate count")
	assert.Equal(t, 1, tiers[domain.TierHigh], "high count")
	assert.Equal(t, 1, tiers[domain.TierSevere], "severe count")

	assert.True(t, p.Ready())
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid messages.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-poison")

	features := loadMockData(t)
	validPayload, err := json.Marshal(features[4]) // M6.1 Albania coast
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: validPayload},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	transformer := pipeline.NewTransformer(discardLogger())

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, 500)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	// Only one layer, holding the valid feature, should appear on the sink topic.
	consumer := sinkConsumer(t, broker)
	pl := readLayer(ctx, t, consumer)
	require.Len(t, pl.Layer.Points, 1)
	assert.Equal(t, domain.TierSevere, pl.Layer.Points[0].ColorToken)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second layer on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
