//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkaadapter "github.com/harborfresh/order-forecast/internal/adapter/kafka"
	"github.com/harborfresh/order-forecast/internal/config"
	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/observability"
	"github.com/harborfresh/order-forecast/internal/pipeline"
)

// brokerFromEnv skips the test unless KAFKA_BROKERS points at a reachable
// broker, e.g. the compose stack used for local smoke testing.
func brokerFromEnv(t *testing.T) []string {
	t.Helper()
	v := os.Getenv("KAFKA_BROKERS")
	if v == "" {
		t.Skip("KAFKA_BROKERS not set; skipping broker round-trip test")
	}
	return strings.Split(v, ",")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func inputValue(t *testing.T, storeNo, itemNo int) []byte {
	t.Helper()
	f := func(v float64) *float64 { return &v }
	payload, err := json.Marshal(domain.InputRecord{
		StoreNo:      storeNo,
		ItemNo:       itemNo,
		RegionCode:   "BA",
		DateForecast: "2026-03-02",
		CasePackSize: 6,
		W1Shipped:    f(50), W1Sold: f(50),
		W2Shipped: f(40), W2Sold: f(40),
		W3Shipped: f(45), W3Sold: f(45),
		W4Shipped: f(42), W4Sold: f(42),
	})
	require.NoError(t, err)
	return payload
}

// TestKafkaRoundTrip publishes input lines to the source topic, runs the
// full service against a real broker, and asserts the flattened records
// appear on the sink topic with a closed waterfall.
func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	brokers := brokerFromEnv(t)
	suffix := time.Now().UnixNano()
	sourceTopic := fmt.Sprintf("test-forecast-source-%d", suffix)
	sinkTopic := fmt.Sprintf("test-forecast-sink-%d", suffix)
	createTopic(t, brokers[0], sourceTopic)
	createTopic(t, brokers[0], sinkTopic)

	cfg := &config.Config{
		KafkaBrokers:       brokers,
		KafkaSourceTopic:   sourceTopic,
		KafkaSinkTopic:     sinkTopic,
		KafkaGroupID:       fmt.Sprintf("test-forecast-%d", suffix),
		BatchSize:          50,
		BatchFlushInterval: 500 * time.Millisecond,
	}

	producer := &kafkago.Writer{Addr: kafkago.TCP(brokers...), Topic: sourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("431:1713314"), Value: inputValue(t, 431, 1713314)},
		kafkago.Message{Key: []byte("431:1713315"), Value: inputValue(t, 431, 1713315)},
	))

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	reader := kafkaadapter.NewReader(cfg, logger)
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafkaadapter.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	engine := pipeline.NewEngine(nil, logger, metrics)
	runner := pipeline.NewRunner(engine, []domain.ScenarioParameters{domain.DefaultScenario()}, 2, logger)
	assembler := pipeline.NewAssembler(clockwork.NewRealClock(), cfg.BatchFlushInterval)
	svc := pipeline.NewService(reader, assembler, runner, []pipeline.RecordSink{writer}, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval)

	runCtx, stopSvc := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(runCtx)
	}()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   sinkTopic,
		GroupID: fmt.Sprintf("test-forecast-consumer-%d", suffix),
	})
	t.Cleanup(func() { _ = consumer.Close() })

	records := make(map[int]domain.OutputRecord, 2)
	for len(records) < 2 {
		readCtx, cancelRead := context.WithTimeout(ctx, 45*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		cancelRead()
		require.NoError(t, err, "read from sink topic")

		var rec domain.OutputRecord
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		records[rec.ItemNo] = rec
	}

	stopSvc()
	<-done

	for itemNo, rec := range records {
		assert.Equal(t, 431, rec.StoreNo)
		assert.Equal(t, itemNo, rec.ItemNo)
		assert.Equal(t, "default", rec.Scenario)
		assert.Equal(t, 50.0, rec.BaselineQty)
		assert.Equal(t, 54.0, rec.FinalQuantity)
		assert.Equal(t, "lw_sales", rec.BaselineSource)
		assert.False(t, rec.ProcessedAt.IsZero())

		sum := rec.BaselineQty + rec.DeclineAdjQty + rec.HighShrinkAdjQty +
			rec.PromoAdjQty + rec.RegionalAdjQty + rec.AdhocIncreaseQty + rec.AdhocDecreaseQty +
			rec.BaseCoverQty + rec.RoundingNetQty + rec.SafetyStockQty + rec.CoverGuardrailQty +
			rec.StoreLevelGrowthQty + rec.StoreLevelDeclineQty + rec.WeatherAdjustmentQty + rec.InactiveStoreQty
		assert.InDelta(t, rec.FinalQuantity, sum, 1e-6)
	}
}
