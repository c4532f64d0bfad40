package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/harborfresh/order-forecast/internal/config"
	"github.com/harborfresh/order-forecast/internal/domain"
)

// Writer publishes flattened order records to the sink topic.
// It implements pipeline.RecordSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// WriteRecords serializes and publishes the records in a single
// WriteMessages call. Keys are store-scoped so one store's orders land on
// one partition in date order.
func (w *Writer) WriteRecords(ctx context.Context, records []domain.OutputRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeRecord(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeRecord marshals an OutputRecord into a Kafka message.
func serializeRecord(rec domain.OutputRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize order record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%d:%d:%s", rec.StoreNo, rec.ItemNo, rec.DateForecast.Format("2006-01-02"))),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "scenario", Value: []byte(rec.Scenario)},
			{Key: "batch_id", Value: []byte(rec.BatchID.String())},
			{Key: "processed_at", Value: []byte(rec.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
