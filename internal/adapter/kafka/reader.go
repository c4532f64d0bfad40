package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/harborfresh/order-forecast/internal/config"
	"github.com/harborfresh/order-forecast/internal/domain"
)

// Reader consumes raw line records from the source topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaSourceTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits; offsets advance only after publish
	})
	return &Reader{reader: r, logger: logger}
}

// ExtractBatch blocks for the first message, then drains whatever else is
// immediately available up to batchSize. Returning early keeps the assembler
// fed without waiting for a full batch on quiet topics.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRecord, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	records := []domain.RawRecord{r.mapMessage(msg)}

	for len(records) < batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if ctx.Err() != nil {
				// Deliver what we have; the cancelled context stops the next cycle.
				break
			}
			return records, err
		}
		records = append(records, r.mapMessage(msg))
	}
	return records, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage converts a Kafka message into a domain RawRecord, carrying a
// commit callback bound to this reader's consumer group.
func (r *Reader) mapMessage(msg kafkago.Message) domain.RawRecord {
	return domain.RawRecord{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		},
	}
}
