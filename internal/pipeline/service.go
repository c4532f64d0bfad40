package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harborfresh/order-forecast/internal/domain"
	"github.com/harborfresh/order-forecast/internal/observability"
)

// BatchExtractor reads up to batchSize raw line records from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRecord, error)
}

// RecordSink writes flattened order records to a destination.
type RecordSink interface {
	WriteRecords(ctx context.Context, records []domain.OutputRecord) error
}

// Exponential backoff for transient extract and publish failures.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Service drives the consume-assemble-process-publish loop until the
// context is cancelled.
type Service struct {
	extractor     BatchExtractor
	assembler     *Assembler
	runner        *Runner
	sinks         []RecordSink
	logger        *slog.Logger
	metrics       *observability.Metrics
	ready         atomic.Bool
	batchSize     int
	flushInterval time.Duration

	// Serializes publishing between the extract loop and the flush timer
	// so sink writes and offset commits stay ordered.
	publishMu sync.Mutex
}

// NewService wires the loop together. Sinks are written in order; all must
// succeed before source offsets are committed. flushInterval bounds how
// long a ripe batch may wait for the next extract to surface it.
func NewService(e BatchExtractor, a *Assembler, r *Runner, sinks []RecordSink, logger *slog.Logger, metrics *observability.Metrics, batchSize int, flushInterval time.Duration) *Service {
	return &Service{
		extractor:     e,
		assembler:     a,
		runner:        r,
		sinks:         sinks,
		logger:        logger,
		metrics:       metrics,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// CheckReadiness returns nil once the service has published at least one
// batch of records.
func (s *Service) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no forecast batch published yet")
	}
	return nil
}

// PendingBatches reports how many (region, date) batches are still
// assembling. Surfaced in the readiness payload.
func (s *Service) PendingBatches() int {
	return s.assembler.PendingCount()
}

// Run executes the loop until the context is cancelled, then drains any
// batches still assembling. A flush timer runs alongside extraction so a
// batch whose quiet interval has passed is published even while the fetch
// is blocked on an idle source topic.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("forecast service started", "batch_size", s.batchSize)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	flushCtx, stopFlusher := context.WithCancel(ctx)
	var flusher sync.WaitGroup
	flusher.Add(1)
	go func() {
		defer flusher.Done()
		s.flushLoop(flushCtx)
	}()
	stop := func() {
		stopFlusher()
		flusher.Wait()
		s.drain()
	}

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("forecast service stopping", "reason", ctx.Err())
			stop()
			return nil
		default:
		}

		if !s.cycle(ctx, &backoff) {
			stop()
			return nil
		}
	}
}

// flushLoop publishes ripe batches on a timer. The last message of a
// planning cycle ripens with no follow-up traffic, so publishing cannot
// wait for the next extract to return.
func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ripe := s.assembler.Ripe()
			if len(ripe) == 0 {
				continue
			}
			if !s.processAndPublish(ctx, ripe, &backoff) {
				return
			}
		}
	}
}

// cycle runs one extract-assemble-process round. Returns false if the
// service should stop.
func (s *Service) cycle(ctx context.Context, backoff *time.Duration) bool {
	raws, err := s.extractor.ExtractBatch(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("extract batch failed", "error", err)
		return s.backoffOrStop(ctx, backoff)
	}

	if len(raws) > 0 {
		s.metrics.RecordsConsumed.Add(float64(len(raws)))
		*backoff = initialBackoff
	}

	for _, raw := range raws {
		if err := s.assembler.Add(raw); err != nil {
			s.logger.Warn("malformed line record, skipping", "error", err)
			s.metrics.LinesRejected.Inc()
			s.commitRaw(ctx, raw)
		}
	}

	ripe := s.assembler.Ripe()
	if len(ripe) == 0 {
		return ctx.Err() == nil
	}
	return s.processAndPublish(ctx, ripe, backoff)
}

// processAndPublish runs the ripe batches through every scenario, writes
// the records to all sinks, and commits source offsets. Returns false if
// the service should stop.
func (s *Service) processAndPublish(ctx context.Context, ripe []*PendingBatch, backoff *time.Duration) bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	records := s.runner.Process(ctx, ripe)
	if len(records) > 0 {
		for _, sink := range s.sinks {
			if err := sink.WriteRecords(ctx, records); err != nil {
				s.logger.Error("write records failed", "error", err, "records", len(records))
				return s.backoffOrStop(ctx, backoff)
			}
		}
		s.metrics.RecordsProduced.Add(float64(len(records)))
		s.ready.Store(true)
	}

	for _, p := range ripe {
		for _, raw := range p.Raws {
			s.commitRaw(ctx, raw)
		}
	}
	return true
}

// drain processes whatever is still assembling so a shutdown does not
// strand partially collected regions. Uses a fresh short-lived context
// because the run context is already cancelled.
func (s *Service) drain() {
	leftover := s.assembler.FlushAll()
	if len(leftover) == 0 {
		return
	}
	s.logger.Info("draining pending batches", "batches", len(leftover))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records := s.runner.Process(ctx, leftover)
	if len(records) == 0 {
		return
	}
	for _, sink := range s.sinks {
		if err := sink.WriteRecords(ctx, records); err != nil {
			s.logger.Error("drain write failed", "error", err, "records", len(records))
			return
		}
	}
	s.metrics.RecordsProduced.Add(float64(len(records)))
	for _, p := range leftover {
		for _, raw := range p.Raws {
			s.commitRaw(ctx, raw)
		}
	}
}

func (s *Service) commitRaw(ctx context.Context, raw domain.RawRecord) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		s.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoffOrStop checks for cancellation, sleeps with the current backoff,
// and advances it. Returns false if the service should stop.
func (s *Service) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff)
	return true
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
