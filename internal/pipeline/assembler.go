package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// batchKey identifies one pending (region, date) batch.
type batchKey struct {
	Region string
	Date   string // YYYY-MM-DD
}

// PendingBatch is an assembled group of lines ready for processing, together
// with the raw source records whose offsets are committed once the batch's
// output is durably written.
type PendingBatch struct {
	RegionCode   string
	DateForecast time.Time
	Lines        []*domain.ForecastLine
	Raws         []domain.RawRecord
}

// Assembler groups incoming line records into (region, date) batches. A
// batch is ripe once no new line has arrived for its key within the quiet
// interval; the upstream extract publishes a region's lines back to back, so
// quiet means the region is complete.
type Assembler struct {
	clock clockwork.Clock
	quiet time.Duration

	mu      sync.Mutex
	pending map[batchKey]*pendingState
}

type pendingState struct {
	date    time.Time
	lines   []*domain.ForecastLine
	raws    []domain.RawRecord
	lastAdd time.Time
}

// NewAssembler creates an Assembler flushing after the given quiet interval.
func NewAssembler(clock clockwork.Clock, quiet time.Duration) *Assembler {
	return &Assembler{
		clock:   clock,
		quiet:   quiet,
		pending: make(map[batchKey]*pendingState),
	}
}

// Add parses a raw record into a forecast line and files it under its
// (region, date) key. A malformed record is an error; its offset should
// still be committed so it is not reread forever.
func (a *Assembler) Add(raw domain.RawRecord) error {
	rec, err := domain.ParseRawRecord(raw)
	if err != nil {
		return err
	}
	line, err := domain.NewForecastLine(rec)
	if err != nil {
		return fmt.Errorf("record at %s/%d/%d: %w", raw.Topic, raw.Partition, raw.Offset, err)
	}

	key := batchKey{Region: line.RegionCode, Date: line.DateForecast.Format("2006-01-02")}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[key]
	if !ok {
		p = &pendingState{date: line.DateForecast}
		a.pending[key] = p
	}
	p.lines = append(p.lines, line)
	p.raws = append(p.raws, raw)
	p.lastAdd = a.clock.Now()
	return nil
}

// Ripe removes and returns every batch whose key has been quiet for at
// least the flush interval, oldest first.
func (a *Assembler) Ripe() []*PendingBatch {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	var ripe []*PendingBatch
	for key, p := range a.pending {
		if now.Sub(p.lastAdd) >= a.quiet {
			ripe = append(ripe, &PendingBatch{
				RegionCode:   key.Region,
				DateForecast: p.date,
				Lines:        p.lines,
				Raws:         p.raws,
			})
			delete(a.pending, key)
		}
	}
	sortPending(ripe)
	return ripe
}

// FlushAll removes and returns every pending batch regardless of quiet
// time, for shutdown draining.
func (a *Assembler) FlushAll() []*PendingBatch {
	a.mu.Lock()
	defer a.mu.Unlock()

	var all []*PendingBatch
	for key, p := range a.pending {
		all = append(all, &PendingBatch{
			RegionCode:   key.Region,
			DateForecast: p.date,
			Lines:        p.lines,
			Raws:         p.raws,
		})
		delete(a.pending, key)
	}
	sortPending(all)
	return all
}

// PendingCount reports the number of batches currently accumulating.
func (a *Assembler) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func sortPending(batches []*PendingBatch) {
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].DateForecast.Equal(batches[j].DateForecast) {
			return batches[i].DateForecast.Before(batches[j].DateForecast)
		}
		return batches[i].RegionCode < batches[j].RegionCode
	})
}
