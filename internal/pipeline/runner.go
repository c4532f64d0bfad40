package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harborfresh/order-forecast/internal/domain"
)

// Runner fans (batch × scenario) tasks over a bounded worker pool. Each
// scenario gets its own clone of the lines, so scenarios never observe each
// other's ledgers.
type Runner struct {
	engine    *Engine
	scenarios []domain.ScenarioParameters
	workers   int
	logger    *slog.Logger
}

// NewRunner creates a Runner over the given scenarios.
func NewRunner(engine *Engine, scenarios []domain.ScenarioParameters, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		engine:    engine,
		scenarios: scenarios,
		workers:   workers,
		logger:    logger,
	}
}

type scenarioTask struct {
	pending  *PendingBatch
	scenario domain.ScenarioParameters
}

// Process runs every configured scenario against each pending batch and
// returns the flattened records of the scenarios that completed. A failed
// scenario is logged and dropped; one bad scenario must not starve the
// others of the same lines.
func (r *Runner) Process(ctx context.Context, pendings []*PendingBatch) []domain.OutputRecord {
	tasks := make(chan scenarioTask)
	var mu sync.Mutex
	var out []domain.OutputRecord

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				records, err := r.runScenario(ctx, task)
				if err != nil {
					r.logger.Error("scenario run failed",
						"error", err,
						"region", task.pending.RegionCode,
						"date", task.pending.DateForecast.Format("2006-01-02"),
						"scenario", task.scenario.Name,
					)
					continue
				}
				mu.Lock()
				out = append(out, records...)
				mu.Unlock()
			}
		}()
	}

	for _, p := range pendings {
		for _, s := range r.scenarios {
			select {
			case <-ctx.Done():
				close(tasks)
				wg.Wait()
				return out
			case tasks <- scenarioTask{pending: p, scenario: s}:
			}
		}
	}
	close(tasks)
	wg.Wait()
	return out
}

func (r *Runner) runScenario(ctx context.Context, task scenarioTask) ([]domain.OutputRecord, error) {
	lines := make([]*domain.ForecastLine, len(task.pending.Lines))
	for i, l := range task.pending.Lines {
		lines[i] = l.Clone()
	}

	batch, err := domain.NewForecastBatch(task.pending.RegionCode, task.pending.DateForecast, task.scenario, lines)
	if err != nil {
		return nil, err
	}
	if err := r.engine.ProcessBatch(ctx, batch); err != nil {
		return nil, err
	}
	return domain.FlattenBatch(batch)
}
