package pipeline

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a task with its outcome.
type BatchResult struct {
	Task   Task
	Result *Result
	Err    error
}

// RunBatch runs independent tasks concurrently, at most Pipeline.Workers at
// a time. A failing task does not stop the others. The returned error
// combines every task error.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []Task) ([]BatchResult, error) {
	results := make([]BatchResult, len(tasks))

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	g.SetLimit(o.cfg.Pipeline.Workers)
	for i, task := range tasks {
		g.Go(func() error {
			res, err := o.Run(ctx, task)
			results[i] = BatchResult{Task: task, Result: res, Err: err}
			if err != nil {
				o.log.Warn("task failed", zap.String("task", task.ID), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
