package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool starts one consume loop per concurrency slot. Each loop
// has its own channel with prefetch 1, so a slot holds at most one task.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	if err := w.consume(ctx, workerName, w.HandleMessage); err != nil {
		w.logger.Error("Consume loop exited",
			slog.String("worker_name", workerName),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("Worker goroutine stopping - context canceled",
		slog.String("worker_name", workerName),
	)
}
