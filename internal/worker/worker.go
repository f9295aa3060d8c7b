package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cuongbtq/image-tasks/internal/domain"
	"github.com/cuongbtq/image-tasks/internal/imageproc"
)

// Store is the consumer side of the task store.
type Store interface {
	Claim(ctx context.Context, taskID int64) (*domain.Task, error)
	Finish(ctx context.Context, taskID int64, status domain.TaskStatus, processedFileID int64) (*domain.Task, error)
}

// Files is the remote file service.
type Files interface {
	Lookup(ctx context.Context, fileID int64) (*domain.FileInfo, error)
	Download(ctx context.Context, fileID int64) ([]byte, error)
	Upload(ctx context.Context, name string, content io.Reader) (int64, error)
}

// Cache receives task rows after every status change and drops rows the
// worker could not confirm.
type Cache interface {
	Set(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, taskID int64) error
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Store       Store
	Files       Files
	Transform   imageproc.Transformer
	Consume     ConsumeFunc
	Cache       Cache
	WorkerID    string
	Concurrency int
	ScratchDir  string
}

// Worker consumes dispatch messages and drives each referenced task from
// claim to a terminal status.
type Worker struct {
	logger      *slog.Logger
	store       Store
	files       Files
	transform   imageproc.Transformer
	consume     ConsumeFunc
	cache       Cache
	workerID    string
	concurrency int
	scratchDir  string
	wg          sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	transform := cfg.Transform
	if transform == nil {
		transform = imageproc.Transform
	}
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker"
	}

	return &Worker{
		logger:      cfg.Logger,
		store:       cfg.Store,
		files:       cfg.Files,
		transform:   transform,
		consume:     cfg.Consume,
		cache:       cfg.Cache,
		workerID:    workerID,
		concurrency: concurrency,
		scratchDir:  cfg.ScratchDir,
	}
}

// Start spawns the consumer pool and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
	)

	w.spawnWorkerPool(ctx)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop waits for in-flight messages to finish. Cancel the context passed to
// Start first.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
