package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jgivc/fetchbot/internal/common"
)

// Job runs on a pool worker.
type Job func(ctx context.Context)

type workerPool struct {
	workers int
	jobs    chan Job
	log     *slog.Logger
}

func NewWorkerPool(workers, queue int, log *slog.Logger) *workerPool {
	return &workerPool{
		workers: max(1, workers),
		jobs:    make(chan Job, max(0, queue)),
		log:     log.With(slog.String("item", "WorkerPool")),
	}
}

// Submit queues job without waiting. A full queue fails with ErrPoolBusy.
func (p *workerPool) Submit(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cannot submit job: %w", err)
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return common.ErrPoolBusy
	}
}

// Run starts the workers and blocks until ctx is done and every running job returned.
func (p *workerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(p.workers)
	for n := 0; n < p.workers; n++ {
		go p.worker(ctx, n, &wg)
	}

	wg.Wait()
}

func (p *workerPool) worker(ctx context.Context, n int, wg *sync.WaitGroup) {
	defer wg.Done()

	log := p.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("Interrupted")

			return
		case job := <-p.jobs:
			p.run(ctx, log, job)
		}
	}
}

func (p *workerPool) run(ctx context.Context, log *slog.Logger, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", slog.Any("panic", r))
		}
	}()

	job(ctx)
}
