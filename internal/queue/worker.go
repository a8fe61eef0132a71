package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HandlerFunc executes one job. A nil return marks the job succeeded;
// an error schedules a retry or buries the job.
type HandlerFunc func(ctx context.Context, job *Job) error

// Worker polls the queue, runs registered handlers on a bounded pool,
// and keeps leases alive while handlers run.
type Worker struct {
	queue       *Queue
	id          string
	concurrency int
	handlers    map[string]HandlerFunc
	onFinish    func(ctx context.Context, job *Job, runErr error)
	logger      *slog.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewWorker(q *Queue, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Worker{
		queue:       q,
		id:          "worker_" + uuid.NewString()[:8],
		concurrency: concurrency,
		handlers:    make(map[string]HandlerFunc),
		logger:      logger.With("component", "queue_worker"),
		stopCh:      make(chan struct{}),
	}
}

// Register binds a handler to a job function name. Registration
// happens before Run and is not synchronized.
func (w *Worker) Register(function string, h HandlerFunc) {
	w.handlers[function] = h
}

// OnFinish installs a hook called after every job attempt, with the
// post-attempt job record and the handler error, if any.
func (w *Worker) OnFinish(fn func(ctx context.Context, job *Job, runErr error)) {
	w.onFinish = fn
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	reaper := time.NewTicker(w.queue.cfg.Lease)
	defer reaper.Stop()

	sem := make(chan struct{}, w.concurrency)

	w.logger.Info("queue worker started", "worker_id", w.id, "concurrency", w.concurrency)

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-w.stopCh:
			w.drain()
			return
		case <-reaper.C:
			if err := w.queue.requeueExpired(ctx); err != nil {
				w.logger.Error("failed to reclaim expired leases", "error", err)
			}
		case <-ticker.C:
			free := w.concurrency - len(sem)
			if free <= 0 {
				continue
			}
			jobs, err := w.queue.claimDue(ctx, w.id, free)
			if err != nil {
				w.logger.Error("failed to claim jobs", "error", err)
				continue
			}
			for _, job := range jobs {
				sem <- struct{}{}
				w.wg.Add(1)
				go func(job *Job) {
					defer func() {
						<-sem
						w.wg.Done()
					}()
					w.runJob(ctx, job)
				}(job)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) drain() {
	w.wg.Wait()
	w.logger.Info("queue worker stopped", "worker_id", w.id)
}

func (w *Worker) runJob(ctx context.Context, job *Job) {
	handler, ok := w.handlers[job.Function]
	if !ok {
		w.finish(ctx, job, fmt.Errorf("no handler registered for %q", job.Function))
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.heartbeat(runCtx, job.ID)

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return handler(runCtx, job)
	}()

	if err != nil {
		w.logger.Error("job attempt failed",
			"job_id", job.ID,
			"function", job.Function,
			"attempt", job.Attempt+1,
			"duration", time.Since(start),
			"error", err,
		)
	} else {
		w.logger.Info("job succeeded",
			"job_id", job.ID,
			"function", job.Function,
			"duration", time.Since(start),
		)
	}
	w.finish(ctx, job, err)
}

func (w *Worker) finish(ctx context.Context, job *Job, runErr error) {
	if runErr == nil {
		job.Status = StatusSucceeded
		if err := w.queue.markSucceeded(ctx, job); err != nil {
			w.logger.Error("failed to finish job", "job_id", job.ID, "error", err)
		}
	} else {
		var err error
		job, err = w.queue.markFailed(ctx, job, runErr)
		if err != nil {
			w.logger.Error("failed to record job failure", "job_id", job.ID, "error", err)
		}
	}

	if w.onFinish != nil {
		w.onFinish(ctx, job, runErr)
	}
}

// heartbeat extends the job lease at a third of its TTL until the
// handler returns.
func (w *Worker) heartbeat(ctx context.Context, jobID string) {
	interval := w.queue.cfg.Lease / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.extendLease(ctx, jobID); err != nil {
				w.logger.Warn("lease heartbeat failed", "job_id", jobID, "error", err)
				return
			}
		}
	}
}
