// Package worker implements a bounded worker pool for per-file optimization tasks.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/report"
)

// ProcessFunc turns one task into its terminal record.
type ProcessFunc func(ctx context.Context, task optimizer.Task) (report.FileRecord, error)

// Job represents one optimization task.
// Contains a context.Context for cancellation and deadline propagation.
type Job struct {
	Ctx  context.Context
	Task optimizer.Task
}

// Result is the terminal outcome of one job, keyed by the record's relative path.
// Record is always usable: on failure it is the pre-task record.
type Result struct {
	Path    string
	Record  report.FileRecord
	Err     error
	Latency time.Duration
}

// Pool manages a fixed set of worker goroutines that process Jobs from a channel
// and emit Results to another channel.
type Pool struct {
	workers int
	fn      ProcessFunc
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	logger  *slog.Logger
}

// NewPool creates a pool with the given number of workers; zero or less means one per CPU.
// Once ctx is done Submit refuses new jobs and idle workers exit.
// Call Start() to launch the goroutines.
func NewPool(ctx context.Context, workers int, fn ProcessFunc, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers: workers,
		fn:      fn,
		jobs:    make(chan Job, workers*2), // small buffer for backpressure
		results: make(chan Result, workers*2),
		ctx:     ctx,
		logger:  logger,
	}
}

// Workers is the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Start launches worker goroutines. Each reads from the jobs channel until it is
// closed or the context is cancelled.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a job. It blocks if the jobs channel buffer is full (backpressure).
// Returns false if the pool context is already cancelled.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Results returns the read-only results channel. The consumer must drain it until it
// is closed, otherwise workers block on send.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown closes the jobs channel, waits for all workers to finish,
// then closes the results channel. Safe to call once.
func (p *Pool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("worker exiting", slog.Int("worker_id", id))
				return
			}
			p.results <- p.process(id, job)

		case <-p.ctx.Done():
			p.logger.Debug("worker cancelled", slog.Int("worker_id", id))
			return
		}
	}
}

// process runs a single job. A job that fails or panics degrades to its pre-task record;
// the failure is logged here and carried in Result.Err, never propagated further.
func (p *Pool) process(workerID int, job Job) (res Result) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	path := job.Task.Record.Path
	res = Result{Path: path, Record: job.Task.Record}

	// Check if context is already cancelled before doing work.
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("job cancelled before processing: %w", err)
		return res
	}

	start := time.Now()
	defer func() {
		res.Latency = time.Since(start)
		if r := recover(); r != nil {
			p.logger.Error("processing panicked",
				slog.Int("worker_id", workerID),
				slog.String("path", path),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			rec := job.Task.Record
			rec.Optimized = false
			rec.Error = fmt.Sprint("panic: ", r)
			res = Result{Path: path, Record: rec, Err: fmt.Errorf("worker: panic: %v", r), Latency: time.Since(start)}
		}
	}()

	p.logger.Debug("processing started",
		slog.Int("worker_id", workerID),
		slog.String("path", path),
		slog.String("type", job.Task.Record.Type),
	)

	rec, err := p.fn(ctx, job.Task)
	latency := time.Since(start)
	if err != nil {
		p.logger.Error("processing failed",
			slog.Int("worker_id", workerID),
			slog.String("path", path),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		if rec.Path != path {
			rec = job.Task.Record
			rec.Optimized = false
			rec.Error = err.Error()
		}
		res.Record, res.Err = rec, err
		return res
	}

	attrs := []any{
		slog.Int("worker_id", workerID),
		slog.String("path", path),
		slog.Duration("latency", latency),
		slog.Bool("optimized", rec.Optimized),
	}
	if rec.Optimized && rec.OptimizedSize != nil {
		attrs = append(attrs,
			slog.String("current_path", rec.CurrentPath),
			slog.Int64("size_before", rec.Size),
			slog.Int64("size_after", *rec.OptimizedSize),
		)
	}
	p.logger.Info("processing completed", attrs...)

	res.Record = rec
	return res
}
