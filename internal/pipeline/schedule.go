package pipeline

import (
	"context"
	"log/slog"

	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/worker"
)

// schedule runs one task per inventoried record on a bounded pool and folds every
// terminal record back into the report by its path. Completion order is irrelevant.
func (p *Pipeline) schedule(ctx context.Context, root string, rep *report.Report, logger *slog.Logger) error {
	records := rep.Records()
	targets := optimizer.PlanTargets(records)
	opts := rep.Stats.Options

	process := func(ctx context.Context, t optimizer.Task) (report.FileRecord, error) {
		return p.dispatcher.Optimize(ctx, root, t)
	}
	pool := worker.NewPool(ctx, p.cfg.Workers, process, logger)
	pool.Start()

	go func() {
		defer pool.Shutdown()
		for _, rec := range records {
			task := optimizer.Task{Record: rec, Options: opts, Target: targets[rec.Path]}
			if !pool.Submit(worker.Job{Ctx: ctx, Task: task}) {
				return
			}
		}
	}()

	for res := range pool.Results() {
		if ctx.Err() != nil {
			// Drain so in-flight workers can finish; their output is dropped.
			continue
		}
		outcome := "passthrough"
		switch {
		case res.Err != nil:
			outcome = "failed"
		case res.Record.Optimized:
			outcome = "optimized"
		}
		p.metrics.ObserveFile(res.Record.Type, outcome, res.Latency)

		if res.Record.Path != res.Path {
			logger.Error("result does not match its task", slog.String("path", res.Path))
			continue
		}
		if err := rep.Apply(res.Record); err != nil {
			logger.Error("result rejected", slog.String("path", res.Path), slog.String("error", err.Error()))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if rep.Applied() != len(records) {
		return incomplete(rep.Applied(), len(records))
	}
	return nil
}
