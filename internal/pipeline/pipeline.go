// Package pipeline runs one optimization request end to end: inventory, the bounded
// per-file pass, the markup SEO sweep and packaging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtiwari1/siteopt/internal/archive"
	"github.com/mtiwari1/siteopt/internal/ingest"
	"github.com/mtiwari1/siteopt/internal/metrics"
	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/transformer"
	"github.com/mtiwari1/siteopt/internal/workspace"
)

// Config bounds the resources a single run may use.
type Config struct {
	Workers int
	Limits  archive.Limits
	TempDir string
}

// Result is what a successful run delivers.
type Result struct {
	Archive []byte
	Files   int
	Report  *report.Report
}

// Pipeline is shared by all requests. Per-request state lives in the workspace and report.
type Pipeline struct {
	dispatcher *optimizer.Dispatcher
	svc        transformer.Service
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New builds a pipeline around the process-wide transformer handle. m may be nil.
func New(d *optimizer.Dispatcher, svc transformer.Service, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{dispatcher: d, svc: svc, cfg: cfg, logger: logger, metrics: m}
}

// Process materializes src into a fresh workspace under the configured temp dir and runs
// it. The workspace is removed before Process returns, whatever the outcome.
func (p *Pipeline) Process(ctx context.Context, src ingest.Source, opts report.Options) (*Result, error) {
	ws, err := workspace.New(p.cfg.TempDir)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(slog.String("workspace", ws.ID), slog.String("source", src.Name()))
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Error("workspace cleanup failed", slog.String("error", err.Error()))
		}
	}()

	if err := src.Materialize(ctx, ws, p.cfg.Limits); err != nil {
		logger.Warn("ingestion failed", slog.String("error", err.Error()))
		p.metrics.ObserveRun("ingest_failed", 0, 0, 0)
		return nil, err
	}
	return p.run(ctx, ws, opts, logger)
}

// Run processes an already populated workspace and returns the packaged tree and report.
// On cancellation the partial work is dropped and the context error returned.
func (p *Pipeline) Run(ctx context.Context, ws *workspace.Workspace, opts report.Options) (*Result, error) {
	return p.run(ctx, ws, opts, p.logger.With(slog.String("workspace", ws.ID)))
}

func (p *Pipeline) run(ctx context.Context, ws *workspace.Workspace, opts report.Options, logger *slog.Logger) (*Result, error) {
	start := time.Now()
	root := ws.Extracted()
	rep := report.New(opts, start)

	res, err := p.stages(ctx, root, rep, logger)
	status := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "cancelled"
	case err != nil:
		status = "failed"
	}
	p.metrics.ObserveRun(status, time.Since(start), rep.Stats.TotalSizeBefore, rep.Stats.TotalSizeAfter)
	if err != nil {
		logger.Warn("run aborted", slog.String("status", status), slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("run completed",
		slog.Int("files", rep.Stats.TotalFiles),
		slog.Int("optimized", rep.Stats.OptimizedFiles),
		slog.Int64("size_before", rep.Stats.TotalSizeBefore),
		slog.Int64("size_after", rep.Stats.TotalSizeAfter),
		slog.Int("archive_entries", res.Files),
		slog.Duration("latency", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) stages(ctx context.Context, root string, rep *report.Report, logger *slog.Logger) (*Result, error) {
	if err := p.inventory(ctx, root, rep, logger); err != nil {
		return nil, err
	}
	if err := p.schedule(ctx, root, rep, logger); err != nil {
		return nil, err
	}
	if err := p.sweep(ctx, root, rep, logger); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, n, err := archive.Pack(root)
	if err != nil {
		return nil, err
	}
	rep.Finalize(time.Now())
	return &Result{Archive: data, Files: n, Report: rep}, nil
}

// errIncomplete is returned when the scheduler did not yield one result per record.
var errIncomplete = errors.New("pipeline: incomplete result set")

func incomplete(got, want int) error {
	return fmt.Errorf("%w: %d of %d", errIncomplete, got, want)
}
