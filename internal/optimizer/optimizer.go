// Package optimizer routes one inventoried file to the handler for its declared type
// and rewrites it in place inside the workspace.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/hasher"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/transformer"
	"github.com/mtiwari1/siteopt/internal/workspace"
)

// ErrTransformFailed marks a per-file failure. It is never fatal to a batch.
var ErrTransformFailed = errors.New("optimizer: transform failed")

// Task binds one record to the run options.
// Target is the planned workspace-relative output path for handlers that rename their
// file (see PlanTargets); it is empty for in-place handlers.
type Task struct {
	Record  report.FileRecord
	Options report.Options
	Target  string
}

// Dispatcher holds the shared, stateless collaborators used by every handler.
// It is safe for concurrent use.
type Dispatcher struct {
	svc    transformer.Service
	min    *Minifier
	logger *slog.Logger
}

func NewDispatcher(svc transformer.Service, min *Minifier, logger *slog.Logger) *Dispatcher {
	if min == nil {
		min = NewMinifier()
	}
	return &Dispatcher{svc: svc, min: min, logger: logger}
}

// Minifier exposes the markup/stylesheet/script minifiers shared with the SEO sweep.
func (d *Dispatcher) Minifier() *Minifier { return d.min }

// Optimize runs the handler for the task's declared type against the tree rooted at root.
// It always returns a terminal record: the optimized one on success, the unmodified
// pre-task record on pass-through, or the pre-task record with Error set and an error
// wrapping ErrTransformFailed when the handler failed.
func (d *Dispatcher) Optimize(ctx context.Context, root string, task Task) (report.FileRecord, error) {
	var (
		rec report.FileRecord
		err error
	)
	switch filetype.Classify(task.Record.Type) {
	case filetype.Markup:
		rec, err = d.markup(ctx, root, task)
	case filetype.Stylesheet:
		rec, err = d.stylesheet(ctx, root, task)
	case filetype.Script:
		rec, err = d.script(ctx, root, task)
	case filetype.Raster:
		rec, err = d.raster(root, task)
	default:
		return task.Record, nil
	}
	if err != nil {
		failed := task.Record
		failed.Optimized = false
		failed.Error = err.Error()
		return failed, fmt.Errorf("%w: %s: %w", ErrTransformFailed, task.Record.Path, err)
	}
	return rec, nil
}

func (d *Dispatcher) read(root, rel string) (string, string, error) {
	abs, err := workspace.Resolve(root, rel)
	if err != nil {
		return "", "", err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", rel, err)
	}
	return abs, string(b), nil
}

// rewrite asks the transformer for an aggressive rewrite, keeping the input when the
// provider degrades.
func (d *Dispatcher) rewrite(ctx context.Context, rel, text, kind string) string {
	res := d.svc.Optimize(ctx, text, kind)
	if !res.OK() {
		d.logger.Warn("transformer rewrite degraded",
			slog.String("path", rel),
			slog.String("kind", kind),
			slog.Any("error", res.Err),
		)
		return text
	}
	return res.Text
}

// commit writes content atomically at rel, removes source when it differs from rel,
// then measures the file on disk and analyzes the optimized text.
func (d *Dispatcher) commit(ctx context.Context, root string, task Task, rel, content string) (report.FileRecord, error) {
	abs, err := workspace.Resolve(root, rel)
	if err != nil {
		return report.FileRecord{}, err
	}
	if err := workspace.WriteFile(abs, []byte(content)); err != nil {
		return report.FileRecord{}, err
	}
	if err := d.dropSource(root, task.Record.Path, rel, abs); err != nil {
		return report.FileRecord{}, err
	}

	hash, size, err := hasher.File(abs)
	if err != nil {
		return report.FileRecord{}, err
	}
	analysis := d.svc.Analyze(ctx, content, filetype.Of(rel))
	if !analysis.OK() {
		d.logger.Warn("analysis of optimized file degraded",
			slog.String("path", rel),
			slog.Any("error", analysis.Err),
		)
	}

	rec := task.Record
	a := analysis.Analysis
	rec.MarkOptimized(rel, size, hash, &a)
	return rec, nil
}

// dropSource removes the original after a renaming handler has durably written its output.
// If removal fails the new artifact is discarded so the tree keeps exactly one copy.
func (d *Dispatcher) dropSource(root, source, target, targetAbs string) error {
	if source == target {
		return nil
	}
	srcAbs, err := workspace.Resolve(root, source)
	if err != nil {
		os.Remove(targetAbs)
		return err
	}
	if err := os.Remove(srcAbs); err != nil {
		os.Remove(targetAbs)
		return fmt.Errorf("remove %s: %w", source, err)
	}
	return nil
}

// targetFor returns the planned output path or the default extension swap.
func targetFor(task Task, ext string) string {
	if task.Target != "" {
		return task.Target
	}
	p := task.Record.Path
	return p[:len(p)-len(path.Ext(p))] + "." + ext
}
