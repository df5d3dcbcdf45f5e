package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/hasher"
	"github.com/mtiwari1/siteopt/internal/report"
)

// inventory walks the extracted tree once and adds one record per regular file.
// Per-file failures leave the analysis absent; only cancellation or a walk error on
// the root itself stops the pass.
func (p *Pipeline) inventory(ctx context.Context, root string, rep *report.Report, logger *slog.Logger) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("pipeline: walk: %w", err)
			}
			logger.Warn("inventory skipped entry", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		rec := p.fingerprint(ctx, path, filepath.ToSlash(rel), d, logger)
		return rep.Add(rec)
	})
}

func (p *Pipeline) fingerprint(ctx context.Context, path, rel string, d fs.DirEntry, logger *slog.Logger) report.FileRecord {
	rec := report.FileRecord{Path: rel, Type: filetype.Of(rel), CurrentPath: rel}

	meta, err := hasher.ComputeMetadata(path)
	if err != nil {
		logger.Warn("fingerprint failed", slog.String("path", rel), slog.String("error", err.Error()))
		if info, ierr := d.Info(); ierr == nil {
			rec.Size = info.Size()
		}
		rec.Error = err.Error()
		return rec
	}
	rec.Hash, rec.Size, rec.Metadata = meta.Hash, meta.Size, meta.Extra

	if filetype.IsBinary(rec.Type) {
		return rec
	}
	b, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("inventory read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return rec
	}
	if !utf8.Valid(b) {
		logger.Debug("not utf-8, analysis skipped", slog.String("path", rel))
		return rec
	}

	res := p.svc.Analyze(ctx, string(b), rec.Type)
	if !res.OK() {
		logger.Warn("analysis degraded", slog.String("path", rel), slog.Any("error", res.Err))
	}
	a := res.Analysis
	rec.Analysis = &a
	return rec
}
