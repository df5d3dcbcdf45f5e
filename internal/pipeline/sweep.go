package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/hasher"
	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/transformer"
	"github.com/mtiwari1/siteopt/internal/workspace"
)

const defaultLang = "en"

// sweep is the markup-only pass that runs after every per-file task has finished.
// It analyzes each page as it now sits on disk, adds missing charset and description
// tags, and writes the page back. Failures are per page and never abort the run.
func (p *Pipeline) sweep(ctx context.Context, root string, rep *report.Report, logger *slog.Logger) error {
	opts := rep.Stats.Options
	focus := opts.Focus()
	lang := ""
	if opts.AccessibilityFocus {
		lang = defaultLang
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if !d.Type().IsRegular() || filetype.Classify(filetype.Of(path)) != filetype.Markup {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if err := p.sweepPage(ctx, path, rel, lang, focus, rep); err != nil {
			logger.Warn("seo sweep failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (p *Pipeline) sweepPage(ctx context.Context, path, rel, lang string, focus []transformer.Focus, rep *report.Report) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	content := string(b)

	analysis := p.svc.Analyze(ctx, content, "html", focus...)
	rep.RecordSEO(rel, analysis.Analysis)

	out, fix, err := optimizer.EnsureSEOTags(content, rel, lang)
	if err != nil {
		return err
	}
	if !fix.Changed() {
		return nil
	}
	if out, err = p.dispatcher.Minifier().HTML(out); err != nil {
		return err
	}
	if err := workspace.WriteFile(path, []byte(out)); err != nil {
		return err
	}
	hash, size, err := hasher.File(path)
	if err != nil {
		return err
	}
	return rep.ApplySweep(rel, size, hash, analysis.Analysis)
}
