package optimizer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bep/golibsass/libsass"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/report"
)

func (d *Dispatcher) stylesheet(ctx context.Context, root string, task Task) (report.FileRecord, error) {
	rec := task.Record
	if filetype.IsPreprocessed(rec.Type) && IsPartial(rec.Path) {
		return rec, nil
	}

	abs, src, err := d.read(root, rec.Path)
	if err != nil {
		return report.FileRecord{}, err
	}

	target := rec.Path
	if filetype.IsPreprocessed(rec.Type) {
		if src, err = CompileSass(src, rec.Type == "sass", filepath.Dir(abs)); err != nil {
			return report.FileRecord{}, err
		}
		target = targetFor(task, "css")
	}

	out, err := d.min.CSS(src)
	if err != nil {
		return report.FileRecord{}, err
	}
	if task.Options.Aggressive {
		out = d.rewrite(ctx, rec.Path, out, "CSS")
	}
	return d.commit(ctx, root, task, target, out)
}

// CompileSass compiles SCSS (or the indented .sass syntax) to compressed CSS.
// Imports resolve relative to includeDir.
func CompileSass(src string, indented bool, includeDir string) (string, error) {
	opts := libsass.Options{
		OutputStyle: libsass.CompressedStyle,
		SassSyntax:  indented,
	}
	if includeDir != "" {
		opts.IncludePaths = []string{includeDir}
	}
	t, err := libsass.New(opts)
	if err != nil {
		return "", fmt.Errorf("sass: %w", err)
	}
	res, err := t.Execute(src)
	if err != nil {
		return "", fmt.Errorf("sass compile: %w", err)
	}
	return res.CSS, nil
}
