// siteopt optimizes a website archive from the command line.
//
//	siteopt --in site.zip --out optimized-website.zip --report report.json
//	siteopt --repo https://github.com/acme/site --aggressive
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mtiwari1/siteopt/internal/archive"
	"github.com/mtiwari1/siteopt/internal/artifact"
	"github.com/mtiwari1/siteopt/internal/cache"
	"github.com/mtiwari1/siteopt/internal/config"
	"github.com/mtiwari1/siteopt/internal/ingest"
	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/pipeline"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/transformer"
	"github.com/mtiwari1/siteopt/internal/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "siteopt:", err)
		os.Exit(1)
	}
}

type options struct {
	in         string
	repo       string
	out        string
	reportPath string
	aggressive bool
	noSEO      bool
	noA11y     bool
	workers    int
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("siteopt", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.in, "in", "i", "", "Website zip archive to optimize")
	fs.StringVar(&o.repo, "repo", "", "GitHub repository URL to fetch instead of --in")
	fs.StringVarP(&o.out, "out", "o", artifact.ArchiveName, "Where to write the optimized archive")
	fs.StringVarP(&o.reportPath, "report", "r", "", "Write the JSON report here (\"-\" for stdout)")
	fs.BoolVarP(&o.aggressive, "aggressive", "a", false, "Let the model rewrite markup, styles and scripts")
	fs.BoolVar(&o.noSEO, "no-seo", false, "Disable the SEO focus of analyses and the SEO sweep")
	fs.BoolVar(&o.noA11y, "no-a11y", false, "Disable the accessibility focus of analyses")
	fs.IntVarP(&o.workers, "workers", "w", 0, "Concurrent file tasks (default WORKERS or CPU count)")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "Log every file task")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: siteopt (--in site.zip | --repo URL) [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch {
	case o.in == "" && o.repo == "":
		fs.Usage()
		return o, errors.New("one of --in or --repo is required")
	case o.in != "" && o.repo != "":
		return o, errors.New("--in and --repo are mutually exclusive")
	case o.workers < 0:
		return o, errors.New("--workers must not be negative")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	base, err := transformer.New(ctx, transformer.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.TransformerTimeout,
	}, logger)
	if err != nil {
		return err
	}
	c, err := cache.New(cfg.CacheEntries, cfg.CacheTTL, nil, logger)
	if err != nil {
		return err
	}
	svc := transformer.NewCached(base, c, nil)

	pipe := pipeline.New(optimizer.NewDispatcher(svc, optimizer.NewMinifier(), logger), svc, pipeline.Config{
		Workers: cfg.Workers,
		Limits:  archive.Limits{MaxBytes: cfg.MaxExtractBytes},
		TempDir: os.TempDir(),
	}, logger, nil)

	src, err := source(o, cfg, logger)
	if err != nil {
		return err
	}

	opts := report.Options{
		Aggressive:         o.aggressive,
		SEOFocus:           !o.noSEO,
		AccessibilityFocus: !o.noA11y,
	}
	res, err := pipe.Process(ctx, src, opts)
	if err != nil {
		return err
	}

	if err := workspace.WriteFile(o.out, res.Archive); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	if err := writeReport(o.reportPath, res.Report, stdout); err != nil {
		return err
	}

	s := res.Report.Stats
	fmt.Fprintf(stdout, "%s: %d files, %d optimized, %d -> %d bytes\n",
		o.out, s.TotalFiles, s.OptimizedFiles, s.TotalSizeBefore, s.TotalSizeAfter)
	return nil
}

func source(o options, cfg *config.Config, logger *slog.Logger) (ingest.Source, error) {
	if o.repo != "" {
		if _, _, err := ingest.ParseRepoURL(o.repo); err != nil {
			return nil, err
		}
		return ingest.Repository{
			URL: o.repo,
			Fetcher: ingest.NewFetcher(ingest.FetcherConfig{
				BaseURL:  cfg.SourceBaseURL,
				Branch:   cfg.SourceBranch,
				MaxBytes: cfg.MaxUploadBytes,
			}, logger),
		}, nil
	}

	f, err := os.Open(o.in)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := ingest.ReadUpload(f, cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	return ingest.Upload{Filename: o.in, Data: data}, nil
}

func writeReport(path string, rep *report.Report, stdout io.Writer) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if path == "-" {
		_, err = stdout.Write(append(data, '\n'))
		return err
	}
	if err := workspace.WriteFile(path, data); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
