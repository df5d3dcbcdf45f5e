package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var repoURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/?#]+)`)

// ParseRepoURL extracts owner and repository name from a GitHub URL.
func ParseRepoURL(raw string) (owner, name string, err error) {
	m := repoURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceFormat, raw)
	}
	owner, name = m[1], strings.TrimSuffix(m[2], ".git")
	if owner == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceFormat, raw)
	}
	return owner, name, nil
}

// FetcherConfig controls where snapshots come from.
type FetcherConfig struct {
	BaseURL  string // https://github.com
	Branch   string // main
	MaxBytes int64
	Timeout  time.Duration
}

// Fetcher downloads repository snapshot archives.
type Fetcher struct {
	client *http.Client
	cfg    FetcherConfig
	logger *slog.Logger
}

func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://github.com"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
}

// SnapshotURL is the archive location for the configured branch.
func (f *Fetcher) SnapshotURL(owner, name string) string {
	return fmt.Sprintf("%s/%s/%s/archive/refs/heads/%s.zip",
		strings.TrimSuffix(f.cfg.BaseURL, "/"), owner, name, f.cfg.Branch)
}

// Fetch downloads the snapshot. Any transport error, non-2xx status or oversized body is
// reported as ErrSourceFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, owner, name string) ([]byte, error) {
	target := f.SnapshotURL(owner, name)
	start := time.Now()
	data, err := f.get(ctx, target, f.cfg.MaxBytes)
	if err != nil {
		return nil, err
	}
	f.logger.Info("repository snapshot fetched",
		slog.String("url", target),
		slog.Int("bytes", len(data)),
		slog.Duration("latency", time.Since(start)),
	)
	return data, nil
}

// FetchPage downloads a single page over the same client, bounded by limit bytes.
// Only http and https URLs are accepted.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceFormat, rawURL)
	}
	data, err := f.get(ctx, u.String(), limit)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("page fetched", slog.String("url", u.String()), slog.Int("bytes", len(data)))
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceFetchFailed, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrSourceFetchFailed, target, resp.StatusCode)
	}

	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := ReadUpload(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceFetchFailed, err)
	}
	return data, nil
}
