// Package ingest turns an upload or a remote repository snapshot into a populated workspace.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/mtiwari1/siteopt/internal/archive"
	"github.com/mtiwari1/siteopt/internal/workspace"
)

var (
	ErrPayloadTooLarge     = errors.New("ingest: payload too large")
	ErrInvalidSourceFormat = errors.New("ingest: invalid source format")
	ErrSourceFetchFailed   = errors.New("ingest: source fetch failed")
	ErrEmptyPayload        = errors.New("ingest: empty payload")
)

// ReadUpload reads the whole upload into memory, failing with ErrPayloadTooLarge as soon
// as more than limit bytes arrive. Nothing touches disk here.
func ReadUpload(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("ingest: read upload: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	}
	if n == 0 {
		return nil, ErrEmptyPayload
	}
	return buf.Bytes(), nil
}

// Source materializes an archive into a fresh workspace.
type Source interface {
	// Name describes the source for logs and run history.
	Name() string
	Materialize(ctx context.Context, ws *workspace.Workspace, limits archive.Limits) error
}

// Upload is an archive already held in memory.
type Upload struct {
	Filename string
	Data     []byte
}

func (u Upload) Name() string {
	if u.Filename == "" {
		return "upload.zip"
	}
	return u.Filename
}

func (u Upload) Materialize(_ context.Context, ws *workspace.Workspace, limits archive.Limits) error {
	return unpack(ws, "upload.zip", u.Data, limits)
}

// Repository is a remote repository snapshot fetched on Materialize.
type Repository struct {
	URL     string
	Fetcher *Fetcher
}

func (r Repository) Name() string { return r.URL }

func (r Repository) Materialize(ctx context.Context, ws *workspace.Workspace, limits archive.Limits) error {
	owner, name, err := ParseRepoURL(r.URL)
	if err != nil {
		return err
	}
	data, err := r.Fetcher.Fetch(ctx, owner, name)
	if err != nil {
		return err
	}
	return unpack(ws, name+".zip", data, limits)
}

// unpack keeps a copy of the raw archive next to the extracted tree, then expands it.
func unpack(ws *workspace.Workspace, filename string, data []byte, limits archive.Limits) error {
	if err := workspace.WriteFile(filepath.Join(ws.Root(), filepath.Base(filename)), data); err != nil {
		return fmt.Errorf("ingest: store archive: %w", err)
	}
	if _, err := archive.Extract(data, ws.Extracted(), limits); err != nil {
		return err
	}
	return nil
}
