// Package workspace manages the disposable per-request directory tree.
package workspace

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ExtractedDir is the subtree holding the expanded archive.
const ExtractedDir = "extracted"

var ErrOutsideWorkspace = errors.New("workspace: path escapes extraction root")

// Workspace is exclusive to one request and must be closed when the request ends.
type Workspace struct {
	ID   string
	root string
}

// New creates <base>/<uuid>/extracted.
func New(base string) (*Workspace, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create base: %w", err)
	}
	id := uuid.New().String()
	root := filepath.Join(base, id)
	if err := os.MkdirAll(filepath.Join(root, ExtractedDir), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	return &Workspace{ID: id, root: root}, nil
}

// Root is the workspace directory itself.
func (w *Workspace) Root() string { return w.root }

// Extracted is the root of the expanded file tree.
func (w *Workspace) Extracted() string { return filepath.Join(w.root, ExtractedDir) }

// Path maps a slash-separated path relative to Extracted() onto disk.
func (w *Workspace) Path(rel string) (string, error) {
	return Resolve(w.Extracted(), rel)
}

// Close removes the workspace and everything below it.
func (w *Workspace) Close() error {
	if w == nil || w.root == "" {
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("workspace: remove: %w", err)
	}
	return nil
}

// Resolve joins a slash-separated relative path onto root, refusing escapes.
func Resolve(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	p := filepath.Join(root, clean)
	if p != filepath.Clean(root) && !strings.HasPrefix(p, filepath.Clean(root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, rel)
	}
	return p, nil
}

// WriteFileAtomic streams r into path via a temp file in the same directory and a rename,
// so readers never observe a partially written file.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".write-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("workspace: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	n, err := io.Copy(bw, r)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("workspace: write temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("workspace: rename: %w", err)
	}
	return n, nil
}

// WriteFile is WriteFileAtomic for in-memory content.
func WriteFile(path string, content []byte) error {
	_, err := WriteFileAtomic(path, bytes.NewReader(content))
	return err
}
