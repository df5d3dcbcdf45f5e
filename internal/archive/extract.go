// Package archive expands uploaded zip bundles and packs optimized trees back into one.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

var (
	ErrExtractionFailed = errors.New("archive: extraction failed")
	ErrUnsafePath       = errors.New("archive: entry escapes destination")
	ErrTooLarge         = errors.New("archive: uncompressed size exceeds limit")
	ErrPackagingFailed  = errors.New("archive: packaging failed")
)

// Limits bound what Extract is willing to materialize.
type Limits struct {
	MaxBytes   int64 // total uncompressed bytes, 0 = unlimited
	MaxEntries int   // 0 = unlimited
}

// Extract expands a zip payload into dest.
//
// Every entry name is validated before anything is written: an absolute name, a ".."
// segment or a name resolving outside dest rejects the whole archive. Symlink entries
// are skipped. All failures wrap ErrExtractionFailed.
func Extract(data []byte, dest string, limits Limits) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: open zip: %v", ErrExtractionFailed, err)
	}
	if limits.MaxEntries > 0 && len(zr.File) > limits.MaxEntries {
		return 0, fmt.Errorf("%w: %d entries", ErrExtractionFailed, len(zr.File))
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	targets := make([]string, len(zr.File))
	var declared uint64
	for i, f := range zr.File {
		target, err := safeJoin(absDest, f.Name)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
		}
		targets[i] = target
		declared += f.UncompressedSize64
	}
	if limits.MaxBytes > 0 && declared > uint64(limits.MaxBytes) {
		return 0, fmt.Errorf("%w: %w", ErrExtractionFailed, ErrTooLarge)
	}

	var written int64
	files := 0
	for i, f := range zr.File {
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(targets[i], 0o755); err != nil {
				return files, fmt.Errorf("%w: mkdir: %v", ErrExtractionFailed, err)
			}
			continue
		case !mode.IsRegular():
			// symlinks, devices
			continue
		}

		budget := int64(-1)
		if limits.MaxBytes > 0 {
			budget = limits.MaxBytes - written
		}
		n, err := writeEntry(f, targets[i], budget)
		if err != nil {
			return files, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, f.Name, err)
		}
		written += n
		files++
	}
	return files, nil
}

// safeJoin resolves a zip entry name under root or reports ErrUnsafePath.
func safeJoin(root, name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if slashed == "" || path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}
	target := filepath.Join(root, filepath.FromSlash(slashed))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

// writeEntry copies one regular entry, failing once more than budget bytes arrive
// (budget < 0 disables the check).
func writeEntry(f *zip.File, target string, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	var src io.Reader = rc
	if budget >= 0 {
		src = io.LimitReader(rc, budget+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if budget >= 0 && n > budget {
		return n, ErrTooLarge
	}
	return n, nil
}
