// Package hasher computes content fingerprints and lightweight metadata for workspace files.
package hasher

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
)

// sniffLen is how many leading bytes http.DetectContentType looks at.
const sniffLen = 512

// Metadata holds the fingerprint and descriptive attributes of one file.
type Metadata struct {
	Hash  string         // hex-encoded SHA256
	Size  int64          // file size in bytes
	Extra map[string]any // mime_type, width/height for images, lines/words for text
}

// Bytes returns the fingerprint of an in-memory payload.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// File streams a file through SHA256 and returns its fingerprint and size.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("hasher: open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hasher: copy: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// ComputeMetadata fingerprints the file and attaches content-specific attributes.
// Attribute extraction is best effort; only hashing failures are returned.
func ComputeMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hasher: open file: %w", err)
	}
	defer f.Close()

	// The head is sniffed for MIME and also fed to the hash so the file is read once.
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("hasher: read head: %w", err)
	}
	head = head[:n]

	h := sha256.New()
	h.Write(head)
	rest, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("hasher: copy: %w", err)
	}

	mimeType := http.DetectContentType(head)
	extra := map[string]any{"mime_type": mimeType}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		if dims, err := analyzeImage(path); err == nil {
			for k, v := range dims {
				extra[k] = v
			}
		}
	case strings.HasPrefix(mimeType, "text/"):
		if counts, err := analyzeText(path); err == nil {
			for k, v := range counts {
				extra[k] = v
			}
		}
	}

	return &Metadata{
		Hash:  hex.EncodeToString(h.Sum(nil)),
		Size:  int64(n) + rest,
		Extra: extra,
	}, nil
}

func analyzeImage(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"width":  cfg.Width,
		"height": cfg.Height,
		"format": format,
	}, nil
}

func analyzeText(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lines := 0
	words := 0
	for scanner.Scan() {
		lines++
		words += len(bytes.Fields(scanner.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"lines": lines,
		"words": words,
	}, nil
}
