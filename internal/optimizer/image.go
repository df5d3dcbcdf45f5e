package optimizer

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/chai2010/webp"

	"github.com/mtiwari1/siteopt/internal/hasher"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/workspace"
)

// WebP quality tiers.
const (
	QualityDefault    = 85
	QualityAggressive = 75
)

// raster re-encodes an image as lossy WebP. The original is removed only once the WebP
// is on disk; on any failure the original stays and nothing new is left behind.
func (d *Dispatcher) raster(root string, task Task) (report.FileRecord, error) {
	rec := task.Record
	srcAbs, err := workspace.Resolve(root, rec.Path)
	if err != nil {
		return report.FileRecord{}, err
	}
	f, err := os.Open(srcAbs)
	if err != nil {
		return report.FileRecord{}, fmt.Errorf("open image: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return report.FileRecord{}, fmt.Errorf("decode image: %w", err)
	}

	quality := QualityDefault
	if task.Options.Aggressive {
		quality = QualityAggressive
	}
	data, err := EncodeWebP(img, quality)
	if err != nil {
		return report.FileRecord{}, err
	}

	target := targetFor(task, "webp")
	dstAbs, err := workspace.Resolve(root, target)
	if err != nil {
		return report.FileRecord{}, err
	}
	if err := workspace.WriteFile(dstAbs, data); err != nil {
		return report.FileRecord{}, err
	}
	if err := d.dropSource(root, rec.Path, target, dstAbs); err != nil {
		return report.FileRecord{}, err
	}

	hash, size, err := hasher.File(dstAbs)
	if err != nil {
		return report.FileRecord{}, err
	}
	rec.MarkOptimized(target, size, hash, nil)
	return rec, nil
}

// EncodeWebP encodes img as lossy WebP. Images with an alpha channel or a transparent
// palette entry are encoded from RGBA so the output keeps its alpha plane.
func EncodeWebP(img image.Image, quality int) ([]byte, error) {
	if HasAlpha(img) {
		if _, ok := img.(*image.RGBA); !ok {
			rgba := image.NewRGBA(img.Bounds())
			draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
			img = rgba
		}
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// HasAlpha reports whether any pixel of img can be translucent.
func HasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case interface{ Opaque() bool }:
		return !m.Opaque()
	}
	return false
}
