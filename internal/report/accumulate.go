package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/mtiwari1/siteopt/internal/transformer"
)

var (
	ErrDuplicatePath = errors.New("report: duplicate path")
	ErrUnknownPath   = errors.New("report: unknown path")
	ErrAlreadyFinal  = errors.New("report: result already applied")
)

// Add registers an inventoried record and updates the inventory totals.
func (r *Report) Add(rec FileRecord) error {
	if _, ok := r.index[rec.Path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, rec.Path)
	}
	if rec.CurrentPath == "" {
		rec.CurrentPath = rec.Path
	}
	r.index[rec.Path] = len(r.Files)
	r.Files = append(r.Files, &rec)

	r.Stats.TotalFiles++
	r.Stats.TotalSizeBefore += rec.Size
	r.Stats.FileTypes[rec.Type]++
	return nil
}

// Records returns copies of the inventoried records, in inventory order.
func (r *Report) Records() []FileRecord {
	out := make([]FileRecord, len(r.Files))
	for i, f := range r.Files {
		out[i] = *f
	}
	return out
}

// Apply stores the terminal record of one task, matched by Path.
// Inventory fields are kept from the stored record; only optimization fields are taken
// from the result. A second result for the same path is rejected.
func (r *Report) Apply(res FileRecord) error {
	i, ok := r.index[res.Path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, res.Path)
	}
	if r.applied[res.Path] {
		return fmt.Errorf("%w: %s", ErrAlreadyFinal, res.Path)
	}
	r.applied[res.Path] = true

	cur := r.Files[i]
	cur.Optimized = res.Optimized && res.OptimizedSize != nil && res.OptimizedHash != nil
	cur.Error = res.Error
	if cur.Optimized {
		cur.OptimizedSize = res.OptimizedSize
		cur.OptimizedHash = res.OptimizedHash
		cur.OptimizedAnalysis = res.OptimizedAnalysis
		cur.CurrentPath = res.CurrentPath
		if cur.CurrentPath == "" {
			cur.CurrentPath = cur.Path
		}
		r.Stats.OptimizedFiles++
	} else {
		cur.OptimizedSize = nil
		cur.OptimizedHash = nil
		cur.OptimizedAnalysis = nil
		cur.CurrentPath = cur.Path
	}
	r.Stats.TotalSizeAfter += cur.FinalSize()
	return nil
}

// Applied reports how many terminal results have been stored.
func (r *Report) Applied() int { return len(r.applied) }

// Lookup finds the record whose file currently lives at currentPath.
func (r *Report) Lookup(currentPath string) (*FileRecord, bool) {
	for _, f := range r.Files {
		if f.CurrentPath == currentPath {
			return f, true
		}
	}
	return nil, false
}

// ApplySweep records the markup sweep's rewrite of the file at currentPath. The record
// ends up optimized and measured from the final on-disk content; totals move by the
// size delta. A record the sweep promotes drops its earlier error and takes analysis
// as its optimized analysis.
func (r *Report) ApplySweep(currentPath string, size int64, hash string, analysis transformer.Analysis) error {
	rec, ok := r.Lookup(currentPath)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, currentPath)
	}
	before := rec.FinalSize()
	if !rec.Optimized {
		rec.Optimized = true
		rec.Error = ""
		rec.OptimizedAnalysis = &analysis
		r.Stats.OptimizedFiles++
	}
	rec.OptimizedSize = &size
	rec.OptimizedHash = &hash
	r.Stats.TotalSizeAfter += size - before
	return nil
}

// RecordSEO stores the sweep's supplemental analysis of one markup file.
func (r *Report) RecordSEO(currentPath string, analysis transformer.Analysis) {
	r.Stats.SEOReport[currentPath] = analysis
}

// Finalize stamps the end time once every pass has completed.
func (r *Report) Finalize(end time.Time) {
	r.Stats.EndTime = &end
}
