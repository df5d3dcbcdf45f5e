// Package report holds the per-file records and the aggregate statistics of one optimization run.
package report

import (
	"time"

	"github.com/mtiwari1/siteopt/internal/transformer"
)

// Options are the caller-selected knobs of a run.
type Options struct {
	Aggressive         bool `json:"aggressive"`
	SEOFocus           bool `json:"seo_focus"`
	AccessibilityFocus bool `json:"accessibility_focus"`
}

// DefaultOptions mirrors the request defaults: focus passes on, aggressive off.
func DefaultOptions() Options {
	return Options{SEOFocus: true, AccessibilityFocus: true}
}

// Focus lists the analysis focus flags enabled by the options.
func (o Options) Focus() []transformer.Focus {
	var f []transformer.Focus
	if o.SEOFocus {
		f = append(f, transformer.FocusSEO)
	}
	if o.AccessibilityFocus {
		f = append(f, transformer.FocusAccessibility)
	}
	return f
}

// FileRecord is the analysis and optimization state of one file.
// Path is the identity of the record for the whole run; CurrentPath follows renames.
type FileRecord struct {
	Path              string                `json:"path"`
	Type              string                `json:"type"`
	Size              int64                 `json:"size"`
	Hash              string                `json:"hash"`
	Analysis          *transformer.Analysis `json:"analysis"`
	Optimized         bool                  `json:"optimized"`
	OptimizedSize     *int64                `json:"optimized_size"`
	OptimizedHash     *string               `json:"optimized_hash"`
	OptimizedAnalysis *transformer.Analysis `json:"optimized_analysis"`
	CurrentPath       string                `json:"current_path"`
	Metadata          map[string]any        `json:"metadata,omitempty"`
	Error             string                `json:"error,omitempty"`
}

// MarkOptimized records a successful transformation measured from CurrentPath.
func (r *FileRecord) MarkOptimized(currentPath string, size int64, hash string, analysis *transformer.Analysis) {
	r.Optimized = true
	r.CurrentPath = currentPath
	r.OptimizedSize = &size
	r.OptimizedHash = &hash
	r.OptimizedAnalysis = analysis
	r.Error = ""
}

// FinalSize is the size that counts towards total_size_after.
func (r *FileRecord) FinalSize() int64 {
	if r.Optimized && r.OptimizedSize != nil {
		return *r.OptimizedSize
	}
	return r.Size
}

// Stats are the running totals of a run.
type Stats struct {
	TotalFiles      int                             `json:"total_files"`
	OptimizedFiles  int                             `json:"optimized_files"`
	TotalSizeBefore int64                           `json:"total_size_before"`
	TotalSizeAfter  int64                           `json:"total_size_after"`
	FileTypes       map[string]int                  `json:"file_types"`
	SEOReport       map[string]transformer.Analysis `json:"seo_report"`
	Options         Options                         `json:"options"`
	StartTime       time.Time                       `json:"start_time"`
	EndTime         *time.Time                      `json:"end_time,omitempty"`
}

// Report aggregates every FileRecord of a run.
// It is owned by a single goroutine; the scheduler funnels results to it.
type Report struct {
	Files []*FileRecord `json:"files"`
	Stats Stats         `json:"stats"`

	index   map[string]int
	applied map[string]bool
}

// New starts an empty report.
func New(opts Options, start time.Time) *Report {
	return &Report{
		Files: []*FileRecord{},
		Stats: Stats{
			FileTypes: map[string]int{},
			SEOReport: map[string]transformer.Analysis{},
			Options:   opts,
			StartTime: start,
		},
		index:   map[string]int{},
		applied: map[string]bool{},
	}
}
