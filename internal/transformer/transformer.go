// Package transformer wraps the external code-optimization and analysis provider.
//
// Every call returns an explicit two-outcome result. A failed call never
// surfaces as an error to callers: text results fall back to the input and
// analysis results fall back to Neutral(), with Outcome set to OutcomeDegraded
// and Err carrying the cause for logging.
package transformer

import (
	"context"
	"strings"
)

// Outcome tells callers whether a result came from the provider or is a fallback.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeDegraded
)

func (o Outcome) String() string {
	if o == OutcomeOK {
		return "ok"
	}
	return "degraded"
}

// Focus narrows an analysis prompt towards one concern.
type Focus string

const (
	FocusSEO           Focus = "seo"
	FocusAccessibility Focus = "accessibility"
)

// Analysis is the structured scoring returned for a piece of source text.
type Analysis struct {
	PerformanceScore       float64  `json:"performance_score"`
	SEOScore               *float64 `json:"seo_score,omitempty"`
	AccessibilityScore     float64  `json:"accessibility_score"`
	Suggestions            []string `json:"suggestions"`
	OptimizationPotential  float64  `json:"optimization_potential"`
	ComplexityAnalysis     any      `json:"complexity_analysis"`
	BestPracticeCompliance any      `json:"best_practice_compliance"`
	Degraded               bool     `json:"degraded,omitempty"`
}

// Neutral is the default score structure used when analysis is unavailable.
func Neutral() Analysis {
	seo := 50.0
	return Analysis{
		PerformanceScore:       50,
		SEOScore:               &seo,
		AccessibilityScore:     50,
		Suggestions:            []string{"Analysis failed"},
		OptimizationPotential:  0,
		ComplexityAnalysis:     "Unknown",
		BestPracticeCompliance: "Unknown",
		Degraded:               true,
	}
}

// TextResult is the outcome of a rewrite or conversion.
type TextResult struct {
	Text    string
	Outcome Outcome
	Err     error
}

// OK reports whether the provider produced the text.
func (r TextResult) OK() bool { return r.Outcome == OutcomeOK }

// AnalysisResult is the outcome of an analysis call.
type AnalysisResult struct {
	Analysis Analysis
	Outcome  Outcome
	Err      error
}

// OK reports whether the provider produced the analysis.
func (r AnalysisResult) OK() bool { return r.Outcome == OutcomeOK }

// Service is the stateless provider handle shared by all pipeline stages and requests.
// Implementations must be safe for concurrent use.
type Service interface {
	Optimize(ctx context.Context, text, kind string) TextResult
	Analyze(ctx context.Context, text, kind string, focus ...Focus) AnalysisResult
	Convert(ctx context.Context, text, from, to string) TextResult
}

func degradedText(text string, err error) TextResult {
	return TextResult{Text: text, Outcome: OutcomeDegraded, Err: err}
}

func degradedAnalysis(err error) AnalysisResult {
	return AnalysisResult{Analysis: Neutral(), Outcome: OutcomeDegraded, Err: err}
}

// stripFences removes a surrounding markdown code fence from model output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
