package transformer

import (
	"context"
	"errors"
	"strings"
)

// ErrOffline is reported by Heuristic for operations that need a hosted model.
var ErrOffline = errors.New("transformer: no model configured")

// Heuristic is the offline provider used when no API key is configured.
// It never rewrites code and scores text with simple deterministic checks.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

// Optimize returns the text unchanged; local minifiers already did the work.
func (Heuristic) Optimize(_ context.Context, text, _ string) TextResult {
	return TextResult{Text: text, Outcome: OutcomeOK}
}

func (Heuristic) Convert(_ context.Context, text, _, _ string) TextResult {
	return degradedText(text, ErrOffline)
}

func (Heuristic) Analyze(_ context.Context, text, kind string, _ ...Focus) AnalysisResult {
	kind = strings.ToLower(kind)
	a := Analysis{
		PerformanceScore:       sizeScore(len(text)),
		AccessibilityScore:     80,
		OptimizationPotential:  whitespaceRatio(text),
		ComplexityAnalysis:     complexity(text),
		BestPracticeCompliance: "Not evaluated offline",
		Suggestions:            []string{},
	}

	if kind == "html" || kind == "htm" || kind == "seo" {
		lower := strings.ToLower(text)
		seo := 100.0
		if !strings.Contains(lower, `name="description"`) && !strings.Contains(lower, "name=description") {
			seo -= 30
			a.Suggestions = append(a.Suggestions, "Add a meta description")
		}
		if !strings.Contains(lower, "<title") {
			seo -= 30
			a.Suggestions = append(a.Suggestions, "Add a document title")
		}
		if !strings.Contains(lower, "<html lang") {
			a.AccessibilityScore -= 20
			a.Suggestions = append(a.Suggestions, "Declare the document language")
		}
		if strings.Count(lower, "<img") > strings.Count(lower, "alt=") {
			a.AccessibilityScore -= 20
			a.Suggestions = append(a.Suggestions, "Provide alt text for every image")
		}
		a.SEOScore = &seo
	}
	if a.OptimizationPotential > 20 {
		a.Suggestions = append(a.Suggestions, "Minify to remove redundant whitespace")
	}
	return AnalysisResult{Analysis: a, Outcome: OutcomeOK}
}

func sizeScore(n int) float64 {
	switch {
	case n < 10*1024:
		return 95
	case n < 100*1024:
		return 80
	case n < 500*1024:
		return 60
	default:
		return 40
	}
}

func whitespaceRatio(text string) float64 {
	if text == "" {
		return 0
	}
	ws := 0
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			ws++
		}
	}
	return float64(ws*100) / float64(len(text))
}

func complexity(text string) string {
	lines := strings.Count(text, "\n") + 1
	switch {
	case lines < 100:
		return "Low"
	case lines < 1000:
		return "Medium"
	default:
		return "High"
	}
}
