package transformer

import (
	"fmt"
	"strings"
)

const optimizePrompt = `Optimize this %s code for performance, accessibility, and SEO.
Apply these specific optimizations:
1. Minify the code without breaking functionality
2. Add lazy loading where appropriate
3. Apply accessibility improvements
4. Apply modern best practices
5. Add schema.org markup if HTML
6. Optimize the critical CSS path if CSS

Return ONLY the optimized code, no explanations and no markdown fences.

Original code:
%s`

const analyzePrompt = `Analyze this %s code and provide:
1. Performance score (0-100)
2. SEO score (0-100) if HTML
3. Accessibility score (0-100)
4. 3 specific optimization suggestions
5. Estimated optimization potential (0-100%%)
6. Code complexity analysis
7. Best practice compliance
%s
Return JSON with these keys:
- performance_score (number)
- seo_score (number, optional)
- accessibility_score (number)
- suggestions (array of strings)
- optimization_potential (number)
- complexity_analysis
- best_practice_compliance

Code:
%s`

const convertPrompt = `Convert the following %s code to %s.
Maintain all functionality while following %s best practices.
Include all necessary imports/dependencies.
Return ONLY the converted code, no explanations and no markdown fences.

%s code:
%s`

func buildOptimizePrompt(text, kind string) string {
	return fmt.Sprintf(optimizePrompt, kind, text)
}

func buildAnalyzePrompt(text, kind string, focus []Focus) string {
	var emphasis strings.Builder
	for _, f := range focus {
		switch f {
		case FocusSEO:
			emphasis.WriteString("Pay particular attention to search engine optimization: meta tags, headings, structured data.\n")
		case FocusAccessibility:
			emphasis.WriteString("Pay particular attention to accessibility: landmarks, alt text, language, contrast, ARIA.\n")
		}
	}
	return fmt.Sprintf(analyzePrompt, kind, emphasis.String(), text)
}

func buildConvertPrompt(text, from, to string) string {
	return fmt.Sprintf(convertPrompt, from, to, to, from, text)
}
