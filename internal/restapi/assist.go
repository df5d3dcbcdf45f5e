package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mtiwari1/siteopt/internal/transformer"
)

const (
	// seoAnalyzeChars caps what /ai/seo-analyze hands to the model.
	seoAnalyzeChars = 10000
	// seoOptimizeChars is the largest page /ai/seo-analyze also rewrites.
	seoOptimizeChars = 5000
)

var fallbackQuestions = []string{
	"How can I further improve performance?",
	"What accessibility considerations should I make?",
	"Are there any SEO best practices I'm missing?",
}

const suggestPrompt = `As a web optimization expert, provide specific suggestions for:
%s

Code context (if provided):
%s

File type: %s

Provide actionable suggestions with code examples.`

const followUpPrompt = `Based on this request: %s
Suggest 3 follow-up questions the user might ask.
Return them as a JSON array of strings.`

// assistRequest is the body shared by the assistant endpoints.
type assistRequest struct {
	Prompt   string `json:"prompt"`
	Code     string `json:"code"`
	FileType string `json:"file_type"`
}

func readAssist(w http.ResponseWriter, r *http.Request) (assistRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSnippetBytes)
	var req assistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	req.FileType = strings.ToLower(strings.TrimSpace(req.FileType))
	return req, nil
}

func assistError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "content exceeds 1 MiB")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body")
}

// ---------- POST /ai/suggest ----------

func (h *Handler) suggest(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	req, err := readAssist(w, r)
	if err != nil {
		assistError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	code := req.Code
	if code == "" {
		code = "No code provided"
	}
	fileType := req.FileType
	if fileType == "" {
		fileType = "Not specified"
	}

	res := h.Transformer.Optimize(r.Context(), fmt.Sprintf(suggestPrompt, req.Prompt, code, fileType), "suggestions")
	if !res.OK() {
		logger.Warn("suggestions degraded", slog.Any("error", res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions":         res.Text,
		"follow_up_questions": h.followUps(r, req.Prompt),
		"outcome":             res.Outcome.String(),
	})
}

// followUps asks for three related questions and falls back to a fixed set when the
// reply is not a JSON array of strings.
func (h *Handler) followUps(r *http.Request, prompt string) []string {
	res := h.Transformer.Optimize(r.Context(), fmt.Sprintf(followUpPrompt, prompt), "questions")
	if !res.OK() {
		return fallbackQuestions
	}
	var qs []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Text)), &qs); err != nil || len(qs) == 0 {
		return fallbackQuestions
	}
	return qs
}

// ---------- POST /ai/seo-analyze ----------

// seoAnalyze scores a page given inline as html_content or fetched from url.
func (h *Handler) seoAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	q := r.URL.Query()
	content := q.Get("html_content")
	if target := q.Get("url"); target != "" && content == "" {
		data, err := h.Fetcher.FetchPage(r.Context(), target, maxSnippetBytes)
		if err != nil {
			logger.Warn("page fetch failed", slog.String("url", target), slog.String("error", err.Error()))
			code, msg := httpStatusFor(err)
			if code == http.StatusBadGateway {
				msg = "failed to fetch page"
			}
			writeError(w, code, msg)
			return
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		writeError(w, http.StatusBadRequest, "url or html_content is required")
		return
	}

	res := h.Transformer.Analyze(r.Context(), truncate(content, seoAnalyzeChars), "seo", transformer.FocusSEO)
	if !res.OK() {
		logger.Warn("seo analysis degraded", slog.Any("error", res.Err))
	}

	optimized := "Content too large for optimization"
	if len(content) < seoOptimizeChars {
		optimized = h.Transformer.Optimize(r.Context(), content, "html").Text
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":       res.Analysis,
		"optimized_html": optimized,
		"outcome":        res.Outcome.String(),
	})
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

// ---------- POST /ai/complexity ----------

func (h *Handler) complexity(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	req, err := readAssist(w, r)
	if err != nil {
		assistError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	kind := req.FileType
	if kind == "" {
		kind = "code"
	}

	res := h.Transformer.Analyze(r.Context(), req.Code, kind)
	if !res.OK() {
		logger.Warn("complexity analysis degraded", slog.String("kind", kind), slog.Any("error", res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"complexity_analysis": res.Analysis.ComplexityAnalysis,
		"suggestions":         res.Analysis.Suggestions,
		"outcome":             res.Outcome.String(),
	})
}

// ---------- POST /ai/accessibility ----------

// accessibility reviews code, or the prompt text as markup when no code is sent.
func (h *Handler) accessibility(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	req, err := readAssist(w, r)
	if err != nil {
		assistError(w, err)
		return
	}
	content, kind := req.Code, req.FileType
	switch {
	case strings.TrimSpace(content) != "":
		if kind == "" {
			kind = "code"
		}
	case strings.TrimSpace(req.Prompt) != "":
		content = req.Prompt
		if kind == "" {
			kind = "html"
		}
	default:
		writeError(w, http.StatusBadRequest, "code or prompt is required")
		return
	}

	res := h.Transformer.Analyze(r.Context(), content, kind, transformer.FocusAccessibility)
	if !res.OK() {
		logger.Warn("accessibility analysis degraded", slog.String("kind", kind), slog.Any("error", res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessibility_analysis": res.Analysis,
		"file_type":              kind,
		"outcome":                res.Outcome.String(),
	})
}

// ---------- POST /ai/react-convert ----------

func (h *Handler) reactConvert(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	req, err := readAssist(w, r)
	if err != nil {
		assistError(w, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	from := req.FileType
	if from == "" {
		from = "html"
	}

	res := h.Transformer.Convert(r.Context(), req.Code, from, "react")
	if !res.OK() {
		logger.Warn("react conversion degraded", slog.String("from", from), slog.Any("error", res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"converted": res.Text,
		"outcome":   res.Outcome.String(),
	})
}
