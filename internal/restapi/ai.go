package restapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/transformer"
)

// maxSnippetBytes bounds the text accepted by the /ai endpoints.
const maxSnippetBytes = 1 << 20

// snippet is a piece of source text submitted as JSON or as a multipart file.
type snippet struct {
	Text string
	Kind string
}

type snippetRequest struct {
	Code         string `json:"code"`
	Content      string `json:"content"`
	FileType     string `json:"file_type"`
	SourceFormat string `json:"source_format"`
}

// readSnippet accepts either a JSON body or a multipart "file" field.
func readSnippet(w http.ResponseWriter, r *http.Request, defaultKind string) (snippet, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSnippetBytes+multipartSlack)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return snippet{}, err
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxSnippetBytes+1))
		if err != nil {
			return snippet{}, err
		}
		if len(data) > maxSnippetBytes {
			return snippet{}, &http.MaxBytesError{Limit: maxSnippetBytes}
		}
		kind := filetype.Of(header.Filename)
		if kind == filetype.Other {
			kind = defaultKind
		}
		return snippet{Text: string(data), Kind: kind}, nil
	}

	var req snippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return snippet{}, err
	}
	text := req.Code
	if text == "" {
		text = req.Content
	}
	if len(text) > maxSnippetBytes {
		return snippet{}, &http.MaxBytesError{Limit: maxSnippetBytes}
	}
	kind := strings.ToLower(strings.TrimSpace(req.FileType))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(req.SourceFormat))
	}
	if kind == "" {
		kind = defaultKind
	}
	return snippet{Text: text, Kind: kind}, nil
}

func snippetError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "content exceeds 1 MiB")
		return
	}
	writeError(w, http.StatusBadRequest, "expected a JSON body with \"code\" or a multipart \"file\"")
}

// ---------- POST /ai/analyze ----------

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	in, err := readSnippet(w, r, "html")
	if err != nil {
		snippetError(w, err)
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "no content to analyze")
		return
	}

	res := h.Transformer.Analyze(r.Context(), in.Text, in.Kind, transformer.FocusSEO, transformer.FocusAccessibility)
	if !res.OK() {
		logger.Warn("analysis degraded", slog.String("kind", in.Kind), slog.Any("error", res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":  res.Analysis,
		"file_type": in.Kind,
		"outcome":   res.Outcome.String(),
	})
}

// ---------- POST /ai/convert ----------

// convert translates source text. scss/sass to css is compiled locally; any other
// pair, or a stylesheet the compiler rejects, goes through the transformer.
func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger()

	target := strings.ToLower(r.URL.Query().Get("target_format"))
	from, to, ok := strings.Cut(target, "_to_")
	if !ok || from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "target_format must look like scss_to_css")
		return
	}

	in, err := readSnippet(w, r, from)
	if err != nil {
		snippetError(w, err)
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		writeError(w, http.StatusBadRequest, "no content to convert")
		return
	}

	if to == "css" && (from == "scss" || from == "sass") {
		css, err := optimizer.CompileSass(in.Text, from == "sass", "")
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"converted":     css,
				"target_format": target,
				"outcome":       transformer.OutcomeOK.String(),
			})
			return
		}
		logger.Warn("sass compile failed, falling back to transformer", slog.String("error", err.Error()))
	}

	res := h.Transformer.Convert(r.Context(), in.Text, from, to)
	if !res.OK() {
		logger.Warn("conversion degraded", slog.String("target_format", target), slog.Any("error", res.Err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"converted":     res.Text,
		"target_format": target,
		"outcome":       res.Outcome.String(),
	})
}
