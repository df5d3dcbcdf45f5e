package transformer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	genai "google.golang.org/genai"
)

var (
	ErrEmptyResponse = errors.New("transformer: empty response from model")
	ErrInvalidJSON   = errors.New("transformer: invalid JSON from model")
)

const maxAttempts = 3

// GeminiConfig configures the hosted provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration // per call, including retries
}

// Gemini is a thin wrapper around the official genai client.
type Gemini struct {
	cli     *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGemini creates the client once per process; the returned value is shared by reference.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transformer: gemini api key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("transformer: new gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Gemini{cli: cli, model: model, timeout: timeout, logger: logger}, nil
}

// New returns the hosted provider when an API key is configured and the offline
// Heuristic otherwise.
func New(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (Service, error) {
	if cfg.APIKey == "" {
		logger.Warn("no gemini api key configured, using offline heuristics")
		return NewHeuristic(), nil
	}
	return NewGemini(ctx, cfg, logger)
}

// Optimize asks the model to rewrite text; the input comes back unchanged on failure.
func (g *Gemini) Optimize(ctx context.Context, text, kind string) TextResult {
	out, err := g.generate(ctx, buildOptimizePrompt(text, kind), "")
	if err != nil {
		g.logger.Warn("ai optimization failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return degradedText(text, err)
	}
	out = stripFences(out)
	if out == "" {
		return degradedText(text, ErrEmptyResponse)
	}
	return TextResult{Text: out, Outcome: OutcomeOK}
}

// Analyze asks the model for a JSON score structure; Neutral() comes back on failure.
func (g *Gemini) Analyze(ctx context.Context, text, kind string, focus ...Focus) AnalysisResult {
	out, err := g.generate(ctx, buildAnalyzePrompt(text, kind, focus), "application/json")
	if err != nil {
		g.logger.Warn("ai analysis failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return degradedAnalysis(err)
	}
	var a Analysis
	if err := json.Unmarshal([]byte(stripFences(out)), &a); err != nil {
		g.logger.Warn("ai analysis not decodable", slog.String("kind", kind), slog.String("error", err.Error()))
		return degradedAnalysis(fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	a.Degraded = false
	return AnalysisResult{Analysis: a, Outcome: OutcomeOK}
}

// Convert asks the model to translate text between formats.
func (g *Gemini) Convert(ctx context.Context, text, from, to string) TextResult {
	out, err := g.generate(ctx, buildConvertPrompt(text, from, to), "")
	if err != nil {
		g.logger.Warn("ai conversion failed",
			slog.String("from", from), slog.String("to", to), slog.String("error", err.Error()))
		return degradedText(text, err)
	}
	out = stripFences(out)
	if out == "" {
		return degradedText(text, ErrEmptyResponse)
	}
	return TextResult{Text: out, Outcome: OutcomeOK}
}

func (g *Gemini) generate(ctx context.Context, prompt, mime string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}
	if mime != "" {
		cfg.ResponseMIMEType = mime
	}

	var text string
	err := retry(ctx, maxAttempts, backoff, func() error {
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			cfg,
		)
		switch {
		case err != nil:
			return err
		case len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
			len(resp.Candidates[0].Content.Parts) == 0:
			return ErrEmptyResponse
		}
		text = resp.Candidates[0].Content.Parts[0].Text
		return nil
	})
	return text, err
}

func backoff(attempt int) time.Duration {
	return time.Duration(300*(1<<attempt)) * time.Millisecond
}

// retry calls fn up to attempts times and waits backoff(i) between failures. No wait
// follows the last attempt.
func retry(ctx context.Context, attempts int, backoff func(int) time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(i)):
		}
	}
	return err
}
