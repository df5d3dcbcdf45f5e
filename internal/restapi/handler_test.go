package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtiwari1/siteopt/internal/archive"
	"github.com/mtiwari1/siteopt/internal/grpcserver"
	"github.com/mtiwari1/siteopt/internal/ingest"
	"github.com/mtiwari1/siteopt/internal/metrics"
	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/pipeline"
	"github.com/mtiwari1/siteopt/internal/repository"
	"github.com/mtiwari1/siteopt/internal/transformer"
)

type fakePublisher struct {
	published map[string]int
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, runID string, data []byte) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published[runID] = len(data)
	return "https://archives.test/" + runID + "/optimized-website.zip", nil
}

type testEnv struct {
	handler http.Handler
	repo    *repository.MemoryRepo
	pub     *fakePublisher
	metrics *metrics.Metrics
}

func newEnv(t *testing.T, maxUpload int64, fetchBase string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := transformer.NewHeuristic()
	tmp := t.TempDir()
	m := metrics.New()

	p := pipeline.New(
		optimizer.NewDispatcher(svc, optimizer.NewMinifier(), logger),
		svc,
		pipeline.Config{Workers: 2, TempDir: tmp},
		logger,
		m,
	)
	repo := repository.NewMemoryRepo()
	pub := &fakePublisher{published: map[string]int{}}
	h := NewHandler(Deps{
		Pipeline:       p,
		Transformer:    svc,
		Runs:           grpcserver.NewServer(repo, logger),
		Repo:           repo,
		Fetcher:        ingest.NewFetcher(ingest.FetcherConfig{BaseURL: fetchBase, MaxBytes: 1 << 20}, logger),
		Publisher:      pub,
		Metrics:        m,
		MaxUploadBytes: maxUpload,
		TempDir:        tmp,
		Logger:         logger,
	})
	return &testEnv{handler: h.Routes(), repo: repo, pub: pub, metrics: m}
}

func siteZip(t *testing.T) []byte {
	t.Helper()
	data, err := archive.Build(map[string][]byte{
		"index.html":      []byte("<html><head><title>Home</title></head><body>\n  <h1>Hi</h1>\n</body></html>"),
		"css/style.css":   []byte("body {\n  color : red;\n}\n"),
		"js/app.js":       []byte("function add(a, b) {\n  return a + b;\n}\n"),
		"assets/data.txt": []byte("plain"),
	})
	require.NoError(t, err)
	return data
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestOptimizeUpload(t *testing.T) {
	env := newEnv(t, 10<<20, "")
	body, ctype := multipartBody(t, "file", "site.zip", siteZip(t))
	req := httptest.NewRequest(http.MethodPost, "/optimize/upload?aggressive=false", body)
	req.Header.Set("Content-Type", ctype)

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "optimized-website.zip")

	runID := rec.Header().Get("X-Run-ID")
	require.NotEmpty(t, runID)
	assert.Equal(t, "https://archives.test/"+runID+"/optimized-website.zip", rec.Header().Get("X-Archive-URL"))
	assert.Equal(t, rec.Body.Len(), env.pub.published[runID])

	var stats struct {
		TotalFiles     int            `json:"total_files"`
		OptimizedFiles int            `json:"optimized_files"`
		FileTypes      map[string]int `json:"file_types"`
		Options        struct {
			SEOFocus bool `json:"seo_focus"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("X-Optimization-Report")), &stats))
	assert.Equal(t, 4, stats.TotalFiles)
	assert.Equal(t, 3, stats.OptimizedFiles)
	assert.Equal(t, 1, stats.FileTypes["css"])
	assert.True(t, stats.Options.SEOFocus)

	entries, err := archive.Entries(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Contains(t, entries, "index.html")
	assert.Contains(t, entries, "css/style.css")
	assert.Equal(t, "plain", string(entries["assets/data.txt"]))

	run, err := env.repo.GetByID(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCompleted, run.Status)
	assert.Equal(t, "site.zip", run.Source)
	assert.JSONEq(t, rec.Header().Get("X-Optimization-Report"), string(run.Stats))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HTTPRequestsTotal.WithLabelValues("POST", "/optimize/upload", "200")))
}

func TestOptimizeUploadRejections(t *testing.T) {
	env := newEnv(t, 64, "")

	t.Run("not a zip", func(t *testing.T) {
		body, ctype := multipartBody(t, "file", "site.tar", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/optimize/upload", body)
		req.Header.Set("Content-Type", ctype)
		assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		body, ctype := multipartBody(t, "upload", "site.zip", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/optimize/upload", body)
		req.Header.Set("Content-Type", ctype)
		assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
	})

	t.Run("too large", func(t *testing.T) {
		body, ctype := multipartBody(t, "file", "site.zip", bytes.Repeat([]byte("a"), 4096))
		req := httptest.NewRequest(http.MethodPost, "/optimize/upload", body)
		req.Header.Set("Content-Type", ctype)
		assert.Equal(t, http.StatusRequestEntityTooLarge, env.do(req).Code)
	})

	t.Run("bad option", func(t *testing.T) {
		body, ctype := multipartBody(t, "file", "site.zip", []byte("PK"))
		req := httptest.NewRequest(http.MethodPost, "/optimize/upload?aggressive=maybe", body)
		req.Header.Set("Content-Type", ctype)
		assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
	})
}

func TestOptimizeUploadCorruptArchive(t *testing.T) {
	env := newEnv(t, 10<<20, "")
	body, ctype := multipartBody(t, "file", "site.zip", []byte("definitely not a zip archive"))
	req := httptest.NewRequest(http.MethodPost, "/optimize/upload", body)
	req.Header.Set("Content-Type", ctype)

	rec := env.do(req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Run-ID"))

	runs, err := env.repo.ListAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, repository.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestOptimizeGitHub(t *testing.T) {
	site := siteZip(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/acme/site/archive/refs/heads/main.zip" {
			_, _ = w.Write(site)
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()
	env := newEnv(t, 10<<20, upstream.URL)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/optimize/github", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return env.do(req)
	}

	rec := post(`{"repo_url":"https://github.com/acme/site","seo_focus":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("X-Optimization-Report"), `"seo_focus":false`)

	assert.Equal(t, http.StatusBadGateway, post(`{"repo_url":"https://github.com/acme/missing"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"repo_url":"https://gitlab.com/acme/site"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{not json`).Code)
}

func TestAnalyze(t *testing.T) {
	env := newEnv(t, 1<<20, "")

	req := httptest.NewRequest(http.MethodPost, "/ai/analyze", strings.NewReader(`{"code":"<html><body><p>hi</p></body></html>"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Analysis transformer.Analysis `json:"analysis"`
		FileType string               `json:"file_type"`
		Outcome  string               `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "html", out.FileType)
	assert.Equal(t, "ok", out.Outcome)

	body, ctype := multipartBody(t, "file", "app.js", []byte("var a = 1;"))
	req = httptest.NewRequest(http.MethodPost, "/ai/analyze", body)
	req.Header.Set("Content-Type", ctype)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "js", out.FileType)

	body, ctype = multipartBody(t, "file", "big.html", bytes.Repeat([]byte("a"), maxSnippetBytes+10))
	req = httptest.NewRequest(http.MethodPost, "/ai/analyze", body)
	req.Header.Set("Content-Type", ctype)
	assert.Equal(t, http.StatusRequestEntityTooLarge, env.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/ai/analyze", strings.NewReader(`{"code":"  "}`))
	assert.Equal(t, http.StatusBadRequest, env.do(req).Code)
}

func TestConvert(t *testing.T) {
	env := newEnv(t, 1<<20, "")
	convert := func(target, body string) (*httptest.ResponseRecorder, map[string]string) {
		req := httptest.NewRequest(http.MethodPost, "/ai/convert?target_format="+target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := env.do(req)
		out := map[string]string{}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec, out
	}

	rec, out := convert("scss_to_css", `{"content":"$c: red;\na { color: $c; }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, out["converted"], "a{color:red}")
	assert.Equal(t, "ok", out["outcome"])

	rec, out = convert("scss_to_css", `{"content":"a { color: $missing; }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a { color: $missing; }", out["converted"])
	assert.Equal(t, "degraded", out["outcome"])

	rec, out = convert("ts_to_js", `{"code":"let x: number = 1;"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "let x: number = 1;", out["converted"])
	assert.Equal(t, "degraded", out["outcome"])

	rec, _ = convert("css", `{"code":"a{}"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func postJSON(env *testEnv, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return env.do(req)
}

func TestSuggest(t *testing.T) {
	env := newEnv(t, 1<<20, "")

	rec := postJSON(env, "/ai/suggest", `{"prompt":"speed up my landing page","code":"<img src=a.png>","file_type":"html"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Suggestions       string   `json:"suggestions"`
		FollowUpQuestions []string `json:"follow_up_questions"`
		Outcome           string   `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out.Suggestions, "speed up my landing page")
	assert.Equal(t, fallbackQuestions, out.FollowUpQuestions)
	assert.Equal(t, "ok", out.Outcome)

	assert.Equal(t, http.StatusBadRequest, postJSON(env, "/ai/suggest", `{"code":"a{}"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(env, "/ai/suggest", `{nope`).Code)
}

func TestSEOAnalyze(t *testing.T) {
	page := `<html><head><title>Shop</title><meta name="description" content="x"></head><body></body></html>`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shop" {
			_, _ = w.Write([]byte(page))
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()
	env := newEnv(t, 1<<20, "")

	type result struct {
		Analysis      transformer.Analysis `json:"analysis"`
		OptimizedHTML string               `json:"optimized_html"`
	}
	seo := func(query string) (*httptest.ResponseRecorder, result) {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/ai/seo-analyze?"+query, nil))
		var out result
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec, out
	}

	rec, out := seo("url=" + url.QueryEscape(upstream.URL+"/shop"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, out.Analysis.SEOScore)
	assert.Equal(t, 100.0, *out.Analysis.SEOScore)
	assert.Equal(t, page, out.OptimizedHTML)

	rec, out = seo("html_content=" + url.QueryEscape("<p>no head</p>"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, out.Analysis.SEOScore)
	assert.Equal(t, 40.0, *out.Analysis.SEOScore)

	big := "<p>" + strings.Repeat("a", seoOptimizeChars) + "</p>"
	req := httptest.NewRequest(http.MethodPost, "/ai/seo-analyze", nil)
	req.URL.RawQuery = url.Values{"html_content": {big}}.Encode()
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Content too large for optimization", out.OptimizedHTML)

	rec, _ = seo("url=" + url.QueryEscape(upstream.URL+"/gone"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	rec, _ = seo("url=ftp://example.com/x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = seo("")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2))
}

func TestComplexity(t *testing.T) {
	env := newEnv(t, 1<<20, "")

	rec := postJSON(env, "/ai/complexity", `{"code":"function f() { return 1; }","file_type":"js"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Low", out["complexity_analysis"])
	assert.Equal(t, "ok", out["outcome"])

	assert.Equal(t, http.StatusBadRequest, postJSON(env, "/ai/complexity", `{"prompt":"how complex?"}`).Code)
}

func TestAccessibility(t *testing.T) {
	env := newEnv(t, 1<<20, "")
	type result struct {
		Analysis transformer.Analysis `json:"accessibility_analysis"`
		FileType string               `json:"file_type"`
	}

	rec := postJSON(env, "/ai/accessibility", `{"prompt":"<html><body><img src=a.png></body></html>"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "html", out.FileType)
	assert.Equal(t, 40.0, out.Analysis.AccessibilityScore)
	assert.Contains(t, out.Analysis.Suggestions, "Provide alt text for every image")

	rec = postJSON(env, "/ai/accessibility", `{"code":"button { outline: none; }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "code", out.FileType)

	assert.Equal(t, http.StatusBadRequest, postJSON(env, "/ai/accessibility", `{"file_type":"html"}`).Code)
}

func TestReactConvert(t *testing.T) {
	env := newEnv(t, 1<<20, "")

	rec := postJSON(env, "/ai/react-convert", `{"code":"<button class=\"b\">Go</button>"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := map[string]string{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, `<button class="b">Go</button>`, out["converted"])
	assert.Equal(t, "degraded", out["outcome"])

	assert.Equal(t, http.StatusBadRequest, postJSON(env, "/ai/react-convert", `{"prompt":"make it react"}`).Code)
}

func TestRunsEndpoints(t *testing.T) {
	env := newEnv(t, 1<<20, "")
	require.NoError(t, env.repo.Create(context.Background(), &repository.Run{
		ID: "run-1", Source: "site.zip", Status: repository.StatusRunning,
	}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/runs?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/runs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newEnv(t, 1<<20, "")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", ingest.ErrPayloadTooLarge), http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{ingest.ErrInvalidSourceFormat, http.StatusBadRequest},
		{ingest.ErrEmptyPayload, http.StatusBadRequest},
		{ingest.ErrSourceFetchFailed, http.StatusBadGateway},
		{fmt.Errorf("%w: bad entry", archive.ErrExtractionFailed), http.StatusUnprocessableEntity},
		{archive.ErrPackagingFailed, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		code, msg := httpStatusFor(tc.err)
		assert.Equal(t, tc.want, code, tc.err.Error())
		if code == http.StatusInternalServerError {
			assert.NotContains(t, msg, "disk on fire")
		}
	}
}
