package optimizer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtiwari1/siteopt/internal/filetype"
	"github.com/mtiwari1/siteopt/internal/hasher"
	"github.com/mtiwari1/siteopt/internal/report"
	"github.com/mtiwari1/siteopt/internal/transformer"
)

// recordingService marks every rewrite so tests can see it happened.
type recordingService struct {
	mu        sync.Mutex
	kinds     []string
	analyzed  []string
	failWrite bool
}

func (s *recordingService) Optimize(_ context.Context, text, kind string) transformer.TextResult {
	s.mu.Lock()
	s.kinds = append(s.kinds, kind)
	s.mu.Unlock()
	if s.failWrite {
		return transformer.TextResult{Text: text, Outcome: transformer.OutcomeDegraded, Err: errors.New("provider down")}
	}
	return transformer.TextResult{Text: text + "/*rewritten*/", Outcome: transformer.OutcomeOK}
}

func (s *recordingService) Analyze(_ context.Context, _, kind string, _ ...transformer.Focus) transformer.AnalysisResult {
	s.mu.Lock()
	s.analyzed = append(s.analyzed, kind)
	s.mu.Unlock()
	return transformer.AnalysisResult{Analysis: transformer.Analysis{PerformanceScore: 90}, Outcome: transformer.OutcomeOK}
}

func (s *recordingService) Convert(_ context.Context, text, _, _ string) transformer.TextResult {
	return transformer.TextResult{Text: text, Outcome: transformer.OutcomeDegraded}
}

func newDispatcher(svc transformer.Service) *Dispatcher {
	if svc == nil {
		svc = transformer.NewHeuristic()
	}
	return NewDispatcher(svc, NewMinifier(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func recordFor(t *testing.T, root, rel string) report.FileRecord {
	t.Helper()
	hash, size, err := hasher.File(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return report.FileRecord{Path: rel, Type: filetype.Of(rel), Size: size, Hash: hash, CurrentPath: rel}
}

func assertMeasured(t *testing.T, root string, rec report.FileRecord) {
	t.Helper()
	require.True(t, rec.Optimized)
	require.NotNil(t, rec.OptimizedSize)
	require.NotNil(t, rec.OptimizedHash)
	hash, size, err := hasher.File(filepath.Join(root, filepath.FromSlash(rec.CurrentPath)))
	require.NoError(t, err)
	assert.Equal(t, size, *rec.OptimizedSize)
	assert.Equal(t, hash, *rec.OptimizedHash)
}

func TestPlanTargetsAvoidsCollisions(t *testing.T) {
	records := []report.FileRecord{
		{Path: "css/style.scss", Type: "scss"},
		{Path: "css/style.css", Type: "css"},
		{Path: "css/_vars.scss", Type: "scss"},
		{Path: "css/theme.sass", Type: "sass"},
		{Path: "img/logo.png", Type: "png"},
		{Path: "img/logo.jpg", Type: "jpg"},
		{Path: "img/icon.svg", Type: "svg"},
	}
	targets := PlanTargets(records)

	assert.Equal(t, map[string]string{
		"css/style.scss": "css/style.scss.css",
		"css/theme.sass": "css/theme.css",
		"img/logo.jpg":   "img/logo.webp",
		"img/logo.png":   "img/logo.png.webp",
	}, targets)
}

func TestStylesheetCompilesScssAndRenames(t *testing.T) {
	root := writeTree(t, map[string]string{
		"style.scss": "$accent: #ff0000;\n\nbody {\n  .title { color: $accent; }\n}\n",
	})
	d := newDispatcher(nil)
	rec, err := d.Optimize(context.Background(), root, Task{Record: recordFor(t, root, "style.scss"), Options: report.DefaultOptions()})
	require.NoError(t, err)

	assert.Equal(t, "style.scss", rec.Path)
	assert.Equal(t, "style.css", rec.CurrentPath)
	assertMeasured(t, root, rec)
	require.NotNil(t, rec.OptimizedAnalysis)

	_, err = os.Stat(filepath.Join(root, "style.scss"))
	assert.True(t, os.IsNotExist(err))

	css, err := os.ReadFile(filepath.Join(root, "style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "body .title{color:")
	assert.NotContains(t, string(css), "$accent")
	assert.NotContains(t, string(css), "\n")
}

func TestCompiledStylesheetAnalyzedAsCSS(t *testing.T) {
	root := writeTree(t, map[string]string{"theme.scss": "$c: blue;\nbody { color: $c; }\n"})
	svc := &recordingService{}
	rec, err := newDispatcher(svc).Optimize(context.Background(), root, Task{Record: recordFor(t, root, "theme.scss"), Options: report.DefaultOptions()})
	require.NoError(t, err)

	assert.Equal(t, "theme.css", rec.CurrentPath)
	assert.Equal(t, "scss", rec.Type)
	assert.Equal(t, []string{"css"}, svc.analyzed)
}

func TestStylesheetPartialPassesThrough(t *testing.T) {
	root := writeTree(t, map[string]string{"_vars.scss": "$x: 1px;\n"})
	rec, err := newDispatcher(nil).Optimize(context.Background(), root, Task{Record: recordFor(t, root, "_vars.scss")})
	require.NoError(t, err)
	assert.False(t, rec.Optimized)
	assert.FileExists(t, filepath.Join(root, "_vars.scss"))
}

func TestMinifiersAreIdempotent(t *testing.T) {
	m := NewMinifier()

	css := "a {\n  color : red ;\n}\n/* note */\nb { margin: 0px 0px; }\n"
	once, err := m.CSS(css)
	require.NoError(t, err)
	twice, err := m.CSS(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.NotContains(t, once, "note")

	js := "// greeting\nfunction greet(name) {\n  return 'hi ' + name;\n}\n"
	once, err = m.JS(js)
	require.NoError(t, err)
	twice, err = m.JS(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Contains(t, once, "name", "identifiers are kept")
	assert.NotContains(t, once, "greeting")
}

func TestScriptVariants(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app.js":  "/* header */\nvar total = 1 +  2;\n",
		"view.ts": "// comment\nconst n: number = 1;\n",
	})
	d := newDispatcher(nil)
	for _, rel := range []string{"app.js", "view.ts"} {
		rec, err := d.Optimize(context.Background(), root, Task{Record: recordFor(t, root, rel)})
		require.NoError(t, err, rel)
		assertMeasured(t, root, rec)
		assert.Less(t, *rec.OptimizedSize, rec.Size, rel)
	}
}

func TestMarkupAnnotatesExternalResources(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": `<!DOCTYPE html>
<html>
  <head>
    <link rel="stylesheet" href="site.css">
  </head>
  <body>
    <!-- banner -->
    <input type="checkbox" checked="checked">
    <script src="app.js"></script>
    <iframe src="https://example.com/embed"></iframe>
  </body>
</html>`,
	})
	rec, err := newDispatcher(nil).Optimize(context.Background(), root, Task{Record: recordFor(t, root, "index.html")})
	require.NoError(t, err)
	assertMeasured(t, root, rec)

	out, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "banner")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(out))
	require.NoError(t, err)
	_, deferred := doc.Find("script[src]").Attr("defer")
	assert.True(t, deferred)
	assert.Equal(t, "lazy", doc.Find("script[src]").AttrOr("loading", ""))
	assert.Equal(t, "lazy", doc.Find("link").AttrOr("loading", ""))
	assert.Equal(t, "lazy", doc.Find("iframe").AttrOr("loading", ""))
	assert.Zero(t, doc.Find("link[fetchpriority]").Length())
}

func TestMarkupAggressiveRewrites(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": `<html><head><link rel="icon" href="f.ico"></head><body><script>go()</script></body></html>`,
	})
	svc := &recordingService{}
	opts := report.Options{Aggressive: true}
	rec, err := newDispatcher(svc).Optimize(context.Background(), root, Task{Record: recordFor(t, root, "index.html"), Options: opts})
	require.NoError(t, err)
	assertMeasured(t, root, rec)

	out, err := os.ReadFile(filepath.Join(root, "index.html"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(out), "/*rewritten*/"))
	assert.Contains(t, string(out), "fetchpriority=high")
	assert.Equal(t, []string{"HTML"}, svc.kinds)
}

func TestAggressiveRewriteDegradesToMinifiedText(t *testing.T) {
	root := writeTree(t, map[string]string{"a.css": "a { color: red; }"})
	svc := &recordingService{failWrite: true}
	rec, err := newDispatcher(svc).Optimize(context.Background(), root,
		Task{Record: recordFor(t, root, "a.css"), Options: report.Options{Aggressive: true}})
	require.NoError(t, err)
	assertMeasured(t, root, rec)

	out, err := os.ReadFile(filepath.Join(root, "a.css"))
	require.NoError(t, err)
	assert.Equal(t, "a{color:red}", string(out))
}

func alphaPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: uint8(x * 16)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// webpHasAlpha inspects the RIFF container for an alpha plane.
func webpHasAlpha(data []byte) bool {
	if len(data) < 21 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return false
	}
	switch string(data[12:16]) {
	case "VP8X":
		return data[20]&0x10 != 0
	case "VP8L":
		return true
	}
	return bytes.Contains(data, []byte("ALPH"))
}

func TestRasterEncodesWebPKeepingAlpha(t *testing.T) {
	root := writeTree(t, map[string]string{"img/logo.png": string(alphaPNG(t))})
	task := Task{Record: recordFor(t, root, "img/logo.png"), Target: "img/logo.webp"}
	rec, err := newDispatcher(nil).Optimize(context.Background(), root, task)
	require.NoError(t, err)

	assert.Equal(t, "img/logo.webp", rec.CurrentPath)
	assertMeasured(t, root, rec)
	assert.Nil(t, rec.OptimizedAnalysis)
	assert.NoFileExists(t, filepath.Join(root, "img", "logo.png"))

	data, err := os.ReadFile(filepath.Join(root, "img", "logo.webp"))
	require.NoError(t, err)
	assert.True(t, webpHasAlpha(data))
}

func TestRasterFailureKeepsOriginal(t *testing.T) {
	root := writeTree(t, map[string]string{"broken.png": "not an image"})
	pre := recordFor(t, root, "broken.png")
	rec, err := newDispatcher(nil).Optimize(context.Background(), root, Task{Record: pre})
	require.ErrorIs(t, err, ErrTransformFailed)

	assert.False(t, rec.Optimized)
	assert.Equal(t, "broken.png", rec.CurrentPath)
	assert.NotEmpty(t, rec.Error)
	assert.FileExists(t, filepath.Join(root, "broken.png"))
	assert.NoFileExists(t, filepath.Join(root, "broken.webp"))
}

func TestHasAlpha(t *testing.T) {
	opaque := image.NewRGBA(image.Rect(0, 0, 2, 2))
	black := color.RGBA{A: 255}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			opaque.Set(x, y, black)
		}
	}
	assert.False(t, HasAlpha(opaque))

	pal := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black, color.Transparent})
	assert.True(t, HasAlpha(pal))
	assert.False(t, HasAlpha(image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black})))
}

func TestOpaquePassesThrough(t *testing.T) {
	root := writeTree(t, map[string]string{"icon.svg": "<svg/>", "README": "x"})
	d := newDispatcher(nil)
	for _, rel := range []string{"icon.svg", "README"} {
		pre := recordFor(t, root, rel)
		rec, err := d.Optimize(context.Background(), root, Task{Record: pre})
		require.NoError(t, err)
		assert.Equal(t, pre, rec)
	}
}

func TestEnsureSEOTags(t *testing.T) {
	countDesc := func(t *testing.T, out string) *goquery.Selection {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
		require.NoError(t, err)
		return doc.Find(`meta[name="description"]`)
	}

	out, fix, err := EnsureSEOTags(`<html><head><title> Acme  Tools </title></head><body></body></html>`, "index.html", "en")
	require.NoError(t, err)
	assert.True(t, fix.Charset && fix.Description && fix.Lang)
	desc := countDesc(t, out)
	require.Equal(t, 1, desc.Length())
	assert.Equal(t, "Acme Tools", desc.AttrOr("content", ""))
	assert.Contains(t, out, `<meta charset="utf-8"/>`)
	assert.Contains(t, out, `lang="en"`)

	out, _, err = EnsureSEOTags(`<html><body><h1>Hello &amp; welcome</h1></body></html>`, "a/about.html", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello & welcome", countDesc(t, out).AttrOr("content", ""))
	assert.NotContains(t, out, "lang=")

	out, _, err = EnsureSEOTags(`<p>plain</p>`, "pages/contact.htm", "")
	require.NoError(t, err)
	assert.Equal(t, "contact", countDesc(t, out).AttrOr("content", ""))

	dup := `<html lang="fr"><head><meta charset="utf-8"><meta name="description" content="a"><meta name="Description" content="b"></head></html>`
	out, fix, err = EnsureSEOTags(dup, "x.html", "en")
	require.NoError(t, err)
	assert.True(t, fix.Description)
	assert.False(t, fix.Lang)
	assert.False(t, fix.Charset)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("meta[name]").Length())

	complete := `<html lang="en"><head><meta charset="utf-8"><meta name="description" content="ok"></head></html>`
	out, fix, err = EnsureSEOTags(complete, "x.html", "en")
	require.NoError(t, err)
	assert.False(t, fix.Changed())
	assert.Equal(t, complete, out)
}
