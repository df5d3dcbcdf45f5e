package optimizer

import (
	"fmt"
	"regexp"

	"github.com/dchest/jsmin"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

const (
	mediaHTML = "text/html"
	mediaCSS  = "text/css"
	mediaJS   = "application/javascript"
)

var scriptMedia = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`)

// Minifier is the deterministic markup/stylesheet/script minifier set.
// A single instance is shared by every task.
type Minifier struct {
	m *minify.M
}

func NewMinifier() *Minifier {
	m := minify.New()
	m.Add(mediaHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
	})
	m.AddFunc(mediaCSS, css.Minify)
	m.AddRegexp(scriptMedia, &js.Minifier{KeepVarNames: true})
	return &Minifier{m: m}
}

// HTML strips comments and insignificant whitespace and collapses boolean attributes.
// Inline styles and scripts are minified too.
func (m *Minifier) HTML(src string) (string, error) {
	out, err := m.m.String(mediaHTML, src)
	if err != nil {
		return "", fmt.Errorf("minify html: %w", err)
	}
	return out, nil
}

func (m *Minifier) CSS(src string) (string, error) {
	out, err := m.m.String(mediaCSS, src)
	if err != nil {
		return "", fmt.Errorf("minify css: %w", err)
	}
	return out, nil
}

// JS minifies plain JavaScript keeping identifiers. Sources the JS parser rejects
// (newer syntax, stray JSX) fall back to the whitespace-only jsmin pass.
func (m *Minifier) JS(src string) (string, error) {
	out, err := m.m.String(mediaJS, src)
	if err == nil {
		return out, nil
	}
	return JSMin(src)
}

// JSMin is the whitespace and comment stripper used for jsx, ts and tsx.
func JSMin(src string) (string, error) {
	out, err := jsmin.Minify([]byte(src))
	if err != nil {
		return "", fmt.Errorf("jsmin: %w", err)
	}
	return string(out), nil
}
