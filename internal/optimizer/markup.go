package optimizer

import (
	"context"
	"fmt"
	"html"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/mtiwari1/siteopt/internal/report"
)

const maxDescriptionLen = 160

func (d *Dispatcher) markup(ctx context.Context, root string, task Task) (report.FileRecord, error) {
	rel := task.Record.Path
	_, src, err := d.read(root, rel)
	if err != nil {
		return report.FileRecord{}, err
	}

	out, err := d.min.HTML(src)
	if err != nil {
		return report.FileRecord{}, err
	}
	out, err = Annotate(out, task.Options.Aggressive)
	if err != nil {
		return report.FileRecord{}, err
	}
	// The parser re-serializes the whole document; minify again to drop what it adds back.
	if out, err = d.min.HTML(out); err != nil {
		return report.FileRecord{}, err
	}
	if task.Options.Aggressive {
		out = d.rewrite(ctx, rel, out, "HTML")
	}
	return d.commit(ctx, root, task, rel, out)
}

// Annotate adds loading hints to tags referencing external resources: scripts with a src
// are deferred and lazy, links and iframes are lazy. Aggressive mode also
// defers every script and marks every link high priority.
func Annotate(src string, aggressive bool) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script[src]").SetAttr("defer", "").SetAttr("loading", "lazy")
	doc.Find("link[href], iframe[src]").SetAttr("loading", "lazy")
	if aggressive {
		doc.Find("script").SetAttr("defer", "")
		doc.Find("link").SetAttr("fetchpriority", "high")
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

// SEOFix lists what EnsureSEOTags changed.
type SEOFix struct {
	Charset     bool
	Description bool
	Lang        bool
}

// Changed reports whether any tag was added or removed.
func (f SEOFix) Changed() bool { return f.Charset || f.Description || f.Lang }

// EnsureSEOTags makes a document carry a charset declaration and exactly one meta
// description. The description is taken from the title, then the first h1, then the file
// name. With lang set, a missing <html lang> is filled in as well.
func EnsureSEOTags(src, filename, lang string) (string, SEOFix, error) {
	var fix SEOFix
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fix, fmt.Errorf("parse html: %w", err)
	}
	head := doc.Find("head").First()

	if doc.Find("meta[charset]").Length() == 0 && !hasContentTypeMeta(doc) {
		head.PrependHtml(`<meta charset="utf-8">`)
		fix.Charset = true
	}

	descs := doc.Find("meta[name]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		return strings.EqualFold(strings.TrimSpace(name), "description")
	})
	switch {
	case descs.Length() == 0:
		content := html.EscapeString(describe(doc, filename))
		head.AppendHtml(`<meta name="description" content="` + content + `">`)
		fix.Description = true
	case descs.Length() > 1:
		descs.Slice(1, goquery.ToEnd).Remove()
		fix.Description = true
	}

	if lang != "" {
		root := doc.Find("html").First()
		if v, ok := root.Attr("lang"); !ok || strings.TrimSpace(v) == "" {
			root.SetAttr("lang", lang)
			fix.Lang = true
		}
	}

	if !fix.Changed() {
		return src, fix, nil
	}
	out, err := doc.Html()
	if err != nil {
		return "", fix, fmt.Errorf("render html: %w", err)
	}
	return out, fix, nil
}

func hasContentTypeMeta(doc *goquery.Document) bool {
	found := false
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("http-equiv")
		content, _ := s.Attr("content")
		found = strings.EqualFold(v, "content-type") && strings.Contains(strings.ToLower(content), "charset")
		return !found
	})
	return found
}

func describe(doc *goquery.Document, filename string) string {
	for _, sel := range []string{"title", "h1"} {
		if text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); text != "" {
			return truncate(text, maxDescriptionLen)
		}
	}
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
