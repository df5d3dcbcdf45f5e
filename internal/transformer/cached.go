package transformer

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mtiwari1/siteopt/internal/hasher"
)

// ResultCache is the byte store consulted before calling the provider.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Observer receives one event per provider call, cached or not.
type Observer interface {
	ObserveTransform(op, outcome string, cached bool)
}

// Cached decorates a Service with fingerprint-keyed result caching.
// Only OutcomeOK results are stored so a provider outage is never memoized.
type Cached struct {
	next     Service
	cache    ResultCache
	observer Observer
}

// NewCached wraps next. observer may be nil.
func NewCached(next Service, cache ResultCache, observer Observer) *Cached {
	return &Cached{next: next, cache: cache, observer: observer}
}

func (c *Cached) Optimize(ctx context.Context, text, kind string) TextResult {
	key := cacheKey("optimize", kind, text)
	if v, ok := c.cache.Get(ctx, key); ok {
		c.observe("optimize", OutcomeOK, true)
		return TextResult{Text: string(v), Outcome: OutcomeOK}
	}
	res := c.next.Optimize(ctx, text, kind)
	c.observe("optimize", res.Outcome, false)
	if res.OK() {
		c.cache.Set(ctx, key, []byte(res.Text))
	}
	return res
}

func (c *Cached) Analyze(ctx context.Context, text, kind string, focus ...Focus) AnalysisResult {
	key := cacheKey("analyze", kind+focusKey(focus), text)
	if v, ok := c.cache.Get(ctx, key); ok {
		var a Analysis
		if err := json.Unmarshal(v, &a); err == nil {
			c.observe("analyze", OutcomeOK, true)
			return AnalysisResult{Analysis: a, Outcome: OutcomeOK}
		}
	}
	res := c.next.Analyze(ctx, text, kind, focus...)
	c.observe("analyze", res.Outcome, false)
	if res.OK() {
		if b, err := json.Marshal(res.Analysis); err == nil {
			c.cache.Set(ctx, key, b)
		}
	}
	return res
}

func (c *Cached) Convert(ctx context.Context, text, from, to string) TextResult {
	key := cacheKey("convert", from+">"+to, text)
	if v, ok := c.cache.Get(ctx, key); ok {
		c.observe("convert", OutcomeOK, true)
		return TextResult{Text: string(v), Outcome: OutcomeOK}
	}
	res := c.next.Convert(ctx, text, from, to)
	c.observe("convert", res.Outcome, false)
	if res.OK() {
		c.cache.Set(ctx, key, []byte(res.Text))
	}
	return res
}

func (c *Cached) observe(op string, o Outcome, cached bool) {
	if c.observer != nil {
		c.observer.ObserveTransform(op, o.String(), cached)
	}
}

func cacheKey(op, variant, text string) string {
	return op + ":" + strings.ToLower(variant) + ":" + hasher.Bytes([]byte(text))
}

func focusKey(focus []Focus) string {
	if len(focus) == 0 {
		return ""
	}
	parts := make([]string, len(focus))
	for i, f := range focus {
		parts[i] = string(f)
	}
	sort.Strings(parts)
	return "+" + strings.Join(parts, "+")
}
