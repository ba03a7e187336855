// Package search queries web-search providers for evidence about an idea.
package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/swift/internal/model"
)

// Searcher runs one web search and returns up to n hits in rank order.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]model.SearchHit, error)
	Name() string
}

// wait blocks on the limiter when one is set.
func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// newLimiter returns a limiter allowing perSecond requests, or nil when
// perSecond is not positive.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Multi queries several providers in order and merges their hits,
// de-duplicated by URL.
type Multi struct {
	providers []Searcher
}

// NewMulti creates a Multi over providers.
func NewMulti(providers ...Searcher) *Multi {
	return &Multi{providers: providers}
}

// Name lists the wrapped providers.
func (m *Multi) Name() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

// Search collects hits from each provider until n unique links are found.
// A failing provider is skipped; the error is returned only when every
// provider failed.
func (m *Multi) Search(ctx context.Context, query string, n int) ([]model.SearchHit, error) {
	if len(m.providers) == 0 {
		return nil, eris.New("search: no providers configured")
	}

	seen := make(map[string]struct{})
	var hits []model.SearchHit
	var lastErr error
	failed := 0

	for _, p := range m.providers {
		if len(hits) >= n {
			break
		}
		res, err := p.Search(ctx, query, n)
		if err != nil {
			zap.L().Warn("search provider failed", zap.String("provider", p.Name()), zap.Error(err))
			lastErr = err
			failed++
			continue
		}
		for _, h := range res {
			key := normalizeURL(h.Link)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			h.Rank = len(hits) + 1
			hits = append(hits, h)
			if len(hits) >= n {
				break
			}
		}
	}

	if failed == len(m.providers) {
		return nil, eris.Wrap(lastErr, "search: all providers failed")
	}
	return hits, nil
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Path = strings.TrimRight(u.Path, "/")
	return u.Scheme + "://" + u.Host + u.Path + querySuffix(u)
}

func querySuffix(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// htmlText flattens an HTML fragment to whitespace-normalised text.
func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
