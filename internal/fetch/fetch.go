// Package fetch gathers web evidence for a query: it searches, downloads
// the top result pages and extracts their readable text.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abadojack/whatlanggo"
	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/TobiSchelling/swift/internal/model"
	"github.com/TobiSchelling/swift/internal/search"
)

const (
	minContentLen = 100
	maxBodyBytes  = 4 << 20
	defaultLang   = "en"
)

// Options configures a Fetcher.
type Options struct {
	Results   int           // search hits to request and download
	Parallel  int           // concurrent page downloads
	Timeout   time.Duration // per page download
	Language  string        // answer language override; empty means detect
	UserAgent string
}

// Fetcher is the web-content stage of the pipeline.
type Fetcher struct {
	searcher  search.Searcher
	client    *http.Client
	results   int
	parallel  int
	language  string
	userAgent string
}

// New creates a Fetcher. A language override must be a valid BCP 47 tag.
func New(s search.Searcher, opts Options) (*Fetcher, error) {
	if opts.Results <= 0 {
		opts.Results = 5
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "swift/1.0 (idea triage)"
	}

	lang := ""
	if opts.Language != "" {
		l, err := canonicalLanguage(opts.Language)
		if err != nil {
			return nil, model.NewError(model.KindValidation, err, "fetch: language override")
		}
		lang = l
	}

	return &Fetcher{
		searcher: s,
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		results:   opts.Results,
		parallel:  opts.Parallel,
		language:  lang,
		userAgent: opts.UserAgent,
	}, nil
}

// page is the outcome of downloading one search hit.
type page struct {
	doc  model.FetchedDocument
	lang string
	ok   bool
}

// Fetch searches for query and returns the readable text of the top hits
// together with the search metadata. A failed search is a KindFetch error;
// individual pages that cannot be downloaded are skipped.
func (f *Fetcher) Fetch(ctx context.Context, query string) ([]model.FetchedDocument, model.SearchMeta, error) {
	query = strings.TrimSpace(query)
	meta := model.SearchMeta{Query: query, Language: f.language}
	if query == "" {
		return nil, meta, model.NewError(model.KindFetch, nil, "fetch: empty query")
	}

	hits, err := f.searcher.Search(ctx, query, f.results)
	if err != nil {
		meta.Language = f.detectLanguage(query, "")
		return nil, meta, model.NewError(model.KindFetch, err, "fetch: search")
	}

	meta.Links = make([]string, len(hits))
	for i, h := range hits {
		meta.Links[i] = h.Link
	}

	pages := make([]page, len(hits))
	failedHosts := &hostSet{m: make(map[string]struct{})}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)
	for i, h := range hits {
		g.Go(func() error {
			pages[i] = f.fetchPage(gctx, h, failedHosts)
			return nil
		})
	}
	_ = g.Wait()

	var docs []model.FetchedDocument
	htmlLang := ""
	for _, p := range pages {
		if !p.ok {
			continue
		}
		if htmlLang == "" {
			htmlLang = p.lang
		}
		docs = append(docs, p.doc)
	}
	meta.Language = f.detectLanguage(query, htmlLang)

	zap.L().Debug("fetched documents",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Int("documents", len(docs)),
		zap.String("language", meta.Language),
	)
	return docs, meta, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, hit model.SearchHit, failed *hostSet) page {
	p := page{doc: model.FetchedDocument{URL: hit.Link, Title: hit.Title, Rank: hit.Rank}}

	u, err := url.Parse(hit.Link)
	if err != nil || u.Host == "" {
		zap.L().Debug("skipping invalid result link", zap.String("url", hit.Link))
		return p
	}
	host := strings.ToLower(u.Host)
	if failed.has(host) {
		return p
	}

	body, err := f.download(ctx, hit.Link)
	if err != nil {
		var he *httpError
		if errors.As(err, &he) {
			failed.add(host)
		}
		zap.L().Debug("page download failed", zap.String("url", hit.Link), zap.Error(err))
		return p
	}

	text, lang := extractText(body, u)
	if len(text) < minContentLen {
		text = strings.TrimSpace(hit.Snippet)
	}
	if text == "" {
		return p
	}
	p.doc.Content = text
	p.lang = lang
	p.ok = true
	return p
}

func (f *Fetcher) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, eris.Wrap(err, "creating request")
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// extractText returns the main text of an HTML page and its declared
// language. Readability is tried first; short results fall back to the
// whole body text.
func extractText(body []byte, pageURL *url.URL) (text, lang string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		text = normalizeSpace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return text, ""
	}
	lang, _ = doc.Find("html").Attr("lang")

	if len(text) < minContentLen {
		doc.Find("script, style, noscript, nav, footer, header").Remove()
		if fallback := normalizeSpace(doc.Find("body").Text()); len(fallback) > len(text) {
			text = fallback
		}
	}
	return text, lang
}

// detectLanguage picks the answer language: the override, then the
// detected query language, then the first page's declared language.
func (f *Fetcher) detectLanguage(query, htmlLang string) string {
	if f.language != "" {
		return f.language
	}
	if info := whatlanggo.Detect(query); info.IsReliable() {
		if code := info.Lang.Iso6391(); code != "" {
			return code
		}
	}
	if htmlLang != "" {
		if l, err := canonicalLanguage(htmlLang); err == nil {
			return l
		}
	}
	return defaultLang
}

// canonicalLanguage reduces a BCP 47 tag ("en-GB", "DE") to its ISO 639-1
// base ("en", "de").
func canonicalLanguage(tag string) (string, error) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", eris.Wrapf(err, "invalid language %q", tag)
	}
	base, _ := t.Base()
	return base.String(), nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type hostSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func (s *hostSet) has(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[host]
	return ok
}

func (s *hostSet) add(host string) {
	s.mu.Lock()
	s.m[host] = struct{}{}
	s.mu.Unlock()
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return "HTTP " + http.StatusText(e.code)
}
