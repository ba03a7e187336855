package search

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/swift/internal/model"
)

const newsRSSBaseURL = "https://news.google.com/rss/search"

// NewsRSSSearcher searches a news RSS endpoint. It needs no API key.
type NewsRSSSearcher struct {
	baseURL  string
	language string
	region   string
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewNewsRSSSearcher creates an RSS searcher. language and region select
// the edition (e.g. "en", "US").
func NewNewsRSSSearcher(baseURL, language, region string, timeout time.Duration, perSecond float64) *NewsRSSSearcher {
	if baseURL == "" {
		baseURL = newsRSSBaseURL
	}
	if language == "" {
		language = "en"
	}
	if region == "" {
		region = "US"
	}
	return &NewsRSSSearcher{
		baseURL:  baseURL,
		language: language,
		region:   region,
		timeout:  timeout,
		limiter:  newLimiter(perSecond),
	}
}

// Name identifies the provider.
func (s *NewsRSSSearcher) Name() string { return "newsrss" }

func (s *NewsRSSSearcher) feedURL(query string) string {
	params := url.Values{
		"q":    {query},
		"hl":   {s.language + "-" + s.region},
		"gl":   {s.region},
		"ceid": {s.region + ":" + s.language},
	}
	return s.baseURL + "?" + params.Encode()
}

// Search fetches the RSS result feed for query.
func (s *NewsRSSSearcher) Search(ctx context.Context, query string, n int) ([]model.SearchHit, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return nil, eris.Wrap(err, "newsrss: rate limit")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	parser := gofeed.NewParser()
	parser.UserAgent = "swift/1.0 (+idea triage)"
	feed, err := parser.ParseURLWithContext(s.feedURL(query), ctx)
	if err != nil {
		return nil, eris.Wrap(err, "newsrss: parsing feed")
	}

	var hits []model.SearchHit
	for _, item := range feed.Items {
		if len(hits) >= n {
			break
		}
		hit, ok := itemHit(item)
		if !ok {
			continue
		}
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	return hits, nil
}

func itemHit(item *gofeed.Item) (model.SearchHit, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return model.SearchHit{}, false
	}

	snippet := item.Description
	if snippet == "" {
		snippet = item.Content
	}
	return model.SearchHit{
		Title:   title,
		Link:    link,
		Snippet: htmlText(snippet),
	}, true
}
