package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/swift/internal/model"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPISearcher searches articles through NewsAPI.
type NewsAPISearcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewNewsAPISearcher creates a new NewsAPI client.
func NewNewsAPISearcher(apiKey, baseURL string, timeout time.Duration, perSecond float64) *NewsAPISearcher {
	if baseURL == "" {
		baseURL = newsAPIBaseURL
	}
	return &NewsAPISearcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(perSecond),
	}
}

// Name identifies the provider.
func (c *NewsAPISearcher) Name() string { return "newsapi" }

// IsConfigured returns whether the API key is available.
func (c *NewsAPISearcher) IsConfigured() bool {
	return c.apiKey != ""
}

// Search searches for articles matching a query, by relevancy.
func (c *NewsAPISearcher) Search(ctx context.Context, query string, n int) ([]model.SearchHit, error) {
	if c.apiKey == "" {
		return nil, eris.New("newsapi: API key not configured")
	}
	if err := wait(ctx, c.limiter); err != nil {
		return nil, eris.Wrap(err, "newsapi: rate limit")
	}

	pageSize := n
	if pageSize > 100 {
		pageSize = 100
	}
	params := url.Values{
		"q":        {query},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "newsapi: creating request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "newsapi: sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, eris.Errorf("newsapi: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Content     string `json:"content"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, eris.Wrap(err, "newsapi: decoding response")
	}
	if result.Status != "ok" {
		return nil, eris.Errorf("newsapi: status %q: %s", result.Status, result.Message)
	}

	var hits []model.SearchHit
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}
		snippet := a.Description
		if snippet == "" {
			snippet = a.Content
		}
		hits = append(hits, model.SearchHit{
			Title:   strings.TrimSpace(a.Title),
			Link:    a.URL,
			Snippet: htmlText(snippet),
			Rank:    len(hits) + 1,
		})
		if len(hits) >= n {
			break
		}
	}

	zap.L().Debug("newsapi search", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}
