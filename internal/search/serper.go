package search

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/swift/internal/model"
)

const serperBaseURL = "https://google.serper.dev/search"

// SerperSearcher queries the Serper Google search API.
type SerperSearcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSerperSearcher creates a Serper client. An empty baseURL selects the
// public endpoint.
func NewSerperSearcher(apiKey, baseURL string, timeout time.Duration, perSecond float64) *SerperSearcher {
	if baseURL == "" {
		baseURL = serperBaseURL
	}
	return &SerperSearcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(perSecond),
	}
}

// Name identifies the provider.
func (s *SerperSearcher) Name() string { return "serper" }

// IsConfigured returns whether the API key is available.
func (s *SerperSearcher) IsConfigured() bool {
	return s.apiKey != ""
}

// Search performs a single bounded request.
func (s *SerperSearcher) Search(ctx context.Context, query string, n int) ([]model.SearchHit, error) {
	if s.apiKey == "" {
		return nil, eris.New("serper: API key not configured")
	}
	if err := wait(ctx, s.limiter); err != nil {
		return nil, eris.Wrap(err, "serper: rate limit")
	}

	body, err := json.Marshal(map[string]any{"q": query, "num": n})
	if err != nil {
		return nil, eris.Wrap(err, "serper: marshaling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "serper: creating request")
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serper: sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, eris.Errorf("serper: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, eris.Wrap(err, "serper: decoding response")
	}

	var hits []model.SearchHit
	for _, o := range result.Organic {
		if o.Link == "" {
			continue
		}
		hits = append(hits, model.SearchHit{
			Title:   strings.TrimSpace(o.Title),
			Link:    o.Link,
			Snippet: strings.TrimSpace(o.Snippet),
			Rank:    len(hits) + 1,
		})
		if len(hits) >= n {
			break
		}
	}
	return hits, nil
}
