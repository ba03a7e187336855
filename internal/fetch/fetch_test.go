package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/swift/internal/model"
)

type stubSearcher struct {
	hits  []model.SearchHit
	err   error
	calls int
}

func (s *stubSearcher) Name() string { return "stub" }

func (s *stubSearcher) Search(_ context.Context, _ string, _ int) ([]model.SearchHit, error) {
	s.calls++
	return s.hits, s.err
}

var longParagraph = strings.Repeat("Refill stations let people top up reusable bottles with filtered water. ", 12)

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html lang="en"><head><title>Refill</title></head><body>
			<nav>menu</nav><article><h1>Refill stations</h1>
			<p>`+longParagraph+`</p><p>`+longParagraph+`</p></article></body></html>`)
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><p>Tiny</p></body></html>`)
	})
	return httptest.NewServer(mux)
}

func TestFetchEmptyQuery(t *testing.T) {
	s := &stubSearcher{}
	f, err := New(s, Options{})
	require.NoError(t, err)

	docs, meta, err := f.Fetch(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindFetch))
	assert.Empty(t, docs)
	assert.Empty(t, meta.Links)
	assert.Equal(t, 0, s.calls)
}

func TestFetchSearchFailure(t *testing.T) {
	s := &stubSearcher{err: errors.New("429 too many requests")}
	f, err := New(s, Options{Language: "en"})
	require.NoError(t, err)

	docs, meta, err := f.Fetch(context.Background(), "plastic bottles")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindFetch))
	assert.Nil(t, docs)
	assert.Equal(t, "plastic bottles", meta.Query)
	assert.Equal(t, "en", meta.Language)
}

func TestFetchDownloadsPages(t *testing.T) {
	good := pageServer(t)
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	s := &stubSearcher{hits: []model.SearchHit{
		{Title: "Refill", Link: good.URL + "/article", Snippet: "refill snippet", Rank: 1},
		{Title: "Gone", Link: bad.URL + "/missing", Snippet: "gone snippet", Rank: 2},
		{Title: "Short", Link: good.URL + "/short", Snippet: "Short page snippet", Rank: 3},
	}}
	f, err := New(s, Options{Results: 3, Parallel: 2, Language: "en-GB"})
	require.NoError(t, err)

	docs, meta, err := f.Fetch(context.Background(), "  plastic bottles  ")
	require.NoError(t, err)

	assert.Equal(t, "plastic bottles", meta.Query)
	assert.Equal(t, "en", meta.Language)
	assert.Equal(t, []string{good.URL + "/article", bad.URL + "/missing", good.URL + "/short"}, meta.Links)

	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].Rank)
	assert.Contains(t, docs[0].Content, "Refill stations let people top up")
	assert.GreaterOrEqual(t, len(docs[0].Content), minContentLen)
	assert.Equal(t, 3, docs[1].Rank)
	assert.Equal(t, "Short page snippet", docs[1].Content)
}

func TestFetchNoHits(t *testing.T) {
	f, err := New(&stubSearcher{}, Options{})
	require.NoError(t, err)

	docs, meta, err := f.Fetch(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, meta.Links)
	assert.NotEmpty(t, meta.Language)
}

func TestNewRejectsBadLanguage(t *testing.T) {
	_, err := New(&stubSearcher{}, Options{Language: "not a language!"})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestCanonicalLanguage(t *testing.T) {
	for in, want := range map[string]string{"en-GB": "en", "DE": "de", "fr": "fr", "pt-BR": "pt"} {
		got, err := canonicalLanguage(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDetectLanguagePrefersOverride(t *testing.T) {
	f := &Fetcher{language: "de"}
	assert.Equal(t, "de", f.detectLanguage("The usage of plastic bottles in large cities", ""))

	f = &Fetcher{}
	assert.Equal(t, "fr", f.detectLanguage("", "fr-FR"))
	assert.Equal(t, defaultLang, f.detectLanguage("", ""))
}
