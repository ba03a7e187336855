package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/cluster"
	"github.com/TobiSchelling/swift/internal/config"
	"github.com/TobiSchelling/swift/internal/digest"
	"github.com/TobiSchelling/swift/internal/fetch"
	"github.com/TobiSchelling/swift/internal/judge"
	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/pipeline"
	"github.com/TobiSchelling/swift/internal/retrieve"
	"github.com/TobiSchelling/swift/internal/search"
)

// searchProviders builds every configured search provider, in config order.
func searchProviders(c *config.Config) []search.Searcher {
	timeout := c.SearchTimeout()
	rate := c.Search.RatePerSecond

	var out []search.Searcher
	for _, name := range c.Search.Providers {
		switch strings.ToLower(name) {
		case "serper":
			out = append(out, search.NewSerperSearcher(c.Search.Serper.APIKey, c.Search.Serper.BaseURL, timeout, rate))
		case "newsapi":
			out = append(out, search.NewNewsAPISearcher(c.Search.NewsAPI.APIKey, c.Search.NewsAPI.BaseURL, timeout, rate))
		case "rss":
			out = append(out, search.NewNewsRSSSearcher(c.Search.RSS.BaseURL, c.Search.RSS.Language, c.Search.RSS.Region, timeout, rate))
		}
	}
	return out
}

// buildSearcher keeps only providers that are usable. Keyed providers
// without a key are dropped with a warning.
func buildSearcher(c *config.Config) (search.Searcher, error) {
	var usable []search.Searcher
	for _, s := range searchProviders(c) {
		if k, ok := s.(interface{ IsConfigured() bool }); ok && !k.IsConfigured() {
			zap.L().Warn("search provider has no API key, skipping", zap.String("provider", s.Name()))
			continue
		}
		usable = append(usable, s)
	}
	switch len(usable) {
	case 0:
		return nil, eris.New("no usable search provider (set an API key or add rss to search.providers)")
	case 1:
		return usable[0], nil
	default:
		return search.NewMulti(usable...), nil
	}
}

func buildFetcher(c *config.Config) (*fetch.Fetcher, error) {
	searcher, err := buildSearcher(c)
	if err != nil {
		return nil, err
	}
	return fetch.New(searcher, fetch.Options{
		Results:   c.Search.Results,
		Parallel:  c.Search.Parallel,
		Timeout:   c.SearchTimeout(),
		Language:  c.Evaluation.Language,
		UserAgent: c.Search.UserAgent,
	})
}

func pipelineOptions(c *config.Config) pipeline.Options {
	return pipeline.Options{
		Concurrency: c.Pipeline.Concurrency,
		CallTimeout: c.CallTimeout(),
		Grounding:   c.Pipeline.Grounding,
	}
}

// buildPipeline wires every stage the config enables.
func buildPipeline(c *config.Config) (*pipeline.Pipeline, error) {
	primary, fallback := c.LLMSettings()
	provider, err := llm.CreateProvider(primary, fallback)
	if err != nil {
		return nil, err
	}

	// The pipeline bounds each call itself.
	stages := pipeline.Stages{Judge: judge.NewEngine(provider, 0)}

	needEmbedder := c.Pipeline.Grounding || c.Pipeline.Dedupe
	var embedder llm.Embedder
	if needEmbedder {
		embedder, err = llm.CreateEmbedder(c.EmbeddingSettings())
		if err != nil {
			return nil, err
		}
	}

	if c.Pipeline.Grounding {
		fetcher, err := buildFetcher(c)
		if err != nil {
			return nil, err
		}
		stages.Fetcher = fetcher
		stages.Retriever = retrieve.New(embedder, retrieve.Options{
			ChunkWords:   c.Embedding.ChunkWords,
			ChunkOverlap: c.Embedding.ChunkOverlap,
			TopK:         c.Embedding.TopK,
			BatchSize:    c.Embedding.BatchSize,
		})
	}
	if c.Pipeline.Dedupe {
		stages.Grouper = cluster.NewGrouper(embedder, c.Pipeline.DedupeThreshold)
	}
	if c.Pipeline.Digest {
		stages.Digester = digest.NewComposer(provider, c.Pipeline.DigestMaxTokens)
	}

	return pipeline.New(stages, pipelineOptions(c)), nil
}
