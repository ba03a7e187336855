// Package retrieve ranks fetched document text against a query by
// embedding similarity.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

// Defaults for Options.
const (
	DefaultChunkWords   = 120
	DefaultChunkOverlap = 20
	DefaultTopK         = 5
	DefaultBatchSize    = 64
)

// Options tunes chunking and ranking.
type Options struct {
	ChunkWords   int
	ChunkOverlap int
	TopK         int
	BatchSize    int
}

func (o Options) withDefaults() Options {
	if o.ChunkWords <= 0 {
		o.ChunkWords = DefaultChunkWords
		if o.ChunkOverlap == 0 {
			o.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkWords {
		o.ChunkOverlap = 0
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Retriever is the embedding-ranking stage of the pipeline.
type Retriever struct {
	embedder llm.Embedder
	opts     Options
}

// New creates a Retriever over embedder.
func New(embedder llm.Embedder, opts Options) *Retriever {
	return &Retriever{embedder: embedder, opts: opts.withDefaults()}
}

// TopK is the number of passages returned.
func (r *Retriever) TopK() int { return r.opts.TopK }

type candidate struct {
	text  string
	doc   int
	chunk int
}

// RetrieveEmbeddings chunks docs, embeds the query and every chunk, and
// returns the TopK chunks by cosine similarity. Ties keep document order,
// then chunk order. Documents without text contribute nothing. links maps a
// document index to its source URL when the document has none.
func (r *Retriever) RetrieveEmbeddings(ctx context.Context, docs []model.FetchedDocument, links []string, query string) ([]model.RankedPassage, error) {
	var cands []candidate
	for d, doc := range docs {
		for c, text := range Chunk(doc.Content, r.opts.ChunkWords, r.opts.ChunkOverlap) {
			cands = append(cands, candidate{text: text, doc: d, chunk: c})
		}
	}
	if len(cands) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(cands)+1)
	texts = append(texts, query)
	for _, c := range cands {
		texts = append(texts, c.text)
	}

	vecs, err := r.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	queryVec := vecs[0]
	passages := make([]model.RankedPassage, len(cands))
	for i, c := range cands {
		passages[i] = model.RankedPassage{
			Text:   c.text,
			Source: sourceOf(docs, links, c.doc),
			Score:  CosineSimilarity(queryVec, vecs[i+1]),
			Doc:    c.doc,
			Chunk:  c.chunk,
		}
	}

	// Candidates are already in document/chunk order, so a stable sort
	// keeps that order among equal scores.
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > r.opts.TopK {
		passages = passages[:r.opts.TopK]
	}

	zap.L().Debug("ranked passages",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(cands)),
		zap.Int("kept", len(passages)),
	)
	return passages, nil
}

func (r *Retriever) embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := r.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, model.NewError(model.KindRetrieval, err, "retrieve: embed")
		}
		if len(vecs) != len(batch) {
			return nil, model.NewError(model.KindRetrieval, nil,
				fmt.Sprintf("retrieve: embedder returned %d vectors for %d texts", len(vecs), len(batch)))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func sourceOf(docs []model.FetchedDocument, links []string, i int) string {
	if docs[i].URL != "" {
		return docs[i].URL
	}
	if i < len(links) {
		return links[i]
	}
	return ""
}

// Chunk splits text into windows of size words, each overlapping the
// previous one by overlap words. Whitespace is normalised.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of different length or zero norm score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
