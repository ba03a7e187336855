// Package cluster groups near-duplicate ideas of a run.
package cluster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/llm"
	"github.com/TobiSchelling/swift/internal/model"
)

// DefaultDistanceThreshold joins ideas whose unit embeddings lie within
// this Ward distance, roughly a cosine similarity of 0.94 for a pair.
const DefaultDistanceThreshold = 0.35

// Grouper labels near-duplicate ideas using embeddings and Ward linkage.
type Grouper struct {
	embedder          llm.Embedder
	distanceThreshold float64
}

// NewGrouper creates a new Grouper.
func NewGrouper(embedder llm.Embedder, distanceThreshold float64) *Grouper {
	if distanceThreshold <= 0 {
		distanceThreshold = DefaultDistanceThreshold
	}
	return &Grouper{embedder: embedder, distanceThreshold: distanceThreshold}
}

// Group sets DuplicateGroup on items that share a cluster with at least one
// other item. Groups are numbered from 1 in input order; singletons keep 0.
func (g *Grouper) Group(ctx context.Context, items []model.ItemResult) error {
	for i := range items {
		items[i].DuplicateGroup = 0
	}
	if len(items) < 2 {
		return nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Idea.Query()
	}

	vecs, err := g.embedder.Embed(ctx, texts)
	if err != nil {
		return eris.Wrap(err, "cluster: embed ideas")
	}
	if len(vecs) != len(items) {
		return eris.Errorf("cluster: got %d embeddings for %d ideas", len(vecs), len(items))
	}
	for i := range vecs {
		vecs[i] = unit(vecs[i])
	}

	labels := cutDendrogram(wardLinkage(pairwiseDistances(vecs)), len(vecs), g.distanceThreshold)

	members := make(map[int]int)
	for _, l := range labels {
		members[l]++
	}
	group := make(map[int]int)
	for i, l := range labels {
		if members[l] < 2 {
			continue
		}
		if _, ok := group[l]; !ok {
			group[l] = len(group) + 1
		}
		items[i].DuplicateGroup = group[l]
	}

	zap.L().Info("duplicate grouping complete",
		zap.Int("ideas", len(items)),
		zap.Int("groups", len(group)),
	)
	return nil
}

func unit(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
