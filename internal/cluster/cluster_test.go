package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/TobiSchelling/swift/internal/model"
)

// mockEmbedder implements llm.Embedder for testing.
type mockEmbedder struct {
	embeddings [][]float64
	err        error
	calls      int
}

func (m *mockEmbedder) Embed(_ context.Context, _ []string) ([][]float64, error) {
	m.calls++
	return m.embeddings, m.err
}

func items(problems ...string) []model.ItemResult {
	out := make([]model.ItemResult, len(problems))
	for i, p := range problems {
		out[i] = model.ItemResult{Idea: model.Idea{Row: i, Problem: p}}
	}
	return out
}

func TestGroupSingleItemSkipsEmbedding(t *testing.T) {
	emb := &mockEmbedder{}
	its := items("solo")
	its[0].DuplicateGroup = 3

	if err := NewGrouper(emb, 0).Group(context.Background(), its); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedding call, got %d", emb.calls)
	}
	if its[0].DuplicateGroup != 0 {
		t.Errorf("expected group reset to 0, got %d", its[0].DuplicateGroup)
	}
}

func TestGroupNearDuplicates(t *testing.T) {
	emb := &mockEmbedder{embeddings: [][]float64{
		{0.0, 0.0, 1.0},  // modular phones
		{10.0, 0.5, 0.0}, // refill bottles
		{0.0, 0.1, 2.0},  // modular phones again, different scale
		{9.0, 0.6, 0.0},  // refill bottles again
		{0.0, 5.0, -1.0}, // unrelated
	}}
	its := items("phones", "bottles", "phones 2", "bottles 2", "other")

	if err := NewGrouper(emb, DefaultDistanceThreshold).Group(context.Background(), its); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{1, 2, 1, 2, 0}
	for i, it := range its {
		if it.DuplicateGroup != want[i] {
			t.Errorf("item %d: expected group %d, got %d", i, want[i], it.DuplicateGroup)
		}
	}
}

func TestGroupEmbedderFailure(t *testing.T) {
	its := items("a", "b")
	err := NewGrouper(&mockEmbedder{err: errors.New("down")}, 0).Group(context.Background(), its)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, it := range its {
		if it.DuplicateGroup != 0 {
			t.Errorf("expected no groups after failure, got %d", it.DuplicateGroup)
		}
	}
}

func TestGroupEmbeddingCountMismatch(t *testing.T) {
	emb := &mockEmbedder{embeddings: [][]float64{{1, 0}}}
	if err := NewGrouper(emb, 0).Group(context.Background(), items("a", "b")); err == nil {
		t.Fatal("expected error for missing embeddings")
	}
}

func TestUnit(t *testing.T) {
	v := unit([]float64{3, 4})
	if n := v[0]*v[0] + v[1]*v[1]; n < 0.999999 || n > 1.000001 {
		t.Errorf("expected unit length, got %f", n)
	}
	if z := unit([]float64{0, 0}); z[0] != 0 || z[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", z)
	}
}
