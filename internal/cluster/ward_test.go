package cluster

import (
	"math"
	"testing"
)

func TestPairwiseDistances(t *testing.T) {
	d := pairwiseDistances([][]float64{
		{1.0, 0.0},
		{0.0, 1.0},
		{1.0, 1.0},
	})

	// d(0,1) = 2, d(0,2) = 1, d(1,2) = 1
	expected := [][]float64{{0, 2, 1}, {2, 0, 1}, {1, 1, 0}}
	for i := range expected {
		for j := range expected[i] {
			if math.Abs(d[i][j]-expected[i][j]) > 1e-10 {
				t.Errorf("d[%d][%d] = %f, expected %f", i, j, d[i][j], expected[i][j])
			}
		}
	}
}

func TestWardLinkageMergesClosestFirst(t *testing.T) {
	// 3 similar points + 1 outlier
	points := [][]float64{
		{1.0, 0.0, 0.0},
		{0.95, 0.05, 0.0},
		{0.9, 0.1, 0.0},
		{0.0, 0.0, 1.0},
	}
	merges := wardLinkage(pairwiseDistances(points))

	if len(merges) != 3 {
		t.Fatalf("expected 3 merges, got %d", len(merges))
	}
	if m := merges[0]; m.a == 3 || m.b == 3 {
		t.Errorf("outlier merged first: %+v", m)
	}
	if merges[2].size != 4 {
		t.Errorf("final merge should cover all points, got size %d", merges[2].size)
	}
	for i := 1; i < len(merges); i++ {
		if merges[i].distance < merges[i-1].distance-1e-10 {
			t.Errorf("merge distances should be non-decreasing: %f < %f", merges[i].distance, merges[i-1].distance)
		}
	}
}

func TestWardLinkageTwoPoints(t *testing.T) {
	merges := wardLinkage(pairwiseDistances([][]float64{{0, 0}, {3, 4}}))
	if len(merges) != 1 {
		t.Fatalf("expected 1 merge, got %d", len(merges))
	}
	if math.Abs(merges[0].distance-5) > 1e-10 {
		t.Errorf("expected distance 5, got %f", merges[0].distance)
	}
	if wardLinkage(pairwiseDistances([][]float64{{1}})) != nil {
		t.Error("a single point has no merges")
	}
}

func TestCutDendrogramThreshold(t *testing.T) {
	points := [][]float64{
		{1.0, 0.0, 0.0},
		{0.95, 0.05, 0.0},
		{0.9, 0.1, 0.0},
		{0.0, 0.0, 1.0},
	}
	labels := cutDendrogram(wardLinkage(pairwiseDistances(points)), 4, 1.0)

	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("expected points 0,1,2 in same cluster, got labels %v", labels)
	}
	if labels[3] == labels[0] {
		t.Errorf("expected point 3 in different cluster, got labels %v", labels)
	}
	if labels[0] != 0 || labels[3] != 1 {
		t.Errorf("labels should be numbered in order of appearance, got %v", labels)
	}
}

func TestCutDendrogramAllSeparate(t *testing.T) {
	points := [][]float64{{1.0, 0.0}, {0.0, 1.0}, {-1.0, 0.0}}
	labels := cutDendrogram(wardLinkage(pairwiseDistances(points)), 3, 0.001)

	if labels[0] == labels[1] || labels[1] == labels[2] || labels[0] == labels[2] {
		t.Errorf("expected all separate clusters with tiny threshold, got labels %v", labels)
	}
}

func TestCutDendrogramAllMerged(t *testing.T) {
	points := [][]float64{{1.0, 0.0}, {0.0, 1.0}, {-1.0, 0.0}}
	labels := cutDendrogram(wardLinkage(pairwiseDistances(points)), 3, 100.0)

	if labels[0] != labels[1] || labels[1] != labels[2] {
		t.Errorf("expected all in same cluster with large threshold, got labels %v", labels)
	}
}
