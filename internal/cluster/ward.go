package cluster

import "math"

// merge records a single merge step in the dendrogram.
type merge struct {
	a, b     int     // cluster ids: 0..n-1 are points, n+s is the cluster made at step s
	distance float64 // Ward distance at which a and b joined
	size     int
}

// pairwiseDistances returns the full matrix of squared Euclidean distances.
func pairwiseDistances(vecs [][]float64) [][]float64 {
	n := len(vecs)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for k := range vecs[i] {
				diff := vecs[i][k] - vecs[j][k]
				sum += diff * diff
			}
			d[i][j], d[j][i] = sum, sum
		}
	}
	return d
}

// wardLinkage runs agglomerative clustering with Ward's criterion, using
// the Lance-Williams update on squared distances. The matrix is consumed.
// Merge distances are reported as Euclidean and never decrease.
func wardLinkage(d [][]float64) []merge {
	n := len(d)
	if n < 2 {
		return nil
	}

	// slot i holds cluster id[i] of size[i] while active[i]
	id := make([]int, n)
	size := make([]int, n)
	active := make([]bool, n)
	for i := range id {
		id[i], size[i], active[i] = i, 1, true
	}

	merges := make([]merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		minI, minJ, minD := -1, -1, math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < minD {
					minI, minJ, minD = i, j, d[i][j]
				}
			}
		}

		ni, nj := float64(size[minI]), float64(size[minJ])
		for k := 0; k < n; k++ {
			if !active[k] || k == minI || k == minJ {
				continue
			}
			nk := float64(size[k])
			v := ((nk+ni)*d[minI][k] + (nk+nj)*d[minJ][k] - nk*minD) / (nk + ni + nj)
			d[minI][k], d[k][minI] = v, v
		}

		merges = append(merges, merge{
			a:        id[minI],
			b:        id[minJ],
			distance: math.Sqrt(minD),
			size:     size[minI] + size[minJ],
		})
		id[minI] = n + step
		size[minI] += size[minJ]
		active[minJ] = false
	}
	return merges
}

// cutDendrogram labels each of the n points by the cluster it belongs to
// when merges above threshold are undone. Labels are numbered from 0 in
// order of first appearance.
func cutDendrogram(merges []merge, n int, threshold float64) []int {
	parent := make([]int, n+len(merges))
	for i := range parent {
		parent[i] = i
	}
	for step, m := range merges {
		if m.distance > threshold {
			break
		}
		node := n + step
		parent[find(parent, m.a)] = node
		parent[find(parent, m.b)] = node
	}

	labels := make([]int, n)
	seen := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(parent, i)
		label, ok := seen[root]
		if !ok {
			label = len(seen)
			seen[root] = label
		}
		labels[i] = label
	}
	return labels
}

func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}
