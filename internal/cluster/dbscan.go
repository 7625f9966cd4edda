// Package cluster partitions mention vectors into density-based clusters.
// It is an advisory signal for the consolidation pipeline: callers must
// treat absent clustering as a valid state, never an error.
package cluster

import (
	"math"
	"sort"
	"strings"
)

// Noise is the reserved label for points no cluster claims.
const Noise = -1

// Params controls DBSCAN behavior.
type Params struct {
	// Eps is the maximum cosine distance (1 - similarity) between
	// neighbors.
	Eps float64

	// MinPoints is the minimum neighborhood size for a core point.
	MinPoints int
}

// DBSCAN labels each vector with a cluster id starting at 0, or Noise.
// Vectors are compared by cosine distance. The result is deterministic for
// a given input order.
func DBSCAN(vectors [][]float32, p Params) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if n == 0 || p.MinPoints <= 0 {
		return labels
	}

	visited := make([]bool, n)
	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(vectors, i, p.Eps)
		if len(neighbors) < p.MinPoints {
			continue
		}

		labels[i] = next
		// Expand the cluster over the seed set.
		for k := 0; k < len(neighbors); k++ {
			j := neighbors[k]
			if !visited[j] {
				visited[j] = true
				more := regionQuery(vectors, j, p.Eps)
				if len(more) >= p.MinPoints {
					neighbors = append(neighbors, more...)
				}
			}
			if labels[j] == Noise {
				labels[j] = next
			}
		}
		next++
	}
	return labels
}

func regionQuery(vectors [][]float32, i int, eps float64) []int {
	var out []int
	for j := range vectors {
		if j == i {
			continue
		}
		if cosineDistance(vectors[i], vectors[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.MaxFloat64
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.MaxFloat64
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Keywords returns the n most frequent tokens across texts, skipping very
// short and very long tokens. Ties resolve alphabetically so the output is
// stable.
func Keywords(texts []string, n int) []string {
	counts := make(map[string]int)
	for _, t := range texts {
		for _, w := range strings.Fields(strings.ToLower(t)) {
			if len([]rune(w)) < 2 || len([]rune(w)) > 20 {
				continue
			}
			counts[w]++
		}
	}

	tokens := make([]string, 0, len(counts))
	for w := range counts {
		tokens = append(tokens, w)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if n > 0 && len(tokens) > n {
		tokens = tokens[:n]
	}
	return tokens
}
