// Package vector scores and ranks embeddings by cosine similarity.
//
// Search is a full linear scan over the candidates, O(N x d) per query with no index. This is
// sized for document knowledge bases of hundreds to low thousands of records. Replacing it with
// an approximate index would change which documents are returned.
package vector

import (
	"cmp"
	"math"
	"slices"
)

// DefaultFloor is the minimum similarity applied by corpus search before any caller threshold.
// The bound is inclusive like the caller threshold: a score of exactly 0.5 is kept.
const DefaultFloor = 0.5

// Cosine returns the cosine similarity of a and b. It is 0 when the lengths differ, when either
// vector is empty, or when either has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / math.Sqrt(normA*normB)
}

// Scored pairs an item with its similarity to a query.
type Scored[T any] struct {
	Item       T
	Similarity float64
}

// Rank scores every item against query, drops those below threshold, and returns the rest in
// descending similarity. Equal scores keep their input order. limit <= 0 disables the cap.
func Rank[T any](query []float32, items []T, vec func(T) []float32, threshold float64, limit int) []Scored[T] {
	scored := make([]Scored[T], 0, len(items))
	for _, item := range items {
		sim := Cosine(query, vec(item))
		if sim < threshold {
			continue
		}
		scored = append(scored, Scored[T]{Item: item, Similarity: sim})
	}

	slices.SortStableFunc(scored, func(a, b Scored[T]) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// Filter keeps scored entries at or above threshold, preserving order.
func Filter[T any](scored []Scored[T], threshold float64) []Scored[T] {
	out := make([]Scored[T], 0, len(scored))
	for _, s := range scored {
		if s.Similarity >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// Mean returns the arithmetic mean similarity, 0 for an empty set.
func Mean[T any](scored []Scored[T]) float64 {
	if len(scored) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scored {
		sum += s.Similarity
	}
	return sum / float64(len(scored))
}
