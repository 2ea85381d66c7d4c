package vectorstore

import (
	"container/heap"
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b: dot(a,b) / (‖a‖·‖b‖).
//
// Stored vectors are pre-normalized, which reduces this to a dot product,
// but norms are computed defensively rather than assumed. Returns 0 if
// either norm is 0 or the lengths differ.
func Cosine(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Scored pairs a candidate index with its similarity score.
type Scored struct {
	Index int
	Score float32
}

// scoredHeap is a min-heap keyed by score, so the weakest retained
// candidate is always at the root.
type scoredHeap []Scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Collector retains the top-k candidates at or above a threshold using a
// bounded min-heap: O(n log k) over the candidate scan instead of a full
// O(n log n) sort, which matters when document counts are large relative
// to k.
type Collector struct {
	k         int
	threshold float32
	h         scoredHeap
}

// NewCollector creates a collector for up to k results at or above threshold.
func NewCollector(k int, threshold float32) *Collector {
	return &Collector{k: k, threshold: threshold, h: make(scoredHeap, 0, k)}
}

// Offer considers one candidate. Below-threshold candidates are skipped;
// otherwise the candidate is kept if the heap has room or it beats the
// current minimum.
func (c *Collector) Offer(index int, score float32) {
	if c.k <= 0 || score < c.threshold {
		return
	}
	if c.h.Len() < c.k {
		heap.Push(&c.h, Scored{Index: index, Score: score})
		return
	}
	if score > c.h[0].Score {
		c.h[0] = Scored{Index: index, Score: score}
		heap.Fix(&c.h, 0)
	}
}

// Results drains the heap and returns candidates sorted descending by
// score, ties broken by ascending index (scan order) for determinism.
func (c *Collector) Results() []Scored {
	out := make([]Scored, len(c.h))
	copy(out, c.h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Index < out[j].Index
	})
	return out
}
