package vectorstore

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosine_ScaleInvariant(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{2, 4, 6}
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)
}

func TestCollector_TopK(t *testing.T) {
	c := NewCollector(3, 0)
	scores := []float32{0.1, 0.9, 0.5, 0.7, 0.3}
	for i, s := range scores {
		c.Offer(i, s)
	}

	results := c.Results()
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 3, results[1].Index)
	assert.Equal(t, 2, results[2].Index)
}

func TestCollector_Threshold(t *testing.T) {
	c := NewCollector(10, 0.5)
	for i, s := range []float32{0.2, 0.5, 0.8, 0.49} {
		c.Offer(i, s)
	}

	results := c.Results()
	require.Len(t, results, 2, "0.5 is inclusive, below-threshold scores are dropped")
	assert.Equal(t, 2, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
}

func TestCollector_TiesBreakByScanOrder(t *testing.T) {
	c := NewCollector(4, 0)
	c.Offer(5, 0.5)
	c.Offer(1, 0.5)
	c.Offer(9, 0.9)
	c.Offer(3, 0.5)

	results := c.Results()
	require.Len(t, results, 4)
	assert.Equal(t, 9, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, 3, results[2].Index)
	assert.Equal(t, 5, results[3].Index)
}

func TestCollector_FewerThanK(t *testing.T) {
	c := NewCollector(10, 0)
	c.Offer(0, 0.4)
	c.Offer(1, 0.6)
	assert.Len(t, c.Results(), 2)
}

func TestCollector_ZeroK(t *testing.T) {
	c := NewCollector(0, 0)
	c.Offer(0, 0.9)
	assert.Empty(t, c.Results())
}

// TestCollector_MatchesBruteForce cross-checks the bounded heap against a
// full sort over random scores.
func TestCollector_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		n := 200
		k := 1 + rng.Intn(20)
		threshold := rng.Float32() * 0.5

		scores := make([]float32, n)
		for i := range scores {
			scores[i] = rng.Float32()
		}

		c := NewCollector(k, threshold)
		for i, s := range scores {
			c.Offer(i, s)
		}
		got := c.Results()

		var want []Scored
		for i, s := range scores {
			if s >= threshold {
				want = append(want, Scored{Index: i, Score: s})
			}
		}
		sort.Slice(want, func(i, j int) bool {
			if want[i].Score != want[j].Score {
				return want[i].Score > want[j].Score
			}
			return want[i].Index < want[j].Index
		})
		if len(want) > k {
			want = want[:k]
		}

		require.Equal(t, want, got, "trial %d (k=%d threshold=%f)", trial, k, threshold)
	}
}
