package store

import (
	"cmp"
	"math"
	"slices"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// FlatIndex is the exact similarity index: a linear scan over unit vectors.
// It is immutable after construction; a new cache state means a new index.
type FlatIndex struct {
	built bool
	dims  int

	ids     []string
	kinds   []Kind
	convIDs []string
	raw     [][]float32
	unit    [][]float32
}

// Verify interface implementation at compile time
var _ SimilarityIndex = (*FlatIndex)(nil)

// NewFlatIndex builds an index over entries, in order. dims is the expected
// vector dimension; 0 takes it from the first entry. Every entry must match.
func NewFlatIndex(dims int, entries []CachedEmbedding) (*FlatIndex, error) {
	if dims == 0 && len(entries) > 0 {
		dims = len(entries[0].Vector)
	}

	idx := &FlatIndex{
		built:   true,
		dims:    dims,
		ids:     make([]string, 0, len(entries)),
		kinds:   make([]Kind, 0, len(entries)),
		convIDs: make([]string, 0, len(entries)),
		raw:     make([][]float32, 0, len(entries)),
		unit:    make([][]float32, 0, len(entries)),
	}

	for _, e := range entries {
		if len(e.Vector) != dims {
			return nil, lenserrors.DimensionMismatch(dims, len(e.Vector)).WithDetail("id", e.ID)
		}
		idx.ids = append(idx.ids, e.ID)
		idx.kinds = append(idx.kinds, e.Kind)
		idx.convIDs = append(idx.convIDs, e.ConversationID)
		idx.raw = append(idx.raw, e.Vector)
		idx.unit = append(idx.unit, unitVector(e.Vector))
	}

	return idx, nil
}

// TopK returns the k entries most similar to query. Scores are cosine
// similarity clamped to [-1, 1]; equal scores keep insertion order.
func (f *FlatIndex) TopK(query []float32, k int) ([]Hit, error) {
	if err := f.check(query); err != nil {
		return nil, err
	}
	if k <= 0 || len(f.ids) == 0 {
		return []Hit{}, nil
	}

	q := unitVector(query)
	scores := make([]float32, len(f.unit))
	for i, v := range f.unit {
		scores[i] = dot(q, v)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	k = min(k, len(order))
	hits := make([]Hit, k)
	for i, pos := range order[:k] {
		hits[i] = f.hit(pos, scores[pos])
	}
	return hits, nil
}

// score computes the exact similarity of an already-normalized query
// against the entry at pos.
func (f *FlatIndex) score(unitQuery []float32, pos int) float32 {
	return dot(unitQuery, f.unit[pos])
}

func (f *FlatIndex) hit(pos int, score float32) Hit {
	return Hit{
		ID:             f.ids[pos],
		Kind:           f.kinds[pos],
		ConversationID: f.convIDs[pos],
		Score:          score,
		Position:       pos,
	}
}

func (f *FlatIndex) check(query []float32) error {
	if f == nil || !f.built {
		return lenserrors.IndexNotReady()
	}
	if len(f.ids) > 0 && len(query) != f.dims {
		return lenserrors.DimensionMismatch(f.dims, len(query))
	}
	return nil
}

// Len returns the number of indexed entries.
func (f *FlatIndex) Len() int {
	if f == nil {
		return 0
	}
	return len(f.ids)
}

// Dimensions returns the vector dimension (0 for an empty index).
func (f *FlatIndex) Dimensions() int {
	if f == nil {
		return 0
	}
	return f.dims
}

// IDs returns the indexed ids by position.
func (f *FlatIndex) IDs() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.ids)
}

// unitVector returns a normalized copy of v. Zero vectors stay zero, and so
// do vectors with a NaN or infinite component, which would otherwise
// produce scores outside [-1, 1].
func unitVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	out := make([]float32, len(v))
	if sumSquares == 0 || math.IsNaN(sumSquares) || math.IsInf(sumSquares, 0) {
		return out
	}
	inv := 1.0 / math.Sqrt(sumSquares)
	for i, val := range v {
		out[i] = float32(float64(val) * inv)
	}
	return out
}

// dot returns the dot product of two unit vectors, clamped to [-1, 1]
// against float rounding.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(max(-1, min(1, sum)))
}
