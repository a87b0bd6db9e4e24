package store

import (
	"cmp"
	"slices"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the approximate index.
type HNSWConfig struct {
	M        int // max neighbors per node (default 16)
	EfSearch int // candidate list size during search (default 100)
	// RescoreFactor is how many graph candidates are fetched per requested
	// result before exact rescoring (default 4).
	RescoreFactor int
}

// HNSWIndex answers top-k queries with an HNSW graph (coder/hnsw, pure Go)
// for candidate generation and the FlatIndex vectors for exact rescoring.
//
// Tolerance: the graph returns the approximate top k*RescoreFactor
// candidates; those are rescored exactly and ordered under the FlatIndex
// contract. Scores and relative order of returned hits are exact, but an
// entry the graph missed is absent, so recall may fall below 1.
// Zero vectors are not inserted into the graph.
type HNSWIndex struct {
	flat   *FlatIndex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig
}

// Verify interface implementation at compile time
var _ SimilarityIndex = (*HNSWIndex)(nil)

// NewHNSWIndex builds the exact index and the graph over the same entries.
func NewHNSWIndex(dims int, entries []CachedEmbedding, cfg HNSWConfig) (*HNSWIndex, error) {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 100
	}
	if cfg.RescoreFactor < 1 {
		cfg.RescoreFactor = 4
	}

	flat, err := NewFlatIndex(dims, entries)
	if err != nil {
		return nil, err
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	for pos, v := range flat.unit {
		if isZero(v) {
			continue
		}
		graph.Add(hnsw.MakeNode(uint64(pos), v))
	}

	return &HNSWIndex{flat: flat, graph: graph, config: cfg}, nil
}

// TopK returns up to k hits ranked by exact cosine similarity among the
// graph's candidates.
func (h *HNSWIndex) TopK(query []float32, k int) ([]Hit, error) {
	if h == nil {
		return nil, (*FlatIndex)(nil).check(query)
	}
	if err := h.flat.check(query); err != nil {
		return nil, err
	}
	if k <= 0 || h.graph.Len() == 0 {
		return []Hit{}, nil
	}

	q := unitVector(query)
	if isZero(q) {
		// Every score is 0; the graph has no useful direction to follow.
		return h.flat.TopK(query, k)
	}

	want := min(k*h.config.RescoreFactor, h.graph.Len())
	nodes := h.graph.Search(q, want)

	positions := make([]int, 0, len(nodes))
	scores := make(map[int]float32, len(nodes))
	for _, n := range nodes {
		pos := int(n.Key)
		if _, dup := scores[pos]; dup {
			continue
		}
		scores[pos] = h.flat.score(q, pos)
		positions = append(positions, pos)
	}

	// Position order first, so the stable sort breaks ties by insertion order.
	slices.Sort(positions)
	slices.SortStableFunc(positions, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	k = min(k, len(positions))
	hits := make([]Hit, k)
	for i, pos := range positions[:k] {
		hits[i] = h.flat.hit(pos, scores[pos])
	}
	return hits, nil
}

// Len returns the number of indexed entries.
func (h *HNSWIndex) Len() int {
	if h == nil {
		return 0
	}
	return h.flat.Len()
}

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int {
	if h == nil {
		return 0
	}
	return h.flat.Dimensions()
}

// IDs returns the indexed ids by position.
func (h *HNSWIndex) IDs() []string {
	if h == nil {
		return nil
	}
	return h.flat.IDs()
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
