package database

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-gate/internal/facematch"
	"github.com/kozaktomas/face-gate/internal/identity"
)

// ErrNotIndexed is returned when a lookup names an identity that is not in the index.
var ErrNotIndexed = errors.New("identity not indexed")

// Neighbor is one search hit.
type Neighbor struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// DuplicatePair is two enrolled identities whose faces are closer than a threshold.
// A is always the earlier enrollment.
type DuplicatePair struct {
	A        identity.Summary `json:"a"`
	B        identity.Summary `json:"b"`
	Distance float64          `json:"distance"`
}

// NeighborIndex wraps an HNSW graph over enrolled embeddings using Euclidean distance.
// It is rebuilt from a store snapshot rather than updated in place.
type NeighborIndex struct {
	graph    *hnsw.Graph[string]
	byID     map[string]identity.EnrolledIdentity
	position map[string]int // enrollment order
	mu       sync.RWMutex
}

// NewNeighborIndex creates an empty index.
func NewNeighborIndex() *NeighborIndex {
	return &NeighborIndex{
		byID:     make(map[string]identity.EnrolledIdentity),
		position: make(map[string]int),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with items.
func (h *NeighborIndex) Build(items []identity.EnrolledIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byID = make(map[string]identity.EnrolledIdentity, len(items))
	h.position = make(map[string]int, len(items))

	if len(items) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i, item := range items {
		if len(item.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(item.ID, item.Embedding))
		h.byID[item.ID] = item
		h.position[item.ID] = i
	}
	h.graph = g
}

// Len returns the number of indexed identities.
func (h *NeighborIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Search returns up to k identities nearest to query, closest first.
func (h *NeighborIndex) Search(query []float32, k int) []Neighbor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.search(query, k, "")
}

// search must be called with h.mu held.
func (h *NeighborIndex) search(query []float32, k int, exclude string) []Neighbor {
	if h.graph == nil || k <= 0 {
		return nil
	}

	want := k
	if exclude != "" {
		want++
	}
	nodes := h.graph.Search(query, want)

	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		if n.Key == exclude {
			continue
		}
		item, ok := h.byID[n.Key]
		if !ok {
			continue
		}
		// Exact distance from the stored vector, not the graph's float32 value.
		out = append(out, Neighbor{
			ID:       item.ID,
			Name:     item.Name,
			Distance: facematch.EuclideanDistance(query, item.Embedding),
		})
	}

	slices.SortStableFunc(out, func(a, b Neighbor) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return h.position[a.ID] - h.position[b.ID]
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Neighbors returns up to k identities nearest to the identity id, excluding itself.
func (h *NeighborIndex) Neighbors(id string, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	item, ok := h.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, id)
	}
	return h.search(item.Embedding, k, id), nil
}

// NearDuplicates returns every pair of identities closer than threshold, closest first.
// Each identity is compared with its perNode nearest neighbours.
func (h *NeighborIndex) NearDuplicates(threshold float64, perNode int) []DuplicatePair {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if perNode <= 0 {
		perNode = HNSWDefaultNeighbors
	}

	seen := make(map[[2]string]bool)
	var pairs []DuplicatePair
	for id, item := range h.byID {
		for _, n := range h.search(item.Embedding, perNode, id) {
			if n.Distance >= threshold {
				break
			}
			a, b := item, h.byID[n.ID]
			if h.position[a.ID] > h.position[b.ID] {
				a, b = b, a
			}
			key := [2]string{a.ID, b.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, DuplicatePair{A: a.Summary(), B: b.Summary(), Distance: n.Distance})
		}
	}

	slices.SortFunc(pairs, func(x, y DuplicatePair) int {
		switch {
		case x.Distance < y.Distance:
			return -1
		case x.Distance > y.Distance:
			return 1
		}
		if d := h.position[x.A.ID] - h.position[y.A.ID]; d != 0 {
			return d
		}
		return h.position[x.B.ID] - h.position[y.B.ID]
	})
	return pairs
}

// Export writes the HNSW graph in coder/hnsw's binary format.
func (h *NeighborIndex) Export(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return errors.New("index not initialized")
	}
	if err := h.graph.Export(w); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}
