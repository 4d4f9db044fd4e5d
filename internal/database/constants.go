package database

// HNSW index parameters for small identity populations.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 64

	// HNSWDefaultNeighbors is how many neighbours are returned when the caller does not say.
	HNSWDefaultNeighbors = 5
)

// currentSnapshotVersion is written into every snapshot.
const currentSnapshotVersion = 1
