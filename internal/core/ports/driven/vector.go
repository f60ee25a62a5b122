package driven

// VectorIndex provides approximate nearest-neighbour search over unit
// vectors. Backed by an in-process HNSW graph.
//
// The index is insertion-only: there is no in-place removal. Logical
// deletion lives in the DocumentStore tombstone set; physical removal
// happens through Rebuild.
type VectorIndex interface {
	// Add inserts a vector and returns its id. Ids equal the vector's
	// insertion position and are assigned monotonically. Fails only on
	// dimension mismatch or a closed index.
	Add(vector []float32) (int, error)

	// Search returns the k nearest vectors. ef is the candidate-list
	// width and is clamped to at least k. An empty index yields no
	// hits, not an error.
	Search(query []float32, k, ef int) ([]VectorHit, error)

	// StageRebuild constructs a replacement graph from the vectors for
	// which keep returns true, in original insertion order. Concurrent
	// searches keep being served by the current graph; the replacement
	// is invisible until Commit. The caller must hold off inserts for
	// the duration.
	StageRebuild(keep func(id int) bool) (StagedRebuild, error)

	// Generation counts committed rebuilds. The metadata store records
	// the same number so readers can detect an index and a metadata
	// file that no longer share an id space.
	Generation() uint64

	// Save persists the graph and raw vectors to path, writing to a
	// temporary file and renaming atomically.
	Save(path string) error

	// Len returns the number of stored vectors.
	Len() int

	// Dimension returns the vector length the index was built for.
	Dimension() int

	// Close releases resources.
	Close() error
}

// StagedRebuild is a rebuilt graph that is not yet visible to readers.
type StagedRebuild interface {
	// Remap returns the old-id to new-id mapping of the staged graph.
	Remap() map[int]int

	// Generation returns the generation the index will carry once the
	// staged graph is committed.
	Generation() uint64

	// Commit swaps the staged graph in. Searches from that point on
	// resolve against the new id space.
	Commit()
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the matched vector's index position.
	ID int

	// Similarity is the cosine-derived score (0-1).
	Similarity float64
}
