package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	// Validation failures are rejected immediately and never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyQuery indicates a query with no content after trimming.
	ErrEmptyQuery = errors.New("empty query")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrIndexClosed indicates an operation on a closed vector index.
	ErrIndexClosed = errors.New("vector index closed")

	// ErrUpstreamUnavailable indicates the embedding or generation
	// provider failed after the bounded retry budget was exhausted.
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")

	// ErrRateLimited indicates the provider rejected a request for quota
	// reasons. Retried with backoff up to the budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrIngestFailed indicates document ingestion failed mid-pipeline.
	// The document is marked failed and its partial chunks tombstoned.
	ErrIngestFailed = errors.New("ingest failed")

	// ErrPersistence indicates a disk write failed. The in-memory state
	// remains valid and usable until the next successful persist.
	ErrPersistence = errors.New("persistence failure")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Ingestion and retrieval are disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generation service is not
	// configured. Answering and summary condensation are disabled.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrUnsupportedType indicates an unknown file or normaliser type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrCompactionInProgress indicates a rebuild is already running.
	ErrCompactionInProgress = errors.New("compaction in progress")

	// ErrIndexStale indicates the in-memory index and the metadata store
	// no longer share an id space, typically because another process
	// compacted the shared data directory. Reload the index to recover.
	ErrIndexStale = errors.New("index out of date with metadata")
)
