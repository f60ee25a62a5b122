// Package hnsw implements an in-process Hierarchical Navigable Small World
// index for approximate nearest-neighbour search over unit vectors.
//
// The index is insertion-only. Logical deletion is the caller's concern
// (tombstones held in the document store); physical removal happens through
// Rebuild, which constructs a fresh graph from the surviving vectors.
//
// Concurrency contract: single writer, multiple readers. Add and the final
// swap phase of Rebuild take the write lock; Search takes the read lock.
// Rebuild constructs the replacement graph against a snapshot of the vector
// set without holding the write lock, so searches keep being served by the
// old graph until the swap.
package hnsw
