// Package domain defines the core business entities for Cosmica.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An ingested document with metadata and status
//   - Chunk: A retrievable unit of document text
//   - Conversation: Verbatim recent turns plus a rolling summary
//   - RetrievedChunk: A per-query similarity search result
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
