// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - DocumentStore: Document, chunk, and tombstone persistence
//   - ConversationStore: Conversation memory persistence
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// Chunk rows carry the vector index position as their primary key. After a
// compaction the RemapChunks operation rewrites all ids in one transaction so
// the metadata never disagrees with the rebuilt index.
//
// # Data Location
//
// By default, the database is stored at ~/.cosmica/data/metadata.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
