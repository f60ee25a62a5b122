package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to
// all metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.cosmica/data/metadata.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".cosmica", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "metadata.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// ConversationStore returns a ConversationStore interface backed by this store.
func (s *Store) ConversationStore() driven.ConversationStore {
	return &conversationStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		return domain.ErrInvalidInput
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, status, failure_reason, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Filename, string(doc.Status), nullString(doc.FailureReason),
		doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID, including its chunk ids.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, filename, status, failure_reason, chunk_count, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	doc.ChunkIDs, err = s.chunkIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// ListDocuments returns all documents, newest first.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, filename, status, failure_reason, chunk_count, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	byDoc, err := s.allChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].ChunkIDs = byDoc[docs[i].ID]
	}

	return docs, nil
}

// DeleteDocument removes a document row. Chunk rows are left in place for
// the next compaction.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveChunks stores chunk metadata rows.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, content, token_estimate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			position = excluded.position,
			content = excluded.content,
			token_estimate = excluded.token_estimate
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID,
			chunk.Sequence, chunk.Text, chunk.TokenEstimate); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunk retrieves a chunk by its index position.
func (s *documentStore) GetChunk(ctx context.Context, id int) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, position, content, token_estimate
		FROM chunks WHERE id = ?
	`, id)

	var chunk domain.Chunk
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Sequence,
		&chunk.Text, &chunk.TokenEstimate); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	return &chunk, nil
}

// GetChunks retrieves all chunks for a document, in sequence order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, token_estimate
		FROM chunks WHERE document_id = ?
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Sequence,
			&chunk.Text, &chunk.TokenEstimate); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// TombstoneChunks marks chunk ids as logically deleted.
func (s *documentStore) TombstoneChunks(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO tombstones (chunk_id) VALUES (?) ON CONFLICT(chunk_id) DO NOTHING")
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("tombstoning chunk %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Tombstones returns the current tombstone set.
func (s *documentStore) Tombstones(ctx context.Context) (map[int]bool, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT chunk_id FROM tombstones")
	if err != nil {
		return nil, fmt.Errorf("querying tombstones: %w", err)
	}
	defer rows.Close()

	set := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tombstone: %w", err)
		}
		set[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tombstones: %w", err)
	}

	return set, nil
}

// RemapChunks atomically rewrites chunk ids after an index rebuild.
// Rows absent from the mapping are deleted, the tombstone set is cleared,
// and the index generation is recorded in the same transaction. Ids are
// moved through negative temporary values so the rewrite cannot collide
// regardless of mapping order.
func (s *documentStore) RemapChunks(ctx context.Context, remap map[int]int, generation uint64) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks")
	if err != nil {
		return fmt.Errorf("querying chunk ids: %w", err)
	}

	var all []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning chunk id: %w", err)
		}
		all = append(all, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating chunk ids: %w", err)
	}
	rows.Close()

	del, err := tx.PrepareContext(ctx, "DELETE FROM chunks WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer del.Close()

	move, err := tx.PrepareContext(ctx, "UPDATE chunks SET id = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}
	defer move.Close()

	for _, id := range all {
		newID, keep := remap[id]
		if !keep {
			if _, err := del.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("deleting chunk %d: %w", id, err)
			}
			continue
		}
		// Park at -(new+1) first; final ids are restored in one pass below.
		if _, err := move.ExecContext(ctx, -(newID + 1), id); err != nil {
			return fmt.Errorf("remapping chunk %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE chunks SET id = -id - 1 WHERE id < 0"); err != nil {
		return fmt.Errorf("restoring chunk ids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM tombstones"); err != nil {
		return fmt.Errorf("clearing tombstones: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE index_state SET generation = ? WHERE id = 1", generation); err != nil {
		return fmt.Errorf("recording index generation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// IndexGeneration returns the generation recorded by the last remap.
func (s *documentStore) IndexGeneration(ctx context.Context) (uint64, error) {
	var generation uint64
	row := s.store.db.QueryRowContext(ctx,
		"SELECT generation FROM index_state WHERE id = 1")
	if err := row.Scan(&generation); err != nil {
		return 0, fmt.Errorf("reading index generation: %w", err)
	}
	return generation, nil
}

// Close closes the underlying database.
func (s *documentStore) Close() error {
	return s.store.Close()
}

// chunkIDs returns the index positions of a document's chunks in order.
func (s *documentStore) chunkIDs(ctx context.Context, documentID string) ([]int, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? ORDER BY position", documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}

	return ids, nil
}

// allChunkIDs returns chunk ids grouped by document, each in sequence order.
func (s *documentStore) allChunkIDs(ctx context.Context) (map[string][]int, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT id, document_id FROM chunks ORDER BY document_id, position")
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	byDoc := make(map[string][]int)
	for rows.Next() {
		var id int
		var docID string
		if err := rows.Scan(&id, &docID); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		byDoc[docID] = append(byDoc[docID], id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}

	return byDoc, nil
}

// ==================== Conversation Store ====================

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// GetConversation retrieves a conversation. Unknown ids yield an empty
// conversation rather than an error.
func (s *conversationStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, summary, turns, pending, updated_at
		FROM conversations WHERE id = ?
	`, id)

	var conv domain.Conversation
	var turnsJSON, pendingJSON string
	if err := row.Scan(&conv.ID, &conv.Summary, &turnsJSON, &pendingJSON, &conv.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return &domain.Conversation{ID: id}, nil
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(turnsJSON), &conv.Turns); err != nil {
		return nil, fmt.Errorf("unmarshalling turns: %w", err)
	}
	if err := json.Unmarshal([]byte(pendingJSON), &conv.Pending); err != nil {
		return nil, fmt.Errorf("unmarshalling pending turns: %w", err)
	}

	return &conv, nil
}

// SaveConversation stores the conversation wholesale.
func (s *conversationStore) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		return domain.ErrInvalidInput
	}

	turnsJSON, err := json.Marshal(conv.Turns)
	if err != nil {
		return fmt.Errorf("marshalling turns: %w", err)
	}
	pendingJSON, err := json.Marshal(conv.Pending)
	if err != nil {
		return fmt.Errorf("marshalling pending turns: %w", err)
	}

	conv.UpdatedAt = time.Now().UTC()

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO conversations (id, summary, turns, pending, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			turns = excluded.turns,
			pending = excluded.pending,
			updated_at = excluded.updated_at
	`, conv.ID, conv.Summary, string(turnsJSON), string(pendingJSON), conv.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// ListConversations returns all conversation ids, most recent first.
func (s *conversationStore) ListConversations(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT id FROM conversations ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return ids, nil
}

// DeleteConversation removes a conversation entirely.
func (s *conversationStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var failureReason sql.NullString

	if err := row.Scan(&doc.ID, &doc.Filename, &status, &failureReason,
		&doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.FailureReason = failureReason.String

	return &doc, nil
}

// scanDocumentRows scans a document from *sql.Rows.
func scanDocumentRows(rows *sql.Rows) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var failureReason sql.NullString

	if err := rows.Scan(&doc.ID, &doc.Filename, &status, &failureReason,
		&doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.FailureReason = failureReason.String

	return &doc, nil
}
