package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

func TestDocumentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	doc := &domain.Document{ID: "doc-1", Filename: "a.txt", Status: domain.StatusReady}
	require.NoError(t, store.SaveDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)

	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_DeleteKeepsChunks(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "doc-1"}))
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: 0, DocumentID: "doc-1", Sequence: 0, Text: "alpha"},
	}))
	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))

	chunk, err := store.GetChunk(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "alpha", chunk.Text)
}

func TestDocumentStore_RemapClearsTombstones(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "doc-1", ChunkIDs: []int{0, 1, 2}}))
	require.NoError(t, store.SaveChunks(ctx, []domain.Chunk{
		{ID: 0, DocumentID: "doc-1", Sequence: 0, Text: "a"},
		{ID: 1, DocumentID: "doc-1", Sequence: 1, Text: "b"},
		{ID: 2, DocumentID: "doc-1", Sequence: 2, Text: "c"},
	}))
	require.NoError(t, store.TombstoneChunks(ctx, []int{1}))

	require.NoError(t, store.RemapChunks(ctx, map[int]int{0: 0, 2: 1}, 1))

	tombstones, err := store.Tombstones(ctx)
	require.NoError(t, err)
	assert.Empty(t, tombstones)

	generation, err := store.IndexGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), generation)

	chunk, err := store.GetChunk(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "c", chunk.Text)

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, doc.ChunkIDs)
}

func TestConversationStore_UnknownIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore()

	conv, err := store.GetConversation(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", conv.ID)
	assert.Empty(t, conv.Turns)
}

func TestConversationStore_SaveIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore()

	conv := &domain.Conversation{
		ID:    "c1",
		Turns: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}},
	}
	require.NoError(t, store.SaveConversation(ctx, conv))

	// Mutating the caller's slice must not reach the store.
	conv.Turns[0].Content = "changed"

	got, err := store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Turns[0].Content)
}
