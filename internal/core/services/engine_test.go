package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/storage/memory"
	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/index/hnsw"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers/plaintext"
)

func newTestEngine(t *testing.T, indexPath string) *Engine {
	t.Helper()

	settings := testSettings()
	index, err := hnsw.New(hnsw.Config{Dimension: settings.Dimension})
	require.NoError(t, err)

	engine, err := NewEngine(
		EngineConfig{Settings: settings, IndexPath: indexPath},
		memory.NewDocumentStore(),
		memory.NewConversationStore(),
		index,
		newMockEmbedder(),
		nil,
		nil,
		normalisers.NewRegistry(plaintext.New()),
	)
	require.NoError(t, err)
	return engine
}

func TestEngine_IngestQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, "")
	defer engine.Close() //nolint:errcheck

	doc, err := engine.Ingest.IngestText(ctx, "pangrams.txt", threeParagraphs)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, doc.Status)

	results, err := engine.Query.Retrieve(ctx, "quick brown fox", domain.QueryOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestEngine_FlushPersistsIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.covx")
	engine := newTestEngine(t, path)
	defer engine.Close() //nolint:errcheck

	_, err := engine.Ingest.IngestText(ctx, "pangrams.txt", threeParagraphs)
	require.NoError(t, err)
	require.NoError(t, engine.Flush())

	loaded, err := hnsw.Load(path)
	require.NoError(t, err)
	defer loaded.Close() //nolint:errcheck
	assert.Equal(t, 3, loaded.Len())
}

func TestEngine_DimensionMismatchRejected(t *testing.T) {
	settings := testSettings()
	index, err := hnsw.New(hnsw.Config{Dimension: settings.Dimension})
	require.NoError(t, err)

	// Seed the index with a vector so the dimension check has teeth.
	vec := make([]float32, settings.Dimension)
	vec[0] = 1
	_, err = index.Add(vec)
	require.NoError(t, err)

	embedder := newMockEmbedder()
	embedder.dim = settings.Dimension + 1

	_, err = NewEngine(
		EngineConfig{Settings: settings},
		memory.NewDocumentStore(),
		memory.NewConversationStore(),
		index,
		embedder,
		nil,
		nil,
		normalisers.NewRegistry(plaintext.New()),
	)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestEngine_CloseIdempotent(t *testing.T) {
	engine := newTestEngine(t, "")
	assert.NoError(t, engine.Close())
	assert.NoError(t, engine.Close())
}
