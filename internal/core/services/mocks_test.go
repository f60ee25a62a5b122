package services

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/storage/memory"
	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/index/hnsw"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers/plaintext"
)

const testDimension = 8

// --- Mock implementations ---

// mockEmbedder maps text to a deterministic pseudo-random vector, so the
// same text always lands at the same point in space.
type mockEmbedder struct {
	dim      int
	embedErr error
	calls    int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dim: testDimension}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	m.calls++
	return textVector(text, m.dim), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	m.calls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = textVector(text, m.dim)
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimensions() int   { return m.dim }
func (m *mockEmbedder) ModelName() string { return "mock-embedder" }
func (m *mockEmbedder) Close() error      { return nil }

// textVector derives a unit-length vector from the text's hash.
func textVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // deterministic test data
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(rng.Float64()*2 - 1)
	}
	hnsw.Normalise(vec)
	return vec
}

// mockLLM returns canned answers and records what it was asked.
type mockLLM struct {
	mu sync.Mutex

	answer       string
	generateErr  error
	condenseErr  error
	lastMessages []driven.ChatMessage
	condensed    int
}

func (m *mockLLM) Generate(_ context.Context, messages []driven.ChatMessage, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generateErr != nil {
		return "", m.generateErr
	}
	m.lastMessages = messages
	return m.answer, nil
}

func (m *mockLLM) Stream(ctx context.Context, messages []driven.ChatMessage, opts driven.GenerateOptions, emit func(string)) (string, error) {
	text, err := m.Generate(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	// Emit rune by rune to exercise reassembly.
	for _, r := range text {
		emit(string(r))
	}
	return text, nil
}

func (m *mockLLM) Condense(_ context.Context, previousSummary string, evicted []driven.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.condenseErr != nil {
		return "", m.condenseErr
	}
	m.condensed++
	summary := previousSummary
	for _, msg := range evicted {
		if summary != "" {
			summary += "; "
		}
		summary += msg.Role + ": " + msg.Content
	}
	return summary, nil
}

func (m *mockLLM) ModelName() string { return "mock-llm" }
func (m *mockLLM) Close() error      { return nil }

// flakyIndex fails Add after a set number of insertions.
type flakyIndex struct {
	driven.VectorIndex
	failAfter int
	adds      int
	addErr    error
}

func (f *flakyIndex) Add(vector []float32) (int, error) {
	if f.adds >= f.failAfter {
		return 0, f.addErr
	}
	f.adds++
	return f.VectorIndex.Add(vector)
}

// --- Test fixture ---

// stack bundles the services over shared in-memory state.
type stack struct {
	settings domain.Settings
	docStore *memory.DocumentStore
	convs    *memory.ConversationStore
	index    *hnsw.Index
	embedder *mockEmbedder
	llm      *mockLLM

	ingest      *IngestService
	query       *QueryService
	documents   *DocumentService
	memory      *MemoryService
	maintenance *MaintenanceService

	indexMu sync.Mutex
	viewMu  sync.RWMutex
}

// testSettings tunes the engine for small documents.
func testSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.ChunkSize = 50
	s.ChunkOverlap = 0
	s.MinChunkSize = 5
	s.Dimension = testDimension
	s.SimilarityFloor = 0
	return s
}

func newStack(t *testing.T, settings domain.Settings, llm *mockLLM) *stack {
	t.Helper()

	index, err := hnsw.New(hnsw.Config{Dimension: settings.Dimension})
	require.NoError(t, err)

	st := &stack{
		settings: settings,
		docStore: memory.NewDocumentStore(),
		convs:    memory.NewConversationStore(),
		index:    index,
		embedder: newMockEmbedder(),
		llm:      llm,
	}

	registry := normalisers.NewRegistry(plaintext.New())

	var llmPort driven.LLMService
	if llm != nil {
		llmPort = llm
	}

	st.memory = NewMemoryService(st.convs, llmPort, settings)
	st.ingest = NewIngestService(st.docStore, index, st.embedder, registry, settings, &st.indexMu, nil)
	st.query = NewQueryService(st.docStore, index, st.embedder, llmPort, nil, st.memory, settings, &st.viewMu)
	st.documents = NewDocumentService(st.docStore, &st.indexMu)
	st.maintenance = NewMaintenanceService(st.docStore, index, settings, &st.indexMu, &st.viewMu, nil)

	return st
}

// threeParagraphs is sized so the test splitter yields one chunk per
// paragraph.
const threeParagraphs = `The quick brown fox jumps over the lazy dog.

Pack my box with five dozen liquor jugs today.

Sphinx of black quartz, judge my vow at once.`
