package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// Generation defaults for answering.
const (
	answerMaxTokens   = 500
	answerTemperature = 0.7
)

// noLLMNotice is returned when answering is requested without a model.
const noLLMNotice = "No language model is configured. The most relevant excerpts are listed below; set COSMICA_OPENAI_API_KEY to enable generated answers."

// defaultAnswerSystem is the fallback system prompt when no PromptStore is
// configured.
const defaultAnswerSystem = `You are Cosmica, an assistant that answers strictly from the provided knowledge.

Rules:
1. Answer using ONLY the context excerpts and conversation summary below
2. If the context does not contain the answer, say you don't know - do not guess
3. Cite the source document when it helps the user verify the answer
4. Be concise`

// QueryService answers questions against the knowledge base. viewMu is
// the read view shared with compaction: holding its read side across a
// search and its hydration keeps the index and the chunk metadata in the
// same id space.
type QueryService struct {
	docStore driven.DocumentStore
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	llm      driven.LLMService
	prompts  driven.PromptStore
	memory   *MemoryService
	settings domain.Settings
	viewMu   *sync.RWMutex
}

// NewQueryService creates a new query service. The llm and prompts
// parameters are optional (can be nil).
func NewQueryService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	llm driven.LLMService,
	prompts driven.PromptStore,
	memory *MemoryService,
	settings domain.Settings,
	viewMu *sync.RWMutex,
) *QueryService {
	return &QueryService{
		docStore: docStore,
		index:    index,
		embedder: embedder,
		llm:      llm,
		prompts:  prompts,
		memory:   memory,
		settings: settings,
		viewMu:   viewMu,
	}
}

// Retrieve returns the ranked chunks relevant to the query.
func (s *QueryService) Retrieve(ctx context.Context, query string, opts domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	logger.Section("Retrieval")
	logger.Debug("Query: %q", query)

	k := opts.TopK
	if k <= 0 {
		k = s.settings.TopK
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.searchView(ctx, embedding, k, opts.DocumentIDs)
	if err != nil {
		return nil, err
	}

	// Drop weak matches, order by similarity with a stable tie-break on
	// document position.
	floor := s.settings.SimilarityFloor
	kept := results[:0]
	for _, r := range results {
		if r.Similarity >= floor {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		if kept[i].Sequence != kept[j].Sequence {
			return kept[i].Sequence < kept[j].Sequence
		}
		return kept[i].DocumentID < kept[j].DocumentID
	})

	if len(kept) > k {
		kept = kept[:k]
	}
	logger.Info("Retrieved %d chunks", len(kept))
	return kept, nil
}

// searchView runs the index search and its hydration under the read view,
// so a concurrent compaction cannot swap the id space between the two.
func (s *QueryService) searchView(ctx context.Context, embedding []float32, k int, docFilter []string) ([]domain.RetrievedChunk, error) {
	if s.viewMu != nil {
		s.viewMu.RLock()
		defer s.viewMu.RUnlock()
	}

	// A compaction in another process remaps the metadata file out from
	// under this index; refuse to serve mismatched ids.
	generation, err := s.docStore.IndexGeneration(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index generation: %w", err)
	}
	if generation != s.index.Generation() {
		return nil, fmt.Errorf("%w: index generation %d, metadata generation %d",
			domain.ErrIndexStale, s.index.Generation(), generation)
	}

	tombstones, err := s.docStore.Tombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tombstones: %w", err)
	}

	// Over-fetch so tombstoned and filtered hits cannot starve the
	// result set.
	fetch := k + len(tombstones)
	ef := s.settings.EFSearch
	if ef < fetch {
		ef = fetch
	}

	hits, err := s.index.Search(embedding, fetch, ef)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	logger.Debug("Index returned %d hits (%d tombstoned ids known)", len(hits), len(tombstones))

	return s.hydrate(ctx, hits, tombstones, docFilter)
}

// hydrate resolves index hits to chunk metadata, skipping tombstoned ids
// and rows that no longer exist.
func (s *QueryService) hydrate(ctx context.Context, hits []driven.VectorHit, tombstones map[int]bool, docFilter []string) ([]domain.RetrievedChunk, error) {
	var allowed map[string]bool
	if len(docFilter) > 0 {
		allowed = make(map[string]bool, len(docFilter))
		for _, id := range docFilter {
			allowed[id] = true
		}
	}

	results := make([]domain.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		if tombstones[hit.ID] {
			continue
		}

		chunk, err := s.docStore.GetChunk(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Metadata already gone; the index entry is stale.
				continue
			}
			return nil, fmt.Errorf("get chunk %d: %w", hit.ID, err)
		}

		if allowed != nil && !allowed[chunk.DocumentID] {
			continue
		}

		results = append(results, domain.RetrievedChunk{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Sequence:   chunk.Sequence,
			Text:       chunk.Text,
			Similarity: hit.Similarity,
		})
	}
	return results, nil
}

// Ask retrieves relevant chunks, folds in conversation memory and
// generates an answer.
func (s *QueryService) Ask(ctx context.Context, conversationID, query string, opts domain.QueryOptions) (*domain.Answer, error) {
	return s.ask(ctx, conversationID, query, opts, nil)
}

// AskStream behaves like Ask but emits answer tokens as they arrive.
func (s *QueryService) AskStream(ctx context.Context, conversationID, query string, opts domain.QueryOptions, emit func(token string)) (*domain.Answer, error) {
	return s.ask(ctx, conversationID, query, opts, emit)
}

func (s *QueryService) ask(ctx context.Context, conversationID, query string, opts domain.QueryOptions, emit func(token string)) (*domain.Answer, error) {
	chunks, err := s.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	if len(chunks) > s.settings.MaxContextChunks {
		chunks = chunks[:s.settings.MaxContextChunks]
	}

	if s.llm == nil {
		// Degrade to retrieval-only: no exchange is recorded because no
		// answer was produced.
		logger.Info("No LLM configured; returning retrieval-only answer")
		return &domain.Answer{
			Text:           noLLMNotice,
			Sources:        chunks,
			ConversationID: conversationID,
		}, nil
	}

	assembled, err := s.assemble(ctx, conversationID, query, chunks)
	if err != nil {
		return nil, err
	}

	genOpts := driven.GenerateOptions{MaxTokens: answerMaxTokens, Temperature: answerTemperature}
	var text string
	if emit != nil {
		text, err = s.llm.Stream(ctx, assembled, genOpts, emit)
	} else {
		text, err = s.llm.Generate(ctx, assembled, genOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	text = strings.TrimSpace(text)

	if conversationID != "" && s.memory != nil {
		if err := s.memory.Record(ctx, conversationID, query, text); err != nil {
			logger.Warn("Recording exchange failed: %v", err)
		}
	}

	return &domain.Answer{
		Text:           text,
		Sources:        chunks,
		ConversationID: conversationID,
	}, nil
}

// assemble builds the chat messages: a knowledge-bound system prompt with
// the context excerpts and conversation summary, the verbatim window, and
// the query.
func (s *QueryService) assemble(ctx context.Context, conversationID, query string, chunks []domain.RetrievedChunk) ([]driven.ChatMessage, error) {
	var system strings.Builder
	system.WriteString(s.systemPrompt())

	var summary string
	var turns []domain.Turn
	if conversationID != "" && s.memory != nil {
		var err error
		summary, turns, err = s.memory.ContextFor(ctx, conversationID)
		if err != nil {
			return nil, err
		}
	}

	if summary != "" {
		system.WriteString("\n\nConversation summary:\n")
		system.WriteString(summary)
	}

	if len(chunks) > 0 {
		system.WriteString("\n\nContext excerpts:\n")
		for _, c := range chunks {
			fmt.Fprintf(&system, "\n[source %s, part %d]\n%s\n", c.DocumentID, c.Sequence+1, c.Text)
		}
	} else {
		system.WriteString("\n\nContext excerpts:\n(none found)")
	}

	messages := make([]driven.ChatMessage, 0, len(turns)+2)
	messages = append(messages, driven.ChatMessage{Role: "system", Content: system.String()})
	for _, turn := range turns {
		messages = append(messages, driven.ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, driven.ChatMessage{Role: "user", Content: query})

	return messages, nil
}

// systemPrompt loads the answer system prompt, falling back to the
// embedded default.
func (s *QueryService) systemPrompt() string {
	if s.prompts == nil {
		return defaultAnswerSystem
	}
	prompt, err := s.prompts.Load(driven.PromptAnswerSystem)
	if err != nil {
		return defaultAnswerSystem
	}
	return prompt
}
