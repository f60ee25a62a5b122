package cli

import (
	"context"
	"sync"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers/plaintext"
)

// stubServices provides canned responses for command tests.
type stubServices struct {
	mu       sync.Mutex
	answer   *domain.Answer
	results  []domain.RetrievedChunk
	docs     []domain.Document
	convs    []domain.Conversation
	removed  []string
	ingested []string
	ratio    float64
}

func (s *stubServices) IngestFile(_ context.Context, path string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, path)
	return &domain.Document{ID: "doc-1", Filename: path, Status: domain.StatusReady, ChunkCount: 2}, nil
}

func (s *stubServices) IngestText(_ context.Context, name, _ string) (*domain.Document, error) {
	return &domain.Document{ID: "doc-1", Filename: name, Status: domain.StatusReady}, nil
}

func (s *stubServices) Retrieve(context.Context, string, domain.QueryOptions) ([]domain.RetrievedChunk, error) {
	return s.results, nil
}

func (s *stubServices) Ask(context.Context, string, string, domain.QueryOptions) (*domain.Answer, error) {
	return s.answer, nil
}

func (s *stubServices) AskStream(_ context.Context, _ string, _ string, _ domain.QueryOptions, emit func(string)) (*domain.Answer, error) {
	for _, r := range s.answer.Text {
		emit(string(r))
	}
	return s.answer, nil
}

func (s *stubServices) List(context.Context) ([]domain.Document, error) { return s.docs, nil }

func (s *stubServices) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range s.docs {
		if s.docs[i].ID == id {
			return &s.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubServices) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
	return nil
}

func (s *stubServices) TombstoneRatio(context.Context) (float64, error) { return s.ratio, nil }
func (s *stubServices) Compact(context.Context) error                   { return nil }
func (s *stubServices) CompactIfNeeded(context.Context) (bool, error)   { return false, nil }

type stubConversations struct {
	convs   []domain.Conversation
	deleted []string
}

func (s *stubConversations) Get(_ context.Context, id string) (*domain.Conversation, error) {
	return &domain.Conversation{ID: id}, nil
}

func (s *stubConversations) List(context.Context) ([]domain.Conversation, error) {
	return s.convs, nil
}

func (s *stubConversations) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

// resetCommandState restores the package-level flag variables to their
// defaults. Flags bind to package globals, so a value parsed by one test
// would otherwise leak into the next Execute.
func resetCommandState() {
	askConversation = ""
	askTopK = 0
	askDocuments = nil
	askJSON = false
	askNoStream = false
	chatConversation = ""
	compactCheck = false
	ingestRecursive = false
	searchLimit = 0
	searchJSON = false
	verboseFlag = false
}

// setupTestServices wires stubs into the package-level services and
// returns a cleanup that restores the previous wiring and flag state.
func setupTestServices(stub *stubServices, convs *stubConversations) func() {
	resetCommandState()
	SetServices(Services{
		Ingest:        stub,
		Query:         stub,
		Documents:     stub,
		Conversations: convs,
		Maintenance:   stub,
		Registry:      normalisers.NewRegistry(plaintext.New()),
	})
	return func() {
		resetCommandState()
		SetServices(Services{})
		rootCmd.SetArgs(nil)
	}
}
