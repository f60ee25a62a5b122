package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers/plaintext"
)

// recordingIngest records ingested paths.
type recordingIngest struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIngest) IngestFile(_ context.Context, path string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return &domain.Document{ID: "doc-" + path, Filename: path, Status: domain.StatusReady}, nil
}

func (r *recordingIngest) IngestText(_ context.Context, name, _ string) (*domain.Document, error) {
	return &domain.Document{ID: "doc-" + name, Status: domain.StatusReady}, nil
}

// recordingDocuments records removals and serves a fixed document list.
type recordingDocuments struct {
	mu      sync.Mutex
	docs    []domain.Document
	removed []string
}

func (r *recordingDocuments) List(context.Context) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs, nil
}

func (r *recordingDocuments) Get(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrNotFound
}

func (r *recordingDocuments) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

func newTestWatcher() (*Watcher, *recordingIngest, *recordingDocuments) {
	ingest := &recordingIngest{}
	documents := &recordingDocuments{}
	registry := normalisers.NewRegistry(plaintext.New())
	watcher := NewWatcher(ingest, documents, registry, WithDebounce(10*time.Millisecond))
	return watcher, ingest, documents
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{".hidden/file.txt", true},
		{"path/.git/config", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/./file", false},
		{"file.hidden", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestWatcher_SupportedExtensionsOnly(t *testing.T) {
	watcher, _, _ := newTestWatcher()

	assert.True(t, watcher.supported("notes.txt"))
	assert.True(t, watcher.supported("/abs/path/data.json"))
	assert.False(t, watcher.supported("image.png"))
	assert.False(t, watcher.supported("binary"))
}

func TestWatcher_WriteEventDebounced(t *testing.T) {
	watcher, ingest, _ := newTestWatcher()
	ctx := context.Background()

	// Three rapid writes collapse into one ingest.
	for i := 0; i < 3; i++ {
		watcher.schedule(ctx, "/tmp/notes.txt")
	}

	require.Eventually(t, func() bool {
		ingest.mu.Lock()
		defer ingest.mu.Unlock()
		return len(ingest.paths) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	assert.Len(t, ingest.paths, 1)
}

func TestWatcher_RemoveDropsKnownDocument(t *testing.T) {
	watcher, ingest, documents := newTestWatcher()
	ctx := context.Background()

	watcher.ingestFile(ctx, "/tmp/notes.txt")
	require.Len(t, ingest.paths, 1)

	watcher.removeFile(ctx, "/tmp/notes.txt")
	assert.Equal(t, []string{"doc-/tmp/notes.txt"}, documents.removed)

	// A second remove for the same path is a no-op.
	watcher.removeFile(ctx, "/tmp/notes.txt")
	assert.Len(t, documents.removed, 1)
}

func TestWatcher_ReingestReplacesPrevious(t *testing.T) {
	watcher, ingest, documents := newTestWatcher()
	ctx := context.Background()

	watcher.ingestFile(ctx, "/tmp/notes.txt")
	watcher.ingestFile(ctx, "/tmp/notes.txt")

	assert.Len(t, ingest.paths, 2)
	// The second ingest removed the document created by the first.
	assert.Equal(t, []string{"doc-/tmp/notes.txt"}, documents.removed)
}

// runSession runs Watch over dir until the deadline passes.
func runSession(t *testing.T, watcher *Watcher, dir string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := watcher.Watch(ctx, dir)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatcher_RestartAdoptsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	first, ingest, _ := newTestWatcher()
	runSession(t, first, dir)
	require.Equal(t, []string{path}, ingest.paths)

	// A later session finds the document already indexed and current.
	second, reingest, documents := newTestWatcher()
	documents.docs = []domain.Document{{
		ID:        "doc-1",
		Filename:  "notes.txt",
		Status:    domain.StatusReady,
		UpdatedAt: time.Now().Add(time.Minute),
	}}
	runSession(t, second, dir)

	assert.Empty(t, reingest.paths)
	assert.Empty(t, documents.removed)
	assert.Equal(t, "doc-1", second.known[path])
}

func TestWatcher_RestartReingestsModifiedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	// The indexed document predates the file's last write.
	watcher, ingest, documents := newTestWatcher()
	documents.docs = []domain.Document{{
		ID:        "doc-1",
		Filename:  "notes.txt",
		Status:    domain.StatusReady,
		UpdatedAt: time.Now().Add(-time.Hour),
	}}
	runSession(t, watcher, dir)

	assert.Equal(t, []string{path}, ingest.paths)
	// The stale version was replaced, not duplicated.
	assert.Equal(t, []string{"doc-1"}, documents.removed)
}

func TestWatcher_RestartReingestsFailedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	watcher, ingest, documents := newTestWatcher()
	documents.docs = []domain.Document{{
		ID:        "doc-1",
		Filename:  "notes.txt",
		Status:    domain.StatusFailed,
		UpdatedAt: time.Now().Add(time.Minute),
	}}
	runSession(t, watcher, dir)

	assert.Equal(t, []string{path}, ingest.paths)
}

func TestWatcher_HiddenEventsIgnored(t *testing.T) {
	watcher, ingest, _ := newTestWatcher()

	watcher.handle(context.Background(), nil, fsnotify.Event{
		Name: "/tmp/.secret.txt",
		Op:   fsnotify.Write,
	})

	time.Sleep(30 * time.Millisecond)
	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	assert.Empty(t, ingest.paths)
}
