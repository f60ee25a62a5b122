// Package filesystem mirrors a directory tree into the knowledge base.
// Files are ingested on creation and change, removed on deletion, with
// writes debounced so editors that save in bursts trigger one ingest.
package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driving"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
)

// DefaultDebounce is how long a file must stay quiet before ingestion.
const DefaultDebounce = 500 * time.Millisecond

// Watcher mirrors directory changes into the engine.
type Watcher struct {
	ingest    driving.IngestService
	documents driving.DocumentService
	registry  *normalisers.Registry
	debounce  time.Duration

	mu      sync.Mutex
	known   map[string]string // absolute path -> document id
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the write-settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over the given services.
func NewWatcher(ingest driving.IngestService, documents driving.DocumentService, registry *normalisers.Registry, opts ...Option) *Watcher {
	w := &Watcher{
		ingest:    ingest,
		documents: documents,
		registry:  registry,
		debounce:  DefaultDebounce,
		known:     make(map[string]string),
		pending:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch ingests the directory's current contents and then mirrors changes
// until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	seed, err := w.adopt(ctx)
	if err != nil {
		return err
	}
	if err := w.addTree(ctx, watcher, dir, seed); err != nil {
		return err
	}

	logger.Info("Watching %s", dir)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// adopt maps the filenames of already-ingested documents to their records
// so a restarted watcher resumes where the previous session stopped instead
// of duplicating the directory.
func (w *Watcher) adopt(ctx context.Context) (map[string]domain.Document, error) {
	docs, err := w.documents.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]domain.Document, len(docs))
	for _, doc := range docs {
		// List is newest first; the newest version wins.
		if _, ok := byName[doc.Filename]; !ok {
			byName[doc.Filename] = doc
		}
	}
	return byName, nil
}

// addTree registers the directory and its subdirectories and ingests the
// supported files already present. Files whose document is still current
// are adopted rather than re-ingested.
func (w *Watcher) addTree(ctx context.Context, watcher *fsnotify.Watcher, root string, seed map[string]domain.Document) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isHidden(path) && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		if !w.supported(path) {
			return nil
		}
		if doc, ok := seed[filepath.Base(path)]; ok {
			// Each document backs at most one path.
			delete(seed, filepath.Base(path))
			w.mu.Lock()
			w.known[path] = doc.ID
			w.mu.Unlock()
			if unchanged(path, doc) {
				return nil
			}
		}
		w.ingestFile(ctx, path)
		return nil
	})
}

// unchanged reports whether the file on disk still matches its indexed
// document: the ingest succeeded and the file has not been written since.
func unchanged(path string, doc domain.Document) bool {
	if doc.Status != domain.StatusReady {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.ModTime().After(doc.UpdatedAt)
}

// handle routes one filesystem event.
func (w *Watcher) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name
	if isHidden(path) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := watcher.Add(path); err != nil {
				logger.Warn("Watching new directory %s: %v", path, err)
			}
			return
		}
		w.schedule(ctx, path)
	case event.Op.Has(fsnotify.Write):
		w.schedule(ctx, path)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.removeFile(ctx, path)
	}
}

// schedule queues the path for ingestion once writes settle.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !w.supported(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

// ingestFile replaces any previous version of the file in the index.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	previous := w.known[path]
	w.mu.Unlock()

	if previous != "" {
		if err := w.documents.Remove(ctx, previous); err != nil {
			logger.Warn("Removing stale version of %s: %v", path, err)
		}
	}

	doc, err := w.ingest.IngestFile(ctx, path)
	if err != nil {
		logger.Warn("Ingesting %s: %v", path, err)
		return
	}

	w.mu.Lock()
	w.known[path] = doc.ID
	w.mu.Unlock()
}

// removeFile drops the document backing a deleted file.
func (w *Watcher) removeFile(ctx context.Context, path string) {
	w.mu.Lock()
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
	id := w.known[path]
	delete(w.known, path)
	w.mu.Unlock()

	if id == "" {
		return
	}
	if err := w.documents.Remove(ctx, id); err != nil {
		logger.Warn("Removing document for %s: %v", path, err)
	}
}

// cancelPending stops all outstanding debounce timers.
func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// supported reports whether a normaliser exists for the path.
func (w *Watcher) supported(path string) bool {
	_, err := w.registry.For(filepath.Base(path))
	return err == nil
}

// isHidden reports whether any element of the path starts with a dot.
// The relative markers "." and ".." do not count.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "." || part == ".." || part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
