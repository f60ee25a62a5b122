package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure SettingsStore implements the interface.
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore persists engine settings as TOML.
// Settings are stored in config.toml within the cosmica config directory.
type SettingsStore struct {
	mu       sync.Mutex
	filePath string
}

// tomlSettings is the on-disk settings layout. Zero values mean "use the
// default", so a partial file is valid.
type tomlSettings struct {
	Chunking struct {
		Size    int `toml:"size,omitempty"`
		Overlap int `toml:"overlap,omitempty"`
		MinSize int `toml:"min_size,omitempty"`
	} `toml:"chunking"`
	Retrieval struct {
		TopK             int     `toml:"top_k,omitempty"`
		SimilarityFloor  float64 `toml:"similarity_floor,omitempty"`
		MaxContextChunks int     `toml:"max_context_chunks,omitempty"`
	} `toml:"retrieval"`
	Memory struct {
		NearWindow int `toml:"near_window,omitempty"`
	} `toml:"memory"`
	Index struct {
		M                int     `toml:"m,omitempty"`
		EFConstruction   int     `toml:"ef_construction,omitempty"`
		EFSearch         int     `toml:"ef_search,omitempty"`
		RebuildThreshold float64 `toml:"rebuild_threshold,omitempty"`
		Dimension        int     `toml:"dimension,omitempty"`
	} `toml:"index"`
}

// NewSettingsStore creates a new TOML-based settings store.
// If configDir is empty, defaults to ~/.cosmica/config.toml.
func NewSettingsStore(configDir string) (*SettingsStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".cosmica")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	return &SettingsStore{
		filePath: filepath.Join(configDir, "config.toml"),
	}, nil
}

// Load reads settings from disk. A missing file yields the defaults; a
// partial file overlays the defaults with whatever it sets.
func (s *SettingsStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := domain.DefaultSettings()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("reading settings: %w", err)
	}

	var file tomlSettings
	if err := toml.Unmarshal(data, &file); err != nil {
		return settings, fmt.Errorf("parsing settings: %w", err)
	}

	overlay(&settings.ChunkSize, file.Chunking.Size)
	overlay(&settings.ChunkOverlap, file.Chunking.Overlap)
	overlay(&settings.MinChunkSize, file.Chunking.MinSize)
	overlay(&settings.TopK, file.Retrieval.TopK)
	overlayFloat(&settings.SimilarityFloor, file.Retrieval.SimilarityFloor)
	overlay(&settings.MaxContextChunks, file.Retrieval.MaxContextChunks)
	overlay(&settings.NearWindow, file.Memory.NearWindow)
	overlay(&settings.HNSWM, file.Index.M)
	overlay(&settings.EFConstruction, file.Index.EFConstruction)
	overlay(&settings.EFSearch, file.Index.EFSearch)
	overlayFloat(&settings.RebuildThreshold, file.Index.RebuildThreshold)
	overlay(&settings.Dimension, file.Index.Dimension)

	if err := settings.Validate(); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("settings file %s: %w", s.filePath, err)
	}

	return settings, nil
}

// Save persists settings to disk.
func (s *SettingsStore) Save(settings domain.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var file tomlSettings
	file.Chunking.Size = settings.ChunkSize
	file.Chunking.Overlap = settings.ChunkOverlap
	file.Chunking.MinSize = settings.MinChunkSize
	file.Retrieval.TopK = settings.TopK
	file.Retrieval.SimilarityFloor = settings.SimilarityFloor
	file.Retrieval.MaxContextChunks = settings.MaxContextChunks
	file.Memory.NearWindow = settings.NearWindow
	file.Index.M = settings.HNSWM
	file.Index.EFConstruction = settings.EFConstruction
	file.Index.EFSearch = settings.EFSearch
	file.Index.RebuildThreshold = settings.RebuildThreshold
	file.Index.Dimension = settings.Dimension

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// overlay replaces dst with src when src is set.
func overlay(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// overlayFloat replaces dst with src when src is set.
func overlayFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}
