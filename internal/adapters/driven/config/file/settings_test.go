package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

func TestSettingsStore_LoadMissingFileReturnsDefaults(t *testing.T) {
	store, err := NewSettingsStore(t.TempDir())
	require.NoError(t, err)

	settings, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)
}

func TestSettingsStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewSettingsStore(t.TempDir())
	require.NoError(t, err)

	settings := domain.DefaultSettings()
	settings.ChunkSize = 800
	settings.TopK = 10
	settings.EFSearch = 150
	settings.SimilarityFloor = 0.5

	require.NoError(t, store.Save(settings))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, settings, got)
}

func TestSettingsStore_PartialFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	require.NoError(t, err)

	partial := "[retrieval]\ntop_k = 12\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(partial), 0600))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 12, got.TopK)
	assert.Equal(t, domain.DefaultChunkSize, got.ChunkSize)
	assert.Equal(t, domain.DefaultEFSearch, got.EFSearch)
}

func TestSettingsStore_SaveRejectsInvalid(t *testing.T) {
	store, err := NewSettingsStore(t.TempDir())
	require.NoError(t, err)

	settings := domain.DefaultSettings()
	settings.ChunkSize = -1

	err = store.Save(settings)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsStore_LoadInvalidFileFailsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	require.NoError(t, err)

	// efSearch below topK violates validation.
	bad := "[retrieval]\ntop_k = 50\n[index]\nef_search = 10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(bad), 0600))

	got, err := store.Load()
	assert.Error(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)
}

func TestSettingsStore_Path(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}
