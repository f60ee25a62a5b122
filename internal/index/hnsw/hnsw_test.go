package hnsw

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

const testDim = 16

// randomVectors returns n deterministic pseudo-random vectors.
func randomVectors(t *testing.T, n int, seed int64) [][]float32 {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, testDim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vecs[i] = v
	}
	return vecs
}

// perturb returns a copy of v with small noise added, a near-duplicate.
func perturb(v []float32, rng *rand.Rand) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] + float32(rng.NormFloat64())*0.001
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Dimension: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(Config{Dimension: 8, M: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ix, err := New(Config{Dimension: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, ix.Dimension())
	assert.Equal(t, 0, ix.Len())
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix, err := New(Config{Dimension: testDim})
	require.NoError(t, err)

	_, err = ix.Add(make([]float32, testDim+1))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestAdd_MonotonicIDs(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 4})
	require.NoError(t, err)

	for i, v := range randomVectors(t, 20, 1) {
		id, err := ix.Add(v)
		require.NoError(t, err)
		assert.Equal(t, i, id, "ids must equal insertion position")
	}
	assert.Equal(t, 20, ix.Len())
}

func TestSearch_EmptyIndex(t *testing.T) {
	ix, err := New(Config{Dimension: testDim})
	require.NoError(t, err)

	hits, err := ix.Search(make([]float32, testDim), 5, 50)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix, err := New(Config{Dimension: testDim})
	require.NoError(t, err)
	_, err = ix.Add(randomVectors(t, 1, 1)[0])
	require.NoError(t, err)

	_, err = ix.Search(make([]float32, testDim-1), 1, 10)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestNormalise(t *testing.T) {
	t.Run("unit length after normalising", func(t *testing.T) {
		v := []float32{3, 4, 0, 0}
		Normalise(v)
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	})

	t.Run("idempotent on unit vectors", func(t *testing.T) {
		v := []float32{1, 0, 0, 0}
		Normalise(v)
		assert.InDelta(t, 1.0, norm(v), 1e-6)
		Normalise(v)
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	})

	t.Run("zero vector untouched", func(t *testing.T) {
		v := []float32{0, 0}
		Normalise(v)
		assert.Equal(t, []float32{0, 0}, v)
	})
}

func TestSearch_ExactMatchScoresNearOne(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 8})
	require.NoError(t, err)

	vecs := randomVectors(t, 50, 7)
	for _, v := range vecs {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	hits, err := ix.Search(vecs[13], 1, 50)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 13, hits[0].ID)
	assert.Greater(t, hits[0].Similarity, 0.99)
}

func TestSearch_PlantedDuplicateRecall(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 16, EFConstruction: 100})
	require.NoError(t, err)

	// A filler corpus plus planted near-duplicates of the query set.
	for _, v := range randomVectors(t, 500, 11) {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	rng := rand.New(rand.NewSource(23))
	queries := randomVectors(t, 100, 29)
	plantedIDs := make([]int, len(queries))
	for i, q := range queries {
		id, err := ix.Add(perturb(q, rng))
		require.NoError(t, err)
		plantedIDs[i] = id
	}

	found := 0
	for i, q := range queries {
		hits, err := ix.Search(q, 1, domain.DefaultEFSearch)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		if hits[0].ID == plantedIDs[i] {
			found++
		}
	}

	// At least 95% of trials must surface the planted near-duplicate.
	assert.GreaterOrEqual(t, found, 95, "recall too low: %d/100", found)
}

func TestSearch_EFClampedToK(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 4})
	require.NoError(t, err)
	for _, v := range randomVectors(t, 30, 3) {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	// ef below k still returns k results.
	hits, err := ix.Search(randomVectors(t, 1, 5)[0], 10, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 10)
}

func TestSearch_Deterministic(t *testing.T) {
	build := func() *Index {
		ix, err := New(Config{Dimension: testDim, M: 8, Seed: 42})
		require.NoError(t, err)
		for _, v := range randomVectors(t, 100, 17) {
			_, err := ix.Add(v)
			require.NoError(t, err)
		}
		return ix
	}

	a, b := build(), build()
	q := randomVectors(t, 1, 99)[0]

	hitsA, err := a.Search(q, 10, 100)
	require.NoError(t, err)
	hitsB, err := b.Search(q, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, hitsA, hitsB)
}

func TestRebuild_ExcludesDropped(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 8})
	require.NoError(t, err)

	vecs := randomVectors(t, 60, 31)
	for _, v := range vecs {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	// Drop every third vector.
	dropped := make(map[int]bool)
	for i := 0; i < 60; i += 3 {
		dropped[i] = true
	}

	remap, err := ix.Rebuild(func(id int) bool { return !dropped[id] })
	require.NoError(t, err)

	assert.Equal(t, 40, ix.Len())
	assert.Len(t, remap, 40)
	for old := range dropped {
		_, ok := remap[old]
		assert.False(t, ok, "dropped id %d must not be remapped", old)
	}

	// Surviving vectors remain findable at their new ids.
	for old, newID := range remap {
		hits, err := ix.Search(vecs[old], 1, 100)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, newID, hits[0].ID)
		assert.Greater(t, hits[0].Similarity, 0.99)
	}
}

func TestRebuild_PreservesInsertionOrder(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 4})
	require.NoError(t, err)

	for _, v := range randomVectors(t, 10, 41) {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	remap, err := ix.Rebuild(func(id int) bool { return id >= 4 })
	require.NoError(t, err)

	// Survivors are reinserted in original order, so new ids are dense
	// and order-preserving.
	for old := 4; old < 10; old++ {
		assert.Equal(t, old-4, remap[old])
	}
}

func TestStageRebuild_OldGraphServedUntilCommit(t *testing.T) {
	ix, err := New(Config{Dimension: testDim, M: 8})
	require.NoError(t, err)

	vecs := randomVectors(t, 20, 71)
	for _, v := range vecs {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}

	staged, err := ix.StageRebuild(func(id int) bool { return id >= 10 })
	require.NoError(t, err)

	// Before commit, searches still resolve in the old id space.
	assert.Equal(t, 20, ix.Len())
	assert.Equal(t, uint64(0), ix.Generation())
	hits, err := ix.Search(vecs[15], 1, 100)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, 15, hits[0].ID)

	staged.Commit()

	assert.Equal(t, 10, ix.Len())
	assert.Equal(t, uint64(1), ix.Generation())
	assert.Equal(t, staged.Generation(), ix.Generation())
	hits, err = ix.Search(vecs[15], 1, 100)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, staged.Remap()[15], hits[0].ID)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.covx")

	ix, err := New(Config{Dimension: testDim, M: 8})
	require.NoError(t, err)
	for _, v := range randomVectors(t, 80, 53) {
		_, err := ix.Add(v)
		require.NoError(t, err)
	}
	_, err = ix.Rebuild(func(id int) bool { return id < 80 })
	require.NoError(t, err)

	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ix.Len(), loaded.Len())
	assert.Equal(t, ix.Generation(), loaded.Generation())

	// Identical results for a fixed query set.
	for _, q := range randomVectors(t, 10, 61) {
		want, err := ix.Search(q, 5, 100)
		require.NoError(t, err)
		got, err := loaded.Search(q, 5, 100)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.covx"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClosedIndex(t *testing.T) {
	ix, err := New(Config{Dimension: testDim})
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	_, err = ix.Add(make([]float32, testDim))
	assert.ErrorIs(t, err, domain.ErrIndexClosed)

	_, err = ix.Search(make([]float32, testDim), 1, 10)
	assert.ErrorIs(t, err, domain.ErrIndexClosed)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
