package vector

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

var gen = types.NewIDGenerator()

func newID() types.ClaimID {
	return gen.NewID(time.Now())
}

func TestInsertAndSearch(t *testing.T) {
	idx, err := Open("", 3)
	require.NoError(t, err)

	a := newID()
	b := newID()
	require.NoError(t, idx.Insert(a, []float32{1, 0, 0}))
	require.NoError(t, idx.Insert(b, []float32{0, 1, 0}))
	assert.Equal(t, 2, idx.Len())

	matches, err := idx.Search([]float32{1, 0, 0}, 10, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, a, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestSearch_OrderedBySimilarity(t *testing.T) {
	idx, err := Open("", 2)
	require.NoError(t, err)

	exact := newID()
	near := newID()
	far := newID()
	require.NoError(t, idx.Insert(far, []float32{0, 1}))
	require.NoError(t, idx.Insert(near, []float32{1, 0.5}))
	require.NoError(t, idx.Insert(exact, []float32{1, 0}))

	matches, err := idx.Search([]float32{1, 0}, 10, -1)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, exact, matches[0].ID)
	assert.Equal(t, near, matches[1].ID)
	assert.Equal(t, far, matches[2].ID)
}

func TestSearch_TiesPreferNewer(t *testing.T) {
	idx, err := Open("", 2)
	require.NoError(t, err)

	older := newID()
	newer := newID()
	require.NoError(t, idx.Insert(older, []float32{1, 0}))
	require.NoError(t, idx.Insert(newer, []float32{1, 0}))

	matches, err := idx.Search([]float32{1, 0}, 2, 0.99)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, newer, matches[0].ID, "equal similarity breaks toward the newer id")
}

func TestInsert_DimensionMismatch(t *testing.T) {
	idx, err := Open("", 3)
	require.NoError(t, err)

	err = idx.Insert(newID(), []float32{1, 2})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	_, err = idx.Search([]float32{1, 2}, 5, 0)
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestInsert_ReplacesExisting(t *testing.T) {
	idx, err := Open("", 2)
	require.NoError(t, err)

	id := newID()
	require.NoError(t, idx.Insert(id, []float32{1, 0}))
	require.NoError(t, idx.Insert(id, []float32{0, 1}))
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Search([]float32{0, 1}, 1, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].ID)
}

func TestDelete(t *testing.T) {
	idx, err := Open("", 2)
	require.NoError(t, err)

	id := newID()
	keep := newID()
	require.NoError(t, idx.Insert(id, []float32{1, 0}))
	require.NoError(t, idx.Insert(keep, []float32{0, 1}))

	idx.Delete(id)
	idx.Delete(id) // idempotent
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Search([]float32{1, 0}, 10, -1)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, id, m.ID)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vec")

	idx, err := Open(path, 2)
	require.NoError(t, err)
	a := newID()
	b := newID()
	require.NoError(t, idx.Insert(a, []float32{1, 0}))
	require.NoError(t, idx.Insert(b, []float32{0, 1}))
	require.NoError(t, idx.Close())

	reloaded, err := Open(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())

	matches, err := reloaded.Search([]float32{1, 0}, 1, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, a, matches[0].ID)
}

func TestOpen_DimensionMismatchOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.vec")

	idx, err := Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(newID(), []float32{1, 0}))
	require.NoError(t, idx.Close())

	_, err = Open(path, 3)
	assert.Error(t, err)
}

// P9: a rebuilt index answers queries identically to the original for the
// same vectors.
func TestRebuild_ObservationallyEquivalent(t *testing.T) {
	idx, err := Open(filepath.Join(t.TempDir(), "test.vec"), 3)
	require.NoError(t, err)

	entries := map[types.ClaimID][]float32{
		newID(): {1, 0, 0},
		newID(): {0.8, 0.2, 0},
		newID(): {0, 0, 1},
	}
	for id, vec := range entries {
		require.NoError(t, idx.Insert(id, vec))
	}

	query := []float32{1, 0, 0}
	before, err := idx.Search(query, 3, -1)
	require.NoError(t, err)

	err = idx.Rebuild(func(fn func(id types.ClaimID, vector []float32) error) error {
		for id, vec := range entries {
			if err := fn(id, vec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	after, err := idx.Search(query, 3, -1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
