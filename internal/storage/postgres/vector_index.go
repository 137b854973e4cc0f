package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// VectorIndex adapts the in-database pgvector column to the
// storage.VectorIndex contract. Because the vectors live in the claims
// table itself, the projection is always consistent with the relational
// store: inserts and deletes are no-ops beyond a dimension check, and
// Rebuild has nothing to repopulate.
type VectorIndex struct {
	store *ClaimStore
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex wraps the store's pgvector column.
func NewVectorIndex(store *ClaimStore) *VectorIndex {
	return &VectorIndex{store: store}
}

// Insert validates the dimension; the vector itself was written with the
// claim row.
func (x *VectorIndex) Insert(_ types.ClaimID, vector []float32) error {
	if len(vector) != x.store.dimension {
		return fmt.Errorf("%w: vector length %d does not match instance dimension %d",
			storage.ErrInvalid, len(vector), x.store.dimension)
	}
	return nil
}

// Delete is a no-op: forgotten and deleted rows drop out of the search
// predicate.
func (x *VectorIndex) Delete(types.ClaimID) {}

// Search runs in-database k-NN.
func (x *VectorIndex) Search(vector []float32, k int, threshold float64) ([]storage.SemanticMatch, error) {
	return x.store.SearchSemantic(context.Background(), vector, k, threshold)
}

// Len counts embedded, non-forgotten claims.
func (x *VectorIndex) Len() int {
	n, err := x.store.CountEmbedded(context.Background())
	if err != nil {
		log.Printf("postgres: vector index count: %v", err)
		return 0
	}
	return n
}

// Dimension returns the instance dimension.
func (x *VectorIndex) Dimension() int {
	return x.store.dimension
}

// Rebuild is a no-op: the projection lives in the authoritative table.
func (x *VectorIndex) Rebuild(func(fn func(id types.ClaimID, vector []float32) error) error) error {
	return nil
}

// Save is a no-op.
func (x *VectorIndex) Save() error { return nil }

// Close is a no-op; the store owns the connection pool.
func (x *VectorIndex) Close() error { return nil }
