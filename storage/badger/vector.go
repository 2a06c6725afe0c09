package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) (*VectorRepository, error) {
	return &VectorRepository{
		backend: backend,
	}, nil
}

// Close releases resources. VectorRepository has no resources to release.
func (r *VectorRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *VectorRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutVector stores the current vector for (ChunkId, ModelId).
func (r *VectorRepository) PutVector(ctx context.Context, vector *core.EmbeddingVector) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeVectorKey(vector.ChunkId, vector.ModelId)
		if err := tx.Set(key, storage.MarshalVector(vector)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetVector retrieves the vector for (chunkId, modelId).
func (r *VectorRepository) GetVector(ctx context.Context, chunkId core.ID, modelId string) (*core.EmbeddingVector, error) {
	var result *core.EmbeddingVector
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeVectorKey(chunkId, modelId))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalVector(val)
			return err
		})
	}, false)
	return result, err
}

// DeleteVectors removes all vectors stored for a chunk.
func (r *VectorRepository) DeleteVectors(ctx context.Context, chunkId core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		var keys [][]byte

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := makePartialVectorKey(chunkId)
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}
