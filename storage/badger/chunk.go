package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
//
// Chunks are stored twice: the full record under the chunk ID, and an
// index entry under a (document, kind, start) composite key whose
// BigEndian layout makes iteration return chunks in offset order.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	return &ChunkRepository{
		backend: backend,
	}, nil
}

// Close releases resources. ChunkRepository has no resources to release.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutChunks stores one or more chunks, replacing prior versions.
func (r *ChunkRepository) PutChunks(ctx context.Context, chunks ...*core.Chunk) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if chunk.Id == 0 {
				chunk.Id = core.ChunkID(chunk.DocumentId, chunk.Kind, chunk.Start, chunk.End)
			}

			key := makeChunkKey(chunk.Id)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}

			indexKey := makeChunkDocKey(chunk.DocumentId, chunk.Kind, chunk.Start, chunk.Id)
			if err := tx.Set(indexKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetChunks retrieves all chunks of one kind for a document, ordered by
// ascending start offset. Order comes from the index key layout.
func (r *ChunkRepository) GetChunks(ctx context.Context, documentId core.ID, kind core.ChunkKind) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := makePartialChunkDocKey(documentId, kind)
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			chunk, err := readIndexedChunk(tx, iter.Item())
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// GetAllChunks retrieves all stored chunks of one kind across documents,
// ordered by (document, start offset).
func (r *ChunkRepository) GetAllChunks(ctx context.Context, kind core.ChunkKind) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(chunkDocPrefix + ":")
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			if chunkDocKeyKind(iter.Item().Key()) != kind {
				continue
			}
			chunk, err := readIndexedChunk(tx, iter.Item())
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// DeleteChunks removes all chunks for a document, both kinds.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, documentId core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		// Collect keys first; deleting while iterating is not safe.
		var indexKeys [][]byte
		var chunkIds []core.ID

		opts := badger.DefaultIteratorOptions
		prefix := makeDocChunksKey(documentId)
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			indexKeys = append(indexKeys, item.KeyCopy(nil))

			var chunkId core.ID
			err := item.Value(func(val []byte) error {
				var err error
				chunkId, err = storage.UnmarshalID(val)
				return err
			})
			if err != nil {
				iter.Close()
				return err
			}
			chunkIds = append(chunkIds, chunkId)
		}
		iter.Close()

		for _, key := range indexKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for _, chunkId := range chunkIds {
			if err := tx.Delete(makeChunkKey(chunkId)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// readIndexedChunk resolves an index entry to the full chunk record.
func readIndexedChunk(tx *badger.Txn, item *badger.Item) (*core.Chunk, error) {
	var chunkId core.ID
	err := item.Value(func(val []byte) error {
		var err error
		chunkId, err = storage.UnmarshalID(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return readChunk(tx, makeChunkKey(chunkId))
}

// readChunk reads a chunk from the transaction.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
