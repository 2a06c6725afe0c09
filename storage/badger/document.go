package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	return &DocumentRepository{
		backend: backend,
	}, nil
}

// Close releases resources. DocumentRepository has no resources to release.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutDocument stores a document, replacing any prior version.
func (r *DocumentRepository) PutDocument(ctx context.Context, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeDocumentKey(doc.Id), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalDocument(val)
			return err
		})
	}, false)
	return result, err
}

// DeleteDocument removes a document by ID.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
