package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend *Backend
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) (*RecordRepository, error) {
	return &RecordRepository{
		backend: backend,
	}, nil
}

// Close releases resources. RecordRepository has no resources to release.
func (r *RecordRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *RecordRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// UpsertRecord stores a record, replacing any prior record for the same
// (document, schema) pair.
func (r *RecordRepository) UpsertRecord(ctx context.Context, record *core.Record) error {
	value, err := storage.MarshalRecord(record)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(record.DocumentId, record.SchemaId)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetRecord retrieves the record for (documentId, schemaId).
func (r *RecordRepository) GetRecord(ctx context.Context, documentId, schemaId core.ID) (*core.Record, error) {
	var result *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRecordKey(documentId, schemaId))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalRecord(val)
			return err
		})
	}, false)
	return result, err
}

// DeleteRecord removes the record for (documentId, schemaId).
func (r *RecordRepository) DeleteRecord(ctx context.Context, documentId, schemaId core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(documentId, schemaId)
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
