package badger

import (
	"github.com/scrivano/scrivano/storage"
)

// Store aggregates the BadgerDB repositories over one shared backend.
type Store struct {
	backend   *Backend
	documents *DocumentRepository
	chunks    *ChunkRepository
	vectors   *VectorRepository
	records   *RecordRepository
}

var _ storage.Store = (*Store)(nil)

// OpenStore opens a store at the given path. With inMemory set, the path
// is ignored and nothing touches disk.
func OpenStore(filePath string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, err
	}

	documents, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	chunks, err := NewChunkRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	vectors, err := NewVectorRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	records, err := NewRecordRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Store{
		backend:   backend,
		documents: documents,
		chunks:    chunks,
		vectors:   vectors,
		records:   records,
	}, nil
}

// Documents returns the document repository.
func (s *Store) Documents() storage.DocumentRepository { return s.documents }

// Chunks returns the chunk repository.
func (s *Store) Chunks() storage.ChunkRepository { return s.chunks }

// Vectors returns the vector repository.
func (s *Store) Vectors() storage.VectorRepository { return s.vectors }

// Records returns the record repository.
func (s *Store) Records() storage.RecordRepository { return s.records }

// Backend exposes the shared backend for low-level operations.
func (s *Store) Backend() *Backend { return s.backend }

// Close closes all repositories and the shared backend.
func (s *Store) Close() error {
	s.documents.Close()
	s.chunks.Close()
	s.vectors.Close()
	s.records.Close()
	return s.backend.Close()
}
