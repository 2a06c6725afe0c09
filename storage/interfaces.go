package storage

import (
	"context"

	"github.com/scrivano/scrivano/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository

	// PutDocument stores a document, replacing any prior version.
	PutDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// DeleteDocument removes a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error
}

// ChunkRepository provides operations for managing chunks.
type ChunkRepository interface {
	Repository

	// PutChunks stores one or more chunks, replacing prior versions.
	PutChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunks retrieves all chunks of one kind for a document,
	// ordered by ascending start offset.
	GetChunks(ctx context.Context, documentId core.ID, kind core.ChunkKind) ([]*core.Chunk, error)

	// GetAllChunks retrieves all stored chunks of one kind across
	// documents, ordered by (document, start offset). Used by reindexing.
	GetAllChunks(ctx context.Context, kind core.ChunkKind) ([]*core.Chunk, error)

	// DeleteChunks removes all chunks for a document.
	DeleteChunks(ctx context.Context, documentId core.ID) error
}

// VectorRepository provides operations for managing embedding vectors.
// Writes are append-only upserts keyed by (chunk, model); there is exactly
// one current vector per key, so concurrent re-embeds never race on
// partial state.
type VectorRepository interface {
	Repository

	// PutVector stores the current vector for (ChunkId, ModelId).
	PutVector(ctx context.Context, vector *core.EmbeddingVector) error

	// GetVector retrieves the vector for (chunkId, modelId).
	// Returns ErrNotFound if no vector is stored for the pair.
	GetVector(ctx context.Context, chunkId core.ID, modelId string) (*core.EmbeddingVector, error)

	// DeleteVectors removes all vectors stored for a chunk.
	DeleteVectors(ctx context.Context, chunkId core.ID) error
}

// RecordRepository provides operations for managing extraction records.
type RecordRepository interface {
	Repository

	// UpsertRecord stores a record, replacing any prior record for the
	// same (document, schema) pair. A re-run overwrites wholesale.
	UpsertRecord(ctx context.Context, record *core.Record) error

	// GetRecord retrieves the record for (documentId, schemaId).
	// Returns ErrNotFound if no record exists.
	GetRecord(ctx context.Context, documentId, schemaId core.ID) (*core.Record, error)

	// DeleteRecord removes the record for (documentId, schemaId).
	// Returns ErrNotFound if no record exists.
	DeleteRecord(ctx context.Context, documentId, schemaId core.ID) error
}

// Store aggregates all repositories backed by one storage backend.
type Store interface {
	Documents() DocumentRepository
	Chunks() ChunkRepository
	Vectors() VectorRepository
	Records() RecordRepository
	Close() error
}
