// Package reindex rebuilds the stored embedding vectors for all small
// chunks under a new embedding model.
//
// Changing the embedding model invalidates every cached vector: vectors
// from different models are not comparable. This package walks the chunk
// store in batches, embeds each batch with the new model, normalizes the
// results, and upserts them keyed by the new model id. Old-model vectors
// are left in place so a rollback needs no recomputation.
package reindex
