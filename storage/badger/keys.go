package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/scrivano/scrivano/core"
)

// Key prefixes for different data types
const (
	documentPrefix = "docrec"
	chunkPrefix    = "churec"
	chunkDocPrefix = "chudoc"
	vectorPrefix   = "vecrec"
	recordPrefix   = "extrec"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkPrefix, id))
}

// makeChunkDocKey generates a composite key for the per-document chunk index.
// Format: prefix:documentID:kind:start:chunkID. BigEndian fields make the
// lexicographic key order match (document, kind, start offset) order, which
// is what ordered chunk retrieval relies on.
func makeChunkDocKey(documentId core.ID, kind core.ChunkKind, start int, chunkId core.ID) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 25 // 8 docID + 1 kind + 8 start + 8 chunkID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentId))
	offset += 8
	buf[offset] = byte(kind)
	offset++
	binary.BigEndian.PutUint64(buf[offset:], uint64(start))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkId))
	return buf
}

// makePartialChunkDocKey generates a partial key for iterating one
// document's chunks of one kind.
func makePartialChunkDocKey(documentId core.ID, kind core.ChunkKind) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 9 // 8 docID + 1 kind
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentId))
	offset += 8
	buf[offset] = byte(kind)
	return buf
}

// makeDocChunksKey generates a partial key covering all chunks of a
// document, regardless of kind.
func makeDocChunksKey(documentId core.ID) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentId))
	return buf
}

// chunkDocKeyKind extracts the kind byte from a chunk index key.
// Returns 0 if the key is too short to carry one.
func chunkDocKeyKind(key []byte) core.ChunkKind {
	prefixSize := len(chunkDocPrefix) + 1
	if len(key) < prefixSize+9 {
		return 0
	}
	return core.ChunkKind(key[prefixSize+8])
}

// makeVectorKey generates a key for a vector by (chunk, model).
func makeVectorKey(chunkId core.ID, modelId string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s", vectorPrefix, chunkId, modelId))
}

// makePartialVectorKey generates a partial key for all vectors of a chunk.
func makePartialVectorKey(chunkId core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d:", vectorPrefix, chunkId))
}

// makeRecordKey generates a key for a record by (document, schema).
func makeRecordKey(documentId, schemaId core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", recordPrefix, documentId, schemaId))
}
