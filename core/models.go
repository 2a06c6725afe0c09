package core

import (
	"encoding/binary"
	"fmt"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated by content-based hashing so that identical inputs
// always map to identical IDs across runs.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Document is the raw-text input to a pipeline run. It is produced by the
// upstream text-extraction collaborator and immutable once created.
type Document struct {
	Id       ID
	RawText  string
	Language string            // Optional ISO 639-1 hint
	Metadata map[string]string // Technical file metadata from the collaborator
}

// ChunkKind distinguishes the two chunking granularities.
type ChunkKind int

const (
	// ChunkKindLarge is a context-window sized chunk.
	ChunkKindLarge ChunkKind = iota + 1
	// ChunkKindSmall is a retrieval/extraction sized chunk.
	ChunkKindSmall
)

// Chunk is a contiguous span of a document at one granularity.
// Start and End are rune offsets into the document's raw text.
// Small chunks link to the large chunk containing their midpoint.
type Chunk struct {
	Id         ID
	DocumentId ID
	Kind       ChunkKind
	Start      int
	End        int
	Text       string
	ParentId   ID // Enclosing large chunk; zero for large chunks
}

// ChunkID derives the deterministic ID of a chunk from its identity
// (document, granularity, span). Re-chunking an unchanged document
// therefore reproduces the same IDs.
func ChunkID(documentId ID, kind ChunkKind, start, end int) ID {
	return IDFromContent(fmt.Sprintf("chunk:%d:%d:%d:%d", documentId, kind, start, end))
}

// EmbeddingVector is the stored embedding for one small chunk under one
// embedding model. There is exactly one current vector per (ChunkId, ModelId).
type EmbeddingVector struct {
	ChunkId ID
	ModelId string
	Vector  []float32
}

// ExtractionCandidate is one chunk's proposed value for one schema field,
// produced by the extraction orchestrator and consumed by the aggregator.
type ExtractionCandidate struct {
	Path       string // Schema path of the target field
	ChunkId    ID
	ChunkStart int // Start offset of the source chunk, for document-order tie-breaks
	Value      any
	Confidence float64
}

// AggregatedValue is the authoritative value for one schema leaf (or one
// array element) after aggregation across chunks.
type AggregatedValue struct {
	Path             string
	Value            any
	Confidence       float64
	SupportingChunks []ID // Source chunks of the winning candidate group, ascending
}

// IssueKind classifies validation findings attached to a record.
type IssueKind string

const (
	IssueTypeMismatch    IssueKind = "type_mismatch"
	IssueFormatInvalid   IssueKind = "format_invalid"
	IssueEnumInvalid     IssueKind = "enum_invalid"
	IssueLowConfidence   IssueKind = "low_confidence"
	IssueMissingRequired IssueKind = "missing_required"
)

// ValidationIssue flags a field for human review. Issues never remove or
// mutate the aggregated value they refer to.
type ValidationIssue struct {
	Path   string
	Kind   IssueKind
	Detail string
}

// Record is the terminal artifact of a pipeline run: one aggregated,
// validated set of values for one (document, schema) pair. Re-running the
// pipeline replaces the record wholesale.
type Record struct {
	DocumentId ID
	SchemaId   ID
	RunId      string // uuid of the producing run, for traceability
	Values     map[string]AggregatedValue
	Issues     []ValidationIssue
}

// Value returns the aggregated value at path, if any.
func (r *Record) Value(path string) (AggregatedValue, bool) {
	v, ok := r.Values[path]
	return v, ok
}

// IssuesAt returns all issues recorded for the given path.
func (r *Record) IssuesAt(path string) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Path == path {
			out = append(out, issue)
		}
	}
	return out
}
