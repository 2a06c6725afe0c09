package pipeline

import "errors"

var (
	// ErrStoreRequired indicates no storage backend was supplied.
	ErrStoreRequired = errors.New("store is required")

	// ErrProviderRequired indicates no AI provider was supplied.
	ErrProviderRequired = errors.New("ai provider is required")

	// ErrDocumentFailed indicates every capability interaction for a
	// non-empty document failed, so no record could be produced.
	ErrDocumentFailed = errors.New("document processing failed")
)
