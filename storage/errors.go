package storage

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrSerializationFailed indicates an entity could not be encoded or
	// decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTransactionFailed indicates a transaction could not be committed.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed indicates an operation was attempted on a closed
	// backend.
	ErrStorageClosed = errors.New("storage is closed")
)
