// Package storage defines the repository interfaces and serialization
// helpers shared by all storage backends. The badger subpackage provides
// the embedded implementation used in production and tests.
package storage
