// Copyright 2026 Scrivano Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidSchema indicates the schema document could not be parsed
	// into a supported SchemaNode tree.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrEmptyDocument indicates a document contains no extractable text.
	ErrEmptyDocument = errors.New("empty document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrUnknownPath indicates a path does not resolve to a schema node.
	ErrUnknownPath = errors.New("path does not resolve to a schema node")
)
