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

package storage

import (
	"encoding/json"
	"errors"

	"github.com/scrivano/scrivano/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, errors.Join(ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalVector serializes an EmbeddingVector to bytes.
func MarshalVector(vector *core.EmbeddingVector) []byte {
	buf := make([]byte, core.EmbeddingVectorMUS.Size(*vector))
	core.EmbeddingVectorMUS.Marshal(*vector, buf)
	return buf
}

// UnmarshalVector deserializes an EmbeddingVector from bytes.
func UnmarshalVector(data []byte) (*core.EmbeddingVector, error) {
	vector, _, err := core.EmbeddingVectorMUS.Unmarshal(data)
	if err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}
	return &vector, nil
}

// MarshalDocument serializes a Document to bytes. Documents go through
// JSON because their metadata maps hold arbitrary values.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalRecord serializes a Record to bytes. Records hold dynamic value
// trees keyed by instance path, so they go through JSON as well.
func MarshalRecord(record *core.Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a Record from bytes.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	var record core.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Join(ErrSerializationFailed, err)
	}
	return &record, nil
}
