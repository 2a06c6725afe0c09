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

import (
	"errors"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the entities stored in hot paths. Documents and
// records carry dynamic value trees and go through JSON instead.

var errNegativeLength = errors.New("negative slice length")

// IDMUS serializes IDs as varint-encoded uint64.
var IDMUS = idMUS{}

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (s idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

// ChunkMUS serializes Chunks field by field in declaration order.
var ChunkMUS = chunkMUS{}

type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += varint.Int.Marshal(int(v.Kind), bs[n:])
	n += varint.Int.Marshal(v.Start, bs[n:])
	n += varint.Int.Marshal(v.End, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += IDMUS.Marshal(v.ParentId, bs[n:])
	return n
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var n1 int
	if v.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return v, n, err
	}
	if v.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	var kind int
	if kind, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	v.Kind = ChunkKind(kind)
	n += n1
	if v.Start, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.End, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if v.ParentId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	return v, n, nil
}

func (s chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.DocumentId)
	size += varint.Int.Size(int(v.Kind))
	size += varint.Int.Size(v.Start)
	size += varint.Int.Size(v.End)
	size += ord.String.Size(v.Text)
	size += IDMUS.Size(v.ParentId)
	return size
}

func (s chunkMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	for i := 0; i < 2; i++ {
		if n1, err = IDMUS.Skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	for i := 0; i < 3; i++ {
		if n1, err = varint.Int.Skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	if n1, err = ord.String.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	if n1, err = IDMUS.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	return n + n1, nil
}

// EmbeddingVectorMUS serializes EmbeddingVectors. The vector payload is a
// varint length followed by raw little-endian float32 elements.
var EmbeddingVectorMUS = embeddingVectorMUS{}

type embeddingVectorMUS struct{}

func (s embeddingVectorMUS) Marshal(v EmbeddingVector, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ChunkId, bs)
	n += ord.String.Marshal(v.ModelId, bs[n:])
	n += varint.Int.Marshal(len(v.Vector), bs[n:])
	for _, f := range v.Vector {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (s embeddingVectorMUS) Unmarshal(bs []byte) (v EmbeddingVector, n int, err error) {
	var n1 int
	if v.ChunkId, n, err = IDMUS.Unmarshal(bs); err != nil {
		return v, n, err
	}
	if v.ModelId, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	var length int
	if length, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return v, n + n1, err
	}
	n += n1
	if length < 0 {
		return v, n, errNegativeLength
	}
	if length > 0 {
		v.Vector = make([]float32, length)
		for i := 0; i < length; i++ {
			if v.Vector[i], n1, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
				return v, n + n1, err
			}
			n += n1
		}
	}
	return v, n, nil
}

func (s embeddingVectorMUS) Size(v EmbeddingVector) (size int) {
	size = IDMUS.Size(v.ChunkId)
	size += ord.String.Size(v.ModelId)
	size += varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += raw.Float32.Size(f)
	}
	return size
}

func (s embeddingVectorMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	if n, err = IDMUS.Skip(bs); err != nil {
		return n, err
	}
	if n1, err = ord.String.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	var length int
	if length, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	if length < 0 {
		return n, errNegativeLength
	}
	for i := 0; i < length; i++ {
		if n1, err = raw.Float32.Skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	return n, nil
}
