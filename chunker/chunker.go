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

// Package chunker splits documents into overlapping chunks at two
// granularities. Small chunks are the retrieval and extraction unit;
// large chunks provide surrounding context and are linked to the small
// chunks whose midpoint they contain.
package chunker

import (
	"strings"

	"github.com/scrivano/scrivano/core"
)

// Default chunk sizes, in runes.
const (
	DefaultLargeSize    = 2200
	DefaultLargeOverlap = 150
	DefaultSmallSize    = 550
	DefaultSmallOverlap = 80
)

// Config holds chunking parameters. Sizes and overlaps count runes, not
// bytes, so offsets are stable for non-ASCII text.
type Config struct {
	LargeSize    int
	LargeOverlap int
	SmallSize    int
	SmallOverlap int
}

// DefaultConfig returns a Config with the default sizes.
func DefaultConfig() Config {
	return Config{
		LargeSize:    DefaultLargeSize,
		LargeOverlap: DefaultLargeOverlap,
		SmallSize:    DefaultSmallSize,
		SmallOverlap: DefaultSmallOverlap,
	}
}

// Validate checks that sizes are positive and overlaps leave forward
// progress on every step.
func (c Config) Validate() error {
	if c.LargeSize <= 0 || c.SmallSize <= 0 {
		return core.ErrInvalidChunk
	}
	if c.LargeOverlap < 0 || c.LargeOverlap >= c.LargeSize {
		return core.ErrInvalidChunk
	}
	if c.SmallOverlap < 0 || c.SmallOverlap >= c.SmallSize {
		return core.ErrInvalidChunk
	}
	return nil
}

// ChunkSet is the result of splitting one document. Both slices are
// ordered by ascending start offset.
type ChunkSet struct {
	Large []*core.Chunk
	Small []*core.Chunk
}

// Chunker splits documents according to its Config.
type Chunker struct {
	config Config
}

// New creates a Chunker. Returns an error when the config is invalid.
func New(config Config) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// Split chunks a document at both granularities and links every small
// chunk to the large chunk containing its midpoint. Whitespace-only
// documents produce zero chunks and no error.
func (c *Chunker) Split(doc *core.Document) (*ChunkSet, error) {
	if strings.TrimSpace(doc.RawText) == "" {
		return &ChunkSet{}, nil
	}

	runes := []rune(doc.RawText)
	large := c.splitSpans(doc.Id, runes, core.ChunkKindLarge, c.config.LargeSize, c.config.LargeOverlap)
	small := c.splitSpans(doc.Id, runes, core.ChunkKindSmall, c.config.SmallSize, c.config.SmallOverlap)

	for _, chunk := range small {
		chunk.ParentId = parentFor(chunk, large)
	}

	return &ChunkSet{Large: large, Small: small}, nil
}

// splitSpans walks the rune slice producing [start, end) spans with the
// step start = end - overlap, so consecutive spans overlap and their
// union covers the whole text.
func (c *Chunker) splitSpans(documentId core.ID, runes []rune, kind core.ChunkKind, size, overlap int) []*core.Chunk {
	var chunks []*core.Chunk
	start := 0
	for {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, &core.Chunk{
			Id:         core.ChunkID(documentId, kind, start, end),
			DocumentId: documentId,
			Kind:       kind,
			Start:      start,
			End:        end,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// parentFor returns the ID of the first large chunk containing the small
// chunk's midpoint. The spans cover the text, so a parent always exists.
func parentFor(small *core.Chunk, large []*core.Chunk) core.ID {
	mid := (small.Start + small.End) / 2
	for _, l := range large {
		if mid >= l.Start && mid < l.End {
			return l.Id
		}
	}
	// Midpoint at the very end of the text falls past the half-open
	// span of the last large chunk.
	return large[len(large)-1].Id
}
