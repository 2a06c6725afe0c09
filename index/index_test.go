package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/ai/mock"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage/badger"
)

const testModel = "embeddinggemma"

func testChunks(texts ...string) []*core.Chunk {
	chunks := make([]*core.Chunk, len(texts))
	start := 0
	for i, text := range texts {
		end := start + len([]rune(text))
		chunks[i] = &core.Chunk{
			Id:         core.ChunkID(1, core.ChunkKindSmall, start, end),
			DocumentId: 1,
			Kind:       core.ChunkKindSmall,
			Start:      start,
			End:        end,
			Text:       text,
		}
		start = end
	}
	return chunks
}

func newTestBuilder(t *testing.T, embedder ai.Embedder) *Builder {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewBuilder(embedder, store.Vectors(), testModel, WithRetry(2, time.Millisecond))
}

func TestBuildEmbedsAndPersists(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	builder := NewBuilder(embedder, store.Vectors(), testModel)
	chunks := testChunks("eerste stuk", "tweede stuk", "derde stuk")

	idx, err := builder.Build(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.False(t, idx.Degraded())
	assert.Empty(t, idx.Unindexed())

	// Vectors went through the cache, normalized.
	vector, err := store.Vectors().GetVector(context.Background(), chunks[0].Id, testModel)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, float64(DotProduct(vector.Vector, vector.Vector)), 0.001)
}

func TestBuildUsesCachedVectors(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	builder := NewBuilder(embedder, store.Vectors(), testModel)
	chunks := testChunks("alpha", "beta")

	_, err = builder.Build(context.Background(), chunks)
	require.NoError(t, err)
	callsAfterFirst := embedder.CallCount()

	_, err = builder.Build(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, embedder.CallCount(), "second build must hit the cache only")
}

func TestBuildDegradedWhenAllFail(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	failure := ai.Classify(errors.New("connection refused"))
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, failure
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, failure
	}

	builder := newTestBuilder(t, embedder)
	chunks := testChunks("een", "twee")

	idx, err := builder.Build(context.Background(), chunks)
	require.NoError(t, err)
	assert.True(t, idx.Degraded())
	assert.Equal(t, 0, idx.Len())
	assert.Len(t, idx.Unindexed(), 2)

	// A degraded index still carries every chunk for fallback scans.
	require.Len(t, idx.Chunks(), 2)
	assert.Equal(t, "een", idx.Chunks()[0].Text)
	assert.Equal(t, "twee", idx.Chunks()[1].Text)
}

func TestBuildPartialFailureIsNotDegraded(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	failure := ai.Classify(errors.New("boom"))
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, failure
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "kapot" {
			return nil, failure
		}
		return []float32{1, 0, 0}, nil
	}

	builder := newTestBuilder(t, embedder)
	chunks := testChunks("goed", "kapot", "ook goed")

	idx, err := builder.Build(context.Background(), chunks)
	require.NoError(t, err)
	assert.False(t, idx.Degraded())
	assert.Equal(t, 2, idx.Len())
	require.Len(t, idx.Unindexed(), 1)
	assert.Equal(t, chunks[1].Id, idx.Unindexed()[0])

	// The unembedded chunk stays reachable through the index.
	assert.Len(t, idx.Chunks(), 3)
	require.Len(t, idx.UnindexedChunks(), 1)
	assert.Equal(t, "kapot", idx.UnindexedChunks()[0].Text)
}

func TestBuildEmptyChunks(t *testing.T) {
	builder := newTestBuilder(t, mock.NewMockEmbedder())

	idx, err := builder.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.False(t, idx.Degraded(), "empty document is not a degraded index")
}

func TestQueryOrdering(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	vectors := map[string][]float32{
		"noord":  {1, 0},
		"oost":   {0, 1},
		"schuin": {0.7071, 0.7071},
	}
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = vectors[text]
		}
		return out, nil
	}

	builder := newTestBuilder(t, embedder)
	chunks := testChunks("noord", "oost", "schuin")

	idx, err := builder.Build(context.Background(), chunks)
	require.NoError(t, err)

	matches := idx.Query([]float32{1, 0}, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, "noord", matches[0].Chunk.Text)
	assert.Equal(t, "schuin", matches[1].Chunk.Text)
}

func TestQueryTieBreaksByOffset(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0} // identical scores
		}
		return out, nil
	}

	builder := newTestBuilder(t, embedder)
	chunks := testChunks("eerste", "tweede", "derde")

	idx, err := builder.Build(context.Background(), chunks)
	require.NoError(t, err)

	matches := idx.Query([]float32{1, 0}, 3)
	require.Len(t, matches, 3)
	assert.Equal(t, "eerste", matches[0].Chunk.Text)
	assert.Equal(t, "tweede", matches[1].Chunk.Text)
	assert.Equal(t, "derde", matches[2].Chunk.Text)
}

func TestNormalizeVector(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := NormalizeVector([]float32{3, 4})
		assert.InDelta(t, 0.6, float64(v[0]), 0.001)
		assert.InDelta(t, 0.8, float64(v[1]), 0.001)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		v := NormalizeVector([]float32{0, 0})
		assert.Equal(t, []float32{0, 0}, v)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, NormalizeVector(nil))
	})
}
