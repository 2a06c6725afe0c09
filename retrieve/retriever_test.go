package retrieve

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
	"github.com/scrivano/scrivano/index"
	"github.com/scrivano/scrivano/storage/badger"
)

const testModel = "embeddinggemma"

// buildFixture stores chunks with parent links and builds an index whose
// vectors come from the given map.
func buildFixture(t *testing.T, vectors map[string][]float32) (*badger.Store, *index.EmbeddingIndex, []*core.Chunk) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	large := &core.Chunk{
		Id: core.ChunkID(1, core.ChunkKindLarge, 0, 1000), DocumentId: 1,
		Kind: core.ChunkKindLarge, Start: 0, End: 1000, Text: "context",
	}
	var smalls []*core.Chunk
	startOffset := 0
	// Deterministic chunk order independent of map iteration.
	texts := []string{"geboren te utrecht", "aantal paginas drie", "vertrouwelijk stuk"}
	for _, text := range texts {
		end := startOffset + 100
		smalls = append(smalls, &core.Chunk{
			Id:         core.ChunkID(1, core.ChunkKindSmall, startOffset, end),
			DocumentId: 1,
			Kind:       core.ChunkKindSmall,
			Start:      startOffset,
			End:        end,
			Text:       text,
			ParentId:   large.Id,
		})
		startOffset = end
	}
	require.NoError(t, store.Chunks().PutChunks(context.Background(), large))
	require.NoError(t, store.Chunks().PutChunks(context.Background(), smalls...))

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		out := make([][]float32, len(in))
		for i, text := range in {
			out[i] = vectors[text]
		}
		return out, nil
	}

	builder := index.NewBuilder(embedder, store.Vectors(), testModel)
	idx, err := builder.Build(context.Background(), smalls)
	require.NoError(t, err)
	return store, idx, smalls
}

func TestChunksForRanked(t *testing.T) {
	vectors := map[string][]float32{
		"geboren te utrecht":  {1, 0},
		"aantal paginas drie": {0, 1},
		"vertrouwelijk stuk":  {0.1, 0.9},
	}
	store, idx, _ := buildFixture(t, vectors)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil // query close to "geboren te utrecht"
	}

	r := New(embedder, store.Chunks(), WithTopK(1), WithFullScanThreshold(1))
	node := &core.SchemaNode{Path: "date_of_birth", Kind: core.KindString, Description: "Geboortedatum"}

	result, err := r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	require.Len(t, result.Small, 1)
	assert.Equal(t, "geboren te utrecht", result.Small[0].Text)

	// Parent large chunk is resolved and deduplicated.
	require.Len(t, result.Large, 1)
	assert.Equal(t, "context", result.Large[0].Text)
}

func TestChunksForFullScanBelowThreshold(t *testing.T) {
	vectors := map[string][]float32{
		"geboren te utrecht":  {1, 0},
		"aantal paginas drie": {0, 1},
		"vertrouwelijk stuk":  {0.1, 0.9},
	}
	store, idx, smalls := buildFixture(t, vectors)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		t.Fatal("full scan must not embed a query")
		return nil, nil
	}

	r := New(embedder, store.Chunks(), WithTopK(1), WithFullScanThreshold(10))
	node := &core.SchemaNode{Path: "title", Kind: core.KindString}

	result, err := r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	assert.Len(t, result.Small, len(smalls))

	// Offset order.
	for i := 1; i < len(result.Small); i++ {
		assert.Greater(t, result.Small[i].Start, result.Small[i-1].Start)
	}
}

func TestChunksForQueryEmbeddingFailureFallsBack(t *testing.T) {
	vectors := map[string][]float32{
		"geboren te utrecht":  {1, 0},
		"aantal paginas drie": {0, 1},
		"vertrouwelijk stuk":  {0.1, 0.9},
	}
	store, idx, smalls := buildFixture(t, vectors)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.Classify(errors.New("down"))
	}

	r := New(embedder, store.Chunks(),
		WithTopK(1), WithFullScanThreshold(1), WithRetry(1, time.Millisecond))
	node := &core.SchemaNode{Path: "title", Kind: core.KindString}

	result, err := r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	assert.Len(t, result.Small, len(smalls))
}

func TestChunksForDegradedIndexYieldsEveryChunk(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	smalls := []*core.Chunk{
		{Id: core.ChunkID(1, core.ChunkKindSmall, 0, 100), DocumentId: 1,
			Kind: core.ChunkKindSmall, Start: 0, End: 100, Text: "geboren te utrecht"},
		{Id: core.ChunkID(1, core.ChunkKindSmall, 100, 200), DocumentId: 1,
			Kind: core.ChunkKindSmall, Start: 100, End: 200, Text: "aantal paginas drie"},
	}
	require.NoError(t, store.Chunks().PutChunks(context.Background(), smalls...))

	failing := mock.NewMockEmbedder()
	failure := ai.Classify(errors.New("down"))
	failing.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		return nil, failure
	}
	failing.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, failure
	}

	builder := index.NewBuilder(failing, store.Vectors(), testModel,
		index.WithRetry(1, time.Millisecond))
	idx, err := builder.Build(context.Background(), smalls)
	require.NoError(t, err)
	require.True(t, idx.Degraded())

	r := New(failing, store.Chunks(), WithTopK(1), WithFullScanThreshold(1))
	node := &core.SchemaNode{Path: "date_of_birth", Kind: core.KindString}

	result, err := r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	require.Len(t, result.Small, len(smalls))
	assert.Equal(t, "geboren te utrecht", result.Small[0].Text)
	assert.Equal(t, "aantal paginas drie", result.Small[1].Text)
}

func TestChunksForRankedIncludesUnembeddedChunks(t *testing.T) {
	vectors := map[string][]float32{
		"geboren te utrecht":  {1, 0},
		"aantal paginas drie": {0, 1},
	}
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	smalls := []*core.Chunk{
		{Id: core.ChunkID(1, core.ChunkKindSmall, 0, 100), DocumentId: 1,
			Kind: core.ChunkKindSmall, Start: 0, End: 100, Text: "geboren te utrecht"},
		{Id: core.ChunkID(1, core.ChunkKindSmall, 100, 200), DocumentId: 1,
			Kind: core.ChunkKindSmall, Start: 100, End: 200, Text: "aantal paginas drie"},
		{Id: core.ChunkID(1, core.ChunkKindSmall, 200, 300), DocumentId: 1,
			Kind: core.ChunkKindSmall, Start: 200, End: 300, Text: "vertrouwelijk stuk"},
	}
	require.NoError(t, store.Chunks().PutChunks(context.Background(), smalls...))

	embedder := mock.NewMockEmbedder()
	failure := ai.Classify(errors.New("down"))
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		return nil, failure
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		v, ok := vectors[text]
		if !ok {
			return nil, failure
		}
		return v, nil
	}

	builder := index.NewBuilder(embedder, store.Vectors(), testModel,
		index.WithRetry(1, time.Millisecond))
	idx, err := builder.Build(context.Background(), smalls)
	require.NoError(t, err)
	require.False(t, idx.Degraded())
	require.Len(t, idx.UnindexedChunks(), 1)

	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}

	r := New(embedder, store.Chunks(), WithTopK(1), WithFullScanThreshold(1))
	node := &core.SchemaNode{Path: "date_of_birth", Kind: core.KindString}

	result, err := r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	// Top ranked match plus the chunk that never got a vector.
	require.Len(t, result.Small, 2)
	assert.Equal(t, "geboren te utrecht", result.Small[0].Text)
	assert.Equal(t, "vertrouwelijk stuk", result.Small[1].Text)
}

func TestQueryVectorMemoized(t *testing.T) {
	vectors := map[string][]float32{
		"geboren te utrecht":  {1, 0},
		"aantal paginas drie": {0, 1},
		"vertrouwelijk stuk":  {0.1, 0.9},
	}
	store, idx, _ := buildFixture(t, vectors)

	calls := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return []float32{1, 0}, nil
	}

	r := New(embedder, store.Chunks(), WithTopK(1), WithFullScanThreshold(1))
	node := &core.SchemaNode{Path: "title", Kind: core.KindString, Description: "Titel van het stuk"}

	_, err := r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	_, err = r.ChunksFor(context.Background(), node, idx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestQueryText(t *testing.T) {
	t.Run("description wins", func(t *testing.T) {
		node := &core.SchemaNode{Path: "title", Description: "Titel van het stuk"}
		assert.Equal(t, "Titel van het stuk", QueryText(node))
	})

	t.Run("path humanized", func(t *testing.T) {
		node := &core.SchemaNode{Path: "addresses[].street_name"}
		assert.Equal(t, "addresses street name", QueryText(node))
	})

	t.Run("blank description falls through", func(t *testing.T) {
		node := &core.SchemaNode{Path: "page_count", Description: "   "}
		assert.Equal(t, "page count", QueryText(node))
	})
}
