package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/ai/mock"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/extract"
	"github.com/scrivano/scrivano/index"
	"github.com/scrivano/scrivano/retrieve"
	"github.com/scrivano/scrivano/storage"
	"github.com/scrivano/scrivano/storage/badger"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"date_of_birth": {"type": "string", "format": "date", "description": "Geboortedatum van de hoofdpersoon"},
		"birth_place": {"type": "string", "description": "Geboorteplaats van de hoofdpersoon"}
	},
	"required": ["date_of_birth"]
}`

// birthExtractor answers per sub-schema: the date field from passages
// mentioning a birth, the place field from passages mentioning Utrecht.
func birthExtractor(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
	schema := string(subSchema)
	switch {
	case strings.Contains(schema, "Geboortedatum") && strings.Contains(content, "1990"):
		return &ai.Extraction{Value: "1990-04-12", Confidence: -1}, nil
	case strings.Contains(schema, "Geboorteplaats") && strings.Contains(content, "Utrecht"):
		return &ai.Extraction{Value: "Utrecht", Confidence: 0.8}, nil
	}
	return &ai.Extraction{Absent: true, Confidence: -1}, nil
}

func newTestPipeline(t *testing.T, provider ai.Provider, opts ...Option) (*Pipeline, storage.Store) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{
		WithExtractOptions(
			extract.WithRetry(1, time.Millisecond),
			extract.WithRateLimit(10000, 100),
		),
		WithRetrieveOptions(retrieve.WithRetry(1, time.Millisecond)),
	}, opts...)

	p, err := New(store, provider, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p, store
}

func testDocument(id core.ID, text string) *core.Document {
	return &core.Document{Id: id, RawText: text, Language: "nl"}
}

func TestRunEndToEnd(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	provider.GetMockExtractor().ExtractFunc = birthExtractor

	p, store := newTestPipeline(t, provider)

	doc := testDocument(7, "Jan de Vries, geboren op 12 april 1990 (1990-04-12) te Utrecht, verzoekt inzage.")
	record, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)

	assert.Equal(t, "1990-04-12", record.Values["date_of_birth"].Value)
	assert.Equal(t, "Utrecht", record.Values["birth_place"].Value)
	assert.NotEmpty(t, record.Values["date_of_birth"].SupportingChunks)
	assert.NotEmpty(t, record.RunId)

	// No missing_required: the required field was found.
	for _, issue := range record.Issues {
		assert.NotEqual(t, core.IssueMissingRequired, issue.Kind)
	}

	// The record is persisted.
	stored, err := store.Records().GetRecord(context.Background(), doc.Id, core.SchemaID([]byte(testSchema)))
	require.NoError(t, err)
	assert.Equal(t, record.RunId, stored.RunId)
	assert.Equal(t, record.Values["date_of_birth"].Value, stored.Values["date_of_birth"].Value)

	// Document and chunks are persisted too.
	_, err = store.Documents().GetDocument(context.Background(), doc.Id)
	require.NoError(t, err)
	chunks, err := store.Chunks().GetChunks(context.Background(), doc.Id, core.ChunkKindSmall)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestRunEmptyDocument(t *testing.T) {
	provider := mock.NewMockProvider()
	p, store := newTestPipeline(t, provider)

	doc := testDocument(8, "   \n\t ")
	record, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)

	assert.Empty(t, record.Values)
	require.Len(t, record.Issues, 1)
	assert.Equal(t, core.IssueMissingRequired, record.Issues[0].Kind)
	assert.Equal(t, "date_of_birth", record.Issues[0].Path)

	_, err = store.Records().GetRecord(context.Background(), doc.Id, core.SchemaID([]byte(testSchema)))
	require.NoError(t, err)
}

func TestRunIdempotence(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	provider.GetMockExtractor().ExtractFunc = birthExtractor

	p, _ := newTestPipeline(t, provider)
	doc := testDocument(9, "Geboren 1990-04-12 te Utrecht.")

	first, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)
	second, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)

	// Values and issues are bit-identical across runs; only the run id
	// differs.
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Issues, second.Issues)
	assert.NotEqual(t, first.RunId, second.RunId)
}

func TestRunEmbedderDownStillExtracts(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	provider.GetMockExtractor().ExtractFunc = birthExtractor

	failure := ai.Classify(errors.New("connection refused"))
	embedder := provider.GetMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, failure
	}
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, failure
	}

	// Low full-scan threshold so the run exercises the degraded-index
	// fallback rather than the small-document path.
	p, _ := newTestPipeline(t, provider,
		WithIndexOptions(index.WithRetry(1, time.Millisecond)),
		WithRetrieveOptions(retrieve.WithFullScanThreshold(1)))

	doc := testDocument(13, "Jan de Vries, geboren op 12 april 1990 (1990-04-12) te Utrecht.")
	record, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)

	// Embedding being down never starves extraction: every small chunk
	// still reaches the extractor via the full scan.
	assert.Equal(t, "1990-04-12", record.Values["date_of_birth"].Value)
	assert.Equal(t, "Utrecht", record.Values["birth_place"].Value)
}

func TestRunFeedsParentContextFromRetrievedChunks(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	var mu sync.Mutex
	var contents []string
	provider.GetMockExtractor().ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		mu.Lock()
		contents = append(contents, content)
		mu.Unlock()
		return birthExtractor(ctx, content, subSchema)
	}

	p, _ := newTestPipeline(t, provider,
		WithExtractOptions(extract.WithParentContext(true)))

	doc := testDocument(14, "Geboren 1990-04-12 te Utrecht.")
	_, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)

	// The retriever's resolved parent chunks reach the extractor.
	require.NotEmpty(t, contents)
	for _, content := range contents {
		assert.Contains(t, content, "Surrounding context:")
		assert.Contains(t, content, "Geboren 1990-04-12 te Utrecht.")
	}
}

func TestRunDocumentFailedWhenEverythingDegrades(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	failure := ai.Classify(errors.New("connection refused"))
	provider.GetMockExtractor().ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		return nil, failure
	}

	p, _ := newTestPipeline(t, provider)
	doc := testDocument(10, "Geboren 1990-04-12 te Utrecht.")

	_, err := p.Run(context.Background(), doc, []byte(testSchema))
	assert.ErrorIs(t, err, ErrDocumentFailed)
}

func TestRunPartialDegradationStillProducesRecord(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	failure := ai.Classify(errors.New("flaky"))
	provider.GetMockExtractor().ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		if strings.Contains(string(subSchema), "Geboorteplaats") {
			return nil, failure
		}
		return birthExtractor(ctx, content, subSchema)
	}

	p, _ := newTestPipeline(t, provider)
	doc := testDocument(11, "Geboren 1990-04-12 te Utrecht.")

	record, err := p.Run(context.Background(), doc, []byte(testSchema))
	require.NoError(t, err)
	assert.Contains(t, record.Values, "date_of_birth")
	assert.NotContains(t, record.Values, "birth_place")
}

func TestRunInvalidSchema(t *testing.T) {
	provider := mock.NewMockProvider()
	p, _ := newTestPipeline(t, provider)

	_, err := p.Run(context.Background(), testDocument(12, "tekst"), []byte(`{"type": "string"}`))
	assert.ErrorIs(t, err, core.ErrInvalidSchema)
}

func TestRunAll(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	provider.GetMockExtractor().ExtractFunc = birthExtractor

	p, _ := newTestPipeline(t, provider, WithDocPoolSize(2))

	docs := []*core.Document{
		testDocument(20, "Geboren 1990-04-12 te Utrecht."),
		testDocument(21, "Geboren 1990-04-12 elders."),
		testDocument(22, "  "),
	}

	records, err := p.RunAll(context.Background(), docs, []byte(testSchema))
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRunAllKeepsGoingPastFailures(t *testing.T) {
	provider := mock.NewMockProvider().(*mock.MockProvider)
	failure := ai.Classify(errors.New("down"))
	provider.GetMockExtractor().ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		if strings.Contains(content, "kapot") {
			return nil, failure
		}
		return birthExtractor(ctx, content, subSchema)
	}

	p, _ := newTestPipeline(t, provider)

	docs := []*core.Document{
		testDocument(30, "kapot document zonder hoop"),
		testDocument(31, "Geboren 1990-04-12 te Utrecht."),
	}

	records, err := p.RunAll(context.Background(), docs, []byte(testSchema))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentFailed)
	require.Len(t, records, 1)
	assert.Equal(t, core.ID(31), records[0].DocumentId)
}

func TestNewValidation(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = New(nil, mock.NewMockProvider())
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(store, nil)
	assert.ErrorIs(t, err, ErrProviderRequired)
}
