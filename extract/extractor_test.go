package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/ai/mock"
	"github.com/scrivano/scrivano/core"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"summary": {"type": "string"},
		"page_count": {"type": "integer"},
		"date_of_birth": {"type": "string", "format": "date"},
		"subjects": {"type": "array", "items": {"type": "string"}},
		"addresses": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"street": {"type": "string"},
					"city": {"type": "string"}
				}
			}
		}
	},
	"required": ["title"]
}`

func parseTestSchema(t *testing.T) *core.SchemaNode {
	t.Helper()
	root, err := core.ParseSchema([]byte(testSchema))
	require.NoError(t, err)
	return root
}

func testChunk(start int, text string) *core.Chunk {
	return &core.Chunk{
		Id:         core.ChunkID(1, core.ChunkKindSmall, start, start+len(text)),
		DocumentId: 1,
		Kind:       core.ChunkKindSmall,
		Start:      start,
		End:        start + len(text),
		Text:       text,
	}
}

func newTestExtractor(t *testing.T, capability ai.Extractor, opts ...Option) *Extractor {
	t.Helper()
	opts = append([]Option{
		WithRetry(1, time.Millisecond),
		WithRateLimit(10000, 100),
	}, opts...)
	e, err := New(capability, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

func TestUnits(t *testing.T) {
	root := parseTestSchema(t)

	t.Run("without grouping", func(t *testing.T) {
		units := Units(root, false)
		// Four scalar leaves + two arrays.
		require.Len(t, units, 6)
		for _, unit := range units {
			assert.False(t, unit.Grouped())
		}
	})

	t.Run("with grouping", func(t *testing.T) {
		units := Units(root, true)

		var grouped, arrays, singles int
		for _, unit := range units {
			switch {
			case unit.Grouped():
				grouped++
				// title, summary, page_count are unconstrained siblings;
				// date_of_birth has a format and stays out.
				assert.Len(t, unit.Leaves, 3)
			case unit.Node.Kind == core.KindArray:
				arrays++
			default:
				singles++
				assert.Equal(t, "date_of_birth", unit.Node.Path)
			}
		}
		assert.Equal(t, 1, grouped)
		assert.Equal(t, 2, arrays)
		assert.Equal(t, 1, singles)
	})

	t.Run("group query node names the leaves", func(t *testing.T) {
		units := Units(root, true)
		for _, unit := range units {
			if unit.Grouped() {
				query := unit.QueryNode()
				assert.Contains(t, query.Description, "title")
				assert.Contains(t, query.Description, "page_count")
			}
		}
	})
}

func TestRunScalar(t *testing.T) {
	root := parseTestSchema(t)
	title := core.ResolvePath(root, "title")

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		if strings.Contains(content, "Besluit") {
			return &ai.Extraction{Value: "Besluit 1912", Confidence: -1}, nil
		}
		return &ai.Extraction{Absent: true, Confidence: -1}, nil
	}

	e := newTestExtractor(t, capability)
	chunks := []*core.Chunk{
		testChunk(0, "Hierbij het Besluit 1912."),
		testChunk(100, "Niets relevants hier."),
	}

	out, err := e.Run(context.Background(), Unit{Node: title}, chunks, nil)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "title", out.Candidates[0].Path)
	assert.Equal(t, "Besluit 1912", out.Candidates[0].Value)
	assert.Equal(t, DefaultPrior, out.Candidates[0].Confidence)
	assert.Empty(t, out.Failures)
}

func TestRunReportedConfidenceWins(t *testing.T) {
	root := parseTestSchema(t)
	title := core.ResolvePath(root, "title")

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		return &ai.Extraction{Value: "Besluit", Confidence: 0.42}, nil
	}

	e := newTestExtractor(t, capability)
	out, err := e.Run(context.Background(), Unit{Node: title}, []*core.Chunk{testChunk(0, "x")}, nil)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, 0.42, out.Candidates[0].Confidence)
}

func TestRunConstraintNudgesConfidence(t *testing.T) {
	root := parseTestSchema(t)
	birth := core.ResolvePath(root, "date_of_birth")

	tests := []struct {
		name  string
		value string
		want  float64
	}{
		{"valid date boosted", "1990-04-12", DefaultPrior + DefaultConstraintBoost},
		{"invalid date penalized", "12 april 1990", DefaultPrior - DefaultConstraintPenalty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := mock.NewMockExtractor()
			capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
				return &ai.Extraction{Value: tt.value, Confidence: -1}, nil
			}

			e := newTestExtractor(t, capability)
			out, err := e.Run(context.Background(), Unit{Node: birth}, []*core.Chunk{testChunk(0, "x")}, nil)
			require.NoError(t, err)
			require.Len(t, out.Candidates, 1)
			assert.InDelta(t, tt.want, out.Candidates[0].Confidence, 0.0001)
		})
	}
}

func TestRunTypeMismatchProducesNoCandidate(t *testing.T) {
	root := parseTestSchema(t)
	pages := core.ResolvePath(root, "page_count")

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		return &ai.Extraction{Value: "drie", Confidence: -1}, nil
	}

	e := newTestExtractor(t, capability)
	out, err := e.Run(context.Background(), Unit{Node: pages}, []*core.Chunk{testChunk(0, "x")}, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Candidates)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "page_count", out.Failures[0].Path)
	assert.False(t, out.Failures[0].Capability)
	assert.Equal(t, 0, out.DegradedPairs())
}

func TestRunArrayElements(t *testing.T) {
	root := parseTestSchema(t)
	addresses := core.ResolvePath(root, "addresses")

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		return &ai.Extraction{
			Value: []any{
				map[string]any{"street": "Lange Gracht", "city": "Utrecht"},
				"geen object",
			},
			Confidence: -1,
		}, nil
	}

	e := newTestExtractor(t, capability)
	out, err := e.Run(context.Background(), Unit{Node: addresses}, []*core.Chunk{testChunk(0, "x")}, nil)
	require.NoError(t, err)

	require.Len(t, out.Candidates, 1)
	assert.Equal(t, "addresses[]", out.Candidates[0].Path)
	assert.Equal(t, DefaultItemPrior, out.Candidates[0].Confidence)

	require.Len(t, out.Failures, 1)
	assert.Equal(t, "addresses[]", out.Failures[0].Path)
}

func TestRunGroupedUnit(t *testing.T) {
	root := parseTestSchema(t)
	units := Units(root, true)
	var group Unit
	for _, unit := range units {
		if unit.Grouped() {
			group = unit
		}
	}
	require.True(t, group.Grouped())

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		return &ai.Extraction{
			Value: map[string]any{
				"title":      "Register 1912",
				"page_count": float64(12),
				"summary":    nil, // null member, no candidate
			},
			Confidence: -1,
		}, nil
	}

	e := newTestExtractor(t, capability)
	out, err := e.Run(context.Background(), group, []*core.Chunk{testChunk(0, "x")}, nil)
	require.NoError(t, err)

	require.Len(t, out.Candidates, 2)
	paths := []string{out.Candidates[0].Path, out.Candidates[1].Path}
	assert.Contains(t, paths, "title")
	assert.Contains(t, paths, "page_count")
}

func TestRunCapabilityFailureDegrades(t *testing.T) {
	root := parseTestSchema(t)
	title := core.ResolvePath(root, "title")

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		return nil, ai.Classify(errors.New("connection refused"))
	}

	e := newTestExtractor(t, capability)
	out, err := e.Run(context.Background(), Unit{Node: title}, []*core.Chunk{testChunk(0, "x")}, nil)
	require.NoError(t, err, "capability failure must degrade, not abort")
	assert.Empty(t, out.Candidates)
	require.Len(t, out.Failures, 1)
	assert.True(t, out.Failures[0].Capability)
	assert.Equal(t, 1, out.DegradedPairs())
}

func TestRunDeterministicOrder(t *testing.T) {
	root := parseTestSchema(t)
	title := core.ResolvePath(root, "title")

	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		// Later chunks answer first.
		if strings.Contains(content, "laat") {
			return &ai.Extraction{Value: "laat", Confidence: -1}, nil
		}
		time.Sleep(5 * time.Millisecond)
		return &ai.Extraction{Value: "vroeg", Confidence: -1}, nil
	}

	e := newTestExtractor(t, capability, WithMaxInFlight(4))
	chunks := []*core.Chunk{
		testChunk(0, "vroeg stuk"),
		testChunk(500, "laat stuk"),
	}

	out, err := e.Run(context.Background(), Unit{Node: title}, chunks, nil)
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, "vroeg", out.Candidates[0].Value)
	assert.Equal(t, "laat", out.Candidates[1].Value)
}

func TestRunParentContext(t *testing.T) {
	root := parseTestSchema(t)
	title := core.ResolvePath(root, "title")

	var seen string
	capability := mock.NewMockExtractor()
	capability.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
		seen = content
		return &ai.Extraction{Absent: true, Confidence: -1}, nil
	}

	parent := &core.Chunk{
		Id: core.ChunkID(1, core.ChunkKindLarge, 0, 1000), DocumentId: 1,
		Kind: core.ChunkKindLarge, Start: 0, End: 1000, Text: "volledige brief",
	}
	chunk := testChunk(0, "klein fragment")
	chunk.ParentId = parent.Id

	e := newTestExtractor(t, capability, WithParentContext(true))
	_, err := e.Run(context.Background(), Unit{Node: title},
		[]*core.Chunk{chunk}, map[core.ID]*core.Chunk{parent.Id: parent})
	require.NoError(t, err)

	assert.Contains(t, seen, "Surrounding context:\nvolledige brief")
	assert.Contains(t, seen, "Fragment:\nklein fragment")
}

func TestNewRequiresCapability(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrExtractorRequired)
}
