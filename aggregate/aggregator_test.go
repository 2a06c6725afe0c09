package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrivano/scrivano/core"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"date_of_birth": {"type": "string", "format": "date"},
		"page_count": {"type": "integer"},
		"subjects": {"type": "array", "items": {"type": "string"}},
		"persons": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"birth_date": {"type": "string", "format": "date"},
					"birth_place": {"type": "string"},
					"role": {"type": "string"}
				}
			}
		}
	},
	"required": ["title", "date_of_birth"]
}`

func testAggregator(t *testing.T, opts ...Option) *Aggregator {
	t.Helper()
	root, err := core.ParseSchema([]byte(testSchema))
	require.NoError(t, err)
	return New(root, opts...)
}

func cand(path string, chunkId core.ID, start int, value any, confidence float64) core.ExtractionCandidate {
	return core.ExtractionCandidate{
		Path: path, ChunkId: chunkId, ChunkStart: start,
		Value: value, Confidence: confidence,
	}
}

func TestAggregateScalarAgreement(t *testing.T) {
	a := testAggregator(t)

	values := a.Aggregate([]core.ExtractionCandidate{
		cand("title", 1, 0, "Geboorteakte", 0.6),
		cand("title", 2, 500, "geboorteakte", 0.5), // same after folding
		cand("title", 3, 900, "Overlijdensakte", 0.7),
	})

	v, ok := values["title"]
	require.True(t, ok)
	// Sum strategy: 0.6+0.5 beats 0.7.
	assert.Equal(t, "Geboorteakte", v.Value)
	assert.Equal(t, 0.6, v.Confidence, "confidence is the group's best, not the sum")
	assert.Equal(t, []core.ID{1, 2}, v.SupportingChunks)
}

func TestAggregateMaxStrategy(t *testing.T) {
	a := testAggregator(t, WithStrategy(StrategyMax))

	values := a.Aggregate([]core.ExtractionCandidate{
		cand("title", 1, 0, "Geboorteakte", 0.6),
		cand("title", 2, 500, "geboorteakte", 0.5),
		cand("title", 3, 900, "Overlijdensakte", 0.7),
	})

	assert.Equal(t, "Overlijdensakte", values["title"].Value)
}

func TestAggregateDateResolution(t *testing.T) {
	a := testAggregator(t)

	// Same calendar date in two spellings groups together and outscores
	// the competing date.
	values := a.Aggregate([]core.ExtractionCandidate{
		cand("date_of_birth", 1, 0, "1990-04-12", 0.5),
		cand("date_of_birth", 2, 400, "12-04-1990", 0.4),
		cand("date_of_birth", 3, 800, "1991-01-01", 0.6),
	})

	v := values["date_of_birth"]
	assert.Equal(t, "1990-04-12", v.Value)
	assert.Equal(t, []core.ID{1, 2}, v.SupportingChunks)
}

func TestAggregateTieBreaksByDocumentOrder(t *testing.T) {
	a := testAggregator(t)

	values := a.Aggregate([]core.ExtractionCandidate{
		cand("title", 2, 500, "Tweede", 0.5),
		cand("title", 1, 0, "Eerste", 0.5),
	})

	assert.Equal(t, "Eerste", values["title"].Value)
}

func TestAggregateDeterministicAcrossArrivalOrder(t *testing.T) {
	a := testAggregator(t)

	cands := []core.ExtractionCandidate{
		cand("title", 1, 0, "Eerste", 0.5),
		cand("title", 2, 500, "Tweede", 0.5),
		cand("page_count", 1, 0, float64(12), 0.6),
	}
	reversed := []core.ExtractionCandidate{cands[2], cands[1], cands[0]}

	assert.Equal(t, a.Aggregate(cands), a.Aggregate(reversed))
}

func TestAggregateEmptyCandidatesYieldNothing(t *testing.T) {
	a := testAggregator(t)
	assert.Empty(t, a.Aggregate(nil))
}

func TestAggregateScalarArrayDedupes(t *testing.T) {
	a := testAggregator(t)

	values := a.Aggregate([]core.ExtractionCandidate{
		cand("subjects[]", 1, 0, "bevolking", 0.6),
		cand("subjects[]", 2, 400, "Bevolking", 0.5), // duplicate
		cand("subjects[]", 2, 400, "migratie", 0.5),
	})

	require.Contains(t, values, "subjects[0]")
	require.Contains(t, values, "subjects[1]")
	assert.NotContains(t, values, "subjects[2]")
	assert.Equal(t, "bevolking", values["subjects[0]"].Value)
	assert.Equal(t, "migratie", values["subjects[1]"].Value)
	assert.Equal(t, []core.ID{1, 2}, values["subjects[0]"].SupportingChunks)
}

func TestAggregateObjectArrayMergesSimilarEntities(t *testing.T) {
	a := testAggregator(t)

	// Same person seen in two chunks: 3 of 3 shared fields match on the
	// second sighting, role only appears once.
	values := a.Aggregate([]core.ExtractionCandidate{
		cand("persons[]", 1, 0, map[string]any{
			"name": "Jan de Vries", "birth_date": "1990-04-12", "birth_place": "Utrecht",
		}, 0.6),
		cand("persons[]", 2, 600, map[string]any{
			"name": "jan de vries", "birth_date": "12-04-1990", "birth_place": "Utrecht", "role": "aanvrager",
		}, 0.5),
	})

	assert.Equal(t, "Jan de Vries", values["persons[0].name"].Value)
	assert.Equal(t, "aanvrager", values["persons[0].role"].Value)
	assert.Equal(t, []core.ID{1, 2}, values["persons[0].name"].SupportingChunks)
	assert.NotContains(t, values, "persons[1].name")
}

func TestAggregateObjectArrayKeepsDistinctEntities(t *testing.T) {
	a := testAggregator(t)

	values := a.Aggregate([]core.ExtractionCandidate{
		cand("persons[]", 1, 0, map[string]any{
			"name": "Jan de Vries", "birth_place": "Utrecht",
		}, 0.6),
		cand("persons[]", 2, 600, map[string]any{
			"name": "Pieter Bakker", "birth_place": "Leiden",
		}, 0.6),
	})

	assert.Equal(t, "Jan de Vries", values["persons[0].name"].Value)
	assert.Equal(t, "Pieter Bakker", values["persons[1].name"].Value)
}

func TestAggregateObjectArrayNoSharedFieldsStaysSeparate(t *testing.T) {
	a := testAggregator(t)

	// Disjoint field sets give no identity evidence, so no merge.
	values := a.Aggregate([]core.ExtractionCandidate{
		cand("persons[]", 1, 0, map[string]any{"name": "Jan de Vries"}, 0.6),
		cand("persons[]", 2, 600, map[string]any{"birth_place": "Utrecht"}, 0.5),
	})

	assert.Contains(t, values, "persons[0].name")
	assert.Contains(t, values, "persons[1].birth_place")
	assert.NotContains(t, values, "persons[0].birth_place")
}

func TestAggregateObjectArrayBelowThresholdSplits(t *testing.T) {
	a := testAggregator(t)

	// 1 of 2 shared fields matches: 0.5 < 0.7, distinct entities.
	values := a.Aggregate([]core.ExtractionCandidate{
		cand("persons[]", 1, 0, map[string]any{
			"name": "Jan de Vries", "birth_place": "Utrecht",
		}, 0.6),
		cand("persons[]", 2, 600, map[string]any{
			"name": "Jan de Vries", "birth_place": "Leiden",
		}, 0.6),
	})

	assert.Contains(t, values, "persons[1].name")
}

func TestAggregateUnknownPathDropped(t *testing.T) {
	a := testAggregator(t)

	values := a.Aggregate([]core.ExtractionCandidate{
		cand("no_such_field", 1, 0, "x", 0.9),
		cand("title", 1, 0, "Akte", 0.5),
	})

	assert.NotContains(t, values, "no_such_field")
	assert.Contains(t, values, "title")
}

func TestNormalizeValue(t *testing.T) {
	dateNode := &core.SchemaNode{Kind: core.KindString, Format: "date"}
	plainNode := &core.SchemaNode{Kind: core.KindString}

	tests := []struct {
		name string
		node *core.SchemaNode
		a, b any
		same bool
	}{
		{"case and whitespace fold", plainNode, "Jan  de Vries", "jan de vries", true},
		{"different strings", plainNode, "Utrecht", "Leiden", false},
		{"date spellings resolve", dateNode, "1990-04-12", "12-04-1990", true},
		{"distinct dates", dateNode, "1990-04-12", "1990-04-13", false},
		{"integers as floats", plainNode, float64(3), float64(3), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeValue(tt.node, tt.a) == NormalizeValue(tt.node, tt.b)
			assert.Equal(t, tt.same, got)
		})
	}
}
