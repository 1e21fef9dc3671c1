package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholartech/scholargraph/internal/cite"
	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/internal/ingest"
	"github.com/scholartech/scholargraph/internal/parser"
	"github.com/scholartech/scholargraph/internal/providers"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// scriptedProvider backs the aggregator with canned works.
type scriptedProvider struct {
	works []scholar.ProviderWork
}

func (s *scriptedProvider) Tag() scholar.Provider { return scholar.ProviderOpenAlex }

func (s *scriptedProvider) SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error) {
	return s.works, nil
}

type passthroughParser struct{}

func (passthroughParser) Name() string { return "stub" }

func (passthroughParser) Parse(ctx context.Context, pdfPath string) (*parser.Output, error) {
	return &parser.Output{ParserName: "stub", Confidence: 0.7, FullText: "text"}, nil
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	provider := &scriptedProvider{works: []scholar.ProviderWork{
		{
			Provider:      scholar.ProviderOpenAlex,
			Title:         "Dense Retrieval for Research Agents",
			Abstract:      "Dense retrieval methods for research agents.",
			Year:          2023,
			CitationCount: 120,
			Relevance:     0.6,
			Authors:       []scholar.Author{{Name: "Mira Chen"}},
			DOI:           "10.1234/dense",
		},
	}}
	aggregator := graph.New([]providers.SearchProvider{provider}, nil, graph.Options{})
	engine := ingest.NewEngine(nil, fetch.New(fetch.Options{}), parser.NewChain(nil, passthroughParser{}), ingest.Options{WorkerCount: 1})
	t.Cleanup(engine.Shutdown)

	return NewDispatcher(Deps{
		Graph:  aggregator,
		Ingest: engine,
		Cite:   cite.NewEngine(aggregator),
	})
}

func errorKind(t *testing.T, res *CallResult) string {
	t.Helper()
	require.True(t, res.IsError)
	payload, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	errObj, ok := payload["error"].(map[string]any)
	require.True(t, ok)
	kind, _ := errObj["kind"].(string)
	return kind
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "no_such_tool", Args{})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchSearchLiteratureGraph(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "search_literature_graph", Args{
		"query":      "dense retrieval",
		"limit":      float64(5),
		"year_range": []any{float64(2020), float64(2025)},
	})
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)

	result, ok := res.StructuredContent.(*scholar.SearchResult)
	require.True(t, ok)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Dense Retrieval for Research Agents", result.Results[0].Title)
}

func TestDispatchSearchLiteratureGraphMissingQuery(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "search_literature_graph", Args{})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchSearchLiteratureGraphUnknownSource(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "search_literature_graph", Args{
		"query":   "anything",
		"sources": []any{"pubmed"},
	})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchYearRangeMappingForm(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "search_literature_graph", Args{
		"query":      "dense retrieval",
		"year_range": map[string]any{"start": float64(2020), "end": float64(2025)},
	})
	require.False(t, res.IsError)
}

func TestDispatchIngestEmptySource(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "ingest_paper_fulltext", Args{})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchIngestBadParseMode(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "ingest_paper_fulltext", Args{
		"doi":        "10.1234/x",
		"parse_mode": "aggressive",
	})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchIngestAndStatusRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "ingest_paper_fulltext", Args{"doi": "10.1234/roundtrip"})
	require.False(t, res.IsError)

	payload, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	jobID, _ := payload["job_id"].(string)
	require.NotEmpty(t, jobID)

	status := d.Dispatch(context.Background(), "get_ingestion_status", Args{"job_id": jobID})
	require.False(t, status.IsError)
	statusPayload, ok := status.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, statusPayload, "job")
}

func TestDispatchIngestionStatusUnknownJob(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "get_ingestion_status", Args{"job_id": "job_ghost"})
	assert.Equal(t, "not_found", errorKind(t, res))
}

func TestDispatchExtractUnknownDocument(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "extract_granular_paper_details", Args{"document_id": "doc_ghost"})
	assert.Equal(t, "not_found", errorKind(t, res))
}

func TestDispatchSuggestCitations(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "suggest_contextual_citations", Args{
		"manuscript_text": "Dense retrieval methods for research agents improve search.",
		"style":           "ieee",
		"k":               float64(3),
	})
	require.False(t, res.IsError)

	result, ok := res.StructuredContent.(*cite.SuggestResult)
	require.True(t, ok)
	assert.NotEmpty(t, result.Candidates)
	assert.Equal(t, "[1]", result.InlineSuggestion)
}

func TestDispatchSuggestBadStyle(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "suggest_contextual_citations", Args{
		"manuscript_text": "anything at all here",
		"style":           "harvard",
	})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchBuildReferenceListFromWorks(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "build_reference_list", Args{
		"style": "apa",
		"works": []any{
			map[string]any{
				"paperId": "doi:10.1234/dense",
				"doi":     "10.1234/dense",
				"title":   "Dense Retrieval for Research Agents",
				"year":    float64(2023),
				"authors": []any{map[string]any{"name": "Mira Chen"}},
			},
		},
	})
	require.False(t, res.IsError)

	list, ok := res.StructuredContent.(*cite.ReferenceList)
	require.True(t, ok)
	require.Len(t, list.Entries, 1)
	assert.Contains(t, list.Entries[0].FormattedText, "Chen, M. (2023).")
}

func TestDispatchBuildReferenceListNeedsInput(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "build_reference_list", Args{"style": "apa"})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchValidateCitations(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "validate_manuscript_citations", Args{
		"manuscript_text": "As shown in [1-2].",
		"references": []any{
			map[string]any{"formatted": "Chen, M. (2023). Dense retrieval. Journal of IR."},
			map[string]any{"formatted": "Webb, O. (2020). Sparse methods. Proceedings of Search."},
		},
	})
	require.False(t, res.IsError)

	report, ok := res.StructuredContent.(*cite.ValidationReport)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, report.NumericCitations)
	assert.Empty(t, report.UncitedReferences)
}

func TestDispatchValidateCitationsMissingFormatted(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "validate_manuscript_citations", Args{
		"manuscript_text": "text",
		"references":      []any{map[string]any{"id": "r1"}},
	})
	assert.Equal(t, "validation_error", errorKind(t, res))
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	// Scholar is nil; the handler dereferences it and must be recovered.
	d := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), "get_author_info", Args{"author_name": "Anyone"})
	assert.Equal(t, "internal_error", errorKind(t, res))
}

func TestCatalogShape(t *testing.T) {
	d := newTestDispatcher(t)
	tools := d.Tools()
	require.Len(t, tools, 10)

	seen := make(map[string]bool)
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.Description)
		assert.NotNil(t, tool.InputSchema)
		assert.False(t, seen[tool.Name], "tool names are unique")
		seen[tool.Name] = true

		_, ok := d.handlers[tool.Name]
		assert.True(t, ok, "every advertised tool has a handler")
	}
}
