package cite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// fakeSearcher records the query and returns a scripted result.
type fakeSearcher struct {
	result *scholar.SearchResult
	err    error

	lastInput graph.SearchInput
}

func (f *fakeSearcher) SearchGraph(ctx context.Context, input graph.SearchInput) (*scholar.SearchResult, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func fixedEngine(searcher Searcher) *Engine {
	e := NewEngine(searcher)
	e.now = func() time.Time { return time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC) }
	return e
}

func suggestionWorks() []*scholar.CanonicalWork {
	return []*scholar.CanonicalWork{
		{
			PaperID:       "doi:10.1/transformer",
			DOI:           "10.1/transformer",
			Title:         "Transformer Retrieval Approach for Scientific Search",
			Abstract:      "A transformer based retrieval approach over scientific corpora.",
			Year:          2024,
			CitationCount: 500,
			Authors:       []scholar.Author{{Name: "Mira Chen"}},
		},
		{
			PaperID:       "doi:10.2/older",
			DOI:           "10.2/older",
			Title:         "Retrieval Methods Overview",
			Abstract:      "Classical retrieval methods.",
			Year:          2005,
			CitationCount: 50,
			Authors:       []scholar.Author{{Name: "Otto Webb"}},
		},
		{
			PaperID:       "work:nooverlap",
			Title:         "Fermentation Chemistry Basics",
			Abstract:      "Yeast metabolism pathways.",
			Year:          2023,
			CitationCount: 5,
		},
	}
}

func TestSuggestRanksByContextOverlap(t *testing.T) {
	searcher := &fakeSearcher{result: &scholar.SearchResult{Results: suggestionWorks()}}
	e := fixedEngine(searcher)

	manuscript := strings.Repeat("The transformer retrieval approach improves scientific search quality. ", 8)
	out, err := e.Suggest(context.Background(), SuggestInput{ManuscriptText: manuscript, K: 3})
	require.NoError(t, err)

	for _, token := range []string{"transformer", "retrieval", "approach"} {
		assert.Contains(t, out.QueryUsed, token)
	}
	assert.Equal(t, StyleAPA, out.Style, "style defaults to apa")
	require.NotEmpty(t, out.Candidates)
	assert.Equal(t, "doi:10.1/transformer", out.Candidates[0].Work.PaperID)
	for i := 1; i < len(out.Candidates); i++ {
		assert.GreaterOrEqual(t, out.Candidates[i-1].RelevanceScore, out.Candidates[i].RelevanceScore)
	}
	assert.Contains(t, out.Candidates[0].Rationale, "500 citations")
	assert.Contains(t, out.Candidates[0].MatchedContext, "transformer based retrieval")
	assert.Equal(t, "(Chen, 2024)", strings.Split(out.InlineSuggestion, "; ")[0])
}

func TestSuggestNumericInlineSuggestion(t *testing.T) {
	searcher := &fakeSearcher{result: &scholar.SearchResult{Results: suggestionWorks()}}
	e := fixedEngine(searcher)

	out, err := e.Suggest(context.Background(), SuggestInput{
		ManuscriptText: "Transformer retrieval approach for scientific search evaluation.",
		Style:          StyleIEEE,
		K:              5,
	})
	require.NoError(t, err)
	assert.Equal(t, "[1], [2], [3]", out.InlineSuggestion)
}

func TestSuggestCursorContextTakesPriority(t *testing.T) {
	searcher := &fakeSearcher{result: &scholar.SearchResult{Results: nil}}
	e := fixedEngine(searcher)

	_, err := e.Suggest(context.Background(), SuggestInput{
		ManuscriptText: "Completely unrelated botany manuscript body text.",
		CursorContext:  "dense retrieval pretraining objectives matter here",
		K:              2,
	})
	require.NoError(t, err)
	assert.Contains(t, searcher.lastInput.Query, "dense")
	assert.Contains(t, searcher.lastInput.Query, "retrieval")
	assert.NotContains(t, searcher.lastInput.Query, "botany")
}

func TestSuggestFetchLimitCapped(t *testing.T) {
	searcher := &fakeSearcher{result: &scholar.SearchResult{}}
	e := fixedEngine(searcher)

	_, err := e.Suggest(context.Background(), SuggestInput{
		ManuscriptText: "retrieval augmentation strategies for language models",
		K:              25,
	})
	require.NoError(t, err)
	assert.Equal(t, maxSuggestFetchLimit, searcher.lastInput.Limit)
}

func TestSuggestEmptyContextRejected(t *testing.T) {
	e := fixedEngine(&fakeSearcher{result: &scholar.SearchResult{}})
	_, err := e.Suggest(context.Background(), SuggestInput{ManuscriptText: "   "})
	require.Error(t, err)
	assert.True(t, scholar.IsValidation(err))
}

func TestSuggestSearchErrorPropagates(t *testing.T) {
	e := fixedEngine(&fakeSearcher{err: errors.New("graph offline")})
	_, err := e.Suggest(context.Background(), SuggestInput{ManuscriptText: "retrieval models everywhere"})
	require.Error(t, err)
}

func TestSuggestRecencyBiasFavorsNewWork(t *testing.T) {
	works := []*scholar.CanonicalWork{
		{PaperID: "a", Title: "retrieval study alpha", Abstract: "retrieval study", Year: 2026, CitationCount: 10},
		{PaperID: "b", Title: "retrieval study beta", Abstract: "retrieval study", Year: 1998, CitationCount: 10},
	}
	e := fixedEngine(&fakeSearcher{result: &scholar.SearchResult{Results: works}})

	out, err := e.Suggest(context.Background(), SuggestInput{
		ManuscriptText: "a retrieval study comparison",
		K:              2,
		RecencyBias:    1,
	})
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, "a", out.Candidates[0].Work.PaperID)
	assert.Greater(t, out.Candidates[0].RelevanceScore, out.Candidates[1].RelevanceScore)
}

func TestBuildListFromWorks(t *testing.T) {
	e := fixedEngine(&fakeSearcher{})
	works := []*scholar.CanonicalWork{
		suggestionWorks()[0],
		suggestionWorks()[0], // same DOI, must collapse
		suggestionWorks()[1],
	}

	list, err := e.BuildList(context.Background(), ListInput{Style: StyleAPA, Works: works})
	require.NoError(t, err)

	require.Len(t, list.Entries, 2, "duplicate DOIs collapse")
	assert.Equal(t, "en-US", list.Locale)
	assert.Equal(t, "10.1/transformer", list.Entries[0].ID)
	assert.Contains(t, list.Entries[0].FormattedText, "Chen, M. (2024).")
	assert.Contains(t, list.Entries[0].StructuredExport, "@article{chen2024,")
	assert.True(t, strings.HasPrefix(list.BibliographyText, "[1] "))
	assert.Contains(t, list.BibliographyText, "\n[2] ")
	assert.Contains(t, list.StructuredExport, "@article{webb2005,")
}

func TestBuildListUnsupportedStyle(t *testing.T) {
	e := fixedEngine(&fakeSearcher{})
	_, err := e.BuildList(context.Background(), ListInput{Style: Style("mla"), Works: suggestionWorks()})
	require.Error(t, err)
	assert.True(t, scholar.IsValidation(err))
}

func TestBuildListRequiresWorksOrManuscript(t *testing.T) {
	e := fixedEngine(&fakeSearcher{})
	_, err := e.BuildList(context.Background(), ListInput{Style: StyleAPA})
	require.Error(t, err)
	assert.True(t, scholar.IsValidation(err))
}

func TestBuildListFromManuscriptSuggestion(t *testing.T) {
	searcher := &fakeSearcher{result: &scholar.SearchResult{Results: suggestionWorks()}}
	e := fixedEngine(searcher)

	list, err := e.BuildList(context.Background(), ListInput{
		Style:          StyleIEEE,
		ManuscriptText: "transformer retrieval approach for scientific search",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, list.Entries)
	assert.Equal(t, maxSuggestFetchLimit, searcher.lastInput.Limit)
}

func TestTopTokens(t *testing.T) {
	tokens := tokenize("alpha beta alpha gamma beta alpha tiny")
	assert.Equal(t, "alpha beta gamma tiny", topTokens(tokens, 4))
	assert.Equal(t, "alpha beta", topTokens(tokens, 2))
	assert.Equal(t, "", topTokens(nil, 5))
}

func TestTokenizeFiltersShortWords(t *testing.T) {
	assert.Equal(t, []string{"with", "short", "words"}, tokenize("a to With SHORT words 123"))
}

func TestOverlapRatio(t *testing.T) {
	a := tokenSet([]string{"alpha", "beta", "gamma", "delta"})
	b := tokenSet([]string{"alpha", "beta"})
	assert.InDelta(t, 0.5, overlapRatio(a, b), 1e-9)
	assert.Equal(t, 0.0, overlapRatio(a, tokenSet(nil)))
}

func TestRecency(t *testing.T) {
	assert.Equal(t, 1.0, recency(2026, 2026))
	assert.InDelta(t, 0.5, recency(2025, 2026), 1e-9)
	assert.Equal(t, unknownYearRecency, recency(0, 2026))
	assert.Equal(t, 1.0, recency(2030, 2026), "future years clamp to the newest bucket")
}
