package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholartech/scholargraph/internal/providers"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// fakeProvider is a scripted SearchProvider for aggregator tests.
type fakeProvider struct {
	tag   scholar.Provider
	works []scholar.ProviderWork
	err   error
	calls atomic.Int64

	doiWork *scholar.ProviderWork
}

func (f *fakeProvider) Tag() scholar.Provider { return f.tag }

func (f *fakeProvider) SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]scholar.ProviderWork, len(f.works))
	copy(out, f.works)
	return out, nil
}

func (f *fakeProvider) GetWorkByDOI(ctx context.Context, doi string) (*scholar.ProviderWork, error) {
	return f.doiWork, nil
}

func work(provider scholar.Provider, title string, year, citations int) scholar.ProviderWork {
	return scholar.ProviderWork{
		Provider:      provider,
		Title:         title,
		Year:          year,
		CitationCount: citations,
		Relevance:     0.5,
	}
}

func TestSearchGraphLimitAndOrder(t *testing.T) {
	p := &fakeProvider{
		tag: scholar.ProviderOpenAlex,
		works: []scholar.ProviderWork{
			work(scholar.ProviderOpenAlex, "Low Citations Entry", 2020, 1),
			work(scholar.ProviderOpenAlex, "High Citations Entry", 2020, 5000),
			work(scholar.ProviderOpenAlex, "Mid Citations Entry", 2020, 50),
		},
	}
	a := New([]providers.SearchProvider{p}, nil, Options{})

	result, err := a.SearchGraph(context.Background(), SearchInput{Query: "entry", Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "High Citations Entry", result.Results[0].Title)
	assert.Equal(t, "Mid Citations Entry", result.Results[1].Title)
	for i := 1; i < len(result.Results); i++ {
		assert.GreaterOrEqual(t, result.Results[i-1].BlendedScore, result.Results[i].BlendedScore)
	}
}

func TestSearchGraphAllProvidersFailing(t *testing.T) {
	a := New([]providers.SearchProvider{
		&fakeProvider{tag: scholar.ProviderOpenAlex, err: errors.New("openalex down")},
		&fakeProvider{tag: scholar.ProviderCrossref, err: errors.New("crossref down")},
	}, nil, Options{})

	result, err := a.SearchGraph(context.Background(), SearchInput{Query: "anything", Limit: 5})
	require.NoError(t, err, "provider failures must not fail the call")
	assert.Empty(t, result.Results)
	assert.Len(t, result.ProviderErrors, 2)
}

func TestSearchGraphCacheReuse(t *testing.T) {
	p := &fakeProvider{
		tag:   scholar.ProviderOpenAlex,
		works: []scholar.ProviderWork{work(scholar.ProviderOpenAlex, "Cached Work", 2023, 12)},
	}
	a := New([]providers.SearchProvider{p}, nil, Options{CacheTTL: time.Minute})

	input := SearchInput{Query: "cached work", Limit: 3}
	first, err := a.SearchGraph(context.Background(), input)
	require.NoError(t, err)
	second, err := a.SearchGraph(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.calls.Load(), "second call must be served from cache")
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results, "cached response must deep-equal the original")
}

func TestSearchGraphCacheIsolation(t *testing.T) {
	p := &fakeProvider{
		tag:   scholar.ProviderOpenAlex,
		works: []scholar.ProviderWork{work(scholar.ProviderOpenAlex, "Mutable Work", 2023, 12)},
	}
	a := New([]providers.SearchProvider{p}, nil, Options{CacheTTL: time.Minute})

	input := SearchInput{Query: "mutable", Limit: 3}
	first, err := a.SearchGraph(context.Background(), input)
	require.NoError(t, err)
	first.Results[0].Title = "caller scribbled here"

	second, err := a.SearchGraph(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "Mutable Work", second.Results[0].Title)
}

func TestSearchGraphYearFilter(t *testing.T) {
	p := &fakeProvider{
		tag: scholar.ProviderOpenAlex,
		works: []scholar.ProviderWork{
			work(scholar.ProviderOpenAlex, "Too Old Result", 2001, 10),
			work(scholar.ProviderOpenAlex, "In Range Result", 2020, 10),
			work(scholar.ProviderOpenAlex, "Unknown Year Result", 0, 10),
		},
	}
	a := New([]providers.SearchProvider{p}, nil, Options{})

	result, err := a.SearchGraph(context.Background(), SearchInput{
		Query:   "result",
		Limit:   10,
		YearMin: 2018,
		YearMax: 2024,
	})
	require.NoError(t, err)
	titles := make([]string, 0, len(result.Results))
	for _, c := range result.Results {
		titles = append(titles, c.Title)
	}
	assert.ElementsMatch(t, []string{"In Range Result", "Unknown Year Result"}, titles,
		"unknown years are retained, out-of-range years dropped")
}

func TestResolveByDOIDirect(t *testing.T) {
	direct := &scholar.ProviderWork{
		Provider: scholar.ProviderOpenAlex,
		Title:    "Resolved Directly",
		DOI:      "10.1234/direct",
	}
	p := &fakeProvider{tag: scholar.ProviderOpenAlex, doiWork: direct}
	a := New([]providers.SearchProvider{p}, p, Options{})

	c, err := a.ResolveByDOI(context.Background(), "https://doi.org/10.1234/DIRECT")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Resolved Directly", c.Title)
	assert.Equal(t, "10.1234/direct", c.DOI)
}

func TestResolveByDOIEmptyInput(t *testing.T) {
	a := New(nil, nil, Options{})
	c, err := a.ResolveByDOI(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCacheKeyCanonicalization(t *testing.T) {
	a := cacheKey(SearchInput{Query: "  Deep   Learning ", Limit: 10, FieldsOfStudy: []string{"B", "a"}})
	b := cacheKey(SearchInput{Query: "deep learning", Limit: 10, FieldsOfStudy: []string{"a", "b"}})
	assert.Equal(t, a, b)

	c := cacheKey(SearchInput{Query: "deep learning", Limit: 11})
	assert.NotEqual(t, a, c)
}
