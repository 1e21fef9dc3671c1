// Package graph implements the federated literature aggregator: concurrent
// provider fan-out, cross-catalog entity resolution, blended ranking and a
// bounded result cache. Provider failures are recovered locally and reported
// alongside results, never as call failures.
package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/scholartech/scholargraph/internal/providers"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

// Options tunes aggregator behavior.
type Options struct {
	ProviderMultiplier  float64
	FuzzyTitleThreshold float64
	CacheTTL            time.Duration
	MaxCacheEntries     int
}

// SearchInput is the canonicalized search request (year range already in
// {min,max} form).
type SearchInput struct {
	Query         string
	Limit         int
	YearMin       int
	YearMax       int
	FieldsOfStudy []string
	Sources       []scholar.Provider
}

// Aggregator fans a query out to every requested provider and merges the
// results into ranked canonical works.
type Aggregator struct {
	providers map[scholar.Provider]providers.SearchProvider
	resolver  providers.DOIResolver
	opts      Options
	cache     *searchCache
	group     singleflight.Group
	log       zerolog.Logger
}

// New creates an aggregator over the given adapters. resolver may be nil
// when no catalog offers direct DOI lookup.
func New(adapters []providers.SearchProvider, resolver providers.DOIResolver, opts Options) *Aggregator {
	if opts.ProviderMultiplier <= 0 {
		opts.ProviderMultiplier = 2
	}
	if opts.FuzzyTitleThreshold <= 0 {
		opts.FuzzyTitleThreshold = 0.82
	}
	byTag := make(map[scholar.Provider]providers.SearchProvider, len(adapters))
	for _, a := range adapters {
		byTag[a.Tag()] = a
	}
	return &Aggregator{
		providers: byTag,
		resolver:  resolver,
		opts:      opts,
		cache:     newSearchCache(opts.CacheTTL, opts.MaxCacheEntries),
		log:       logging.GetLogger("graph"),
	}
}

type fanoutItem struct {
	provider scholar.Provider
	works    []scholar.ProviderWork
}

// SearchGraph runs the full fan-out / filter / merge / rank pipeline.
func (a *Aggregator) SearchGraph(ctx context.Context, input SearchInput) (*scholar.SearchResult, error) {
	if input.Limit <= 0 {
		input.Limit = 10
	}
	if len(input.Sources) == 0 {
		input.Sources = a.registeredProviders()
	}

	key := cacheKey(input)
	if hit := a.cache.get(key); hit != nil {
		hit.CacheHit = true
		a.log.Debug().Str("query", input.Query).Msg("Cache hit")
		return hit, nil
	}

	// Coalesce identical concurrent misses; every caller still receives its
	// own deep copy.
	v, err, _ := a.group.Do(key, func() (any, error) {
		result, err := a.search(ctx, input)
		if err != nil {
			return nil, err
		}
		a.cache.put(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*scholar.SearchResult).Clone(), nil
}

func (a *Aggregator) search(ctx context.Context, input SearchInput) (*scholar.SearchResult, error) {
	perProviderLimit := int(math.Ceil(float64(input.Limit) * a.opts.ProviderMultiplier))

	var (
		mu       sync.Mutex
		items    []fanoutItem
		failures []scholar.ProviderFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, tag := range input.Sources {
		adapter, ok := a.providers[tag]
		if !ok {
			mu.Lock()
			failures = append(failures, scholar.ProviderFailure{
				Provider: tag,
				Message:  fmt.Sprintf("unknown provider %q", tag),
			})
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			works, err := adapter.SearchWorks(gctx, input.Query, perProviderLimit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Provider failures never fail the aggregate call.
				failures = append(failures, scholar.ProviderFailure{
					Provider: adapter.Tag(),
					Message:  err.Error(),
				})
				a.log.Warn().Str("provider", string(adapter.Tag())).Err(err).Msg("Provider search failed")
				return nil
			}
			items = append(items, fanoutItem{provider: adapter.Tag(), works: works})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m := newMerger(a.opts.FuzzyTitleThreshold)
	for _, item := range items {
		for i := range item.works {
			w := &item.works[i]
			if !a.keep(w, input) {
				continue
			}
			m.add(w)
		}
	}

	ranked := m.rank(len(input.Sources))
	if len(ranked) > input.Limit {
		ranked = ranked[:input.Limit]
	}

	a.log.Info().
		Str("query", input.Query).
		Int("results", len(ranked)).
		Int("provider_errors", len(failures)).
		Msg("Search complete")

	return &scholar.SearchResult{
		Query:          input.Query,
		Results:        ranked,
		Total:          len(ranked),
		ProviderErrors: failures,
	}, nil
}

// keep applies the year-range and field-of-study filters. Unknown years are
// retained.
func (a *Aggregator) keep(w *scholar.ProviderWork, input SearchInput) bool {
	if w.Year != 0 {
		if input.YearMin > 0 && w.Year < input.YearMin {
			return false
		}
		if input.YearMax > 0 && w.Year > input.YearMax {
			return false
		}
	}
	if len(input.FieldsOfStudy) > 0 {
		matched := false
		for _, want := range input.FieldsOfStudy {
			for _, have := range w.FieldsOfStudy {
				if strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(have)) {
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// ResolveByDOI tries the direct DOI endpoint first, then falls back to a
// federated search for the DOI string.
func (a *Aggregator) ResolveByDOI(ctx context.Context, doi string) (*scholar.CanonicalWork, error) {
	doi = scholar.NormalizeDOI(doi)
	if doi == "" {
		return nil, nil
	}

	if a.resolver != nil {
		work, err := a.resolver.GetWorkByDOI(ctx, doi)
		if err != nil {
			a.log.Warn().Str("doi", doi).Err(err).Msg("Direct DOI lookup failed, falling back to search")
		} else if work != nil {
			m := newMerger(a.opts.FuzzyTitleThreshold)
			m.add(work)
			ranked := m.rank(1)
			if len(ranked) > 0 {
				return ranked[0], nil
			}
		}
	}

	result, err := a.SearchGraph(ctx, SearchInput{
		Query: doi,
		Limit: 50,
		Sources: []scholar.Provider{
			scholar.ProviderOpenAlex,
			scholar.ProviderCrossref,
			scholar.ProviderSemanticScholar,
		},
	})
	if err != nil {
		return nil, err
	}
	for _, c := range result.Results {
		if c.DOI == doi || c.ExternalIDs["doi"] == doi {
			return c, nil
		}
	}
	if len(result.Results) > 0 {
		return result.Results[0], nil
	}
	return nil, nil
}

// CacheLen reports the current cache population (used by the health
// endpoint).
func (a *Aggregator) CacheLen() int { return a.cache.len() }

func (a *Aggregator) registeredProviders() []scholar.Provider {
	out := make([]scholar.Provider, 0, len(a.providers))
	for _, tag := range scholar.AllProviders {
		if _, ok := a.providers[tag]; ok {
			out = append(out, tag)
		}
	}
	return out
}

func cacheKey(input SearchInput) string {
	fields := append([]string(nil), input.FieldsOfStudy...)
	for i := range fields {
		fields[i] = strings.ToLower(strings.TrimSpace(fields[i]))
	}
	sort.Strings(fields)

	sources := make([]string, 0, len(input.Sources))
	for _, s := range input.Sources {
		sources = append(sources, string(s))
	}
	sort.Strings(sources)

	return fmt.Sprintf("%s|%d|%d-%d|%s|%s",
		strings.ToLower(scholar.NormalizeWhitespace(input.Query)),
		input.Limit,
		input.YearMin, input.YearMax,
		strings.Join(fields, ","),
		strings.Join(sources, ","))
}
