// Package cite implements the citation engine: context-aware suggestions
// over the literature aggregator, style-adapted reference lists, and
// manuscript citation validation.
package cite

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/pkg/logging"
	"github.com/scholartech/scholargraph/pkg/scholar"
)

const (
	contextWindowChars   = 2500
	queryTokenCount      = 12
	queryFallbackChars   = 200
	minTokenLength       = 4
	matchedContextChars  = 280
	maxSuggestFetchLimit = 30
	inlineTopN           = 3

	listSuggestK          = 15
	listSuggestRecency    = 0.6
	unknownYearRecency    = 0.15
	citationScoreLogScale = 4
)

var wordRe = regexp.MustCompile(`[a-zA-Z]+`)

// Searcher is the aggregator capability the engine needs.
type Searcher interface {
	SearchGraph(ctx context.Context, input graph.SearchInput) (*scholar.SearchResult, error)
}

// Engine scores and formats citations. Pure over its inputs apart from the
// aggregator calls.
type Engine struct {
	searcher Searcher
	now      func() time.Time
	log      zerolog.Logger
}

// NewEngine creates the citation engine.
func NewEngine(searcher Searcher) *Engine {
	return &Engine{
		searcher: searcher,
		now:      time.Now,
		log:      logging.GetLogger("cite"),
	}
}

// SuggestInput parameterizes a contextual suggestion request.
type SuggestInput struct {
	ManuscriptText string
	CursorContext  string
	Style          Style
	K              int
	RecencyBias    float64
}

// SuggestResult is the ranked suggestion payload.
type SuggestResult struct {
	QueryUsed        string                      `json:"queryUsed"`
	Style            Style                       `json:"style"`
	Candidates       []scholar.CitationCandidate `json:"candidates"`
	InlineSuggestion string                      `json:"inlineSuggestion"`
	ProviderErrors   []scholar.ProviderFailure   `json:"providerErrors,omitempty"`
}

// Suggest derives a query from the manuscript context, searches the graph and
// re-scores candidates against the context token set.
func (e *Engine) Suggest(ctx context.Context, input SuggestInput) (*SuggestResult, error) {
	if input.K <= 0 {
		input.K = 10
	}
	if input.Style == "" {
		input.Style = StyleAPA
	}

	window := input.CursorContext
	if window == "" {
		window = input.ManuscriptText
	}
	window = lastChars(window, contextWindowChars)
	contextTokens := tokenize(window)

	query := topTokens(contextTokens, queryTokenCount)
	if query == "" {
		query = strings.TrimSpace(firstChars(input.ManuscriptText, queryFallbackChars))
	}
	if query == "" {
		return nil, &scholar.ValidationError{Field: "manuscript_text", Message: "no usable context to derive a query from"}
	}

	fetchLimit := input.K * 3
	if fetchLimit < input.K {
		fetchLimit = input.K
	}
	if fetchLimit > maxSuggestFetchLimit {
		fetchLimit = maxSuggestFetchLimit
	}

	result, err := e.searcher.SearchGraph(ctx, graph.SearchInput{Query: query, Limit: fetchLimit})
	if err != nil {
		return nil, err
	}

	contextSet := tokenSet(contextTokens)
	currentYear := e.now().UTC().Year()

	candidates := make([]scholar.CitationCandidate, 0, len(result.Results))
	for _, work := range result.Results {
		workSet := tokenSet(tokenize(work.Title + " " + work.Abstract))
		overlap := overlapRatio(contextSet, workSet)
		citation := math.Min(1, citationScore(work.CitationCount))
		recencyTerm := scholar.Clamp(recency(work.Year, currentYear)*math.Max(0, input.RecencyBias), 0, 1)

		score := 0.55*overlap + 0.3*citation + 0.15*recencyTerm
		matched := firstChars(work.Abstract, matchedContextChars)
		if matched == "" {
			matched = work.Title
		}
		candidates = append(candidates, scholar.CitationCandidate{
			Work:           work,
			RelevanceScore: score,
			Rationale:      rationale(overlap, work.CitationCount, work.Year),
			MatchedContext: matched,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RelevanceScore > candidates[j].RelevanceScore
	})
	if len(candidates) > input.K {
		candidates = candidates[:input.K]
	}

	e.log.Debug().
		Str("query", query).
		Int("candidates", len(candidates)).
		Msg("Citation suggestion complete")

	return &SuggestResult{
		QueryUsed:        query,
		Style:            input.Style,
		Candidates:       candidates,
		InlineSuggestion: inlineSuggestion(candidates, input.Style),
		ProviderErrors:   result.ProviderErrors,
	}, nil
}

// ListInput parameterizes reference list construction. Works takes priority;
// when empty the manuscript drives an internal suggestion pass.
type ListInput struct {
	Style          Style
	Locale         string
	ManuscriptText string
	Works          []*scholar.CanonicalWork
}

// ReferenceList is the built bibliography.
type ReferenceList struct {
	Style            Style                    `json:"style"`
	Locale           string                   `json:"locale"`
	Entries          []scholar.ReferenceEntry `json:"entries"`
	BibliographyText string                   `json:"bibliographyText"`
	StructuredExport string                   `json:"structuredExport"`
}

// BuildList assembles a deduplicated, style-formatted reference list.
func (e *Engine) BuildList(ctx context.Context, input ListInput) (*ReferenceList, error) {
	if input.Style == "" {
		input.Style = StyleAPA
	}
	if !ValidStyle(input.Style) {
		return nil, &scholar.ValidationError{Field: "style", Message: fmt.Sprintf("unsupported style %q", input.Style)}
	}
	if input.Locale == "" {
		input.Locale = "en-US"
	}

	works := input.Works
	if len(works) == 0 {
		if strings.TrimSpace(input.ManuscriptText) == "" {
			return nil, &scholar.ValidationError{Message: "either works or manuscript_text is required"}
		}
		suggested, err := e.Suggest(ctx, SuggestInput{
			ManuscriptText: input.ManuscriptText,
			Style:          input.Style,
			K:              listSuggestK,
			RecencyBias:    listSuggestRecency,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range suggested.Candidates {
			works = append(works, c.Work)
		}
	}

	works = dedupeWorks(works)
	entries := make([]scholar.ReferenceEntry, 0, len(works))
	var bibliography, export strings.Builder
	for i, work := range works {
		entry := commonEntry(work)
		formatted, err := formatEntry(entry, input.Style)
		structured := ""
		if err != nil {
			e.log.Warn().Str("title", entry.Title).Err(err).Msg("Style adapter failed, using fallback")
			formatted = fallbackEntry(entry)
			structured = bibtexStub(entry)
		} else {
			structured = bibtexEntry(entry)
		}
		entries = append(entries, scholar.ReferenceEntry{
			ID:               entry.ID,
			Entry:            entry,
			FormattedText:    formatted,
			StructuredExport: structured,
			SourceWork:       work,
		})
		fmt.Fprintf(&bibliography, "[%d] %s\n", i+1, formatted)
		export.WriteString(structured)
		export.WriteString("\n\n")
	}

	return &ReferenceList{
		Style:            input.Style,
		Locale:           input.Locale,
		Entries:          entries,
		BibliographyText: strings.TrimRight(bibliography.String(), "\n"),
		StructuredExport: strings.TrimRight(export.String(), "\n"),
	}, nil
}

// inlineSuggestion renders how the top candidates would be cited in running
// text for the requested style.
func inlineSuggestion(candidates []scholar.CitationCandidate, style Style) string {
	n := len(candidates)
	if n == 0 {
		return ""
	}
	if n > inlineTopN {
		n = inlineTopN
	}
	parts := make([]string, 0, n)
	if NumericStyle(style) {
		for i := 0; i < n; i++ {
			parts = append(parts, fmt.Sprintf("[%d]", i+1))
		}
		return strings.Join(parts, ", ")
	}
	for i := 0; i < n; i++ {
		work := candidates[i].Work
		surname := "Unknown"
		if len(work.Authors) > 0 {
			if s := Surname(work.Authors[0].Name); s != "" {
				surname = s
			}
		}
		parts = append(parts, fmt.Sprintf("(%s, %s)", surname, yearOrND(work.Year)))
	}
	return strings.Join(parts, "; ")
}

func dedupeWorks(works []*scholar.CanonicalWork) []*scholar.CanonicalWork {
	seen := make(map[string]bool, len(works))
	out := works[:0:0]
	for _, w := range works {
		if w == nil {
			continue
		}
		key := w.DOI
		if key == "" {
			key = w.PaperID
		}
		if key != "" && seen[key] {
			continue
		}
		if key != "" {
			seen[key] = true
		}
		out = append(out, w)
	}
	return out
}

func citationScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Log10(float64(count)+1) / citationScoreLogScale
}

func recency(year, currentYear int) float64 {
	if year == 0 {
		return unknownYearRecency
	}
	age := currentYear - year + 1
	if age < 1 {
		age = 1
	}
	return 1 / float64(age)
}

func rationale(overlap float64, citations, year int) string {
	yearPart := "unknown year"
	if year != 0 {
		yearPart = fmt.Sprintf("published %d", year)
	}
	return fmt.Sprintf("context overlap %.2f, %d citations, %s", overlap, citations, yearPart)
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range wordRe.FindAllString(text, -1) {
		word = strings.ToLower(word)
		if len(word) >= minTokenLength {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for t := range small {
		if large[t] {
			shared++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(shared) / float64(denom)
}

// topTokens returns the most frequent tokens joined by spaces, frequency
// descending with first-seen order as the tiebreak.
func topTokens(tokens []string, n int) string {
	if len(tokens) == 0 {
		return ""
	}
	counts := make(map[string]int, len(tokens))
	order := make(map[string]int, len(tokens))
	var unique []string
	for i, t := range tokens {
		if counts[t] == 0 {
			order[t] = i
			unique = append(unique, t)
		}
		counts[t]++
	}
	sort.SliceStable(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return order[unique[i]] < order[unique[j]]
	})
	if len(unique) > n {
		unique = unique[:n]
	}
	return strings.Join(unique, " ")
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
