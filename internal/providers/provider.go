// Package providers maps each external scholarly catalog onto the common
// ProviderWork shape: OpenAlex, Crossref and Semantic Scholar over JSON, and
// Google Scholar via HTML scraping. Adapters never write upstream and every
// network call goes through the shared pacing fetch client.
package providers

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

// SearchProvider is the single capability every catalog implements.
type SearchProvider interface {
	Tag() scholar.Provider
	SearchWorks(ctx context.Context, query string, limit int) ([]scholar.ProviderWork, error)
}

// DOIResolver is the optional direct-lookup capability. Only OpenAlex
// implements it. A miss returns (nil, nil).
type DOIResolver interface {
	GetWorkByDOI(ctx context.Context, doi string) (*scholar.ProviderWork, error)
}

// Provider-characteristic default relevance, used when the catalog does not
// report a normalized relevance of its own.
const (
	defaultRelevanceOpenAlex        = 0.5
	defaultRelevanceCrossref        = 0.5
	defaultRelevanceSemanticScholar = 0.7
	defaultRelevanceScholar         = 0.4
)

// fallbackTitle guarantees the non-empty-title invariant.
func fallbackTitle(title string) string {
	title = scholar.NormalizeWhitespace(title)
	if title == "" {
		return "Untitled"
	}
	return title
}

// decodeInvertedIndex rebuilds abstract text from a token -> positions map.
// Positions order the output; gaps collapse to single spaces.
func decodeInvertedIndex(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := -1
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	if maxPos < 0 {
		return ""
	}
	words := make([]string, maxPos+1)
	for token, positions := range index {
		for _, p := range positions {
			if p >= 0 && p < len(words) {
				words[p] = token
			}
		}
	}
	return scholar.NormalizeWhitespace(strings.Join(words, " "))
}

// stripMarkup removes all tag markup from HTML/JATS-embedded text and
// collapses whitespace.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return scholar.NormalizeWhitespace(s)
	}
	node, err := html.Parse(bytes.NewReader([]byte(s)))
	if err != nil {
		return scholar.NormalizeWhitespace(s)
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return scholar.NormalizeWhitespace(b.String())
}
