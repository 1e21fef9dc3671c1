package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

// providerWeight is the fixed per-catalog weight in the blended score.
var providerWeight = map[scholar.Provider]float64{
	scholar.ProviderOpenAlex:        1.0,
	scholar.ProviderCrossref:        0.9,
	scholar.ProviderSemanticScholar: 1.1,
	scholar.ProviderGoogleScholar:   0.7,
}

// citationScore maps a raw citation count into [0,1] on a log scale.
func citationScore(count int) float64 {
	if count < 0 {
		count = 0
	}
	return math.Min(1, math.Log10(float64(count)+1)/4)
}

// workScore blends a single provider record's signals.
func workScore(w *scholar.ProviderWork) float64 {
	return 0.6*w.Relevance + 0.3*citationScore(w.CitationCount) + 0.1*providerWeight[w.Provider]
}

// merger performs streaming entity resolution over provider works, in
// fan-out completion order. Identity priority: DOI, exact normalized title
// with year/author compatibility, fuzzy title similarity, else new entity.
type merger struct {
	fuzzyThreshold float64
	canonicals     []*scholar.CanonicalWork
	doiIndex       map[string]int
	titleIndex     map[string][]int
	titleTokens    []map[string]struct{}
	now            time.Time
}

func newMerger(fuzzyThreshold float64) *merger {
	return &merger{
		fuzzyThreshold: fuzzyThreshold,
		doiIndex:       make(map[string]int),
		titleIndex:     make(map[string][]int),
		now:            time.Now().UTC(),
	}
}

// add folds one provider work into the canonical set.
func (m *merger) add(w *scholar.ProviderWork) {
	if idx, ok := m.resolveTargetKey(w); ok {
		m.fold(idx, w)
		return
	}
	m.insert(w)
}

// resolveTargetKey walks the documented identity priority.
func (m *merger) resolveTargetKey(w *scholar.ProviderWork) (int, bool) {
	if w.DOI != "" {
		if idx, ok := m.doiIndex[w.DOI]; ok {
			return idx, true
		}
	}

	titleKey := scholar.NormalizeTitle(w.Title)
	for _, idx := range m.titleIndex[titleKey] {
		c := m.canonicals[idx]
		if yearsCompatible(c.Year, w.Year) && authorSignal(c.Authors, w.Authors) {
			return idx, true
		}
	}

	tokens := scholar.TitleTokens(w.Title)
	best, bestSim := -1, 0.0
	for idx, c := range m.canonicals {
		if !yearsCompatible(c.Year, w.Year) || !authorSignal(c.Authors, w.Authors) {
			continue
		}
		if sim := jaccard(tokens, m.titleTokens[idx]); sim >= m.fuzzyThreshold && sim > bestSim {
			best, bestSim = idx, sim
		}
	}
	if best >= 0 {
		return best, true
	}
	return 0, false
}

// insert creates a new canonical from a provider work.
func (m *merger) insert(w *scholar.ProviderWork) {
	c := &scholar.CanonicalWork{
		PaperID:                  canonicalID(w),
		Title:                    w.Title,
		Abstract:                 w.Abstract,
		Year:                     w.Year,
		Venue:                    w.Venue,
		DOI:                      w.DOI,
		URL:                      w.URL,
		CitationCount:            w.CitationCount,
		InfluentialCitationCount: w.InfluentialCitationCount,
		ReferenceCount:           w.ReferenceCount,
		Authors:                  append([]scholar.Author(nil), w.Authors...),
		OpenAccess:               w.OpenAccess,
		FieldsOfStudy:            dedupeStrings(w.FieldsOfStudy),
		Score:                    workScore(w),
	}
	if len(w.ExternalIDs) > 0 {
		c.ExternalIDs = make(map[string]string, len(w.ExternalIDs))
		for k, v := range w.ExternalIDs {
			c.ExternalIDs[k] = v
		}
	}
	c.Provenance = append(c.Provenance, provenanceFor(w, m.now))

	idx := len(m.canonicals)
	m.canonicals = append(m.canonicals, c)
	m.titleTokens = append(m.titleTokens, scholar.TitleTokens(w.Title))
	if c.DOI != "" {
		m.doiIndex[c.DOI] = idx
	}
	titleKey := scholar.NormalizeTitle(w.Title)
	m.titleIndex[titleKey] = append(m.titleIndex[titleKey], idx)
}

// fold merges a provider work into an existing canonical under the
// first-non-null / max-count / union rules.
func (m *merger) fold(idx int, w *scholar.ProviderWork) {
	c := m.canonicals[idx]
	if c.Abstract == "" {
		c.Abstract = w.Abstract
	}
	if c.Year == 0 {
		c.Year = w.Year
	}
	if c.Venue == "" {
		c.Venue = w.Venue
	}
	if c.URL == "" {
		c.URL = w.URL
	}
	if c.DOI == "" && w.DOI != "" {
		c.DOI = w.DOI
		if _, taken := m.doiIndex[w.DOI]; !taken {
			m.doiIndex[w.DOI] = idx
		}
	}

	c.CitationCount = maxInt(c.CitationCount, w.CitationCount)
	c.InfluentialCitationCount = maxInt(c.InfluentialCitationCount, w.InfluentialCitationCount)
	c.ReferenceCount = maxInt(c.ReferenceCount, w.ReferenceCount)

	if len(c.Authors) == 0 {
		c.Authors = append([]scholar.Author(nil), w.Authors...)
	}
	c.FieldsOfStudy = dedupeStrings(append(c.FieldsOfStudy, w.FieldsOfStudy...))

	if len(w.ExternalIDs) > 0 {
		if c.ExternalIDs == nil {
			c.ExternalIDs = make(map[string]string, len(w.ExternalIDs))
		}
		for k, v := range w.ExternalIDs {
			if _, exists := c.ExternalIDs[k]; !exists {
				c.ExternalIDs[k] = v
			}
		}
	}

	c.OpenAccess.IsOpen = c.OpenAccess.IsOpen || w.OpenAccess.IsOpen
	if c.OpenAccess.PDFURL == "" {
		c.OpenAccess.PDFURL = w.OpenAccess.PDFURL
	}
	if c.OpenAccess.License == "" {
		c.OpenAccess.License = w.OpenAccess.License
	}

	// One provenance record per contributing provider.
	if !hasProvider(c.Provenance, w.Provider) {
		c.Provenance = append(c.Provenance, provenanceFor(w, m.now))
	}
	if s := workScore(w); s > c.Score {
		c.Score = s
	}
}

func hasProvider(provenance []scholar.ProvenanceRecord, p scholar.Provider) bool {
	for _, record := range provenance {
		if record.Provider == p {
			return true
		}
	}
	return false
}

// rank recomputes the final blended score and orders the canonical set.
func (m *merger) rank(requestedProviders int) []*scholar.CanonicalWork {
	currentYear := m.now.Year()
	for _, c := range m.canonicals {
		diversity := 0.0
		if requestedProviders > 0 {
			diversity = float64(distinctProviders(c.Provenance)) / float64(requestedProviders)
		}
		recency := 0.15
		if c.Year > 0 {
			recency = 1 / math.Max(1, float64(currentYear-c.Year+1))
		}
		c.BlendedScore = 0.5*c.Score +
			0.25*citationScore(c.CitationCount) +
			0.15*diversity +
			0.1*math.Min(1, 2*recency)
	}
	out := append([]*scholar.CanonicalWork(nil), m.canonicals...)
	sortWorks(out)
	return out
}

// sortWorks orders by descending blended score, citation count as
// tiebreaker.
func sortWorks(works []*scholar.CanonicalWork) {
	sort.SliceStable(works, func(i, j int) bool {
		if works[i].BlendedScore != works[j].BlendedScore {
			return works[i].BlendedScore > works[j].BlendedScore
		}
		return works[i].CitationCount > works[j].CitationCount
	})
}

func provenanceFor(w *scholar.ProviderWork, now time.Time) scholar.ProvenanceRecord {
	return scholar.ProvenanceRecord{
		Provider:   w.Provider,
		SourceURL:  w.SourceURL,
		FetchedAt:  now,
		Confidence: w.Relevance,
	}
}

func distinctProviders(provenance []scholar.ProvenanceRecord) int {
	seen := make(map[scholar.Provider]struct{}, len(provenance))
	for _, p := range provenance {
		seen[p.Provider] = struct{}{}
	}
	return len(seen)
}

// yearsCompatible treats unknown years as compatible with anything.
func yearsCompatible(a, b int) bool {
	if a == 0 || b == 0 {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= 2
}

// authorSignal is present when the two sides share a provider author id or a
// normalized name, or when either side reports no authors at all.
func authorSignal(a, b []scholar.Author) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	ids := make(map[string]struct{}, len(a))
	names := make(map[string]struct{}, len(a))
	for _, author := range a {
		if author.ProviderAuthorID != "" {
			ids[author.ProviderAuthorID] = struct{}{}
		}
		if n := scholar.NormalizeTitle(author.Name); n != "" {
			names[n] = struct{}{}
		}
	}
	for _, author := range b {
		if author.ProviderAuthorID != "" {
			if _, ok := ids[author.ProviderAuthorID]; ok {
				return true
			}
		}
		if n := scholar.NormalizeTitle(author.Name); n != "" {
			if _, ok := names[n]; ok {
				return true
			}
		}
	}
	return false
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func canonicalID(w *scholar.ProviderWork) string {
	if w.DOI != "" {
		return "doi:" + w.DOI
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", scholar.NormalizeTitle(w.Title), w.Year)))
	return "work:" + hex.EncodeToString(sum[:8])
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
