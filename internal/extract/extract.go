// Package extract classifies parsed-document sentences into claims, methods
// and limitations, and pulls out dataset and metric mentions. Everything is
// pattern-based over in-memory documents; no network calls.
package extract

import (
	"regexp"
	"strings"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

const (
	maxFindingsPerBucket = 25
	maxDatasets          = 30
	minSentenceChars     = 20
	confidenceFloor      = 0.4
)

var (
	claimPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwe (propose|present|show|demonstrate)\b`),
		regexp.MustCompile(`(?i)\bthis paper\b`),
		regexp.MustCompile(`(?i)\bour (results|findings)\b`),
		regexp.MustCompile(`(?i)\bwe find that\b`),
	}
	methodPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmethod(ology)?\b`),
		regexp.MustCompile(`(?i)\bapproach\b`),
		regexp.MustCompile(`(?i)\bmodel\b`),
		regexp.MustCompile(`(?i)\balgorithm\b`),
		regexp.MustCompile(`(?i)\bexperimental setup\b`),
	}
	limitationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\blimitation\b`),
		regexp.MustCompile(`(?i)\bhowever\b`),
		regexp.MustCompile(`(?i)\bfuture work\b`),
		regexp.MustCompile(`(?i)\bchallenge\b`),
		regexp.MustCompile(`(?i)\bconstraint\b`),
	}

	datasetPattern = regexp.MustCompile(`[A-Z][A-Za-z0-9\-]+ (dataset|corpus|benchmark)`)

	metricKeywords = []string{"F1", "accuracy", "precision", "recall", "AUC", "RMSE", "MAE", "BLEU", "ROUGE", "mAP"}
	metricPatterns = compileMetricPatterns()
)

func compileMetricPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(metricKeywords))
	for _, keyword := range metricKeywords {
		patterns[keyword] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	}
	return patterns
}

// Request narrows extraction to specific sections and toggles the reference
// echo.
type Request struct {
	Sections          []string
	IncludeReferences bool
}

// Extract runs the full classification over a parsed document.
func Extract(doc *scholar.ParsedDocument, req Request) *scholar.GranularPaperDetails {
	sections := selectSections(doc.Sections, req.Sections)
	confidence := scholar.Clamp(doc.Parser.Confidence, confidenceFloor, 1)

	details := &scholar.GranularPaperDetails{
		DocumentID:  doc.DocumentID,
		Claims:      []scholar.ExtractedFinding{},
		Methods:     []scholar.ExtractedFinding{},
		Limitations: []scholar.ExtractedFinding{},
		Datasets:    []string{},
		Metrics:     []string{},
	}

	for _, section := range sections {
		for _, sentence := range SplitSentences(section.Text) {
			if len(sentence) <= minSentenceChars {
				continue
			}
			finding := scholar.ExtractedFinding{
				Text:       sentence,
				Confidence: confidence,
				SectionID:  section.ID,
			}
			if matchesAny(sentence, claimPatterns) && len(details.Claims) < maxFindingsPerBucket {
				details.Claims = append(details.Claims, finding)
			}
			if matchesAny(sentence, methodPatterns) && len(details.Methods) < maxFindingsPerBucket {
				details.Methods = append(details.Methods, finding)
			}
			if matchesAny(sentence, limitationPatterns) && len(details.Limitations) < maxFindingsPerBucket {
				details.Limitations = append(details.Limitations, finding)
			}
		}
		details.Datasets = appendDatasets(details.Datasets, section.Text)
	}
	details.Metrics = detectMetrics(fullTextOf(doc, sections))

	if req.IncludeReferences {
		details.References = append([]scholar.ParsedReference(nil), doc.References...)
	}
	return details
}

// selectSections keeps sections whose lowercased heading contains any
// requested name; an empty match set falls back to all sections.
func selectSections(sections []scholar.SectionChunk, wanted []string) []scholar.SectionChunk {
	if len(wanted) == 0 {
		return sections
	}
	var kept []scholar.SectionChunk
	for _, section := range sections {
		heading := strings.ToLower(section.Heading)
		for _, name := range wanted {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" && strings.Contains(heading, name) {
				kept = append(kept, section)
				break
			}
		}
	}
	if len(kept) == 0 {
		return sections
	}
	return kept
}

// SplitSentences breaks text at sentence-final punctuation followed by
// whitespace. Done manually since RE2 has no lookbehind.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 < len(runes) && !isSpace(runes[i+1]) {
				continue
			}
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func matchesAny(sentence string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(sentence) {
			return true
		}
	}
	return false
}

func appendDatasets(datasets []string, text string) []string {
	for _, match := range datasetPattern.FindAllString(text, -1) {
		if len(datasets) >= maxDatasets {
			break
		}
		match = scholar.NormalizeWhitespace(match)
		if !containsFold(datasets, match) {
			datasets = append(datasets, match)
		}
	}
	return datasets
}

// detectMetrics scans for the fixed metric vocabulary, canonicalized to
// uppercase.
func detectMetrics(text string) []string {
	var metrics []string
	for _, keyword := range metricKeywords {
		if metricPatterns[keyword].MatchString(text) {
			canonical := strings.ToUpper(keyword)
			if !containsFold(metrics, canonical) {
				metrics = append(metrics, canonical)
			}
		}
	}
	return metrics
}

func fullTextOf(doc *scholar.ParsedDocument, sections []scholar.SectionChunk) string {
	if len(sections) == 0 {
		return doc.FullText
	}
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.Text)
		b.WriteByte(' ')
	}
	return b.String()
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
