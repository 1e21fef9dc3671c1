package cite

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

const maxCitationRangeSpan = 100

var (
	bracketRe     = regexp.MustCompile(`\[([^\[\]]*)\]`)
	ordinalRe     = regexp.MustCompile(`^\d{1,4}$`)
	rangeRe       = regexp.MustCompile(`^(\d{1,4})\s*-\s*(\d{1,4})$`)
	placeholderRe = regexp.MustCompile(`^(\?|TODO|CITATION)$`)

	parenYearRe  = regexp.MustCompile(`\(([^()]*(?:19|20)\d\d[a-z]?[^()]*)\)`)
	authorYearRe = regexp.MustCompile(`([A-Z][A-Za-z'\x60-]+)(?:\s+et al\.?)?,?\s+((?:19|20)\d\d[a-z]?)`)

	urlRe = regexp.MustCompile(`(?i)https?://\S+`)

	sourceHintRe = regexp.MustCompile(`(?i)\b(journal|proceedings|conference|transactions|review|press|arxiv|vol\.|pp\.)\b`)
	authorHintRe = regexp.MustCompile(`^[A-Z][A-Za-z'\x60-]+(,| and | & | [A-Z]\.| [A-Z][A-Za-z])`)
)

// ReferenceInput is one caller-supplied bibliography entry.
type ReferenceInput struct {
	ID        string `json:"id,omitempty"`
	Formatted string `json:"formatted"`
	BibTeX    string `json:"bibtex,omitempty"`
}

// ValidateOptions tunes validation.
type ValidateOptions struct {
	ExpectedStyle Style
}

// AuthorYearCitation is one parsed (surname, year) citation.
type AuthorYearCitation struct {
	Surname string `json:"surname"`
	Year    string `json:"year"`
}

// CompletenessDiagnostic reports missing bibliographic fields for one entry.
type CompletenessDiagnostic struct {
	ReferenceIndex       int      `json:"referenceIndex"`
	MissingFields        []string `json:"missingFields,omitempty"`
	PersistentIdentifier bool     `json:"persistentIdentifier"`
	Suggestion           string   `json:"suggestion,omitempty"`
}

// ValidationReport is the full validation output.
type ValidationReport struct {
	InlineCitationCount     int                      `json:"inlineCitationCount"`
	NumericCitations        []int                    `json:"numericCitations"`
	AuthorYearCitations     []AuthorYearCitation     `json:"authorYearCitations"`
	Placeholders            []string                 `json:"placeholders,omitempty"`
	InvalidCitationChunks   []string                 `json:"invalidCitationChunks,omitempty"`
	MissingReferences       []string                 `json:"missingReferences,omitempty"`
	UncitedReferences       []string                 `json:"uncitedReferences,omitempty"`
	DuplicateReferences     []string                 `json:"duplicateReferences,omitempty"`
	CompletenessDiagnostics []CompletenessDiagnostic `json:"completenessDiagnostics"`
	StyleWarnings           []string                 `json:"styleWarnings,omitempty"`
}

// Validate cross-checks a manuscript's inline citations against its reference
// list and reports style, completeness and consistency diagnostics.
func Validate(manuscript string, references []ReferenceInput, opts ValidateOptions) *ValidationReport {
	report := &ValidationReport{
		CompletenessDiagnostics: []CompletenessDiagnostic{},
	}

	numericSet := make(map[int]bool)
	for _, m := range bracketRe.FindAllStringSubmatch(manuscript, -1) {
		chunkGroup := strings.TrimSpace(m[1])
		if placeholderRe.MatchString(chunkGroup) {
			report.Placeholders = append(report.Placeholders, "["+chunkGroup+"]")
			continue
		}
		for _, chunk := range splitChunks(chunkGroup) {
			ordinals, ok := parseChunk(chunk)
			if !ok {
				report.InvalidCitationChunks = append(report.InvalidCitationChunks, chunk)
				continue
			}
			for _, n := range ordinals {
				numericSet[n] = true
			}
		}
	}
	for n := range numericSet {
		report.NumericCitations = append(report.NumericCitations, n)
	}
	sort.Ints(report.NumericCitations)

	report.AuthorYearCitations = parseAuthorYear(manuscript)
	report.InlineCitationCount = len(report.NumericCitations) + len(report.AuthorYearCitations)

	citedByIndex := make(map[int]bool)
	for _, n := range report.NumericCitations {
		if n >= 1 && n <= len(references) {
			citedByIndex[n] = true
		} else {
			report.MissingReferences = append(report.MissingReferences, fmt.Sprintf("[%d]", n))
		}
	}

	citedBySurname := make(map[int]bool)
	for _, c := range report.AuthorYearCitations {
		found := false
		for i, ref := range references {
			if strings.Contains(strings.ToLower(ref.Formatted), strings.ToLower(c.Surname)) {
				citedBySurname[i+1] = true
				found = true
			}
		}
		if !found {
			report.MissingReferences = append(report.MissingReferences, fmt.Sprintf("(%s, %s)", c.Surname, c.Year))
		}
	}

	for i, ref := range references {
		if !citedByIndex[i+1] && !citedBySurname[i+1] {
			report.UncitedReferences = append(report.UncitedReferences, refLabel(i, ref))
		}
	}

	report.DuplicateReferences = findDuplicates(references)
	report.CompletenessDiagnostics = completeness(references)
	report.StyleWarnings = styleWarnings(report, references, opts.ExpectedStyle)
	return report
}

func splitChunks(group string) []string {
	var chunks []string
	for _, chunk := range strings.FieldsFunc(group, func(r rune) bool { return r == ',' || r == ';' }) {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// parseChunk accepts a single ordinal or an ascending range spanning at most
// maxCitationRangeSpan entries.
func parseChunk(chunk string) ([]int, bool) {
	if ordinalRe.MatchString(chunk) {
		n, err := strconv.Atoi(chunk)
		if err != nil {
			return nil, false
		}
		return []int{n}, true
	}
	m := rangeRe.FindStringSubmatch(chunk)
	if m == nil {
		return nil, false
	}
	lo, _ := strconv.Atoi(m[1])
	hi, _ := strconv.Atoi(m[2])
	if lo > hi || hi > lo+maxCitationRangeSpan {
		return nil, false
	}
	out := make([]int, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, n)
	}
	return out, true
}

func parseAuthorYear(manuscript string) []AuthorYearCitation {
	var citations []AuthorYearCitation
	seen := make(map[string]bool)
	for _, group := range parenYearRe.FindAllStringSubmatch(manuscript, -1) {
		for _, m := range authorYearRe.FindAllStringSubmatch(group[1], -1) {
			key := m[1] + "|" + m[2]
			if seen[key] {
				continue
			}
			seen[key] = true
			citations = append(citations, AuthorYearCitation{Surname: m[1], Year: m[2]})
		}
	}
	return citations
}

// findDuplicates groups references by DOI when present, else by normalized
// title text plus year.
func findDuplicates(references []ReferenceInput) []string {
	groups := make(map[string][]int)
	for i, ref := range references {
		key := duplicateKey(ref)
		groups[key] = append(groups[key], i)
	}
	var duplicates []string
	for _, indexes := range groups {
		if len(indexes) < 2 {
			continue
		}
		for _, i := range indexes {
			duplicates = append(duplicates, refLabel(i, references[i]))
		}
	}
	sort.Strings(duplicates)
	return duplicates
}

func duplicateKey(ref ReferenceInput) string {
	text := ref.Formatted + " " + ref.BibTeX
	if doi := scholar.NormalizeDOI(scholar.DOIPattern.FindString(text)); doi != "" {
		return "doi:" + doi
	}
	year := scholar.ParseYearString(ref.Formatted)
	return fmt.Sprintf("title:%s|%d", scholar.NormalizeTitle(stripCitationApparatus(ref.Formatted)), year)
}

// stripCitationApparatus removes year parentheticals, quotes and trailing
// URLs so two renditions of the same work normalize alike.
func stripCitationApparatus(formatted string) string {
	s := urlRe.ReplaceAllString(formatted, " ")
	s = regexp.MustCompile(`\((?:19|20)\d\d\)`).ReplaceAllString(s, " ")
	s = strings.NewReplacer(`"`, " ", "“", " ", "”", " ").Replace(s)
	return s
}

func completeness(references []ReferenceInput) []CompletenessDiagnostic {
	diagnostics := make([]CompletenessDiagnostic, 0, len(references))
	for i, ref := range references {
		text := ref.Formatted
		var missing []string
		if !authorHintRe.MatchString(strings.TrimSpace(text)) {
			missing = append(missing, "author")
		}
		if scholar.ParseYearString(text) == 0 {
			missing = append(missing, "year")
		}
		if len(scholar.NormalizeTitle(stripCitationApparatus(text))) < 10 {
			missing = append(missing, "title")
		}
		if !sourceHintRe.MatchString(text) && strings.Count(text, ".") < 3 {
			missing = append(missing, "source")
		}

		doi := scholar.NormalizeDOI(scholar.DOIPattern.FindString(text + " " + ref.BibTeX))
		hasIdentifier := doi != "" || urlRe.MatchString(text)
		diag := CompletenessDiagnostic{
			ReferenceIndex:       i + 1,
			MissingFields:        missing,
			PersistentIdentifier: hasIdentifier,
		}
		if doi != "" && !strings.Contains(text, "doi.org/") {
			diag.Suggestion = fmt.Sprintf("append https://doi.org/%s", doi)
		}
		diagnostics = append(diagnostics, diag)
	}
	return diagnostics
}

func styleWarnings(report *ValidationReport, references []ReferenceInput, expected Style) []string {
	var warnings []string
	for _, p := range report.Placeholders {
		warnings = append(warnings, fmt.Sprintf("placeholder citation %s found", p))
	}
	for _, chunk := range report.InvalidCitationChunks {
		warnings = append(warnings, fmt.Sprintf("unparseable citation chunk %q", chunk))
	}

	hasNumeric := len(report.NumericCitations) > 0
	hasAuthorYear := len(report.AuthorYearCitations) > 0
	if hasNumeric && hasAuthorYear {
		warnings = append(warnings, "mixed numeric and author-year citation patterns detected")
	}
	switch {
	case NumericStyle(expected) && hasAuthorYear:
		warnings = append(warnings, fmt.Sprintf("expected numeric citations for style %s but found author-year citations", expected))
	case (expected == StyleAPA || expected == StyleChicago) && hasNumeric:
		warnings = append(warnings, fmt.Sprintf("expected author-year citations for style %s but found numeric citations", expected))
	}
	if expected == StyleAPA {
		missingID := 0
		for _, d := range report.CompletenessDiagnostics {
			if !d.PersistentIdentifier {
				missingID++
			}
		}
		if missingID > 0 {
			warnings = append(warnings, fmt.Sprintf("%d reference(s) missing a persistent identifier (DOI or URL)", missingID))
		}
	}
	if len(references) == 0 {
		warnings = append(warnings, "Reference list is empty.")
	}
	return warnings
}

func refLabel(index int, ref ReferenceInput) string {
	if ref.ID != "" {
		return ref.ID
	}
	return fmt.Sprintf("[%d]", index+1)
}
